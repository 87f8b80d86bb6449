package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "numwatch/internal/transport"
	"numwatch/internal/transport/transporttest"
	logx "numwatch/pkg/logx"
)

func sampleStatus() Status {
	return Status{
		Sites: []SiteStatus{
			{ID: "site_1", Name: "One", Enabled: true},
			{ID: "site_2", Name: "UK <list>", Enabled: false, Failures: 3},
		},
		Repeat: 5 * time.Minute,
	}
}

func TestDigest(t *testing.T) {
	t.Parallel()

	msg := Digest(sampleStatus())
	require.NotNil(t, msg.Opt)
	assert.Equal(t, "HTML", msg.Opt.ParseMode)
	assert.Contains(t, msg.Text, Greeting)
	assert.Contains(t, msg.Text, "1/2 enabled")
	assert.Contains(t, msg.Text, "<b>UK &lt;list&gt;</b> (off, 3 failed checks)")
	assert.Contains(t, msg.Text, "every 05 min : 00 sec")
	assert.NotContains(t, msg.Text, "Last check")

	msg = Digest(Status{LastPass: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	assert.Contains(t, msg.Text, "0/0 enabled")
	assert.Contains(t, msg.Text, "disabled")
	assert.Contains(t, msg.Text, "2026-01-02 03:04:05")
}

func TestPostSendsToChat(t *testing.T) {
	t.Parallel()

	ad := transporttest.New()
	chat := kit.ChatTarget{ChatID: 42}
	s := New(Config{}, ad, chat, sampleStatus, logx.Nop())
	require.NoError(t, s.Post(context.Background()))

	op, ok := ad.Last("text")
	require.True(t, ok)
	assert.Equal(t, int64(42), op.Ref.ChatID)
	assert.Contains(t, op.Text, Greeting)
}

func TestScheduleFires(t *testing.T) {
	t.Parallel()

	ad := transporttest.New()
	s := New(Config{Schedule: "@every 1s"}, ad, kit.ChatTarget{ChatID: 1}, sampleStatus, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return ad.Count("text") > 0 }, 5*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	assert.True(t, s.Next().IsZero())
}

func TestApply(t *testing.T) {
	t.Parallel()

	s := New(Config{}, transporttest.New(), kit.ChatTarget{ChatID: 1}, nil, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Apply(Config{Schedule: "0 9 * * *", Timezone: "UTC"}))
	// The runner computes the next slot once its loop is up.
	require.Eventually(t, func() bool { return !s.Next().IsZero() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 9, s.Next().UTC().Hour())

	require.Error(t, s.Apply(Config{Schedule: "whenever"}))
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Apply(Config{}))
	s.Stop(context.Background())
}
