package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "numwatch/internal/transport"
	logx "numwatch/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{"empty", "", 10, 1},
		{"short", "hello", 10, 1},
		{"newline boundary", "aaaa\nbbbb\ncccc", 10, 2},
		{"hard cut", strings.Repeat("x", 25), 10, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tc.in, tc.limit)
			assert.Len(t, got, tc.want)
			for _, c := range got {
				assert.LessOrEqual(t, len([]rune(c)), tc.limit)
			}
		})
	}
}

func TestSplitKeepsContent(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("line of text\n", 50)
	got := splitText(in, 100)
	require.NotEmpty(t, got)
	assert.Equal(t, strings.ReplaceAll(in, "\n", ""), strings.ReplaceAll(strings.Join(got, ""), "\n", ""))
}

func TestSplitAvoidsTags(t *testing.T) {
	t.Parallel()
	got := splitText("aaaaaaa<code>1</code>", 10)
	require.NotEmpty(t, got)
	assert.Equal(t, "aaaaaaa", got[0])
}

func TestFitCaption(t *testing.T) {
	t.Parallel()
	short := "<b>New Number Added</b>\n<code>+447700900123</code>"
	assert.Equal(t, short, fitCaption(short))

	long := short + "\n" + strings.Repeat("x", captionLimit)
	got := fitCaption(long)
	assert.LessOrEqual(t, len([]rune(got)), captionLimit)
	assert.True(t, strings.HasPrefix(got, short))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestMapErr(t *testing.T) {
	t.Parallel()
	assert.NoError(t, mapErr(nil))

	err := mapErr(errors.New("telegram: Bad Request: message is not modified: specified new message content"))
	assert.ErrorIs(t, err, kit.ErrNotModified)

	other := errors.New("telegram: Bad Request: message to edit not found")
	assert.Same(t, other, mapErr(other))
}

func TestMarkupOf(t *testing.T) {
	t.Parallel()
	assert.Nil(t, markupOf(nil))
	assert.Nil(t, markupOf(&kit.SendOptions{ReplyMarkupAdapter: "nope"}))
	rm := &tele.ReplyMarkup{}
	assert.Same(t, rm, markupOf(&kit.SendOptions{ReplyMarkupAdapter: rm}))
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()
	a := &Adapter{limiter: rate.NewLimiter(rate.Limit(1), 1)}
	require.NoError(t, a.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.wait(ctx), context.Canceled)
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.Error(t, err)
}
