package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numwatch/internal/eventbus"
	"numwatch/internal/monitor"
	"numwatch/internal/transport"
	"numwatch/internal/transport/transporttest"
	logx "numwatch/pkg/logx"
)

type siteMap struct {
	mu sync.Mutex
	m  map[string]monitor.Site
}

func (s *siteMap) Get(id string) (monitor.Site, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	return v, ok
}

func newSites(sites ...monitor.Site) *siteMap {
	m := &siteMap{m: map[string]monitor.Site{}}
	for _, s := range sites {
		m.m[s.ID] = s
	}
	return m
}

func singleSite() monitor.Site {
	return monitor.Site{ID: "site_1", URL: "https://one.example", Type: monitor.TypeSingle, Enabled: true,
		LastValue: "447700900123", ImageURL: "https://one.example/gb.png", FirstRunCompleted: true}
}

func TestDispatcherSendsPhotoAndKeepsRecord(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ad := transporttest.New()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	d := NewDispatcher(ctx, ad, newSites(singleSite()), Options{Chat: transport.ChatTarget{ChatID: 42}, Bus: bus, Log: logx.Nop()})
	rec, err := d.Send(ctx, singleSite(), true)
	require.NoError(t, err)

	assert.True(t, rec.Photo)
	assert.False(t, rec.InitialRun)
	assert.Equal(t, int64(42), rec.Ref.ChatID)
	op, ok := ad.Last("photo")
	require.True(t, ok)
	assert.Equal(t, "https://one.example/gb.png", op.PhotoURL)
	assert.Contains(t, op.Text, "<code>+44 7700900123</code>")
	assert.NotContains(t, op.Text, "Next notification")
	require.NotNil(t, op.Markup)

	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, rec.Ref, latest.Ref)
	assert.Equal(t, eventbus.NotificationSent, (<-events).Type)
	assert.False(t, d.Countdowns().Active("site_1"))
}

func TestDispatcherFallsBackToText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ad := transporttest.New()
	ad.PhotoErr = errors.New("bad photo url")

	s := singleSite()
	d := NewDispatcher(ctx, ad, newSites(s), Options{Log: logx.Nop()})
	rec, err := d.Send(ctx, s, false)
	require.NoError(t, err)
	assert.False(t, rec.Photo)
	assert.Equal(t, 1, ad.Count("text"))

	s.ImageURL = ""
	_, err = d.Send(ctx, s, false)
	require.NoError(t, err)
	assert.Equal(t, 2, ad.Count("text"))
}

func TestDispatcherNothingToRender(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ad := transporttest.New()
	s := monitor.Site{ID: "x", Type: monitor.TypeSingle}
	d := NewDispatcher(ctx, ad, newSites(s), Options{Log: logx.Nop()})
	_, err := d.Send(ctx, s, false)
	assert.ErrorIs(t, err, ErrNothingToRender)
	assert.Empty(t, ad.Ops())
}

func TestEditorSkipsIdenticalEdits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ad := transporttest.New()
	e := NewEditor(ad)
	l := Single("a")
	rm, _ := l.Markup()

	ref, _ := ad.SendPhoto(ctx, transport.ChatTarget{ChatID: 1}, "u", "body", &transport.SendOptions{ReplyMarkupAdapter: rm})
	e.Remember(ref, "body", l)

	require.NoError(t, e.Body(ctx, ref, true, "body", l))
	assert.Equal(t, 0, ad.Count("edit_caption"))

	require.NoError(t, e.Body(ctx, ref, true, "body 2", l))
	assert.Equal(t, 1, ad.Count("edit_caption"))

	require.NoError(t, e.Markup(ctx, ref, l))
	assert.Equal(t, 0, ad.Count("edit_markup"))
	require.NoError(t, e.Markup(ctx, ref, Single("b")))
	assert.Equal(t, 1, ad.Count("edit_markup"))

	// Unknown messages are edited and "not modified" is not an error.
	other, _ := ad.SendText(ctx, transport.ChatTarget{ChatID: 1}, "t", &transport.SendOptions{ReplyMarkupAdapter: rm})
	require.NoError(t, e.Markup(ctx, other, l))
	require.NoError(t, e.Body(ctx, other, false, "t", l))
	assert.Equal(t, 1, ad.Count("edit_text"))
}

func TestCountdownTicksAndRenotifies(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ad := transporttest.New()
	repeat := NewRepeat(true, 1200*time.Millisecond)

	d := NewDispatcher(ctx, ad, newSites(singleSite()), Options{Repeat: repeat, Tick: 50 * time.Millisecond, Log: logx.Nop()})
	_, err := d.Send(ctx, singleSite(), false)
	require.NoError(t, err)

	op, _ := ad.Last("photo")
	assert.Contains(t, op.Text, "Next notification in")

	// The countdown expires and posts a second notification, which re-arms.
	require.Eventually(t, func() bool { return ad.Count("photo") >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, ad.Count("edit_caption"), 1)
	last, _ := ad.Last("edit_caption")
	assert.True(t, strings.Contains(last.Text, "⏱ Next notification in: <b>00 sec</b>"))

	repeat.Disable()
	d.RestartCountdowns(ctx)
	assert.False(t, d.Countdowns().Active("site_1"))
	cancel()
	d.Countdowns().Wait()
}

func TestCountdownsCancelAndReplace(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks, expired atomic.Int32
	interval := atomic.Int64{}
	interval.Store(int64(time.Hour))
	c := NewCountdowns(ctx, CountdownOptions{
		Interval: func() time.Duration { return time.Duration(interval.Load()) },
		OnTick:   func(context.Context, string, time.Duration) { ticks.Add(1) },
		OnExpire: func(context.Context, string) { expired.Add(1) },
		Tick:     2 * time.Millisecond,
	})

	c.Arm("a", time.Hour)
	c.Arm("a", time.Hour)
	assert.True(t, c.Active("a"))
	c.Cancel("a")
	assert.False(t, c.Active("a"))

	c.Arm("b", time.Hour)
	interval.Store(int64(time.Minute))
	require.Eventually(t, func() bool { return !c.Active("b") }, time.Second, 2*time.Millisecond)

	c.Arm("c", time.Hour)
	c.CancelAll()
	c.Wait()
	assert.Zero(t, expired.Load())
	assert.Positive(t, ticks.Load())
}

func TestRepeat(t *testing.T) {
	t.Parallel()
	r := NewRepeat(false, 5*time.Minute)
	assert.Zero(t, r.Interval())
	assert.True(t, r.Toggle())
	assert.Equal(t, 5*time.Minute, r.Interval())

	r.Set(300 * time.Second)
	r.SetDefault(10 * time.Minute)
	assert.Equal(t, 10*time.Minute, r.Interval())

	r.Set(time.Minute)
	r.SetDefault(20 * time.Minute)
	assert.Equal(t, time.Minute, r.Interval())

	r.Disable()
	assert.False(t, r.Enabled())
	r.Set(0)
	assert.False(t, r.Enabled())
}

func TestOverlaySurvivesCountdownTicks(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ad := transporttest.New()
	s := singleSite()
	d := NewDispatcher(ctx, ad, newSites(s), Options{Repeat: NewRepeat(true, time.Hour), Tick: 20 * time.Millisecond, Log: logx.Nop()})
	rec, err := d.Send(ctx, s, false)
	require.NoError(t, err)

	require.NoError(t, d.Overlay(ctx, rec.Ref, SettingsLayout(s.ID, true)))
	before := ad.Count("edit_caption")
	require.Eventually(t, func() bool { return ad.Count("edit_caption") > before }, 3*time.Second, 10*time.Millisecond)

	cur, ok := ad.Current(rec.Ref.MessageID)
	require.True(t, ok)
	assert.Equal(t, "Disable Repeat Notification", cur.Markup.InlineKeyboard[0][0].Text)

	d.Countdowns().CancelAll()
	d.Countdowns().Wait()

	main, err := d.MainLayout(rec)
	require.NoError(t, err)
	require.NoError(t, d.Restore(ctx, rec.Ref, main))
	cur, _ = ad.Current(rec.Ref.MessageID)
	assert.Equal(t, "📋 Copy Number", cur.Markup.InlineKeyboard[0][0].Text)
}
