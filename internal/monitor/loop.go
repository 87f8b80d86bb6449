package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"numwatch/internal/eventbus"
	logx "numwatch/pkg/logx"
)

// Fetcher retrieves and parses one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, t ContentType) (data Content, imageURL string, err error)
}

// Notifier delivers a notification for a site whose state changed.
type Notifier interface {
	Notify(ctx context.Context, site Site, d Decision) error
}

type LoopOptions struct {
	Interval    time.Duration
	MaxFailures int
	Bus         eventbus.Bus
	Log         logx.Logger
}

// Loop polls every enabled site sequentially with a fixed sleep between passes.
type Loop struct {
	reg    *Registry
	fetch  Fetcher
	notify Notifier
	bus    eventbus.Bus
	log    logx.Logger

	interval    atomic.Int64
	maxFailures int

	mu       sync.Mutex
	failures map[string]int
	lastPass time.Time
}

func NewLoop(reg *Registry, f Fetcher, n Notifier, opts LoopOptions) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	l := &Loop{
		reg:         reg,
		fetch:       f,
		notify:      n,
		bus:         opts.Bus,
		log:         opts.Log,
		maxFailures: opts.MaxFailures,
		failures:    map[string]int{},
	}
	l.interval.Store(int64(opts.Interval))
	return l
}

// SetInterval changes the sleep between passes. It applies from the next sleep.
func (l *Loop) SetInterval(d time.Duration) {
	if d > 0 {
		l.interval.Store(int64(d))
	}
}

func (l *Loop) Interval() time.Duration { return time.Duration(l.interval.Load()) }

// Failures returns the consecutive failure count per site id.
func (l *Loop) Failures() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.failures))
	for k, v := range l.failures {
		out[k] = v
	}
	return out
}

func (l *Loop) LastPass() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastPass
}

// Run polls until ctx is cancelled. When any enabled site has never seen data,
// an initial pass notifies every enabled site that returns data.
func (l *Loop) Run(ctx context.Context) error {
	if l.reg.AwaitingFirstData() {
		l.log.Info("initial pass")
		l.pass(ctx, true)
		if !l.sleep(ctx) {
			return nil
		}
	}
	for {
		l.pass(ctx, false)
		if !l.sleep(ctx) {
			return nil
		}
	}
}

func (l *Loop) sleep(ctx context.Context) bool {
	t := time.NewTimer(l.Interval())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// pass checks every enabled site once, in configured order.
func (l *Loop) pass(ctx context.Context, initial bool) {
	for _, s := range l.reg.Sites() {
		if ctx.Err() != nil {
			return
		}
		if !s.Enabled || s.URL == "" {
			continue
		}
		l.check(ctx, s, initial)
	}
	l.mu.Lock()
	l.lastPass = time.Now()
	l.mu.Unlock()
}

func (l *Loop) check(ctx context.Context, s Site, initial bool) {
	log := l.log.With(logx.Site(s.ID))
	defer func() {
		if rec := recover(); rec != nil {
			l.fail(s.ID, fmt.Errorf("panic: %v", rec), log)
		}
	}()

	data, image, err := l.fetch.Fetch(ctx, s.URL, s.Type)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.fail(s.ID, err, log)
		return
	}
	l.succeed(s.ID)

	d, cur, err := l.reg.Process(ctx, s.ID, data, image)
	if err != nil {
		log.Warn("process failed", logx.Err(err))
		return
	}
	l.publish(eventbus.SiteChecked, s.ID, d)

	notify := d.Notify
	if initial {
		notify = !data.Empty()
	}
	if !notify {
		return
	}
	log.Info("change detected", logx.String("type", cur.Type.String()), logx.Bool("initial", d.Initial))
	if err := l.notify.Notify(ctx, cur, d); err != nil {
		log.Warn("notify failed", logx.Err(err))
	}
}

func (l *Loop) succeed(id string) {
	l.mu.Lock()
	l.failures[id] = 0
	l.mu.Unlock()
}

func (l *Loop) fail(id string, err error, log logx.Logger) {
	l.mu.Lock()
	l.failures[id]++
	n := l.failures[id]
	l.mu.Unlock()

	if n >= l.maxFailures {
		log.Error("site keeps failing", logx.Int("consecutive", n), logx.Err(err))
	} else {
		log.Warn("check failed", logx.Int("consecutive", n), logx.Err(err))
	}
	l.publish(eventbus.SiteFailed, id, err.Error())
}

func (l *Loop) publish(typ, id string, data any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: typ, SiteID: id, Data: data})
}
