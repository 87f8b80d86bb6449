package notify

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"numwatch/internal/eventbus"
	"numwatch/internal/monitor"
	"numwatch/internal/transport"
	logx "numwatch/pkg/logx"
)

// SiteSource looks up current site state.
type SiteSource interface {
	Get(id string) (monitor.Site, bool)
}

type Options struct {
	Chat   transport.ChatTarget
	Repeat *Repeat
	Bus    eventbus.Bus
	Log    logx.Logger
	// Tick overrides the countdown tick.
	Tick time.Duration
}

// Dispatcher posts notifications, owns the latest notification record and
// drives the per-site countdowns.
type Dispatcher struct {
	ad     transport.Adapter
	sites  SiteSource
	chat   transport.ChatTarget
	repeat *Repeat
	bus    eventbus.Bus
	log    logx.Logger

	editor     *Editor
	countdowns *Countdowns

	mu      sync.Mutex
	latest  *Record
	bySite  map[string]Record
	overlay map[transport.MessageRef]Layout
}

func NewDispatcher(ctx context.Context, ad transport.Adapter, sites SiteSource, opts Options) *Dispatcher {
	if opts.Repeat == nil {
		opts.Repeat = NewRepeat(false, 0)
	}
	d := &Dispatcher{
		ad:     ad,
		sites:  sites,
		chat:   opts.Chat,
		repeat: opts.Repeat,
		bus:    opts.Bus,
		log:    opts.Log,
		editor:  NewEditor(ad),
		bySite:  map[string]Record{},
		overlay: map[transport.MessageRef]Layout{},
	}
	d.countdowns = NewCountdowns(ctx, CountdownOptions{
		Interval: d.repeat.Interval,
		OnTick:   d.tick,
		OnExpire: d.expire,
		Tick:     opts.Tick,
	})
	return d
}

func (d *Dispatcher) Editor() *Editor            { return d.editor }
func (d *Dispatcher) Countdowns() *Countdowns    { return d.countdowns }
func (d *Dispatcher) Repeat() *Repeat            { return d.repeat }
func (d *Dispatcher) Chat() transport.ChatTarget { return d.chat }

// Latest returns the most recently posted notification.
func (d *Dispatcher) Latest() (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == nil {
		return Record{}, false
	}
	return cloneRecord(*d.latest), true
}

// ForSite returns the last notification posted for a site.
func (d *Dispatcher) ForSite(siteID string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.bySite[siteID]
	return cloneRecord(r), ok
}

// ForMessage finds the notification posted as ref.
func (d *Dispatcher) ForMessage(ref transport.MessageRef) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.bySite {
		if r.Ref.ChatID == ref.ChatID && r.Ref.MessageID == ref.MessageID {
			return cloneRecord(r), true
		}
	}
	return Record{}, false
}

func cloneRecord(r Record) Record {
	r.Values = slices.Clone(r.Values)
	return r
}

// Notify implements monitor.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, s monitor.Site, dec monitor.Decision) error {
	_, err := d.Send(ctx, s, dec.Initial)
	return err
}

// Send posts a notification for s: a photo when an image is known, text otherwise.
// The countdown is armed when repeat is on.
func (d *Dispatcher) Send(ctx context.Context, s monitor.Site, initial bool) (Record, error) {
	rec := recordFor(s, initial)
	layout, err := Render(s, Flags{InitialRun: rec.InitialRun, Value: rec.Value, Values: rec.Values})
	if err != nil {
		return Record{}, err
	}
	rm, err := layout.Markup()
	if err != nil {
		return Record{}, err
	}

	body := Caption(rec)
	interval := d.repeat.Interval()
	if interval > 0 {
		body = CountdownCaption(rec, interval)
	}
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: rm}

	var ref transport.MessageRef
	if rec.ImageURL != "" {
		ref, err = d.ad.SendPhoto(ctx, d.chat, rec.ImageURL, body, opt)
		rec.Photo = err == nil
		if err != nil {
			d.log.Warn("photo send failed; falling back to text", logx.Site(s.ID), logx.Err(err))
			ref, err = d.ad.SendText(ctx, d.chat, body, opt)
		}
	} else {
		ref, err = d.ad.SendText(ctx, d.chat, body, opt)
	}
	if err != nil {
		return Record{}, err
	}

	rec.Ref = ref
	rec.SentAt = time.Now()
	d.editor.Remember(ref, body, layout)

	d.mu.Lock()
	if prev, ok := d.bySite[s.ID]; ok {
		delete(d.overlay, prev.Ref)
	}
	d.latest = &rec
	d.bySite[s.ID] = rec
	d.mu.Unlock()

	d.log.Info("notification sent", logx.Site(s.ID), logx.Int("message_id", ref.MessageID), logx.Bool("photo", rec.Photo))
	d.publish(eventbus.NotificationSent, s.ID)

	if interval > 0 {
		d.countdowns.Arm(s.ID, interval)
	}
	return cloneRecord(rec), nil
}

// Resend posts a fresh notification for a site from its current state.
func (d *Dispatcher) Resend(ctx context.Context, siteID string) error {
	s, ok := d.sites.Get(siteID)
	if !ok {
		return monitor.ErrUnknownSite
	}
	if !s.Enabled {
		return nil
	}
	prev, _ := d.ForSite(siteID)
	_, err := d.Send(ctx, s, prev.InitialRun)
	if errors.Is(err, ErrNothingToRender) {
		return nil
	}
	return err
}

// RestartCountdowns re-arms the latest notification with the current interval,
// or clears countdowns when repeat is off.
func (d *Dispatcher) RestartCountdowns(ctx context.Context) {
	d.countdowns.CancelAll()
	rec, ok := d.Latest()
	if !ok {
		return
	}
	interval := d.repeat.Interval()
	if interval > 0 {
		d.countdowns.Arm(rec.SiteID, interval)
		return
	}
	if err := d.RefreshBody(ctx, rec.SiteID); err != nil {
		d.log.Debug("countdown caption reset failed", logx.Site(rec.SiteID), logx.Err(err))
	}
}

// RefreshBody redraws a site's last notification without a countdown line.
func (d *Dispatcher) RefreshBody(ctx context.Context, siteID string) error {
	rec, ok := d.ForSite(siteID)
	if !ok {
		return nil
	}
	layout, err := d.currentLayout(rec)
	if err != nil {
		return err
	}
	return d.editor.Body(ctx, rec.Ref, rec.Photo, Caption(rec), layout)
}

// Overlay shows a temporary keyboard (menu, animation frame) on a message.
// Countdown ticks keep it until Restore.
func (d *Dispatcher) Overlay(ctx context.Context, ref transport.MessageRef, l Layout) error {
	d.mu.Lock()
	d.overlay[ref] = l
	d.mu.Unlock()
	return d.editor.Markup(ctx, ref, l)
}

// Restore drops any overlay and shows l.
func (d *Dispatcher) Restore(ctx context.Context, ref transport.MessageRef, l Layout) error {
	d.mu.Lock()
	delete(d.overlay, ref)
	d.mu.Unlock()
	return d.editor.Markup(ctx, ref, l)
}

// RestoreBody drops any overlay and redraws both body and keyboard.
func (d *Dispatcher) RestoreBody(ctx context.Context, rec Record, body string, l Layout) error {
	d.mu.Lock()
	delete(d.overlay, rec.Ref)
	d.mu.Unlock()
	return d.editor.Body(ctx, rec.Ref, rec.Photo, body, l)
}

func (d *Dispatcher) currentLayout(rec Record) (Layout, error) {
	d.mu.Lock()
	l, ok := d.overlay[rec.Ref]
	d.mu.Unlock()
	if ok {
		return l, nil
	}
	return d.layoutFor(rec)
}

// MainLayout renders the notification keyboard for a record from current site state.
func (d *Dispatcher) MainLayout(rec Record) (Layout, error) {
	return d.layoutFor(rec)
}

func (d *Dispatcher) layoutFor(rec Record) (Layout, error) {
	s, ok := d.sites.Get(rec.SiteID)
	if !ok {
		return nil, monitor.ErrUnknownSite
	}
	return Render(s, Flags{InitialRun: rec.InitialRun, Value: rec.Value, Values: rec.Values})
}

func (d *Dispatcher) tick(ctx context.Context, siteID string, remaining time.Duration) {
	rec, ok := d.ForSite(siteID)
	if !ok {
		return
	}
	layout, err := d.currentLayout(rec)
	if err != nil {
		return
	}
	if err := d.editor.Body(ctx, rec.Ref, rec.Photo, CountdownCaption(rec, remaining), layout); err != nil && ctx.Err() == nil {
		d.log.Debug("countdown edit failed", logx.Site(siteID), logx.Err(err))
	}
}

func (d *Dispatcher) expire(ctx context.Context, siteID string) {
	d.publish(eventbus.CountdownExpired, siteID)
	if err := d.Resend(ctx, siteID); err != nil {
		d.log.Warn("repeat notification failed", logx.Site(siteID), logx.Err(err))
	}
}

func (d *Dispatcher) publish(typ, siteID string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, SiteID: siteID})
}
