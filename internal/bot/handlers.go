package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"numwatch/internal/eventbus"
	"numwatch/internal/monitor"
	"numwatch/internal/notify"
	kit "numwatch/internal/transport"
	logx "numwatch/pkg/logx"
	"numwatch/pkg/tgui"
)

const invalidSite = "Site ID missing or invalid. Please try again."

// Spawner runs short-lived UI work outside the request. *supervisor.Supervisor satisfies it.
type Spawner interface {
	Go0(name string, fn func(ctx context.Context))
}

// Timings are the UI delays. Zero fields take the defaults.
type Timings struct {
	CopyFlash    time.Duration // 4s
	AnimStep     time.Duration // 2s
	SplitTTL     time.Duration // 30s
	TransientTTL time.Duration // 5s
}

func (t Timings) withDefaults() Timings {
	if t.CopyFlash <= 0 {
		t.CopyFlash = 4 * time.Second
	}
	if t.AnimStep <= 0 {
		t.AnimStep = 2 * time.Second
	}
	if t.SplitTTL <= 0 {
		t.SplitTTL = 30 * time.Second
	}
	if t.TransientTTL <= 0 {
		t.TransientTTL = 5 * time.Second
	}
	return t
}

type Deps struct {
	Registry   *monitor.Registry
	Dispatcher *notify.Dispatcher
	Adapter    kit.Adapter
	Spawn      Spawner
	Bus        eventbus.Bus
	Log        logx.Logger
	Timings    Timings
}

// Handlers implements the bot commands and the notification buttons.
type Handlers struct {
	reg   *monitor.Registry
	disp  *notify.Dispatcher
	ad    kit.Adapter
	spawn Spawner
	bus   eventbus.Bus
	log   logx.Logger
	t     Timings
}

func NewHandlers(d Deps) *Handlers {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Handlers{
		reg:   d.Registry,
		disp:  d.Dispatcher,
		ad:    d.Adapter,
		spawn: d.Spawn,
		bus:   d.Bus,
		log:   d.Log,
		t:     d.Timings.withDefaults(),
	}
}

func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "ping", Description: "Check the bot is online", Timeout: 10 * time.Second, Handle: h.ping},
		{Name: "set_repeat", Description: "Set repeat interval: default, <secs> or x<minutes>", Timeout: 10 * time.Second, Handle: h.setRepeat},
		{Name: "stop_repeat", Description: "Stop repeat notifications", Timeout: 10 * time.Second, Handle: h.stopRepeat},
	}
}

func (h *Handlers) Callbacks() []CallbackRoute {
	const timeout = 15 * time.Second
	return []CallbackRoute{
		{Prefix: notify.ActionCopy, Timeout: timeout, Handle: h.copyNumber},
		{Prefix: notify.ActionUpdateMulti, Timeout: timeout, Handle: h.updateMulti},
		{Prefix: notify.ActionUpdate, Timeout: timeout, Handle: h.updateNumber},
		{Prefix: notify.ActionSettingsMonitor, Timeout: timeout, Handle: h.monitoringMenu},
		{Prefix: notify.ActionSettings, Timeout: timeout, Handle: h.settingsMenu},
		{Prefix: notify.ActionToggleSite, Timeout: timeout, Handle: h.toggleSite},
		{Prefix: notify.ActionToggleRepeat, Timeout: timeout, Handle: h.toggleRepeat},
		{Prefix: notify.ActionBackToMain, Timeout: timeout, Handle: h.backToMain},
		{Prefix: notify.ActionSplit, Timeout: timeout, Handle: h.split},
		{Prefix: notify.ActionNumber, Timeout: timeout, Handle: h.split},
		{Prefix: notify.ActionNone, Handle: func(ctx context.Context, req *Request) error { return req.Answer(ctx, "") }},
	}
}

// Register installs the handlers on r.
func (h *Handlers) Register(r *Router) {
	r.SetRegistry(h.Commands(), h.Callbacks())
}

func (h *Handlers) goUI(name string, fn func(ctx context.Context)) {
	if h.spawn == nil {
		go fn(context.Background())
		return
	}
	h.spawn.Go0(name, fn)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// site resolves the site named by the callback data and answers the callback when it cannot.
func (h *Handlers) site(ctx context.Context, req *Request) (monitor.Site, bool) {
	id, ok := h.reg.ResolveID(req.Data)
	if ok {
		if s, found := h.reg.Get(id); found {
			return s, true
		}
	}
	_ = req.Answer(ctx, invalidSite)
	return monitor.Site{}, false
}

// valueOf returns the second "_" field of callback data, e.g. the number in update_<n>_<site>.
func valueOf(data string) string {
	parts := strings.Split(data, "_")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// record finds the notification behind a callback when it belongs to siteID.
func (h *Handlers) record(ref kit.MessageRef, siteID string) (notify.Record, bool) {
	rec, ok := h.disp.ForMessage(ref)
	if !ok || rec.SiteID != siteID {
		return notify.Record{}, false
	}
	return rec, true
}

func (h *Handlers) mainLayout(ref kit.MessageRef, s monitor.Site, f notify.Flags) (notify.Layout, error) {
	if rec, ok := h.record(ref, s.ID); ok {
		f.InitialRun = rec.InitialRun
		if f.Value == "" {
			f.Value = rec.Value
		}
		if len(f.Values) == 0 && rec.InitialRun {
			f.Values = rec.Values
		}
	}
	return notify.Render(s, f)
}

func (h *Handlers) copyNumber(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	ref := req.Ref
	h.goUI("ui.copy", func(ctx context.Context) {
		if err := h.disp.Overlay(ctx, ref, notify.Single("✅ Copied")); err != nil {
			h.log.Debug("copy flash failed", logx.Err(err))
		}
		if !sleep(ctx, h.t.CopyFlash) {
			return
		}
		cur, _ := h.reg.Get(s.ID)
		l, err := h.mainLayout(ref, cur, notify.Flags{})
		if err == nil {
			err = h.disp.Restore(ctx, ref, l)
		}
		if err != nil {
			h.log.Debug("copy restore failed", logx.Err(err))
		}
	})
	return req.Answer(ctx, "Number copied!")
}

// animate shows "✅ Updating to:" then the value, one step apart. It reports false when ctx ended.
func (h *Handlers) animate(ctx context.Context, ref kit.MessageRef, value string) bool {
	if err := h.disp.Overlay(ctx, ref, notify.Single("✅ Updating to:")); err != nil {
		h.log.Debug("update animation failed", logx.Err(err))
	}
	if !sleep(ctx, h.t.AnimStep) {
		return false
	}
	if value == "" {
		return true
	}
	if err := h.disp.Overlay(ctx, ref, notify.Single(value)); err != nil {
		h.log.Debug("update animation failed", logx.Err(err))
	}
	return sleep(ctx, h.t.AnimStep)
}

func (h *Handlers) updateNumber(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	value := monitor.NormalizeValue(valueOf(req.Data))
	if value == "" {
		return req.Answer(ctx, invalidSite)
	}

	h.disp.Countdowns().Cancel(s.ID)
	if _, err := h.reg.Confirm(ctx, s.ID, value); err != nil {
		_ = req.Answer(ctx, "Error updating number")
		return err
	}
	req.Logger.Info("number confirmed", logx.Site(s.ID), logx.String("value", value))

	ref := req.Ref
	h.goUI("ui.update", func(ctx context.Context) {
		if !h.animate(ctx, ref, value) {
			return
		}
		cur, _ := h.reg.Get(s.ID)
		l, err := h.mainLayout(ref, cur, notify.Flags{Updated: true, Value: value})
		if err != nil {
			h.log.Warn("update layout failed", logx.Site(s.ID), logx.Err(err))
			return
		}
		// A countdown line, if any, is dropped with the final layout.
		if rec, ok := h.record(ref, s.ID); ok {
			err = h.disp.RestoreBody(ctx, rec, notify.Caption(rec), l)
		} else {
			err = h.disp.Restore(ctx, ref, l)
		}
		if err != nil {
			h.log.Warn("update edit failed", logx.Site(s.ID), logx.Err(err))
		}
		if iv := h.disp.Repeat().Interval(); iv > 0 {
			if _, ok := h.disp.ForSite(s.ID); ok {
				h.disp.Countdowns().Arm(s.ID, iv)
			}
		}
	})
	return req.Answer(ctx, "Number updated successfully!")
}

func (h *Handlers) updateMulti(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	s, err := h.reg.ConfirmLatest(ctx, s.ID)
	if err != nil {
		_ = req.Answer(ctx, "Error updating numbers")
		return err
	}
	var display string
	if vs := s.Values(); len(vs) > 0 {
		display = vs[0]
	} else {
		display = monitor.Prefixed(s.LastValue)
	}
	req.Logger.Info("numbers confirmed", logx.Site(s.ID), logx.String("value", s.LastValue))

	ref := req.Ref
	h.goUI("ui.update_multi", func(ctx context.Context) {
		if !h.animate(ctx, ref, display) {
			return
		}
		cur, _ := h.reg.Get(s.ID)
		l, err := h.mainLayout(ref, cur, notify.Flags{Updated: true})
		if err == nil {
			err = h.disp.Restore(ctx, ref, l)
		}
		if err != nil {
			h.log.Warn("update edit failed", logx.Site(s.ID), logx.Err(err))
		}
	})
	return req.Answer(ctx, "Numbers updated successfully!")
}

func (h *Handlers) settingsMenu(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	return h.disp.Overlay(ctx, req.Ref, notify.SettingsLayout(s.ID, h.disp.Repeat().Enabled()))
}

func (h *Handlers) monitoringMenu(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	return h.disp.Overlay(ctx, req.Ref, notify.MonitoringLayout(h.reg.Sites(), s.ID))
}

func (h *Handlers) toggleSite(ctx context.Context, req *Request) error {
	target, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	s, err := h.reg.Toggle(ctx, target.ID)
	if err != nil {
		_ = req.Answer(ctx, "Error toggling site monitoring")
		return err
	}
	if !s.Enabled {
		h.disp.Countdowns().Cancel(s.ID)
	}
	if h.bus != nil {
		h.bus.Publish(eventbus.Event{Type: eventbus.SiteToggled, SiteID: s.ID, Data: s.Enabled})
	}
	status := "disabled"
	if s.Enabled {
		status = "enabled"
	}
	name := s.DisplayName()
	req.Logger.Info("monitoring "+status, logx.Site(s.ID), logx.String("name", name))

	back := s.ID
	if rec, ok := h.disp.ForMessage(req.Ref); ok {
		back = rec.SiteID
	}
	if err := h.disp.Overlay(ctx, req.Ref, notify.MonitoringLayout(h.reg.Sites(), back)); err != nil {
		req.Logger.Warn("monitoring menu refresh failed", logx.Err(err))
	}
	return req.Answer(ctx, fmt.Sprintf("Monitoring %s for %s Website", status, name))
}

func (h *Handlers) toggleRepeat(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	on := h.disp.Repeat().Toggle()
	h.disp.RestartCountdowns(ctx)
	req.Logger.Info("repeat toggled", logx.Bool("enabled", on), logx.Duration("interval", h.disp.Repeat().Interval()))

	if err := h.disp.Overlay(ctx, req.Ref, notify.SettingsLayout(s.ID, on)); err != nil {
		req.Logger.Warn("settings refresh failed", logx.Err(err))
	}
	status := "disabled"
	if on {
		status = "enabled"
	}
	return req.Answer(ctx, "Repeat notification "+status)
}

func (h *Handlers) backToMain(ctx context.Context, req *Request) error {
	s, ok := h.site(ctx, req)
	if !ok {
		return nil
	}
	l, err := h.mainLayout(req.Ref, s, notify.Flags{})
	if err != nil {
		return err
	}
	return h.disp.Restore(ctx, req.Ref, l)
}

func (h *Handlers) split(ctx context.Context, req *Request) error {
	if _, ok := h.site(ctx, req); !ok {
		return nil
	}
	value := valueOf(req.Data)
	if strings.TrimSpace(value) == "" {
		return req.Answer(ctx, invalidSite)
	}
	text := tgui.Code(notify.RemoveCode(value)).String()
	ref, err := h.ad.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		_ = req.Answer(ctx, "Error splitting number")
		return err
	}
	h.deleteLater("ui.split.cleanup", h.t.SplitTTL, ref)
	return req.Answer(ctx, "")
}

func (h *Handlers) deleteLater(name string, after time.Duration, refs ...kit.MessageRef) {
	h.goUI(name, func(ctx context.Context) {
		if !sleep(ctx, after) {
			return
		}
		for _, ref := range refs {
			if ref.MessageID == 0 {
				continue
			}
			if err := h.ad.Delete(ctx, ref); err != nil {
				h.log.Debug("delete failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
			}
		}
	})
}

func commandRef(req *Request) kit.MessageRef {
	return kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
}

// transient replies with text and removes both the reply and the command after a delay.
func (h *Handlers) transient(ctx context.Context, req *Request, text string) {
	ref, err := h.ad.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		req.Logger.Warn("transient reply failed", logx.Err(err))
	}
	h.deleteLater("ui.transient.cleanup", h.t.TransientTTL, ref, commandRef(req))
}

func (h *Handlers) deleteCommand(ctx context.Context, req *Request) {
	if err := h.ad.Delete(ctx, commandRef(req)); err != nil {
		req.Logger.Debug("command delete failed", logx.Err(err))
	}
}

func (h *Handlers) ping(ctx context.Context, req *Request) error {
	to := kit.ChatTarget{ChatID: req.FromID}
	if to.ChatID == 0 {
		to = req.Chat
	}
	if _, err := h.ad.SendText(ctx, to, "I am now online 🌐", nil); err != nil {
		return err
	}
	h.deleteCommand(ctx, req)
	return nil
}

func (h *Handlers) setRepeat(ctx context.Context, req *Request) error {
	arg := ""
	if len(req.Args) > 0 {
		arg = strings.Join(req.Args, " ")
	}
	repeat := h.disp.Repeat()
	d, err := ParseRepeat(arg, repeat.Default())
	if err != nil {
		req.Logger.Info("repeat argument rejected", logx.String("arg", arg), logx.Err(err))
		h.transient(ctx, req, repeatHint(err))
		return nil
	}
	repeat.Set(d)
	h.disp.RestartCountdowns(ctx)
	req.Logger.Info("repeat interval set", logx.Duration("interval", d), logx.String("human", notify.FormatTime(d)))
	h.deleteCommand(ctx, req)
	return nil
}

func (h *Handlers) stopRepeat(ctx context.Context, req *Request) error {
	h.disp.Repeat().Disable()
	h.disp.RestartCountdowns(ctx)
	req.Logger.Info("repeat disabled")
	h.deleteCommand(ctx, req)
	return nil
}
