package app

import (
	"numwatch/internal/heartbeat"
	"numwatch/internal/httpapi"
	"numwatch/internal/runtime/supervisor"
)

func (a *App) failures() map[string]int {
	if a.loop == nil {
		return map[string]int{}
	}
	return a.loop.Failures()
}

func (a *App) health() supervisor.Snapshot {
	if a.sup == nil {
		return supervisor.Snapshot{}
	}
	return a.sup.Snapshot()
}

func (a *App) siteViews() []httpapi.SiteView {
	fails := a.failures()
	sites := a.reg.Sites()
	out := make([]httpapi.SiteView, 0, len(sites))
	for _, s := range sites {
		v := httpapi.SiteView{
			ID:                s.ID,
			Name:              s.DisplayName(),
			URL:               s.URL,
			Type:              s.Type.String(),
			Enabled:           s.Enabled,
			LastValue:         s.LastValue,
			LatestValues:      s.LatestValues,
			ButtonUpdated:     s.ButtonUpdated,
			FirstRunCompleted: s.FirstRunCompleted,
			Failures:          fails[s.ID],
		}
		if a.disp != nil {
			v.Countdown = a.disp.Countdowns().Active(s.ID)
		}
		out = append(out, v)
	}
	return out
}

func (a *App) heartbeatStatus() heartbeat.Status {
	fails := a.failures()
	st := heartbeat.Status{Repeat: a.repeat.Interval()}
	for _, s := range a.reg.Sites() {
		st.Sites = append(st.Sites, heartbeat.SiteStatus{
			ID:       s.ID,
			Name:     s.DisplayName(),
			Enabled:  s.Enabled,
			Failures: fails[s.ID],
		})
	}
	if a.loop != nil {
		st.LastPass = a.loop.LastPass()
	}
	return st
}

func (a *App) status() map[string]any {
	out := map[string]any{
		"repeat_enabled":  a.repeat.Enabled(),
		"repeat_interval": a.repeat.Interval().String(),
		"repeat_default":  a.repeat.Default().String(),
		"sites":           a.reg.Len(),
		"events_dropped":  a.bus.Dropped(),
	}
	if a.loop != nil {
		out["check_interval"] = a.loop.Interval().String()
		if lp := a.loop.LastPass(); !lp.IsZero() {
			out["last_pass"] = lp
		}
	}
	if a.disp != nil {
		if rec, ok := a.disp.Latest(); ok {
			out["latest_site"] = rec.SiteID
		}
	}
	if next := a.beat.Next(); !next.IsZero() {
		out["heartbeat_next"] = next
	}
	return out
}
