package app

import (
	"context"
	"strings"

	"numwatch/internal/config"
	"numwatch/internal/eventbus"
	logx "numwatch/pkg/logx"
)

// applyConfig pushes a validated config into the running components.
// Telegram, fetch, storage and site definitions need a restart; everything else applies live.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, sitesChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strs("sections", restart))
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	if chatID, ok := groupLogChat(newCfg); ok {
		a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLoggingConfig(newCfg))

	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)

	dur, err := newCfg.ParseDurations()
	if err != nil {
		a.log.Warn("invalid durations; keeping previous", logx.Err(err))
	} else {
		if a.loop != nil && a.loop.Interval() != dur.CheckInterval {
			a.loop.SetInterval(dur.CheckInterval)
			a.log.Info("check interval updated", logx.Duration("interval", dur.CheckInterval))
		}
		a.applyRepeat(ctx, oldCfg, newCfg, dur)
	}

	if len(sitesChanged) > 0 {
		a.applySites(ctx, oldCfg, newCfg, sitesChanged)
	}

	if err := a.beat.Apply(mapHeartbeatConfig(newCfg)); err != nil {
		a.log.Warn("heartbeat config rejected", logx.Err(err))
	}
	if err := a.http.Reconfigure(ctx, mapHTTPConfig(newCfg)); err != nil {
		a.log.Warn("http reconfigure failed", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) applyRepeat(ctx context.Context, oldCfg, newCfg *config.Config, dur config.Durations) {
	a.repeat.SetDefault(dur.RepeatInterval)
	if oldCfg.Repeat.Enabled == newCfg.Repeat.Enabled {
		return
	}
	if newCfg.Repeat.Enabled {
		a.repeat.Set(a.repeat.Default())
	} else {
		a.repeat.Disable()
	}
	if a.disp != nil {
		a.disp.RestartCountdowns(ctx)
	}
	a.log.Info("repeat updated", logx.Bool("enabled", a.repeat.Enabled()), logx.Duration("interval", a.repeat.Interval()))
}

// applySites toggles sites whose enabled flag changed. Added, removed or
// re-pointed sites only take effect after a restart.
func (a *App) applySites(ctx context.Context, oldCfg, newCfg *config.Config, changed []string) {
	oldByID := make(map[string]config.SiteConfig, len(oldCfg.Sites))
	for _, s := range oldCfg.Sites {
		oldByID[strings.TrimSpace(s.ID)] = s
	}
	newByID := make(map[string]config.SiteConfig, len(newCfg.Sites))
	for _, s := range newCfg.Sites {
		newByID[strings.TrimSpace(s.ID)] = s
	}

	for _, id := range changed {
		o, okO := oldByID[id]
		n, okN := newByID[id]
		if !okO || !okN || o.URL != n.URL || !strings.EqualFold(o.Type, n.Type) {
			a.log.Warn("site definition changed; restart required", logx.Site(id))
			continue
		}
		if o.IsEnabled() == n.IsEnabled() {
			continue
		}
		site, err := a.reg.SetEnabled(ctx, id, n.IsEnabled())
		if err != nil {
			a.log.Warn("site toggle failed", logx.Site(id), logx.Err(err))
			continue
		}
		a.bus.Publish(eventbus.Event{Type: eventbus.SiteToggled, SiteID: id, Data: site.Enabled})
		a.log.Info("site toggled via config", logx.Site(id), logx.Bool("enabled", site.Enabled))
	}
}
