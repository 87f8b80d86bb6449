package config

import (
	"reflect"
	"sort"
	"strings"

	logx "numwatch/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the ids of sites that were added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.check_interval", strings.TrimSpace(newCfg.Monitor.CheckInterval)),
			logx.Int("monitor.max_consecutive_failures", newCfg.Monitor.MaxConsecutiveFailures),
		)
	}

	if oldCfg.Repeat != newCfg.Repeat {
		changed = append(changed, "repeat")
		attrs = append(attrs,
			logx.Bool("repeat.enabled", newCfg.Repeat.Enabled),
			logx.String("repeat.default_interval", strings.TrimSpace(newCfg.Repeat.DefaultInterval)),
		)
	}

	if oldCfg.Fetch != newCfg.Fetch {
		changed = append(changed, "fetch")
		attrs = append(attrs,
			logx.String("fetch.timeout", strings.TrimSpace(newCfg.Fetch.Timeout)),
			logx.Int("fetch.attempts", newCfg.Fetch.Attempts),
			logx.String("fetch.cooldown.driver", strings.TrimSpace(newCfg.Fetch.Cooldown.Driver)),
		)
	}

	sitesChanged := diffSites(oldCfg.Sites, newCfg.Sites)
	if len(sitesChanged) > 0 {
		changed = append(changed, "sites")
		attrs = append(attrs,
			logx.Int("sites.changed_count", len(sitesChanged)),
			logx.Int("sites.enabled_count", countEnabled(newCfg.Sites)),
		)
	}

	// Storage (never log password)
	oS, nS := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) ||
		strings.TrimSpace(oS.Addr) != strings.TrimSpace(nS.Addr) ||
		oS.DB != nS.DB || oS.KeyPrefix != nS.KeyPrefix || oS.Password != nS.Password {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.addr_set", strings.TrimSpace(nS.Addr) != ""),
		)
	}

	if oldCfg.Heartbeat != newCfg.Heartbeat {
		changed = append(changed, "heartbeat")
		attrs = append(attrs,
			logx.String("heartbeat.schedule", strings.TrimSpace(newCfg.Heartbeat.Schedule)),
			logx.String("heartbeat.timezone", strings.TrimSpace(newCfg.Heartbeat.Timezone)),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs, sitesChanged
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "fetch", "storage":
			out = append(out, s)
		}
	}
	return out
}

func countEnabled(sites []SiteConfig) int {
	n := 0
	for _, s := range sites {
		if s.IsEnabled() {
			n++
		}
	}
	return n
}

func diffSites(oldS, newS []SiteConfig) []string {
	index := func(list []SiteConfig) map[string]SiteConfig {
		m := make(map[string]SiteConfig, len(list))
		for _, s := range list {
			m[strings.TrimSpace(s.ID)] = s
		}
		return m
	}
	oldM, newM := index(oldS), index(newS)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		o, okO := oldM[id]
		n, okN := newM[id]
		if okO != okN {
			out = append(out, id)
			continue
		}
		if o.URL != n.URL || !strings.EqualFold(o.Type, n.Type) || o.IsEnabled() != n.IsEnabled() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
