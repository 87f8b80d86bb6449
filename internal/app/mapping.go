package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"numwatch/internal/config"
	"numwatch/internal/fetch"
	"numwatch/internal/heartbeat"
	"numwatch/internal/httpapi"
	"numwatch/internal/monitor"
	"numwatch/internal/storage"
	logx "numwatch/pkg/logx"
)

func mapSites(cfg *config.Config) ([]monitor.Site, error) {
	out := make([]monitor.Site, 0, len(cfg.Sites))
	for i, sc := range cfg.Sites {
		t, err := monitor.ParseContentType(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("sites[%d]: %w", i, err)
		}
		out = append(out, monitor.Site{
			ID:      strings.TrimSpace(sc.ID),
			URL:     strings.TrimSpace(sc.URL),
			Type:    t,
			Enabled: sc.IsEnabled(),
		})
	}
	return out, nil
}

// mapStorageConfig returns the store config. enabled=false means state lives in memory only.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "none":
		return storage.Config{}, false, nil
	case "", "file", "json":
		if path == "" {
			path = config.DefaultStoragePath
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	case "redis":
		if strings.TrimSpace(sc.Addr) == "" {
			return storage.Config{}, false, fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		prefix := strings.TrimSpace(sc.KeyPrefix)
		if prefix == "" {
			prefix = "numwatch"
		}
		return storage.Config{
			Driver:    "redis",
			Addr:      strings.TrimSpace(sc.Addr),
			Password:  sc.Password,
			DB:        sc.DB,
			KeyPrefix: prefix,
		}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapFetchConfig(cfg *config.Config, d config.Durations, log logx.Logger) (fetch.Config, error) {
	cd, err := fetch.NewCooldown(fetch.CooldownConfig{
		Driver: cfg.Fetch.Cooldown.Driver,
		Addr:   cfg.Fetch.Cooldown.Addr,
	})
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		Timeout:    d.FetchTimeout,
		Attempts:   cfg.Fetch.Attempts,
		RetryDelay: d.RetryDelay,
		BlockTime:  d.BlockTime,
		Cooldown:   cd,
		Log:        log,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat parses telegram.group_log. ok=false when unset or invalid.
func groupLogChat(cfg *config.Config) (int64, bool) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func mapHeartbeatConfig(cfg *config.Config) heartbeat.Config {
	return heartbeat.Config{
		Schedule: strings.TrimSpace(cfg.Heartbeat.Schedule),
		Timezone: strings.TrimSpace(cfg.Heartbeat.Timezone),
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return httpapi.Config{
		Enabled:       cfg.HTTP.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(cfg.HTTP.Token),
		AllowInsecure: cfg.HTTP.AllowInsecure,
		Pprof:         cfg.HTTP.Pprof,
	}
}

func maxFailures(cfg *config.Config) int {
	if cfg.Monitor.MaxConsecutiveFailures > 0 {
		return cfg.Monitor.MaxConsecutiveFailures
	}
	return config.DefaultMaxFailures
}
