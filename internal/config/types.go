package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Monitor   MonitorConfig   `json:"monitor"`
	Repeat    RepeatConfig    `json:"repeat"`
	Fetch     FetchConfig     `json:"fetch"`
	Sites     []SiteConfig    `json:"sites"`
	Storage   StorageConfig   `json:"storage"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	ChatID       int64   `json:"chat_id"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string  `json:"poll_timeout"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// MonitorConfig controls the polling loop.
//
// Defaults: check_interval "60s", max_consecutive_failures 5.
type MonitorConfig struct {
	CheckInterval          string `json:"check_interval"`
	MaxConsecutiveFailures int    `json:"max_consecutive_failures,omitempty"`
}

// RepeatConfig seeds the re-notify countdown. It can be changed at runtime
// with /set_repeat and /stop_repeat.
type RepeatConfig struct {
	Enabled         bool   `json:"enabled"`
	DefaultInterval string `json:"default_interval"`
}

type FetchConfig struct {
	Timeout    string         `json:"timeout,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	RetryDelay string         `json:"retry_delay,omitempty"`
	Cooldown   CooldownConfig `json:"cooldown"`
}

// CooldownConfig selects where rate-limited URLs are remembered.
// Driver is memory (default), memcache or none.
type CooldownConfig struct {
	Driver    string `json:"driver,omitempty"`
	Addr      string `json:"addr,omitempty"`
	BlockTime string `json:"block_time,omitempty"`
}

// SiteConfig is one monitored page. Type is single, multiple or empty for
// detection on first fetch. Enabled is a pointer so an omitted flag means on.
type SiteConfig struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Type    string `json:"type,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// IsEnabled reports the configured flag, defaulting to true.
func (s SiteConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// StorageConfig controls where site state is persisted.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./website_data.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	Addr      string `json:"addr,omitempty"`       // redis
	Password  string `json:"password,omitempty"`   // redis (do not log)
	DB        int    `json:"db,omitempty"`         // redis
	KeyPrefix string `json:"key_prefix,omitempty"` // redis
}

// HeartbeatConfig posts a periodic status digest. An empty schedule disables it.
type HeartbeatConfig struct {
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`
}

// HTTPConfig controls the optional status server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - A non-loopback address requires a token or allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	// Pprof mounts the runtime profiler under /debug.
	Pprof bool `json:"pprof,omitempty"`
}
