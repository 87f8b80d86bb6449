package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults applied by the runtime when fields are omitted.
const (
	DefaultCheckInterval  = 60 * time.Second
	DefaultRepeatInterval = 5 * time.Minute
	DefaultMaxFailures    = 5
	DefaultPollTimeout    = 10 * time.Second
	DefaultStoragePath    = "./website_data.json"
	DefaultHTTPAddr       = "127.0.0.1:8080"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Durations holds the parsed duration fields of a Config.
type Durations struct {
	PollTimeout    time.Duration
	CheckInterval  time.Duration
	RepeatInterval time.Duration
	FetchTimeout   time.Duration
	RetryDelay     time.Duration
	BlockTime      time.Duration
	BusyTimeout    time.Duration
}

// ParseDurations parses every duration string, applying defaults where empty.
func (c *Config) ParseDurations() (Durations, error) {
	var (
		d   Durations
		err error
		all []error
	)
	keep := func(e error) {
		if e != nil {
			all = append(all, e)
		}
	}
	d.PollTimeout, err = ParseDuration("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	keep(err)
	d.CheckInterval, err = ParseDuration("monitor.check_interval", c.Monitor.CheckInterval, DefaultCheckInterval)
	keep(err)
	d.RepeatInterval, err = ParseDuration("repeat.default_interval", c.Repeat.DefaultInterval, DefaultRepeatInterval)
	keep(err)
	d.FetchTimeout, err = ParseDuration("fetch.timeout", c.Fetch.Timeout, 0)
	keep(err)
	d.RetryDelay, err = ParseDuration("fetch.retry_delay", c.Fetch.RetryDelay, 0)
	keep(err)
	d.BlockTime, err = ParseDuration("fetch.cooldown.block_time", c.Fetch.Cooldown.BlockTime, 0)
	keep(err)
	d.BusyTimeout, err = ParseDuration("storage.busy_timeout", c.Storage.BusyTimeout, 0)
	keep(err)
	if len(all) > 0 {
		return Durations{}, errors.Join(all...)
	}
	return d, nil
}

// Validate checks the config for problems that would fail at runtime.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required"))
	}
	if _, err := c.ParseDurations(); err != nil {
		errs = append(errs, err)
	}
	if c.Monitor.MaxConsecutiveFailures < 0 {
		errs = append(errs, errors.New("monitor.max_consecutive_failures must be >= 0"))
	}
	if len(c.Sites) == 0 {
		errs = append(errs, errors.New("no sites configured"))
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for i, s := range c.Sites {
		path := fmt.Sprintf("sites[%d]", i)
		id := strings.TrimSpace(s.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", path))
		} else if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%s.id %q is duplicated", path, id))
		}
		seen[id] = struct{}{}
		if u, err := url.Parse(strings.TrimSpace(s.URL)); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%s.url %q is not an http(s) url", path, s.URL))
		}
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "", "unknown", "auto", "single", "multiple", "multi":
		default:
			errs = append(errs, fmt.Errorf("%s.type %q must be single or multiple", path, s.Type))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is unknown", c.Storage.Driver))
	}
	if s := strings.TrimSpace(c.Heartbeat.Schedule); s != "" {
		if _, err := cronParser.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat.schedule: %w", err))
		}
	}
	if tz := strings.TrimSpace(c.Heartbeat.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}
