package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvToken          = "TELEGRAM_BOT_TOKEN"
	EnvChatID         = "CHAT_ID"
	EnvURL            = "URL"
	EnvRepeatEnabled  = "ENABLE_REPEAT_NOTIFICATION"
	EnvRepeatInterval = "DEFAULT_REPEAT_INTERVAL"
	EnvCheckInterval  = "CHECK_INTERVAL"
)

// LoadEnv reads .env style files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays the process environment on cfg.
func ApplyEnv(cfg *Config) error { return applyEnv(cfg, os.LookupEnv) }

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", EnvChatID, v)
		}
		cfg.Telegram.ChatID = id
	}
	if v, ok := get(EnvRepeatEnabled); ok {
		on, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("%s: invalid bool %q", EnvRepeatEnabled, v)
		}
		cfg.Repeat.Enabled = on
	}
	if v, ok := get(EnvRepeatInterval); ok {
		s, err := secondsToDuration(EnvRepeatInterval, v)
		if err != nil {
			return err
		}
		cfg.Repeat.DefaultInterval = s
	}
	if v, ok := get(EnvCheckInterval); ok {
		s, err := secondsToDuration(EnvCheckInterval, v)
		if err != nil {
			return err
		}
		cfg.Monitor.CheckInterval = s
	}
	if v, ok := get(EnvURL); ok && len(cfg.Sites) == 0 {
		for i, u := range splitURLList(v) {
			cfg.Sites = append(cfg.Sites, SiteConfig{ID: "site_" + strconv.Itoa(i+1), URL: u})
		}
	}
	return nil
}

// secondsToDuration turns "300" into "300s". Values that already carry a unit are kept.
func secondsToDuration(key, v string) (string, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return "", fmt.Errorf("%s: must be >= 0", key)
		}
		return strconv.FormatInt(n, 10) + "s", nil
	}
	if _, err := ParseDuration(key, v, 0); err != nil {
		return "", err
	}
	return v, nil
}

// splitURLList accepts "a,b" as well as `["a", "b"]`.
func splitURLList(v string) []string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		v = v[1 : len(v)-1]
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		u := strings.Trim(strings.TrimSpace(part), `"'`)
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
