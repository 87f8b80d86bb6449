package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numwatch/internal/bot"
	"numwatch/internal/config"
	"numwatch/internal/heartbeat"
	kit "numwatch/internal/transport"
	"numwatch/internal/transport/transporttest"
)

const pageHTML = `<html><body>
<div class="latest-added__title"><a href="/number/447700900123">+447700900123</a></div>
</body></html>`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvToken, config.EnvChatID, config.EnvURL, config.EnvRepeatEnabled, config.EnvRepeatInterval, config.EnvCheckInterval} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, siteURL string, repeat bool) string {
	t.Helper()
	body := fmt.Sprintf(`
telegram:
  token: "1:test"
  chat_id: 100
  owner_user_ids: [7]
logging:
  level: error
  console: false
monitor:
  check_interval: "1h"
repeat:
  enabled: %t
  default_interval: "5m"
fetch:
  attempts: 1
  cooldown: { driver: none }
sites:
  - { id: site_1, url: %q, type: single }
storage:
  driver: file
  path: %q
`, repeat, siteURL, filepath.Join(dir, "website_data.json"))
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func startApp(t *testing.T, repeat bool) (*App, *transporttest.Adapter, string) {
	t.Helper()
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(pageHTML))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := writeConfig(t, dir, srv.URL, repeat)
	ad := transporttest.New()
	a, err := NewApp(path, WithAdapter(ad), WithTimings(bot.Timings{
		CopyFlash:    10 * time.Millisecond,
		AnimStep:     10 * time.Millisecond,
		SplitTTL:     10 * time.Millisecond,
		TransientTTL: 10 * time.Millisecond,
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopAppStop)
	})
	return a, ad, dir
}

func hasText(ad *transporttest.Adapter, substr string) bool {
	for _, op := range ad.Ops() {
		if strings.Contains(op.Text, substr) {
			return true
		}
	}
	return false
}

func TestAppStartNotifiesAndPersists(t *testing.T) {
	a, ad, dir := startApp(t, false)

	require.Eventually(t, func() bool { return hasText(ad, heartbeat.Greeting) }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return hasText(ad, "New Number Added") }, 5*time.Second, 20*time.Millisecond)

	site, ok := a.reg.Get("site_1")
	require.True(t, ok)
	assert.Equal(t, "447700900123", site.LastValue)
	assert.True(t, site.FirstRunCompleted)

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(dir, "website_data.json"))
		return err == nil && strings.Contains(string(b), "447700900123")
	}, 3*time.Second, 20*time.Millisecond)

	views := a.siteViews()
	require.Len(t, views, 1)
	assert.Equal(t, "single", views[0].Type)
	assert.Equal(t, "447700900123", views[0].LastValue)

	st := a.status()
	assert.Equal(t, false, st["repeat_enabled"])
	assert.Equal(t, "1h0m0s", st["check_interval"])
}

func TestAppRoutesCommands(t *testing.T) {
	a, ad, _ := startApp(t, true)
	require.Eventually(t, func() bool { return hasText(ad, "New Number Added") }, 5*time.Second, 20*time.Millisecond)
	require.True(t, a.repeat.Enabled())

	a.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 900, ChatID: 100, FromID: 7, Text: "/stop_repeat"}}
	require.Eventually(t, func() bool { return !a.repeat.Enabled() }, 3*time.Second, 20*time.Millisecond)

	// Strangers are ignored.
	a.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 901, ChatID: 100, FromID: 8, Text: "/set_repeat 60"}}
	a.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 902, ChatID: 100, FromID: 7, Text: "/ping"}}
	require.Eventually(t, func() bool { return hasText(ad, "I am now online") }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, a.repeat.Enabled())
}

func TestAppApplyConfig(t *testing.T) {
	a, _, _ := startApp(t, false)

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Monitor.CheckInterval = "2h"
	next.Repeat = config.RepeatConfig{Enabled: true, DefaultInterval: "90s"}
	off := false
	next.Sites = []config.SiteConfig{{ID: "site_1", URL: oldCfg.Sites[0].URL, Type: "single", Enabled: &off}}
	next.Telegram.OwnerUserIDs = []int64{9}

	a.applyConfig(context.Background(), oldCfg, &next)

	assert.Equal(t, 2*time.Hour, a.loop.Interval())
	assert.True(t, a.repeat.Enabled())
	assert.Equal(t, 90*time.Second, a.repeat.Interval())
	site, ok := a.reg.Get("site_1")
	require.True(t, ok)
	assert.False(t, site.Enabled)

	hb := a.heartbeatStatus()
	require.Len(t, hb.Sites, 1)
	assert.False(t, hb.Sites[0].Enabled)
	assert.Equal(t, 90*time.Second, hb.Repeat)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      config.StorageConfig
		driver  string
		enabled bool
		wantErr bool
	}{
		{name: "default file", in: config.StorageConfig{}, driver: "file", enabled: true},
		{name: "none", in: config.StorageConfig{Driver: "none"}},
		{name: "sqlite", in: config.StorageConfig{Driver: "sqlite", Path: "x.db"}, driver: "sqlite", enabled: true},
		{name: "sqlite needs path", in: config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "redis", in: config.StorageConfig{Driver: "redis", Addr: "127.0.0.1:6379"}, driver: "redis", enabled: true},
		{name: "redis needs addr", in: config.StorageConfig{Driver: "redis"}, wantErr: true},
		{name: "unknown", in: config.StorageConfig{Driver: "mongo"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, enabled)
			assert.Equal(t, tt.driver, sc.Driver)
		})
	}

	sc, _, err := mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "redis", Addr: "h:1"}})
	require.NoError(t, err)
	assert.Equal(t, "numwatch", sc.KeyPrefix)
	sc, _, err = mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultStoragePath, sc.Path)
}

func TestMapSites(t *testing.T) {
	t.Parallel()

	off := false
	sites, err := mapSites(&config.Config{Sites: []config.SiteConfig{
		{ID: " a ", URL: "https://a.example", Type: "multiple"},
		{ID: "b", URL: "https://b.example", Enabled: &off},
	}})
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "a", sites[0].ID)
	assert.Equal(t, "multiple", sites[0].Type.String())
	assert.True(t, sites[0].Enabled)
	assert.Equal(t, "unknown", sites[1].Type.String())
	assert.False(t, sites[1].Enabled)

	_, err = mapSites(&config.Config{Sites: []config.SiteConfig{{ID: "x", Type: "grid"}}})
	require.Error(t, err)
}
