package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numwatch/internal/runtime/supervisor"
	logx "numwatch/pkg/logx"
)

func testSources() Sources {
	return Sources{
		Health: func() supervisor.Snapshot { return supervisor.Snapshot{Active: 3} },
		Sites: func() []SiteView {
			return []SiteView{
				{ID: "site_1", Name: "One", Type: "single", Enabled: true, LastValue: "447700900123"},
				{ID: "site_2", Name: "UK", Type: "multiple", Failures: 2},
			}
		},
		Events: func() map[string]uint64 { return map[string]uint64{"site.checked": 4} },
	}
}

func get(t *testing.T, h http.Handler, path, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	s := New(Config{}, testSources(), logx.Nop())
	h := s.Router(Config{})

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/sites", http.StatusOK, `"id":"site_2"`},
		{"/sites/site_1", http.StatusOK, `"last_value":"447700900123"`},
		{"/sites/nope", http.StatusNotFound, "site not found"},
		{"/events", http.StatusOK, `"site.checked":4`},
		{"/status", http.StatusOK, `{}`},
		{"/debug/pprof/", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			rec := get(t, h, tt.path, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestSitesDecodes(t *testing.T) {
	t.Parallel()

	rec := get(t, New(Config{}, testSources(), logx.Nop()).Router(Config{}), "/sites", "")
	var out []SiteView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[1].Failures)
}

func TestHealthDegraded(t *testing.T) {
	t.Parallel()

	src := Sources{Health: func() supervisor.Snapshot { return supervisor.Snapshot{FirstError: "poll: boom"} }}
	rec := get(t, New(Config{}, src, logx.Nop()).Router(Config{}), "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestEmptySources(t *testing.T) {
	t.Parallel()

	h := New(Config{}, Sources{}, logx.Nop()).Router(Config{})
	assert.JSONEq(t, `[]`, get(t, h, "/sites", "").Body.String())
	assert.JSONEq(t, `{}`, get(t, h, "/events", "").Body.String())
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cfg := Config{Token: "s3cret", Pprof: true}
	h := New(cfg, testSources(), logx.Nop()).Router(cfg)

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/sites", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/sites", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/sites", "s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/sites?token=s3cret", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/sites?token=nope", "s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/", "s3cret").Code)
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	assert.True(t, isLoopbackAddr("127.0.0.1:8080"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.True(t, isLoopbackAddr("[::1]:80"))
	assert.False(t, isLoopbackAddr(":8080"))
	assert.False(t, isLoopbackAddr("0.0.0.0:8080"))
	assert.False(t, isLoopbackAddr("nonsense"))
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, testSources(), logx.Nop())
	require.NoError(t, s.Start(ctx))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Error(t, s.Reconfigure(ctx, Config{Enabled: true, Addr: "0.0.0.0:0"}))
	assert.Empty(t, s.Addr())

	require.NoError(t, s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}))
	assert.NotEmpty(t, s.Addr())

	require.NoError(t, s.Reconfigure(ctx, Config{}))
	assert.Empty(t, s.Addr())
}
