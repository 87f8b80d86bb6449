package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numwatch/internal/eventbus"
	"numwatch/internal/storage"
	logx "numwatch/pkg/logx"
)

func testSites() []Site {
	return []Site{
		{ID: "site_1", URL: "https://one.example/", Type: TypeSingle, Enabled: true},
		{ID: "site_2", URL: "https://two.example/numbers/uk", Type: TypeMultiple, Enabled: true},
	}
}

func TestRegistryRoundTripThroughFileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "website_data.json")

	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	reg := NewRegistry(testSites(), st, logx.Nop())
	require.NoError(t, reg.Load(ctx))

	_, _, err = reg.Process(ctx, "site_2", List("+5", "+9"), "https://two.example/flag.png")
	require.NoError(t, err)
	_, err = reg.ConfirmLatest(ctx, "site_2")
	require.NoError(t, err)
	_, _, err = reg.Process(ctx, "site_1", Text("+358401234567"), "")
	require.NoError(t, err)
	before := reg.Sites()

	st2, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	reg2 := NewRegistry(testSites(), st2, logx.Nop())
	require.NoError(t, reg2.Load(ctx))

	assert.Equal(t, before, reg2.Sites())
	got, _ := reg2.Get("site_2")
	assert.Equal(t, "5", got.LastValue)
	assert.Equal(t, []string{"+5", "+9"}, got.LatestValues)
	assert.True(t, got.ButtonUpdated)
	assert.False(t, reg2.AwaitingFirstData())
}

func TestRegistryPersistedEnabledOverridesConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	reg := NewRegistry(testSites(), mem, logx.Nop())
	_, err := reg.SetEnabled(ctx, "site_1", false)
	require.NoError(t, err)

	reg2 := NewRegistry(testSites(), mem, logx.Nop())
	require.NoError(t, reg2.Load(ctx))
	s, ok := reg2.Get("site_1")
	require.True(t, ok)
	assert.False(t, s.Enabled)
}

func TestRegistryLegacyRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Save(ctx, "site_1", storage.Record{LastNumber: "123", Legacy: true}))
	require.NoError(t, mem.Save(ctx, "site_2", storage.Record{LatestNumbers: []string{"+7", "+8"}, Legacy: true}))

	sites := testSites()
	sites[1].Type = TypeUnknown
	reg := NewRegistry(sites, mem, logx.Nop())
	require.NoError(t, reg.Load(ctx))

	s1, _ := reg.Get("site_1")
	assert.True(t, s1.FirstRunCompleted)
	s2, _ := reg.Get("site_2")
	assert.Equal(t, TypeMultiple, s2.Type)
	assert.Empty(t, s2.LastValue)
	assert.True(t, s2.FirstRunCompleted)

	// With nothing confirmed, an append behind the head still notifies.
	assert.True(t, s2.ProcessUpdate(List("+7", "+8", "+9"), "").Notify)
}

type failingStore struct{ storage.Store }

func (failingStore) Load(context.Context) (map[string]storage.Record, error) {
	return nil, errors.New("disk gone")
}
func (failingStore) Save(context.Context, string, storage.Record) error { return errors.New("disk gone") }
func (failingStore) Close() error                                       { return nil }

func TestRegistryStoreErrorsAreNotFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(testSites(), failingStore{}, logx.Nop())
	require.NoError(t, reg.Load(ctx))

	d, s, err := reg.Process(ctx, "site_1", Text("+1"), "")
	require.NoError(t, err)
	assert.True(t, d.Notify)
	assert.Equal(t, "1", s.LastValue)

	_, err = reg.Toggle(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestResolveID(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testSites(), nil, logx.Nop())
	cases := []struct{ data, want string }{
		{"settings_site_2", "site_2"},
		{"update_+4477_site_1", "site_1"},
		{"toggle_site_2", "site_2"},
		{"update_multi_site_2", "site_2"},
		{"settings_nowhere", "site_1"},
	}
	for _, tc := range cases {
		got, ok := reg.ResolveID(tc.data)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got, tc.data)
	}

	empty := NewRegistry(nil, nil, logx.Nop())
	_, ok := empty.ResolveID("settings_site_1")
	assert.False(t, ok)
}

type scriptFetcher struct {
	mu   sync.Mutex
	data map[string][]Content
	errs map[string]error
	hits map[string]int
}

func (f *scriptFetcher) Fetch(_ context.Context, url string, _ ContentType) (Content, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[url]++
	if err := f.errs[url]; err != nil {
		return Content{}, "", err
	}
	seq := f.data[url]
	if len(seq) == 0 {
		return Content{}, "", nil
	}
	c := seq[0]
	if len(seq) > 1 {
		f.data[url] = seq[1:]
	}
	return c, "img", nil
}

type recordNotifier struct {
	mu   sync.Mutex
	sent []Decision
	ids  []string
}

func (n *recordNotifier) Notify(_ context.Context, s Site, d Decision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, d)
	n.ids = append(n.ids, s.ID)
	return nil
}

func (n *recordNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func TestLoopInitialPassNotifiesEverySiteWithData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()

	// site_2 already has state, site_1 does not: the initial pass still covers both.
	seed := NewRegistry(testSites(), mem, logx.Nop())
	_, _, err := seed.Process(ctx, "site_2", List("+5", "+9"), "img")
	require.NoError(t, err)

	reg := NewRegistry(testSites(), mem, logx.Nop())
	require.NoError(t, reg.Load(ctx))
	f := &scriptFetcher{
		data: map[string][]Content{
			"https://one.example/":          {Text("+1")},
			"https://two.example/numbers/uk": {List("+5", "+9")},
		},
		errs: map[string]error{},
		hits: map[string]int{},
	}
	n := &recordNotifier{}
	l := NewLoop(reg, f, n, LoopOptions{Interval: time.Hour, Log: logx.Nop()})

	l.pass(ctx, reg.AwaitingFirstData())
	assert.Equal(t, []string{"site_1", "site_2"}, n.ids)
	assert.True(t, n.sent[0].Initial)

	// A steady pass with unchanged data is silent.
	l.pass(ctx, false)
	assert.Equal(t, 2, n.count())
}

func TestLoopFailuresAreCountedAndIsolated(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	reg := NewRegistry(testSites(), nil, logx.Nop())
	f := &scriptFetcher{
		data: map[string][]Content{"https://two.example/numbers/uk": {List("+5", "+9")}},
		errs: map[string]error{"https://one.example/": errors.New("timeout")},
		hits: map[string]int{},
	}
	n := &recordNotifier{}
	l := NewLoop(reg, f, n, LoopOptions{Interval: time.Hour, MaxFailures: 2, Bus: bus, Log: logx.Nop()})

	ctx := context.Background()
	l.pass(ctx, false)
	l.pass(ctx, false)
	l.pass(ctx, false)

	assert.Equal(t, 3, l.Failures()["site_1"])
	assert.Equal(t, 0, l.Failures()["site_2"])
	s, _ := reg.Get("site_1")
	assert.True(t, s.Enabled)
	assert.Equal(t, 1, n.count())

	var failed int
	for len(events) > 0 {
		if e := <-events; e.Type == eventbus.SiteFailed {
			failed++
		}
	}
	assert.Equal(t, 3, failed)

	f.mu.Lock()
	delete(f.errs, "https://one.example/")
	f.data["https://one.example/"] = []Content{Text("+1")}
	f.mu.Unlock()
	l.pass(ctx, false)
	assert.Equal(t, 0, l.Failures()["site_1"])
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, string, ContentType) (Content, string, error) {
	panic("boom")
}

func TestLoopRecoversPanics(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testSites(), nil, logx.Nop())
	l := NewLoop(reg, panicFetcher{}, &recordNotifier{}, LoopOptions{Log: logx.Nop()})
	l.pass(context.Background(), false)
	assert.Equal(t, 1, l.Failures()["site_1"])
	assert.Equal(t, 1, l.Failures()["site_2"])
	assert.False(t, l.LastPass().IsZero())
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testSites(), nil, logx.Nop())
	f := &scriptFetcher{data: map[string][]Content{}, errs: map[string]error{}, hits: map[string]int{}}
	l := NewLoop(reg, f, &recordNotifier{}, LoopOptions{Interval: 10 * time.Millisecond, Log: logx.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.hits["https://one.example/"] >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	l.SetInterval(0)
	assert.Equal(t, 10*time.Millisecond, l.Interval())
}
