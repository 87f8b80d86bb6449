package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"

	"numwatch/internal/storage"
	logx "numwatch/pkg/logx"
)

var ErrUnknownSite = errors.New("unknown site")

// Registry owns the in-memory sites. Every mutation is written through to the store
// while the lock is held, so whole-record writes never interleave.
type Registry struct {
	mu    sync.Mutex
	order []string
	sites map[string]*Site

	store storage.Store
	log   logx.Logger
}

// NewRegistry builds a registry from configured sites. store may be nil.
func NewRegistry(defs []Site, store storage.Store, log logx.Logger) *Registry {
	r := &Registry{
		sites: make(map[string]*Site, len(defs)),
		store: store,
		log:   log,
	}
	for _, d := range defs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		if _, dup := r.sites[id]; dup {
			log.Warn("duplicate site id ignored", logx.Site(id))
			continue
		}
		s := d.Clone()
		s.ID = id
		r.sites[id] = &s
		r.order = append(r.order, id)
	}
	return r
}

// Load merges persisted state into the configured sites. Records of unknown ids are ignored.
// A store error leaves every site fresh.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.Load(ctx)
	if err != nil {
		r.log.Warn("state load failed; starting empty", logx.Err(err))
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range recs {
		s, ok := r.sites[id]
		if !ok {
			continue
		}
		applyRecord(s, rec)
	}
	r.log.Info("state loaded", logx.Int("records", len(recs)), logx.Int("sites", len(r.order)))
	return nil
}

func applyRecord(s *Site, rec storage.Record) {
	if s.Type == TypeUnknown {
		if t, err := ParseContentType(rec.Type); err == nil {
			s.Type = t
		}
	}
	s.LastValue = NormalizeValue(rec.LastNumber)
	s.LatestValues = append([]string{}, rec.LatestNumbers...)
	s.ImageURL = rec.ImageURL
	s.ButtonUpdated = rec.ButtonUpdated
	s.FirstRunCompleted = rec.FirstRunCompleted

	if rec.Legacy {
		if s.Type == TypeUnknown && len(s.LatestValues) > 0 {
			s.Type = TypeMultiple
		}
		s.FirstRunCompleted = s.LastValue != "" || len(s.LatestValues) > 0
	}
	if rec.Enabled != nil {
		s.Enabled = *rec.Enabled
	}
}

func toRecord(s *Site) storage.Record {
	enabled := s.Enabled
	rec := storage.Record{
		LastNumber:        s.LastValue,
		ImageURL:          s.ImageURL,
		ButtonUpdated:     s.ButtonUpdated,
		FirstRunCompleted: s.FirstRunCompleted,
		Enabled:           &enabled,
	}
	if s.Type != TypeUnknown {
		rec.Type = s.Type.String()
	}
	if s.Type == TypeMultiple {
		rec.LatestNumbers = append([]string{}, s.LatestValues...)
	}
	return rec
}

// saveLocked persists one site. Failures are logged and never returned.
func (r *Registry) saveLocked(ctx context.Context, s *Site) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, s.ID, toRecord(s)); err != nil {
		r.log.Warn("state save failed", logx.Site(s.ID), logx.Err(err))
	}
}

func (r *Registry) Get(id string) (Site, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sites[id]
	if !ok {
		return Site{}, false
	}
	return s.Clone(), true
}

// Sites returns copies of every site in configured order.
func (r *Registry) Sites() []Site {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Site, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sites[id].Clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// AwaitingFirstData reports whether any enabled site has not seen data yet.
func (r *Registry) AwaitingFirstData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if s := r.sites[id]; s.Enabled && !s.FirstRunCompleted {
			return true
		}
	}
	return false
}

// Process runs one fetch result through the site's state machine and persists
// the site when anything changed.
func (r *Registry) Process(ctx context.Context, id string, data Content, imageURL string) (Decision, Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sites[id]
	if !ok {
		return Decision{}, Site{}, ErrUnknownSite
	}
	d := s.ProcessUpdate(data, imageURL)
	if d.Changed {
		r.saveLocked(ctx, s)
	}
	return d, s.Clone(), nil
}

func (r *Registry) SetEnabled(ctx context.Context, id string, on bool) (Site, error) {
	return r.mutate(ctx, id, func(s *Site) { s.SetEnabled(on) })
}

func (r *Registry) Toggle(ctx context.Context, id string) (Site, error) {
	return r.mutate(ctx, id, func(s *Site) { s.SetEnabled(!s.Enabled) })
}

// Confirm marks value as the acknowledged number of a site.
func (r *Registry) Confirm(ctx context.Context, id, value string) (Site, error) {
	return r.mutate(ctx, id, func(s *Site) { s.Confirm(value) })
}

// ConfirmLatest acknowledges the newest value of a multiple-type site.
func (r *Registry) ConfirmLatest(ctx context.Context, id string) (Site, error) {
	return r.mutate(ctx, id, func(s *Site) { s.ConfirmLatest() })
}

func (r *Registry) mutate(ctx context.Context, id string, fn func(*Site)) (Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sites[id]
	if !ok {
		return Site{}, ErrUnknownSite
	}
	fn(s)
	r.saveLocked(ctx, s)
	return s.Clone(), nil
}

// ResolveID finds the site id carried at the end of callback data.
//
// The data is split on "_" and progressively longer suffixes are tried, shortest
// first. When nothing matches the first site is returned. ok is false only when
// the registry is empty.
func (r *Registry) ResolveID(data string) (id string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return "", false
	}
	parts := strings.Split(data, "_")
	for i := len(parts) - 1; i >= 1; i-- {
		cand := strings.Join(parts[i:], "_")
		if _, ok := r.sites[cand]; ok {
			return cand, true
		}
	}
	return r.order[0], true
}
