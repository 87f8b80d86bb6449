package storage

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Store, used when persistence is disabled.
type Memory struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemory() *Memory { return &Memory{recs: map[string]Record{}} }

func (m *Memory) Load(context.Context) (map[string]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Record, len(m.recs))
	for id, r := range m.recs {
		out[id] = cloneRecord(r)
	}
	return out, nil
}

func (m *Memory) Save(_ context.Context, id string, r Record) error {
	m.mu.Lock()
	m.recs[id] = cloneRecord(r)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

func cloneRecord(r Record) Record {
	r.LatestNumbers = slices.Clone(r.LatestNumbers)
	if r.Enabled != nil {
		v := *r.Enabled
		r.Enabled = &v
	}
	return r
}
