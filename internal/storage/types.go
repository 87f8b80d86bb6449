package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values are "file", "sqlite" and "redis". An empty Driver or "none"
// disables persistence.
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	BusyTimeout time.Duration // sqlite only; 0 means default

	Addr      string // redis
	Password  string // redis
	DB        int    // redis
	KeyPrefix string // redis
}

// Record is the durable state of one site.
//
// LastNumber is kept without its "+" prefix; empty means null.
// Legacy is set by loaders for records written before first_run_completed existed.
type Record struct {
	Type              string
	LastNumber        string
	LatestNumbers     []string
	ImageURL          string
	ButtonUpdated     bool
	FirstRunCompleted bool
	Enabled           *bool
	Legacy            bool
}

// Store is the persistence API used by the site registry.
type Store interface {
	// Load returns every stored record. Missing or unreadable state yields an empty map.
	Load(ctx context.Context) (map[string]Record, error)
	// Save replaces the record of one site.
	Save(ctx context.Context, id string, r Record) error
	Close() error
}
