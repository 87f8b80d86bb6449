package notify

import (
	"sync"
	"time"
)

// Repeat holds the re-notification setting shared by all sites.
type Repeat struct {
	mu       sync.RWMutex
	enabled  bool
	interval time.Duration
	def      time.Duration
}

func NewRepeat(enabled bool, def time.Duration) *Repeat {
	if def <= 0 {
		def = 5 * time.Minute
	}
	return &Repeat{enabled: enabled, interval: def, def: def}
}

// Interval returns the active interval, or 0 when repeat is off.
func (r *Repeat) Interval() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.enabled {
		return 0
	}
	return r.interval
}

func (r *Repeat) Enabled() bool { return r.Interval() > 0 }

func (r *Repeat) Default() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Set enables repeat with interval d.
func (r *Repeat) Set(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.enabled = true
	r.interval = d
	r.mu.Unlock()
}

func (r *Repeat) Disable() {
	r.mu.Lock()
	r.enabled = false
	r.mu.Unlock()
}

// Toggle flips repeat; turning it on restores the default interval.
func (r *Repeat) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = !r.enabled
	if r.enabled {
		r.interval = r.def
	}
	return r.enabled
}

// SetDefault replaces the default interval. An active default interval follows it.
func (r *Repeat) SetDefault(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	if r.interval == r.def {
		r.interval = d
	}
	r.def = d
	r.mu.Unlock()
}
