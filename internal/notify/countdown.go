package notify

import (
	"context"
	"sync"
	"time"
)

// CountdownOptions wires a Countdowns to its caller.
type CountdownOptions struct {
	// Interval returns the governing repeat interval. A task ends once it differs from the armed one.
	Interval func() time.Duration
	// OnTick renders the remaining time.
	OnTick func(ctx context.Context, siteID string, remaining time.Duration)
	// OnExpire runs once remaining reaches zero, after the task left the registry.
	OnExpire func(ctx context.Context, siteID string)
	// Tick defaults to one second.
	Tick time.Duration
	Now  func() time.Time
}

type countdownTask struct {
	id     uint64
	cancel context.CancelFunc
}

// Countdowns runs at most one countdown per site.
type Countdowns struct {
	parent context.Context
	opts   CountdownOptions

	mu    sync.Mutex
	seq   uint64
	tasks map[string]countdownTask
	wg    sync.WaitGroup
}

func NewCountdowns(parent context.Context, opts CountdownOptions) *Countdowns {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Countdowns{parent: parent, opts: opts, tasks: map[string]countdownTask{}}
}

// Arm replaces any countdown of siteID with a new one for interval.
func (c *Countdowns) Arm(siteID string, interval time.Duration) {
	if interval <= 0 {
		c.Cancel(siteID)
		return
	}
	ctx, cancel := context.WithCancel(c.parent)

	c.mu.Lock()
	if old, ok := c.tasks[siteID]; ok {
		old.cancel()
	}
	c.seq++
	id := c.seq
	c.tasks[siteID] = countdownTask{id: id, cancel: cancel}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, siteID, id, interval)
}

func (c *Countdowns) Cancel(siteID string) {
	c.mu.Lock()
	if t, ok := c.tasks[siteID]; ok {
		t.cancel()
		delete(c.tasks, siteID)
	}
	c.mu.Unlock()
}

func (c *Countdowns) CancelAll() {
	c.mu.Lock()
	for id, t := range c.tasks {
		t.cancel()
		delete(c.tasks, id)
	}
	c.mu.Unlock()
}

func (c *Countdowns) Active(siteID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[siteID]
	return ok
}

// Wait blocks until every task goroutine has returned.
func (c *Countdowns) Wait() { c.wg.Wait() }

// release drops the task from the registry if it is still the current one.
func (c *Countdowns) release(siteID string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[siteID]
	if !ok || t.id != id {
		return false
	}
	t.cancel()
	delete(c.tasks, siteID)
	return true
}

func (c *Countdowns) run(ctx context.Context, siteID string, id uint64, interval time.Duration) {
	defer c.wg.Done()
	start := c.opts.Now()
	t := time.NewTicker(c.opts.Tick)
	defer t.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		remaining := max(interval-c.opts.Now().Sub(start), 0)
		if c.opts.OnTick != nil {
			c.opts.OnTick(ctx, siteID, remaining)
		}
		if remaining == 0 {
			if c.release(siteID, id) && c.opts.OnExpire != nil && c.parent.Err() == nil {
				c.opts.OnExpire(c.parent, siteID)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if c.opts.Interval != nil && c.opts.Interval() != interval {
			c.release(siteID, id)
			return
		}
	}
}
