package eventbus

import (
	"context"
	"sync"
)

// Counter tallies events by type. Run consumes a subscription until ctx ends.
type Counter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func NewCounter() *Counter { return &Counter{counts: map[string]uint64{}} }

func (c *Counter) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.mu.Lock()
			c.counts[e.Type]++
			c.mu.Unlock()
		}
	}
}

func (c *Counter) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
