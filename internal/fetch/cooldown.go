package fetch

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Cooldown remembers URLs that answered 429 so they are skipped until the block expires.
type Cooldown interface {
	Blocked(url string) (bool, error)
	Block(url string, d time.Duration) error
}

type CooldownConfig struct {
	Driver string // memory (default) | memcache | none
	Addr   string
}

// NewCooldown returns the configured cooldown store. "none" disables it.
func NewCooldown(cfg CooldownConfig) (Cooldown, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryCooldown(), nil
	case "memcache", "memcached":
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, errors.New("fetch.cooldown.addr is required for memcache")
		}
		return NewMemcacheCooldown(cfg.Addr), nil
	case "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cooldown driver %q", cfg.Driver)
	}
}

type memoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryCooldown() Cooldown {
	return &memoryCooldown{until: map[string]time.Time{}, now: time.Now}
}

func (c *memoryCooldown) Blocked(url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.until[url]
	if !ok {
		return false, nil
	}
	if !c.now().Before(t) {
		delete(c.until, url)
		return false, nil
	}
	return true, nil
}

func (c *memoryCooldown) Block(url string, d time.Duration) error {
	c.mu.Lock()
	c.until[url] = c.now().Add(d)
	c.mu.Unlock()
	return nil
}

type memcacheCooldown struct {
	client *memcache.Client
}

func NewMemcacheCooldown(addr string) Cooldown {
	return &memcacheCooldown{client: memcache.New(addr)}
}

// cooldownKey hashes the URL; memcache keys must be short and free of spaces.
func cooldownKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return "numwatch:cooldown:" + hex.EncodeToString(sum[:])
}

func (c *memcacheCooldown) Blocked(url string) (bool, error) {
	_, err := c.client.Get(cooldownKey(url))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *memcacheCooldown) Block(url string, d time.Duration) error {
	secs := int32(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return c.client.Set(&memcache.Item{
		Key:        cooldownKey(url),
		Value:      []byte(time.Now().Add(d).Format(time.RFC3339)),
		Expiration: secs,
	})
}
