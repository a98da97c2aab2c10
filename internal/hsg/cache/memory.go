package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

// memCache is the default single-process cache: a mutex-guarded map keyed by
// cache key, with lazy expiry checked on Get and a bound enforced by
// dropping the oldest-inserted entry once maxEntries is exceeded.
type memCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	order      []string
	maxEntries int
}

// NewMemory constructs the in-process QueryCache, bounded to maxEntries
// (default 10000 when <= 0).
func NewMemory(maxEntries int) QueryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &memCache{entries: make(map[string]entry), maxEntries: maxEntries}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[key] = entry{value: value, expires: time.Now().Add(ttl)}
}
