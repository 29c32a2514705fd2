// Package memory provides an in-process TTL cache for audit results.
package memory

import (
	"sync"
	"time"

	"siteaudit/internal/audit"
)

type entry struct {
	result    audit.Result
	expiresAt time.Time
}

// Cache implements audit.Cache with a mutex-guarded map. Eviction is purely
// time-based and lazy: expired entries are dropped when read, or overwritten
// by a later Put. No LRU, no size bound.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   audit.Clock
}

// New constructs a Cache with an injected clock.
func New(clock audit.Clock) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Get returns the live entry for key, if any. Callers receive their own
// copy of the issue slice so a cached result stays immutable.
func (c *Cache) Get(key string) (audit.Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return audit.Result{}, false
	}
	if c.clock.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return audit.Result{}, false
	}
	return copyResult(e.result), true
}

// Put stores result under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(key string, result audit.Result, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		result:    copyResult(result),
		expiresAt: c.clock.Now().Add(ttl),
	}
}

func copyResult(r audit.Result) audit.Result {
	cp := r
	if r.Issues != nil {
		cp.Issues = make([]audit.Issue, len(r.Issues))
		copy(cp.Issues, r.Issues)
	}
	return cp
}
