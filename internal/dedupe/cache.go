// ABOUTME: TTL and size bounded seen-id cache with atomic check-and-mark
// ABOUTME: Prunes opportunistically on writes; no background goroutine to manage

package dedupe

import (
	"sync"
	"time"
)

// entry records when an id was first seen.
type entry struct {
	seenAt time.Time
}

// slot pairs an order position with the insertion time it was created for.
// A slot whose time no longer matches the live entry is stale (the id was
// re-admitted after expiry) and must not evict the live entry.
type slot struct {
	id     string
	seenAt time.Time
}

// Cache tracks recently seen ids. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   []slot // insertion order, oldest first; may hold stale slots
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache that remembers ids for ttl from first sight, holding at
// most maxSize of them. The oldest id is evicted when the cache is full.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// CheckAndMark atomically reports whether the id was seen within the TTL and
// marks it as seen. Returns true for a duplicate, false for a fresh id. The
// TTL runs from first sight; duplicates do not extend it.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if e, ok := c.seen[id]; ok {
		if now.Sub(e.seenAt) < c.ttl {
			return true
		}
		// Expired: fall through and re-admit as fresh. The old order slot
		// goes stale and is skipped by prune and eviction.
		delete(c.seen, id)
	}

	c.pruneLocked(now)
	for len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[id] = &entry{seenAt: now}
	c.order = append(c.order, slot{id: id, seenAt: now})
	return false
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// liveLocked reports whether the slot still owns its entry. Must be called
// with mu held.
func (c *Cache) liveLocked(s slot) bool {
	e, ok := c.seen[s.id]
	return ok && e.seenAt.Equal(s.seenAt)
}

// pruneLocked drops expired entries and stale slots from the front of the
// order. Must be called with mu held.
func (c *Cache) pruneLocked(now time.Time) {
	for len(c.order) > 0 {
		s := c.order[0]
		if c.liveLocked(s) {
			if now.Sub(s.seenAt) < c.ttl {
				return
			}
			delete(c.seen, s.id)
		}
		c.order = c.order[1:]
	}
}

// evictOldestLocked removes the oldest live entry, skipping stale slots so a
// re-admitted id is never evicted through the slot of its expired ancestor.
// Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	for len(c.order) > 0 {
		s := c.order[0]
		c.order = c.order[1:]
		if c.liveLocked(s) {
			delete(c.seen, s.id)
			return
		}
	}
}
