// Package snapcache holds the last successfully assembled snapshot per
// cache key. Entries are never evicted: a stale entry stays retrievable
// as a fallback until a newer successful write supersedes it, and the
// whole cache is lost on process exit.
package snapcache

import (
	"sync"
	"time"
)

// Entry is one cached snapshot with its write time.
type Entry struct {
	Value    any
	StoredAt time.Time
}

// Fresh reports whether the entry is still inside the freshness window.
func (e Entry) Fresh(maxAge time.Duration, now time.Time) bool {
	return now.Sub(e.StoredAt) < maxAge
}

// Cache is a process-wide keyed snapshot store, safe for concurrent
// use. Construct once at startup and inject into every aggregator.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns the entry for key, however stale.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores value under key, stamped with the current time. Last
// writer wins.
func (c *Cache) Put(key string, value any) {
	c.PutAt(key, value, time.Now())
}

// PutAt stores value under key with an explicit write time.
func (c *Cache) PutAt(key string, value any, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Value: value, StoredAt: at}
}
