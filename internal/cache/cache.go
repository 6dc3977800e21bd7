// Package cache holds the most recently fetched snapshot for the
// presentation layer. Reads are served stale while a refresh is running.
package cache

import (
	"sync"

	"solwatch/internal/chain"
)

// Cache stores at most one snapshot, the latest. Snapshots are replaced
// whole, never edited in place, so readers can hold a returned pointer
// without further locking.
type Cache struct {
	mu     sync.RWMutex
	latest *chain.Snapshot
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{}
}

// Update atomically replaces the stored snapshot.
func (c *Cache) Update(snap *chain.Snapshot) {
	c.mu.Lock()
	c.latest = snap
	c.mu.Unlock()
}

// Read returns the current snapshot, or nil if none has ever been fetched.
func (c *Cache) Read() *chain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}
