package indicator

import (
	"sync"
)

// Cache stores computed snapshots for the current trading day. There is no
// time-based expiry: entries live until ClearCache at end-of-day, so one
// session never sees two contradictory readings for the same key.
type Cache interface {
	Get(key string) (Snapshot, bool)
	Set(key string, snap Snapshot)
	Clear()
}

// MemoryCache is the default in-process cache.
type MemoryCache struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{snaps: make(map[string]Snapshot)}
}

// Get returns the cached snapshot for key, if present.
func (c *MemoryCache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[key]
	return snap, ok
}

// Set stores a snapshot under key.
func (c *MemoryCache) Set(key string, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[key] = snap
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = make(map[string]Snapshot)
}
