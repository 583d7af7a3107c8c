package cache

import (
	"sync"
	"time"

	"panfs/internal/node"
)

// AttrCache caches node records by id with TTL-based expiration.
// The source of truth is the remote service; an evicted or expired entry
// only ever costs a re-fetch, never correctness.
//
// Thread-safe: uses RWMutex for concurrent access.
type AttrCache struct {
	mu      sync.RWMutex
	entries map[uint64]*attrEntry
	ttl     time.Duration
	maxSize int
}

type attrEntry struct {
	node    *node.Node
	expires time.Time
}

// NewAttrCache creates a new attribute cache.
// ttl: Time-to-live for cached entries (use 0 for no expiration)
// maxSize: Maximum number of entries (use 0 for unlimited)
func NewAttrCache(ttl time.Duration, maxSize int) *AttrCache {
	return &AttrCache{
		entries: make(map[uint64]*attrEntry, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves the cached record for an id.
// Returns nil if not found, expired, or caching is disabled (PANFS_CACHE=0).
func (c *AttrCache) Get(id uint64) *node.Node {
	if Disabled {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil
	}

	if c.ttl > 0 && time.Now().After(entry.expires) {
		return nil
	}

	return entry.node
}

// Set stores a record. If the id is already cached the same Node pointer is
// kept and only its freshness window renews; callers refresh records in
// place so outstanding references stay current.
// No-op if caching is disabled (PANFS_CACHE=0).
func (c *AttrCache) Set(n *node.Node) {
	if Disabled || n == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		// Don't add new entries when at capacity; refreshes still land.
		if _, exists := c.entries[n.ID]; !exists {
			return
		}
	}

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	c.entries[n.ID] = &attrEntry{node: n, expires: expires}
}

// Invalidate clears all entries from the cache.
func (c *AttrCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		c.entries = make(map[uint64]*attrEntry, 256)
	}
}

// InvalidateID removes a specific id from the cache.
func (c *AttrCache) InvalidateID(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

// InvalidateIDs removes a batch of ids, e.g. a removed subtree.
func (c *AttrCache) InvalidateIDs(ids []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		delete(c.entries, id)
	}
}

// Size returns the current number of entries in the cache.
func (c *AttrCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// AttrCacheStats holds cache statistics.
type AttrCacheStats struct {
	Size    int
	MaxSize int
	TTL     time.Duration
}

// Stats returns current cache statistics.
func (c *AttrCache) Stats() AttrCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return AttrCacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
	}
}
