package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"panfs/internal/node"
)

// DirCache maps a directory id to its full child map (child id -> record)
// as of the last refresh, bounded by an LRU policy. A directory is either
// fully present or absent; partial listings are never cached.
type DirCache struct {
	lru *lru.Cache[uint64, map[uint64]*node.Node]
}

// NewDirCache creates a directory listing cache holding at most maxDirs
// directories. maxDirs must be positive.
func NewDirCache(maxDirs int) (*DirCache, error) {
	l, err := lru.New[uint64, map[uint64]*node.Node](maxDirs)
	if err != nil {
		return nil, err
	}
	return &DirCache{lru: l}, nil
}

// Get returns the cached child map for a directory, or nil.
// The returned map is the live cache bucket; callers must copy before
// mutating outside the fs layer's refresh path.
func (c *DirCache) Get(dirID uint64) (map[uint64]*node.Node, bool) {
	if Disabled {
		return nil, false
	}
	return c.lru.Get(dirID)
}

// Put replaces a directory's child map wholesale.
func (c *DirCache) Put(dirID uint64, children map[uint64]*node.Node) {
	if Disabled {
		return
	}
	c.lru.Add(dirID, children)
}

// AddChild inserts or refreshes one child in a cached directory, if that
// directory is cached at all.
func (c *DirCache) AddChild(dirID uint64, child *node.Node) {
	if Disabled {
		return
	}
	if m, ok := c.lru.Peek(dirID); ok {
		m[child.ID] = child
	}
}

// RemoveChild drops one child from a cached directory.
func (c *DirCache) RemoveChild(dirID, childID uint64) {
	if m, ok := c.lru.Peek(dirID); ok {
		delete(m, childID)
	}
}

// Remove drops a directory's listing entirely.
func (c *DirCache) Remove(dirID uint64) {
	c.lru.Remove(dirID)
}

// Invalidate clears all entries from the cache.
func (c *DirCache) Invalidate() {
	c.lru.Purge()
}

// Len returns the number of cached directories.
func (c *DirCache) Len() int {
	return c.lru.Len()
}
