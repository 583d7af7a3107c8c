package cache

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PathIndex maps normalized path strings to ids so resolution can
// short-circuit. A trailing slash on the stored key records that the path
// is known to be a directory. Entries sharing a mutated prefix are evicted
// eagerly; a surviving stale entry is still harmless because the resolver
// re-checks the record's materialized path against the request.
type PathIndex struct {
	lru *lru.Cache[string, uint64]
}

// NewPathIndex creates a path index holding at most maxPaths entries.
func NewPathIndex(maxPaths int) (*PathIndex, error) {
	l, err := lru.New[string, uint64](maxPaths)
	if err != nil {
		return nil, err
	}
	return &PathIndex{lru: l}, nil
}

// Get looks up a normalized path. isDir reports whether the entry was
// stored as a known directory.
func (c *PathIndex) Get(path string) (id uint64, isDir, ok bool) {
	if Disabled {
		return 0, false, false
	}
	if id, ok := c.lru.Get(path + "/"); ok {
		return id, true, true
	}
	if id, ok := c.lru.Get(path); ok {
		return id, false, true
	}
	return 0, false, false
}

// GetDir looks up a normalized path known to be a directory.
func (c *PathIndex) GetDir(path string) (uint64, bool) {
	if Disabled {
		return 0, false
	}
	return c.lru.Get(path + "/")
}

// Put records a path -> id binding.
func (c *PathIndex) Put(path string, id uint64, isDir bool) {
	if Disabled {
		return
	}
	if isDir {
		// Drop a stale file-shaped entry for the same path.
		c.lru.Remove(path)
		c.lru.Add(path+"/", id)
		return
	}
	c.lru.Remove(path + "/")
	c.lru.Add(path, id)
}

// Remove drops the bindings for one path, both file- and dir-shaped.
func (c *PathIndex) Remove(path string) {
	c.lru.Remove(path)
	c.lru.Remove(path + "/")
}

// InvalidatePrefix drops every entry at or below the given path.
func (c *PathIndex) InvalidatePrefix(path string) {
	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for _, k := range c.lru.Keys() {
		if k == path || strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Invalidate clears all entries from the cache.
func (c *PathIndex) Invalidate() {
	c.lru.Purge()
}

// Len returns the number of indexed paths.
func (c *PathIndex) Len() int {
	return c.lru.Len()
}
