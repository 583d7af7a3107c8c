package node

import (
	"sync"

	"panfs/internal/common"
	"panfs/internal/remote"
)

// Ancestor is one entry of the shared ancestor chain: a directory's id,
// name and a link to its own parent entry. Entries are shared by every
// record below them, and mutated in place when the remote tree changes so
// all holders observe the new path without re-fetching.
type Ancestor struct {
	id uint64

	mu       sync.RWMutex
	parentID uint64
	name     string
	parent   *Ancestor
}

// ID returns the directory id of this entry.
func (a *Ancestor) ID() uint64 { return a.id }

// Name returns the current directory name.
func (a *Ancestor) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// ParentID returns the current parent directory id.
func (a *Ancestor) ParentID() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.parentID
}

// Parent returns the parent entry; nil only for the root.
func (a *Ancestor) Parent() *Ancestor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.parent
}

// Path walks up to the root and joins the escaped names. The root entry
// yields "/".
func (a *Ancestor) Path() string {
	if a.id == remote.RootID {
		return "/"
	}
	var segs []string
	for e := a; e != nil && e.id != remote.RootID; {
		e.mu.RLock()
		segs = append(segs, common.EscapeName(e.name))
		next := e.parent
		e.mu.RUnlock()
		e = next
	}
	// segs is leaf-first; reverse into a path.
	p := ""
	for i := len(segs) - 1; i >= 0; i-- {
		p += "/" + segs[i]
	}
	return p
}

// IsAncestorOf reports whether a lies strictly above other in the tree.
// Membership is checked by id along the chain, not by string prefixes,
// since names may contain separators.
func (a *Ancestor) IsAncestorOf(other *Ancestor) bool {
	if other == nil {
		return false
	}
	for e := other.Parent(); e != nil; e = e.Parent() {
		if e.id == a.id {
			return true
		}
	}
	// The root is an ancestor of everything but itself.
	return a.id == remote.RootID && other.id != remote.RootID
}

// Chain is the registry of ancestor entries, keyed by directory id. Entries
// are created lazily on first need and reclaimed only when a subtree is
// explicitly forgotten (the Go GC covers entries no cache references).
type Chain struct {
	mu      sync.Mutex
	entries map[uint64]*Ancestor
	root    *Ancestor
}

// NewChain creates a chain holding only the root entry.
func NewChain() *Chain {
	root := &Ancestor{id: remote.RootID}
	return &Chain{
		entries: map[uint64]*Ancestor{remote.RootID: root},
		root:    root,
	}
}

// Root returns the root entry (path "/").
func (c *Chain) Root() *Ancestor { return c.root }

// Get returns the entry for id, or nil if none has been bound yet.
func (c *Chain) Get(id uint64) *Ancestor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id]
}

// Bind creates or updates the entry for a directory. An existing entry is
// mutated in place so outstanding references see the change.
func (c *Chain) Bind(id, parentID uint64, name string) *Ancestor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindLocked(id, parentID, name)
}

func (c *Chain) bindLocked(id, parentID uint64, name string) *Ancestor {
	if id == remote.RootID {
		return c.root
	}
	parent := c.entries[parentID]
	e, ok := c.entries[id]
	if !ok {
		e = &Ancestor{id: id, parentID: parentID, name: name, parent: parent}
		c.entries[id] = e
		return e
	}
	e.mu.Lock()
	e.parentID = parentID
	e.name = name
	if parent != nil {
		e.parent = parent
	}
	e.mu.Unlock()
	return e
}

// BindPath installs a whole ancestor chain as reported by the remote
// alongside a directory listing. Entries arrive nearest-first; they are
// bound root-down so every parent exists before its child. Returns the
// entry of the listed directory itself.
func (c *Chain) BindPath(ancestors []remote.PathEntry) *Ancestor {
	if len(ancestors) == 0 {
		return c.root
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var leaf *Ancestor
	for i := len(ancestors) - 1; i >= 0; i-- {
		p := ancestors[i]
		leaf = c.bindLocked(p.ID, p.ParentID, p.Name)
	}
	return leaf
}

// Forget drops the entries for the given ids. Outstanding references keep
// their (now detached) entries alive until released.
func (c *Chain) Forget(ids ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if id != remote.RootID {
			delete(c.entries, id)
		}
	}
}

// Len returns the number of live entries, root included.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
