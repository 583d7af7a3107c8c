// Copyright 2025 PanFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package node holds the normalized in-memory view of remote objects: the
// Node record and the shared ancestor chain used to materialize full paths
// without re-fetching. Ancestor entries are deliberately mutated in place so
// that every record holding a reference observes renames and moves at once.
package node

import (
	"sync"
	"time"

	"panfs/internal/common"
	"panfs/internal/remote"
)

// Node is the normalized record of one remote file or directory.
// A Node is refreshed in place on re-fetch; holders of the pointer always
// see the latest attributes.
type Node struct {
	ID    uint64
	IsDir bool

	mu       sync.RWMutex
	parentID uint64
	name     string
	size     int64
	sha1     string
	pickCode string
	mtime    time.Time
	ctime    time.Time
	atime    time.Time
	parent   *Ancestor // chain entry of the containing directory
}

// New builds a Node from a wire item linked under the given parent entry.
func New(it remote.Item, parent *Ancestor) *Node {
	n := &Node{ID: it.ID, IsDir: it.IsDir}
	n.Update(it, parent)
	return n
}

// Update refreshes the record in place from a re-fetched wire item.
func (n *Node) Update(it remote.Item, parent *Ancestor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parentID = it.ParentID
	n.name = it.Name
	n.size = it.Size
	n.sha1 = it.SHA1
	n.pickCode = it.PickCode
	n.mtime = it.MTime
	n.ctime = it.CTime
	n.atime = it.ATime
	if parent != nil {
		n.parent = parent
	}
}

// Rebind updates only the identity fields after a rename or move.
func (n *Node) Rebind(name string, parentID uint64, parent *Ancestor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if name != "" {
		n.name = name
	}
	n.parentID = parentID
	if parent != nil {
		n.parent = parent
	}
}

func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) ParentID() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parentID
}

func (n *Node) Size() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.size
}

func (n *Node) SHA1() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sha1
}

func (n *Node) PickCode() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pickCode
}

func (n *Node) MTime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.mtime
}

func (n *Node) CTime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ctime
}

func (n *Node) ATime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.atime
}

// Parent returns the chain entry of the containing directory, or nil when
// the record was fetched without ancestor info.
func (n *Node) Parent() *Ancestor {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// Path materializes the full path by walking the ancestor chain. Names
// containing '/' are escaped so the result stays unambiguous.
func (n *Node) Path() string {
	n.mu.RLock()
	parent, name := n.parent, n.name
	n.mu.RUnlock()
	if n.ID == remote.RootID {
		return "/"
	}
	base := "/"
	if parent != nil {
		base = parent.Path()
	}
	if base == "/" {
		return "/" + common.EscapeName(name)
	}
	return base + "/" + common.EscapeName(name)
}

// Item snapshots the record back into wire form.
func (n *Node) Item() remote.Item {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return remote.Item{
		ID:       n.ID,
		ParentID: n.parentID,
		Name:     n.name,
		IsDir:    n.IsDir,
		Size:     n.size,
		SHA1:     n.sha1,
		PickCode: n.pickCode,
		MTime:    n.mtime,
		CTime:    n.ctime,
		ATime:    n.atime,
	}
}
