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

// Package fs emulates a hierarchical, path-addressable filesystem on top of
// the id-addressed remote drive. It bridges (id | path) references to
// validated node records, keeps a consistent cached view of the remote tree
// under partial information, and implements move/copy/rename/mkdir/remove as
// sequences of remote primitives with rollback on partial failure.
package fs

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"panfs/internal/cache"
	"panfs/internal/common"
	"panfs/internal/node"
	"panfs/internal/remote"
)

// defaultAttrTTL keeps attribute reads fresh enough that external changes
// surface quickly while absorbing bursts of repeated stats.
const defaultAttrTTL = 2 * time.Second

// defaultAttrCacheSize caps memory usage. Typical working sets stay well
// under this many distinct ids.
const defaultAttrCacheSize = 65536

const (
	defaultDirCacheSize  = 1024
	defaultPathIndexSize = 16384
	defaultPageSize      = 1000
)

// Options configures a PanFS handle.
type Options struct {
	// AttrTTL is the freshness window of cached attributes. 0 uses the
	// default; negative disables expiry.
	AttrTTL time.Duration
	// AttrCacheSize bounds the attribute cache entry count. 0 uses the default.
	AttrCacheSize int
	// DirCacheSize bounds how many directory listings are kept. 0 uses the
	// default; negative disables listing caching entirely (every listing is
	// a full re-fetch).
	DirCacheSize int
	// PathIndexSize bounds the path->id index. 0 uses the default; negative
	// disables the index.
	PathIndexSize int
	// PageSize is the remote pagination window. 0 uses the default.
	PageSize int
}

// PanFS is a filesystem handle over one remote drive. All caches are scoped
// to the handle; dropping the handle releases them.
type PanFS struct {
	client remote.Client

	chain *node.Chain
	attrs *cache.AttrCache
	dirs  *cache.DirCache  // nil when listing caching is disabled
	paths *cache.PathIndex // nil when the path index is disabled

	// flight serializes refreshes per directory id: concurrent callers of
	// the same cold directory share one remote fetch sequence, while
	// different directories proceed in parallel.
	flight singleflight.Group

	// mutateMu serializes multi-call mutations (rename shapes, temp-dir
	// copies) against each other. Reads and listings never take it.
	mutateMu sync.Mutex

	pageSize int
	root     *node.Node
}

// New creates a filesystem handle over the given remote client.
func New(client remote.Client, opts Options) (*PanFS, error) {
	if opts.AttrTTL == 0 {
		opts.AttrTTL = defaultAttrTTL
	} else if opts.AttrTTL < 0 {
		opts.AttrTTL = 0
	}
	if opts.AttrCacheSize == 0 {
		opts.AttrCacheSize = defaultAttrCacheSize
	}
	if opts.DirCacheSize == 0 {
		opts.DirCacheSize = defaultDirCacheSize
	}
	if opts.PathIndexSize == 0 {
		opts.PathIndexSize = defaultPathIndexSize
	}
	if opts.PageSize == 0 {
		opts.PageSize = defaultPageSize
	}

	p := &PanFS{
		client:   client,
		chain:    node.NewChain(),
		attrs:    cache.NewAttrCache(opts.AttrTTL, opts.AttrCacheSize),
		pageSize: opts.PageSize,
	}
	if opts.DirCacheSize > 0 {
		dirs, err := cache.NewDirCache(opts.DirCacheSize)
		if err != nil {
			return nil, err
		}
		p.dirs = dirs
	}
	if opts.PathIndexSize > 0 {
		paths, err := cache.NewPathIndex(opts.PathIndexSize)
		if err != nil {
			return nil, err
		}
		p.paths = paths
	}

	p.root = node.New(remote.Item{ID: remote.RootID, IsDir: true, Name: ""}, nil)
	p.attrs.Set(p.root)
	return p, nil
}

// Root returns the root directory record.
func (p *PanFS) Root() *node.Node { return p.root }

// Client exposes the underlying remote client (used by the serve layer for
// content streams).
func (p *PanFS) Client() remote.Client { return p.client }

// Ref is a comparable node reference, usable as a map key and as a
// path-like value.
type Ref struct {
	ID   uint64
	Path string
}

func (r Ref) String() string { return r.Path }

// RefOf snapshots a record into a Ref.
func RefOf(n *node.Node) Ref {
	return Ref{ID: n.ID, Path: n.Path()}
}

// Target is the id-or-path argument shape every operation accepts.
type Target struct {
	id    uint64
	hasID bool
	path  string
}

// ByID targets a node by remote id.
func ByID(id uint64) Target { return Target{id: id, hasID: true} }

// ByPath targets a node by absolute path.
func ByPath(p string) Target { return Target{path: common.NormalizePath(p)} }

// Target converts a Ref back into an id-addressed target.
func (r Ref) Target() Target { return ByID(r.ID) }

func (t Target) String() string {
	if t.hasID {
		return "#" + strconv.FormatUint(t.id, 10)
	}
	return t.path
}

// Open returns the content stream of a file.
func (p *PanFS) Open(ctx context.Context, t Target) (io.ReadCloser, error) {
	n, err := p.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	if n.IsDir {
		return nil, wrapPath(common.ErrIsDir, n.Path())
	}
	return p.client.Download(ctx, n.PickCode())
}

// Upload creates a file under dir, deduplicating by content hash when the
// remote can. src is only consumed when the hash check misses.
func (p *PanFS) Upload(ctx context.Context, dir Target, name string, size int64, sha1 string, src remote.ByteSource) (*node.Node, error) {
	if name == "" || name == "." || name == ".." {
		return nil, wrapPath(common.ErrInvalidPath, name)
	}
	d, err := p.ResolveDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	status, err := p.client.BeginUpload(ctx, name, size, sha1, d.ID, src)
	if err != nil {
		return nil, err
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("[PanFS] Upload %q under %q: status=%v", name, d.Path(), status)
	}
	p.invalidateListing(d.ID)
	return p.Resolve(ctx, ByPath(common.JoinPath(d.Path(), common.EscapeName(name))))
}

// --- cache bookkeeping ---

// adopt folds one fetched wire item into every cache layer and returns its
// record. An existing record is refreshed in place; a record that moved
// evicts its stale parent association first.
func (p *PanFS) adopt(it remote.Item) *node.Node {
	parent := p.chain.Get(it.ParentID)
	n := p.attrs.Get(it.ID)
	if n != nil {
		oldParent := n.ParentID()
		oldPath := n.Path()
		if oldParent != it.ParentID || n.Name() != it.Name {
			if p.dirs != nil && oldParent != it.ParentID {
				p.dirs.RemoveChild(oldParent, it.ID)
			}
			if p.paths != nil {
				p.paths.Remove(oldPath)
			}
		}
		n.Update(it, parent)
	} else {
		n = node.New(it, parent)
	}
	if n.IsDir {
		p.chain.Bind(it.ID, it.ParentID, it.Name)
	}
	p.attrs.Set(n)
	if p.paths != nil && parent != nil {
		p.paths.Put(n.Path(), n.ID, n.IsDir)
	}
	return n
}

// invalidateListing drops a directory's cached listing so the next read
// refreshes it.
func (p *PanFS) invalidateListing(dirID uint64) {
	if p.dirs != nil {
		p.dirs.Remove(dirID)
	}
}

// forgetNode purges one record from every cache layer.
func (p *PanFS) forgetNode(n *node.Node) {
	path := n.Path()
	p.attrs.InvalidateID(n.ID)
	if p.paths != nil {
		p.paths.Remove(path)
		if n.IsDir {
			p.paths.InvalidatePrefix(path)
		}
	}
	if p.dirs != nil {
		p.dirs.RemoveChild(n.ParentID(), n.ID)
		if n.IsDir {
			p.dirs.Remove(n.ID)
		}
	}
	if n.IsDir {
		p.chain.Forget(n.ID)
	}
}

// forgetSubtree purges a directory and every cached descendant from all
// cache layers. Only cached knowledge is walked; the remote is not consulted.
func (p *PanFS) forgetSubtree(n *node.Node) {
	if !n.IsDir {
		p.forgetNode(n)
		return
	}
	if p.dirs != nil {
		if children, ok := p.dirs.Get(n.ID); ok {
			for _, c := range children {
				p.forgetSubtree(c)
			}
		}
	}
	p.forgetNode(n)
}

// wrapPath annotates a taxonomy error with the path it concerns.
func wrapPath(err error, path string) error {
	return &PathError{Path: path, Err: err}
}

// PathError carries the path an operation failed on.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *PathError) Unwrap() error { return e.Err }
