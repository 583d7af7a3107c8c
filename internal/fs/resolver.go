package fs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"panfs/internal/common"
	"panfs/internal/node"
	"panfs/internal/remote"
)

// Resolve turns an id-or-path target into a validated node record.
// Fails with ErrNotFound when any path segment is absent, and with
// ErrNotDir when a non-terminal segment resolves to a file.
func (p *PanFS) Resolve(ctx context.Context, t Target) (*node.Node, error) {
	if t.hasID {
		return p.getByID(ctx, t.id)
	}
	return p.resolvePath(ctx, t.path)
}

// ResolveDir resolves a target and asserts the result is a directory.
func (p *PanFS) ResolveDir(ctx context.Context, t Target) (*node.Node, error) {
	n, err := p.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	if !n.IsDir {
		return nil, wrapPath(common.ErrNotDir, n.Path())
	}
	return n, nil
}

// ResolveRel resolves a path expression relative to a base directory.
// Leading ".." segments climb the ancestor chain; an absolute expression
// ignores the base entirely.
func (p *PanFS) ResolveRel(ctx context.Context, base Target, rel string) (*node.Node, error) {
	up, parts, absolute := common.RelParts(rel)
	if absolute {
		return p.resolvePath(ctx, rel)
	}
	dir, err := p.ResolveDir(ctx, base)
	if err != nil {
		return nil, err
	}
	for ; up > 0 && dir.ID != remote.RootID; up-- {
		dir, err = p.getByID(ctx, dir.ParentID())
		if err != nil {
			return nil, err
		}
	}
	if len(parts) == 0 {
		return dir, nil
	}
	frags := make([]string, 0, len(parts)+1)
	frags = append(frags, dir.Path())
	for _, name := range parts {
		frags = append(frags, common.EscapeName(name))
	}
	return p.resolvePath(ctx, common.JoinPath(frags...))
}

// getByID fetches-or-caches the record for an id and guarantees its
// ancestor chain is materialized so the full path can be computed.
func (p *PanFS) getByID(ctx context.Context, id uint64) (*node.Node, error) {
	if id == remote.RootID {
		return p.root, nil
	}
	if n := p.attrs.Get(id); n != nil && n.Parent() != nil {
		return n, nil
	}
	it, err := p.client.FetchAttributes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch attributes of %d: %w", id, err)
	}
	if err := p.ensureAncestry(ctx, it.ParentID); err != nil {
		return nil, err
	}
	return p.adopt(*it), nil
}

// ensureAncestry materializes the ancestor chain for a directory id by
// walking up through attribute fetches until a known entry (or the root)
// is reached, then binding the collected hops top-down.
func (p *PanFS) ensureAncestry(ctx context.Context, dirID uint64) error {
	var pending []remote.Item
	cur := dirID
	for cur != remote.RootID && p.chain.Get(cur) == nil {
		it, err := p.client.FetchAttributes(ctx, cur)
		if err != nil {
			return fmt.Errorf("fetch ancestor %d: %w", cur, err)
		}
		pending = append(pending, *it)
		cur = it.ParentID
	}
	for i := len(pending) - 1; i >= 0; i-- {
		it := pending[i]
		p.chain.Bind(it.ID, it.ParentID, it.Name)
		p.adopt(it)
	}
	return nil
}

// resolvePath walks a normalized absolute path to its record, preferring
// cache layers and falling back to remote lookups only for uncached
// suffixes.
func (p *PanFS) resolvePath(ctx context.Context, path string) (*node.Node, error) {
	path = common.NormalizePath(path)
	if path == "/" {
		return p.root, nil
	}

	// Fully cached exact match short-circuits entirely. A cached id whose
	// re-fetched path no longer matches is purged and treated as a miss.
	if p.paths != nil {
		if id, _, ok := p.paths.Get(path); ok {
			n, err := p.getByID(ctx, id)
			if err == nil && n.Path() == path {
				return n, nil
			}
			p.paths.Remove(path)
			if log.IsLevelEnabled(log.DebugLevel) {
				log.Debugf("[Resolver] stale path index entry %q (id=%d), purged", path, id)
			}
		}
	}

	names := common.SplitPath(path)
	start := p.root
	rest := names

	// Longest cached directory prefix.
	if p.paths != nil {
		raw := rawSegments(path) // escaped segments, aligned with names
		for i := len(names) - 1; i >= 1; i-- {
			prefix := "/" + strings.Join(raw[:i], "/")
			id, ok := p.paths.GetDir(prefix)
			if !ok {
				continue
			}
			n, err := p.getByID(ctx, id)
			if err == nil && n.IsDir && n.Path() == prefix {
				start = n
				rest = names[i:]
				break
			}
			p.paths.Remove(prefix)
		}
	}

	// Remote literal lookup for the deepest uncached directory prefix.
	// Only valid when no remaining ancestor name contains a separator.
	if len(rest) > 1 && !common.ContainsSeparator(rest[:len(rest)-1]) {
		parentLiteral := common.ParentPath(path)
		if id, err := p.client.ResolvePath(ctx, parentLiteral); err == nil {
			if dir, err2 := p.getByID(ctx, id); err2 == nil && dir.IsDir && dir.Path() == parentLiteral {
				start = dir
				rest = rest[len(rest)-1:]
			}
		} else if log.IsLevelEnabled(log.DebugLevel) {
			log.Debugf("[Resolver] literal lookup %q failed (%v), walking segments", parentLiteral, err)
		}
	}

	// Segment-by-segment walk through (coalesced) listings.
	n := start
	for _, name := range rest {
		if !n.IsDir {
			return nil, wrapPath(common.ErrNotDir, n.Path())
		}
		children, err := p.loadDir(ctx, n.ID, false)
		if err != nil {
			return nil, err
		}
		var next *node.Node
		for _, c := range children {
			if c.Name() == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil, wrapPath(common.ErrNotFound, path)
		}
		n = next
	}
	return n, nil
}

// rawSegments returns the escaped segment strings of a normalized path,
// aligned with the unescaped names from SplitPath.
func rawSegments(path string) []string {
	var segs []string
	var b strings.Builder
	escaped := false
	for i := 1; i < len(path); i++ {
		c := path[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			b.WriteByte(c)
			escaped = true
		case c == '/':
			segs = append(segs, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	segs = append(segs, b.String())
	return segs
}

// Stat resolves a target and returns its reference and record snapshot.
func (p *PanFS) Stat(ctx context.Context, t Target) (Ref, remote.Item, error) {
	n, err := p.Resolve(ctx, t)
	if err != nil {
		return Ref{}, remote.Item{}, err
	}
	return RefOf(n), n.Item(), nil
}

// Exists reports whether a target resolves.
func (p *PanFS) Exists(ctx context.Context, t Target) (bool, error) {
	_, err := p.Resolve(ctx, t)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	return false, err
}
