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

package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"

	"panfs/internal/common"
	"panfs/internal/node"
	"panfs/internal/remote"
)

// CopyOptions shapes Copy.
type CopyOptions struct {
	// Replace deletes an existing destination file instead of failing.
	Replace bool
	// Filter decides per descendant whether it is copied. nil copies
	// everything. The top-level source is never filtered.
	Filter func(n *node.Node) bool
	// OnError is consulted for per-entry failures during a directory copy.
	// nil aborts on the first failure.
	OnError ErrorPolicy
}

// Copy duplicates src at the absolute path dst. Files copy without moving
// content bytes whenever the remote can complete the transfer by hash or by
// its native copy call; only a name change forces a staged copy through a
// temporary directory. Directories copy recursively, merging into an
// existing destination directory.
func (p *PanFS) Copy(ctx context.Context, src Target, dst string, opts CopyOptions) (*node.Node, error) {
	n, err := p.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	dst = common.NormalizePath(dst)
	if dst == "/" || n.Path() == dst {
		return nil, wrapPath(common.ErrExists, dst)
	}

	dstName := common.BaseName(dst)
	if existing, err := p.resolvePath(ctx, dst); err == nil {
		if existing.IsDir && n.IsDir {
			// Merging into the source itself or its own subtree would
			// keep copying freshly written output, forever.
			self := p.chain.Get(n.ID)
			if existing.ID == n.ID || (self != nil && self.IsAncestorOf(p.chain.Get(existing.ID))) {
				return nil, wrapPath(common.ErrPermission, dst)
			}
			return p.copyDir(ctx, n, existing, opts)
		}
		if existing.IsDir {
			return nil, wrapPath(common.ErrIsDir, dst)
		}
		if n.IsDir {
			return nil, wrapPath(common.ErrNotDir, dst)
		}
		if !opts.Replace {
			return nil, wrapPath(common.ErrExists, dst)
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	dstParent, err := p.ResolveDir(ctx, ByPath(common.ParentPath(dst)))
	if err != nil {
		return nil, err
	}

	if n.IsDir {
		self := p.chain.Get(n.ID)
		if dstParent.ID == n.ID || (self != nil && self.IsAncestorOf(p.chain.Get(dstParent.ID))) {
			return nil, wrapPath(common.ErrPermission, dst)
		}
		dir, err := p.Mkdir(ctx, dst, MkdirOptions{})
		if err != nil {
			return nil, err
		}
		return p.copyDir(ctx, n, dir, opts)
	}
	return p.copyFile(ctx, n, dstParent, dstName, opts.Replace)
}

// copyFile duplicates one file under dstParent as dstName, picking the
// cheapest shape the provider allows.
func (p *PanFS) copyFile(ctx context.Context, n *node.Node, dstParent *node.Node, dstName string, replace bool) (*node.Node, error) {
	dstPath := common.JoinPath(dstParent.Path(), common.EscapeName(dstName))
	if existing, err := p.resolvePath(ctx, dstPath); err == nil {
		if existing.IsDir {
			return nil, wrapPath(common.ErrIsDir, dstPath)
		}
		if !replace {
			return nil, wrapPath(common.ErrExists, dstPath)
		}
		if err := p.client.Delete(ctx, []uint64{existing.ID}); err != nil {
			return nil, fmt.Errorf("replace %q: %w", dstPath, err)
		}
		p.forgetNode(existing)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	_, srcExt := common.SplitExt(n.Name())
	_, dstExt := common.SplitExt(dstName)

	switch {
	case dstName == n.Name():
		if err := p.client.Copy(ctx, []uint64{n.ID}, dstParent.ID); err != nil {
			return nil, fmt.Errorf("copy %q to %q: %w", n.Path(), dstParent.Path(), err)
		}
		p.invalidateListing(dstParent.ID)
		return p.resolvePath(ctx, dstPath)

	case srcExt != dstExt:
		pick := n.PickCode()
		src := func(ctx context.Context) (io.ReadCloser, error) {
			return p.client.Download(ctx, pick)
		}
		status, err := p.client.BeginUpload(ctx, dstName, n.Size(), n.SHA1(), dstParent.ID, src)
		if err != nil {
			return nil, fmt.Errorf("transfer %q to %q: %w", n.Path(), dstName, err)
		}
		if log.IsLevelEnabled(log.DebugLevel) {
			log.Debugf("[Copy] transferred %q as %q (status=%v)", n.Path(), dstName, status)
		}
		p.invalidateListing(dstParent.ID)
		return p.resolvePath(ctx, dstPath)

	default:
		return p.copyViaStaging(ctx, n, dstParent, dstName)
	}
}

// copyViaStaging copies a file to a new name in the same extension: the
// provider copy keeps the original name, so the copy is made inside a
// temporary directory, renamed there, and moved out. The temporary
// directory is removed on every exit path, taking any half-finished copy
// with it.
func (p *PanFS) copyViaStaging(ctx context.Context, n *node.Node, dstParent *node.Node, dstName string) (*node.Node, error) {
	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	stagingID, err := p.client.CreateDirectory(ctx, tempName(""), dstParent.ID)
	if err != nil {
		return nil, fmt.Errorf("create staging dir under %q: %w", dstParent.Path(), err)
	}
	defer func() {
		if derr := p.client.Delete(ctx, []uint64{stagingID}); derr != nil {
			log.Warnf("[Copy] leaked staging dir %d under %q: %v", stagingID, dstParent.Path(), derr)
		}
		p.invalidateListing(dstParent.ID)
	}()

	if err := p.client.Copy(ctx, []uint64{n.ID}, stagingID); err != nil {
		return nil, fmt.Errorf("copy %q into staging: %w", n.Path(), err)
	}
	page, err := p.client.FetchChildren(ctx, stagingID, remote.ListQuery{Limit: p.pageSize})
	if err != nil {
		return nil, fmt.Errorf("list staging dir %d: %w", stagingID, err)
	}
	var copyID uint64
	for _, it := range page.Items {
		if it.Name == n.Name() {
			copyID = it.ID
			break
		}
	}
	if copyID == 0 {
		return nil, fmt.Errorf("staged copy of %q not found: %w", n.Path(), common.ErrIO)
	}
	if err := p.client.Rename(ctx, copyID, dstName); err != nil {
		return nil, fmt.Errorf("rename staged copy to %q: %w", dstName, err)
	}
	if err := p.client.Move(ctx, []uint64{copyID}, dstParent.ID); err != nil {
		return nil, fmt.Errorf("move staged copy to %q: %w", dstParent.Path(), err)
	}
	return p.resolvePath(ctx, common.JoinPath(dstParent.Path(), common.EscapeName(dstName)))
}

// copyDir recursively copies the children of src into the existing
// directory dst, honoring the filter and error policy.
func (p *PanFS) copyDir(ctx context.Context, src *node.Node, dst *node.Node, opts CopyOptions) (*node.Node, error) {
	children, err := p.loadDir(ctx, src.ID, true)
	if err != nil {
		return nil, err
	}
	ordered := make([]*node.Node, 0, len(children))
	for _, c := range children {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name() < ordered[j].Name() })

	for _, c := range ordered {
		if opts.Filter != nil && !opts.Filter(c) {
			continue
		}
		var cerr error
		if c.IsDir {
			var sub *node.Node
			sub, cerr = p.Mkdir(ctx, common.JoinPath(dst.Path(), common.EscapeName(c.Name())), MkdirOptions{ExistOK: true})
			if cerr == nil {
				_, cerr = p.copyDir(ctx, c, sub, opts)
			}
		} else {
			_, cerr = p.copyFile(ctx, c, dst, c.Name(), opts.Replace)
		}
		if cerr != nil {
			if opts.OnError != nil {
				if e := opts.OnError(c.Path(), cerr); e == nil {
					log.Warnf("[Copy] skipping %q: %v", c.Path(), cerr)
					continue
				}
			}
			return nil, cerr
		}
	}
	return dst, nil
}
