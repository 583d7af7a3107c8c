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
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"panfs/internal/common"
	"panfs/internal/node"
	"panfs/internal/remote"
)

// MkdirOptions shapes Mkdir.
type MkdirOptions struct {
	// Parents creates missing ancestors, like mkdir -p.
	Parents bool
	// ExistOK makes an already-existing directory a success instead of
	// ErrExists.
	ExistOK bool
}

// Mkdir creates the directory at path.
func (p *PanFS) Mkdir(ctx context.Context, path string, opts MkdirOptions) (*node.Node, error) {
	path = common.NormalizePath(path)
	if path == "/" {
		if opts.ExistOK {
			return p.root, nil
		}
		return nil, wrapPath(common.ErrExists, path)
	}

	if n, err := p.resolvePath(ctx, path); err == nil {
		if n.IsDir && opts.ExistOK {
			return n, nil
		}
		return nil, wrapPath(common.ErrExists, path)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	parentPath := common.ParentPath(path)
	parent, err := p.ResolveDir(ctx, ByPath(parentPath))
	if errors.Is(err, common.ErrNotFound) && opts.Parents {
		parent, err = p.Mkdir(ctx, parentPath, MkdirOptions{Parents: true, ExistOK: true})
	}
	if err != nil {
		return nil, err
	}

	name := common.BaseName(path)
	id, err := p.client.CreateDirectory(ctx, name, parent.ID)
	if err != nil {
		if errors.Is(err, common.ErrExists) && opts.ExistOK {
			p.invalidateListing(parent.ID)
			return p.ResolveDir(ctx, ByPath(path))
		}
		return nil, fmt.Errorf("mkdir %q: %w", path, err)
	}

	now := time.Now()
	n := p.adopt(remote.Item{
		ID: id, ParentID: parent.ID, Name: name, IsDir: true,
		MTime: now, CTime: now, ATime: now,
	})
	if p.dirs != nil {
		p.dirs.AddChild(parent.ID, n)
	}
	return n, nil
}

// Remove deletes a single file. Directories fail with ErrIsDir.
func (p *PanFS) Remove(ctx context.Context, t Target) error {
	n, err := p.Resolve(ctx, t)
	if err != nil {
		return err
	}
	if n.IsDir {
		return wrapPath(common.ErrIsDir, n.Path())
	}
	if err := p.client.Delete(ctx, []uint64{n.ID}); err != nil {
		return fmt.Errorf("remove %q: %w", n.Path(), err)
	}
	p.forgetNode(n)
	return nil
}

// RemoveDir deletes an empty directory. Emptiness is checked against a
// fresh listing, not a possibly stale cached one.
func (p *PanFS) RemoveDir(ctx context.Context, t Target) error {
	n, err := p.ResolveDir(ctx, t)
	if err != nil {
		return err
	}
	if n.ID == remote.RootID {
		return wrapPath(common.ErrPermission, "/")
	}
	children, err := p.loadDir(ctx, n.ID, true)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return wrapPath(common.ErrNotEmpty, n.Path())
	}
	if err := p.client.Delete(ctx, []uint64{n.ID}); err != nil {
		return fmt.Errorf("rmdir %q: %w", n.Path(), err)
	}
	p.forgetNode(n)
	return nil
}

// RemoveAll deletes a file or a directory with everything below it.
func (p *PanFS) RemoveAll(ctx context.Context, t Target) error {
	n, err := p.Resolve(ctx, t)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	if n.ID == remote.RootID {
		return wrapPath(common.ErrPermission, "/")
	}
	if err := p.client.Delete(ctx, []uint64{n.ID}); err != nil {
		return fmt.Errorf("remove %q: %w", n.Path(), err)
	}
	p.forgetSubtree(n)
	return nil
}

// RemoveDirs deletes an empty directory and then sweeps upward, removing
// each newly empty ancestor until one still has entries, like rmdir -p.
func (p *PanFS) RemoveDirs(ctx context.Context, t Target) error {
	dir, err := p.ResolveDir(ctx, t)
	if err != nil {
		return err
	}
	parentID := dir.ParentID()
	if err := p.RemoveDir(ctx, ByID(dir.ID)); err != nil {
		return err
	}
	for parentID != remote.RootID {
		parent, err := p.getByID(ctx, parentID)
		if err != nil {
			return err
		}
		parentID = parent.ParentID()
		if err := p.RemoveDir(ctx, ByID(parent.ID)); err != nil {
			if errors.Is(err, common.ErrNotEmpty) {
				return nil
			}
			return err
		}
	}
	return nil
}

// RenameOptions shapes Rename.
type RenameOptions struct {
	// Replace deletes an existing destination file instead of failing with
	// ErrExists. Existing destination directories are never replaced.
	Replace bool
}

// Rename moves and/or renames src to the absolute path dst. The provider
// has no single rename-and-move call, and rejects renames that change a
// file's extension, so the operation decomposes into one of four shapes:
//
//  1. same parent, same extension: one remote rename
//  2. same name, different parent: one remote move
//  3. extension change: hash-based transfer to the destination, then
//     deletion of the original (no content bytes move when the remote
//     already holds the hash)
//  4. different parent and name: rename to a unique temporary name, move,
//     rename to the final name
//
// Multi-step shapes roll back already-applied steps on failure; a rollback
// failure is joined onto the original error.
func (p *PanFS) Rename(ctx context.Context, src Target, dst string, opts RenameOptions) (*node.Node, error) {
	n, err := p.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	if n.ID == remote.RootID {
		return nil, wrapPath(common.ErrPermission, "/")
	}
	dst = common.NormalizePath(dst)
	if dst == "/" {
		return nil, wrapPath(common.ErrPermission, dst)
	}
	if n.Path() == dst {
		return n, nil
	}

	dstParent, err := p.ResolveDir(ctx, ByPath(common.ParentPath(dst)))
	if err != nil {
		return nil, err
	}
	dstName := common.BaseName(dst)

	// A directory must not be placed inside itself or its own subtree.
	if n.IsDir {
		self := p.chain.Get(n.ID)
		if dstParent.ID == n.ID || (self != nil && self.IsAncestorOf(p.chain.Get(dstParent.ID))) {
			return nil, wrapPath(common.ErrPermission, dst)
		}
	}

	if existing, err := p.resolvePath(ctx, dst); err == nil {
		if existing.ID == n.ID {
			return n, nil
		}
		// A destination lying on the source's own ancestor path is the
		// other direction of the same cycle.
		if e := p.chain.Get(existing.ID); e != nil &&
			(existing.ID == n.ParentID() || e.IsAncestorOf(n.Parent())) {
			return nil, wrapPath(common.ErrPermission, dst)
		}
		if !opts.Replace {
			return nil, wrapPath(common.ErrExists, dst)
		}
		// Only a destination of the same kind is replaceable, and a
		// directory only when empty.
		if existing.IsDir != n.IsDir {
			if existing.IsDir {
				return nil, wrapPath(common.ErrIsDir, dst)
			}
			return nil, wrapPath(common.ErrNotDir, dst)
		}
		if existing.IsDir {
			children, err := p.loadDir(ctx, existing.ID, true)
			if err != nil {
				return nil, err
			}
			if len(children) > 0 {
				return nil, wrapPath(common.ErrNotEmpty, dst)
			}
		}
		if err := p.client.Delete(ctx, []uint64{existing.ID}); err != nil {
			return nil, fmt.Errorf("replace %q: %w", dst, err)
		}
		p.forgetNode(existing)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	srcParentID := n.ParentID()
	srcName := n.Name()
	_, srcExt := common.SplitExt(srcName)
	_, dstExt := common.SplitExt(dstName)

	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	switch {
	case !n.IsDir && srcExt != dstExt:
		return p.transferAndDelete(ctx, n, dstParent, dstName)

	case dstParent.ID == srcParentID:
		if err := p.client.Rename(ctx, n.ID, dstName); err != nil {
			return nil, fmt.Errorf("rename %q to %q: %w", n.Path(), dstName, err)
		}
		p.relocate(n, dstName, dstParent)
		return n, nil

	case dstName == srcName:
		if err := p.client.Move(ctx, []uint64{n.ID}, dstParent.ID); err != nil {
			return nil, fmt.Errorf("move %q to %q: %w", n.Path(), dstParent.Path(), err)
		}
		p.relocate(n, "", dstParent)
		return n, nil

	default:
		return p.renameMoveRename(ctx, n, dstParent, dstName, srcParentID, srcName)
	}
}

// Move relocates src under dstDir, keeping its name.
func (p *PanFS) Move(ctx context.Context, src Target, dstDir Target) (*node.Node, error) {
	d, err := p.ResolveDir(ctx, dstDir)
	if err != nil {
		return nil, err
	}
	n, err := p.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	return p.Rename(ctx, ByID(n.ID), common.JoinPath(d.Path(), common.EscapeName(n.Name())), RenameOptions{})
}

// renameMoveRename is the three-step shape: temp rename in place, move,
// final rename. Failures undo the steps already taken.
func (p *PanFS) renameMoveRename(ctx context.Context, n *node.Node, dstParent *node.Node, dstName string, srcParentID uint64, srcName string) (*node.Node, error) {
	_, ext := common.SplitExt(srcName)
	if n.IsDir {
		ext = ""
	}
	temp := tempName(ext)

	if err := p.client.Rename(ctx, n.ID, temp); err != nil {
		return nil, fmt.Errorf("rename %q to staging name: %w", n.Path(), err)
	}
	if err := p.client.Move(ctx, []uint64{n.ID}, dstParent.ID); err != nil {
		err = fmt.Errorf("move %q to %q: %w", n.Path(), dstParent.Path(), err)
		if rb := p.client.Rename(ctx, n.ID, srcName); rb != nil {
			p.forgetNode(n)
			return nil, errors.Join(err, fmt.Errorf("rollback rename of %d: %w", n.ID, rb))
		}
		return nil, err
	}
	if err := p.client.Rename(ctx, n.ID, dstName); err != nil {
		err = fmt.Errorf("rename %q to %q: %w", temp, dstName, err)
		var rb error
		if mv := p.client.Move(ctx, []uint64{n.ID}, srcParentID); mv != nil {
			rb = fmt.Errorf("rollback move of %d: %w", n.ID, mv)
		} else if rn := p.client.Rename(ctx, n.ID, srcName); rn != nil {
			rb = fmt.Errorf("rollback rename of %d: %w", n.ID, rn)
		}
		if rb != nil {
			p.forgetSubtree(n)
			return nil, errors.Join(err, rb)
		}
		return nil, err
	}
	p.relocate(n, dstName, dstParent)
	return n, nil
}

// transferAndDelete re-homes a file by content hash: the remote completes
// the "upload" instantly from its existing copy, after which the original
// is deleted. Content bytes only move if the hash check misses.
func (p *PanFS) transferAndDelete(ctx context.Context, n *node.Node, dstParent *node.Node, dstName string) (*node.Node, error) {
	pick := n.PickCode()
	src := func(ctx context.Context) (io.ReadCloser, error) {
		return p.client.Download(ctx, pick)
	}
	status, err := p.client.BeginUpload(ctx, dstName, n.Size(), n.SHA1(), dstParent.ID, src)
	if err != nil {
		return nil, fmt.Errorf("transfer %q to %q: %w", n.Path(), dstName, err)
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("[Mutate] transferred %q as %q (status=%v)", n.Path(), dstName, status)
	}
	p.invalidateListing(dstParent.ID)

	created, err := p.resolvePath(ctx, common.JoinPath(dstParent.Path(), common.EscapeName(dstName)))
	if err != nil {
		return nil, fmt.Errorf("locate transferred %q: %w", dstName, err)
	}
	if err := p.client.Delete(ctx, []uint64{n.ID}); err != nil {
		err = fmt.Errorf("delete original %q: %w", n.Path(), err)
		if rb := p.client.Delete(ctx, []uint64{created.ID}); rb != nil {
			p.forgetNode(created)
			return nil, errors.Join(err, fmt.Errorf("rollback delete of %q: %w", created.Path(), rb))
		}
		p.forgetNode(created)
		return nil, err
	}
	p.forgetNode(n)
	return created, nil
}

// relocate folds a successful rename/move into every cache layer. An empty
// newName keeps the current name.
func (p *PanFS) relocate(n *node.Node, newName string, newParent *node.Node) {
	oldPath := n.Path()
	oldParentID := n.ParentID()

	name := newName
	if name == "" {
		name = n.Name()
	}
	n.Rebind(name, newParent.ID, p.chain.Get(newParent.ID))
	if n.IsDir {
		// Mutating the shared chain entry updates the paths of every cached
		// descendant at once.
		p.chain.Bind(n.ID, newParent.ID, name)
	}
	if p.dirs != nil && oldParentID != newParent.ID {
		p.dirs.RemoveChild(oldParentID, n.ID)
		p.dirs.AddChild(newParent.ID, n)
	}
	if p.paths != nil {
		p.paths.Remove(oldPath)
		if n.IsDir {
			p.paths.InvalidatePrefix(oldPath)
		}
		p.paths.Put(n.Path(), n.ID, n.IsDir)
	}
}

// tempName returns a collision-free staging name keeping the extension, so
// the final extension-preserving rename is accepted by the provider.
func tempName(ext string) string {
	return "pfs-" + uuid.NewString() + ext
}
