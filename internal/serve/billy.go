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

// Package serve exposes the emulated filesystem over NFS so it can be
// mounted by the OS.
package serve

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	nfsfile "github.com/willscott/go-nfs/file"

	"panfs/internal/common"
	"panfs/internal/fs"
	"panfs/internal/node"
	"panfs/internal/remote"
)

// BillyAdapter adapts PanFS to the Billy filesystem interface used by the
// NFS server. All operations run under the server context.
type BillyAdapter struct {
	ctx context.Context
	pan *fs.PanFS
	uid uint32 // cached os.Getuid() — avoids syscall per BillyFileInfo.Sys()
	gid uint32 // cached os.Getgid() — avoids syscall per BillyFileInfo.Sys()
}

// NewBillyAdapter creates a Billy adapter for PanFS.
func NewBillyAdapter(ctx context.Context, pan *fs.PanFS) *BillyAdapter {
	return &BillyAdapter{
		ctx: ctx,
		pan: pan,
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

// asOSErr maps the taxonomy errors onto the os sentinels the NFS layer
// inspects.
func asOSErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNotFound):
		return os.ErrNotExist
	case errors.Is(err, common.ErrExists):
		return os.ErrExist
	case errors.Is(err, common.ErrPermission), errors.Is(err, common.ErrNotEmpty):
		return os.ErrPermission
	default:
		return err
	}
}

func (b *BillyAdapter) Create(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
}

func (b *BillyAdapter) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *BillyAdapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	n, err := b.pan.Resolve(b.ctx, fs.ByPath(filename))
	switch {
	case err == nil:
		if n.IsDir {
			return nil, os.ErrInvalid
		}
	case errors.Is(err, common.ErrNotFound) && flag&os.O_CREATE != 0:
		n = nil
	default:
		return nil, asOSErr(err)
	}

	f := &BillyFile{
		adapter:  b,
		name:     filename,
		node:     n,
		writable: writable,
	}
	if writable && (n == nil || flag&os.O_TRUNC != 0) {
		// Fresh content; nothing to materialize.
		f.dirty = true
	}
	return f, nil
}

func (b *BillyAdapter) Stat(filename string) (os.FileInfo, error) {
	_, it, err := b.pan.Stat(b.ctx, fs.ByPath(filename))
	if err != nil {
		return nil, asOSErr(err)
	}
	return &BillyFileInfo{name: path.Base(filename), item: it, adapter: b}, nil
}

// Lstat and Stat are identical; the remote has no symlinks.
func (b *BillyAdapter) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

func (b *BillyAdapter) Rename(oldpath, newpath string) error {
	_, err := b.pan.Rename(b.ctx, fs.ByPath(oldpath), newpath, fs.RenameOptions{Replace: true})
	return asOSErr(err)
}

func (b *BillyAdapter) Remove(filename string) error {
	n, err := b.pan.Resolve(b.ctx, fs.ByPath(filename))
	if err != nil {
		return asOSErr(err)
	}
	if n.IsDir {
		return asOSErr(b.pan.RemoveDir(b.ctx, fs.ByID(n.ID)))
	}
	return asOSErr(b.pan.Remove(b.ctx, fs.ByID(n.ID)))
}

func (b *BillyAdapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *BillyAdapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	children, err := b.pan.ListChildren(b.ctx, fs.ByPath(dirname), fs.ListOptions{})
	if err != nil {
		return nil, asOSErr(err)
	}
	result := make([]os.FileInfo, 0, len(children))
	for _, c := range children {
		result = append(result, &BillyFileInfo{name: c.Name(), item: c.Item(), adapter: b})
	}
	return result, nil
}

func (b *BillyAdapter) MkdirAll(filename string, perm os.FileMode) error {
	_, err := b.pan.Mkdir(b.ctx, filename, fs.MkdirOptions{Parents: true, ExistOK: true})
	return asOSErr(err)
}

func (b *BillyAdapter) Symlink(target, link string) error {
	return os.ErrInvalid
}

func (b *BillyAdapter) Readlink(link string) (string, error) {
	return "", os.ErrInvalid
}

func (b *BillyAdapter) Chroot(path string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) Root() string {
	return "/"
}

// billy.Change interface. The remote has no unix modes or owners.
func (b *BillyAdapter) Chmod(name string, mode os.FileMode) error          { return nil }
func (b *BillyAdapter) Lchown(name string, uid, gid int) error             { return nil }
func (b *BillyAdapter) Chown(name string, uid, gid int) error              { return nil }
func (b *BillyAdapter) Chtimes(name string, atime, mtime time.Time) error  { return nil }

func (b *BillyAdapter) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

// BillyFile is an open file. Reads materialize the remote content into a
// spill file for random access; writes buffer locally and upload on Close,
// letting the remote's hash check skip the byte transfer when it can.
type BillyFile struct {
	adapter  *BillyAdapter
	name     string
	node     *node.Node // nil for a not-yet-uploaded new file
	writable bool
	dirty    bool

	spill  *os.File
	offset int64
}

func (f *BillyFile) Name() string {
	return f.name
}

// materialize makes a local spill file holding the current content.
func (f *BillyFile) materialize() error {
	if f.spill != nil {
		return nil
	}
	tmp, err := os.CreateTemp("", "panfs-spill-*")
	if err != nil {
		return err
	}
	os.Remove(tmp.Name())

	if f.node != nil && !f.dirty {
		rc, err := f.adapter.pan.Open(f.adapter.ctx, fs.ByID(f.node.ID))
		if err != nil {
			tmp.Close()
			return asOSErr(err)
		}
		_, err = io.Copy(tmp, rc)
		rc.Close()
		if err != nil {
			tmp.Close()
			return err
		}
	}
	f.spill = tmp
	return nil
}

func (f *BillyFile) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, os.ErrPermission
	}
	if err := f.materialize(); err != nil {
		return 0, err
	}
	f.dirty = true
	n, err := f.spill.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *BillyFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *BillyFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.materialize(); err != nil {
		return 0, err
	}
	return f.spill.ReadAt(p, off)
}

func (f *BillyFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		size, err := f.size()
		if err != nil {
			return 0, err
		}
		f.offset = size + offset
	}
	return f.offset, nil
}

func (f *BillyFile) size() (int64, error) {
	if f.spill != nil {
		st, err := f.spill.Stat()
		if err != nil {
			return 0, err
		}
		return st.Size(), nil
	}
	if f.node != nil {
		return f.node.Size(), nil
	}
	return 0, nil
}

func (f *BillyFile) Truncate(size int64) error {
	if !f.writable {
		return os.ErrPermission
	}
	if err := f.materialize(); err != nil {
		return err
	}
	f.dirty = true
	return f.spill.Truncate(size)
}

// Close uploads buffered writes, if any, and releases the spill file.
func (f *BillyFile) Close() error {
	defer func() {
		if f.spill != nil {
			f.spill.Close()
			f.spill = nil
		}
	}()
	if !f.dirty || !f.writable {
		return nil
	}
	if f.spill == nil {
		// Created and closed without a single write: upload empty content.
		if err := f.materialize(); err != nil {
			return err
		}
	}

	h := sha1.New()
	if _, err := f.spill.Seek(0, io.SeekStart); err != nil {
		return err
	}
	size, err := io.Copy(h, f.spill)
	if err != nil {
		return err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	spill := f.spill
	src := func(ctx context.Context) (io.ReadCloser, error) {
		if _, err := spill.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return io.NopCloser(spill), nil
	}

	dir := path.Dir(f.name)
	name := path.Base(f.name)
	if f.node != nil {
		// The provider has no in-place overwrite; replace the object.
		if err := f.adapter.pan.Remove(f.adapter.ctx, fs.ByID(f.node.ID)); err != nil {
			return asOSErr(err)
		}
	}
	if _, err := f.adapter.pan.Upload(f.adapter.ctx, fs.ByPath(dir), name, size, sum, src); err != nil {
		return asOSErr(err)
	}
	return nil
}

func (f *BillyFile) Lock() error   { return nil }
func (f *BillyFile) Unlock() error { return nil }

// BillyFileInfo reports one entry's attributes to the NFS layer.
type BillyFileInfo struct {
	name    string
	item    remote.Item
	adapter *BillyAdapter
}

func (fi *BillyFileInfo) Name() string { return fi.name }

func (fi *BillyFileInfo) Size() int64 { return fi.item.Size }

func (fi *BillyFileInfo) Mode() os.FileMode {
	if fi.item.IsDir {
		return os.ModeDir | 0755
	}
	return 0644
}

func (fi *BillyFileInfo) ModTime() time.Time {
	if fi.item.MTime.IsZero() {
		return time.Now()
	}
	return fi.item.MTime
}

func (fi *BillyFileInfo) IsDir() bool { return fi.item.IsDir }

func (fi *BillyFileInfo) Sys() interface{} {
	// go-nfs's GetInfo() only recognizes file.FileInfo or *file.FileInfo,
	// and the stable Fileid keeps NFS handles valid across lookups.
	uid, gid := fi.getUIDGID()
	fileid := fi.item.ID
	if fileid == remote.RootID {
		fileid = 1
	}
	return &nfsfile.FileInfo{
		Nlink:  1,
		UID:    uid,
		GID:    gid,
		Fileid: fileid,
	}
}

// getUIDGID returns cached uid/gid from the adapter if available, otherwise
// falls back to syscall.
func (fi *BillyFileInfo) getUIDGID() (uint32, uint32) {
	if fi.adapter != nil {
		return fi.adapter.uid, fi.adapter.gid
	}
	return uint32(os.Getuid()), uint32(os.Getgid())
}

var (
	_ billy.Filesystem = (*BillyAdapter)(nil)
	_ billy.Change     = (*BillyAdapter)(nil)
	_ billy.File       = (*BillyFile)(nil)
)
