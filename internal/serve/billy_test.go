package serve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nfsfile "github.com/willscott/go-nfs/file"

	"panfs/internal/common"
	"panfs/internal/fs"
	"panfs/internal/remote"
)

// memDrive is a minimal in-memory drive for adapter tests.
type memDrive struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]*remote.Item
	blobs  map[string][]byte
}

func newMemDrive() *memDrive {
	return &memDrive{nextID: 100, items: map[uint64]*remote.Item{}, blobs: map[string][]byte{}}
}

func (m *memDrive) addDir(parentID uint64, name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.items[m.nextID] = &remote.Item{ID: m.nextID, ParentID: parentID, Name: name, IsDir: true, MTime: time.Now()}
	return m.nextID
}

func (m *memDrive) addFile(parentID uint64, name, content string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sha := "sha-" + content
	m.blobs[sha] = []byte(content)
	m.items[m.nextID] = &remote.Item{
		ID: m.nextID, ParentID: parentID, Name: name,
		Size: int64(len(content)), SHA1: sha,
		PickCode: fmt.Sprintf("pick-%d", m.nextID), MTime: time.Now(),
	}
	return m.nextID
}

func (m *memDrive) children(dirID uint64) []remote.Item {
	var out []remote.Item
	for _, it := range m.items {
		if it.ParentID == dirID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memDrive) FetchChildren(ctx context.Context, dirID uint64, q remote.ListQuery) (*remote.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dirID != remote.RootID {
		if it, ok := m.items[dirID]; !ok || !it.IsDir {
			return nil, common.ErrNotFound
		}
	}
	all := m.children(dirID)
	var ancestors []remote.PathEntry
	for id := dirID; id != remote.RootID; {
		it := m.items[id]
		ancestors = append(ancestors, remote.PathEntry{ID: it.ID, ParentID: it.ParentID, Name: it.Name})
		id = it.ParentID
	}
	return &remote.Page{Items: all, Total: len(all), Ancestors: ancestors}, nil
}

func (m *memDrive) FetchAttributes(ctx context.Context, id uint64) (*remote.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memDrive) ResolvePath(ctx context.Context, literalPath string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := remote.RootID
	for _, seg := range strings.Split(strings.Trim(literalPath, "/"), "/") {
		if seg == "" {
			continue
		}
		found := false
		for _, it := range m.items {
			if it.ParentID == cur && it.Name == seg && it.IsDir {
				cur, found = it.ID, true
				break
			}
		}
		if !found {
			return 0, common.ErrNotFound
		}
	}
	return cur, nil
}

func (m *memDrive) CreateDirectory(ctx context.Context, name string, parentID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ParentID == parentID && it.Name == name {
			return 0, common.ErrExists
		}
	}
	m.nextID++
	m.items[m.nextID] = &remote.Item{ID: m.nextID, ParentID: parentID, Name: name, IsDir: true, MTime: time.Now()}
	return m.nextID, nil
}

func (m *memDrive) Delete(ctx context.Context, ids []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var drop func(id uint64)
	drop = func(id uint64) {
		for _, it := range m.children(id) {
			drop(it.ID)
		}
		delete(m.items, id)
	}
	for _, id := range ids {
		drop(id)
	}
	return nil
}

func (m *memDrive) Move(ctx context.Context, ids []uint64, newParentID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.items[id].ParentID = newParentID
	}
	return nil
}

func (m *memDrive) Rename(ctx context.Context, id uint64, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return common.ErrNotFound
	}
	it.Name = newName
	return nil
}

func (m *memDrive) RenameBatch(ctx context.Context, pairs []remote.RenamePair) error {
	for _, p := range pairs {
		if err := m.Rename(ctx, p.ID, p.NewName); err != nil {
			return err
		}
	}
	return nil
}

func (m *memDrive) Copy(ctx context.Context, ids []uint64, newParentID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		src := m.items[id]
		m.nextID++
		cp := *src
		cp.ID = m.nextID
		cp.ParentID = newParentID
		m.items[cp.ID] = &cp
	}
	return nil
}

func (m *memDrive) BeginUpload(ctx context.Context, name string, size int64, sha1 string, parentID uint64, src remote.ByteSource) (remote.UploadStatus, error) {
	m.mu.Lock()
	_, dedup := m.blobs[sha1]
	m.mu.Unlock()
	status := remote.UploadDeduplicated
	if !dedup {
		rc, err := src(ctx)
		if err != nil {
			return 0, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return 0, err
		}
		m.mu.Lock()
		m.blobs[sha1] = data
		m.mu.Unlock()
		status = remote.UploadStreamed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.items[m.nextID] = &remote.Item{
		ID: m.nextID, ParentID: parentID, Name: name,
		Size: size, SHA1: sha1,
		PickCode: fmt.Sprintf("pick-%d", m.nextID), MTime: time.Now(),
	}
	return status, nil
}

func (m *memDrive) Download(ctx context.Context, pickCode string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if !it.IsDir && it.PickCode == pickCode {
			return io.NopCloser(bytes.NewReader(m.blobs[it.SHA1])), nil
		}
	}
	return nil, common.ErrNotFound
}

var _ remote.Client = (*memDrive)(nil)

func newAdapter(t *testing.T, m *memDrive) *BillyAdapter {
	t.Helper()
	pan, err := fs.New(m, fs.Options{})
	require.NoError(t, err)
	return NewBillyAdapter(context.Background(), pan)
}

func TestBillyAdapter(t *testing.T) {
	t.Parallel()

	t.Run("read dir and stat", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		docs := m.addDir(remote.RootID, "docs")
		m.addFile(docs, "a.txt", "hello")
		b := newAdapter(t, m)

		infos, err := b.ReadDir("/docs")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "a.txt", infos[0].Name())
		assert.Equal(t, int64(5), infos[0].Size())
		assert.False(t, infos[0].IsDir())

		fi, err := b.Stat("/docs")
		require.NoError(t, err)
		assert.True(t, fi.IsDir())

		_, err = b.Stat("/missing")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("open and read", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		docs := m.addDir(remote.RootID, "docs")
		m.addFile(docs, "a.txt", "hello world")
		b := newAdapter(t, m)

		f, err := b.Open("/docs/a.txt")
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		// Random access after sequential read.
		buf := make([]byte, 5)
		_, err = f.ReadAt(buf, 6)
		require.NoError(t, err)
		assert.Equal(t, "world", string(buf))
	})

	t.Run("create writes through on close", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		m.addDir(remote.RootID, "docs")
		b := newAdapter(t, m)

		f, err := b.Create("/docs/new.txt")
		require.NoError(t, err)
		_, err = f.Write([]byte("fresh content"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		g, err := b.Open("/docs/new.txt")
		require.NoError(t, err)
		defer g.Close()
		data, err := io.ReadAll(g)
		require.NoError(t, err)
		assert.Equal(t, "fresh content", string(data))
	})

	t.Run("overwrite replaces content", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		docs := m.addDir(remote.RootID, "docs")
		m.addFile(docs, "a.txt", "old")
		b := newAdapter(t, m)

		f, err := b.OpenFile("/docs/a.txt", os.O_WRONLY|os.O_TRUNC, 0644)
		require.NoError(t, err)
		_, err = f.Write([]byte("new content"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		g, err := b.Open("/docs/a.txt")
		require.NoError(t, err)
		defer g.Close()
		data, err := io.ReadAll(g)
		require.NoError(t, err)
		assert.Equal(t, "new content", string(data))
	})

	t.Run("rename and remove", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		docs := m.addDir(remote.RootID, "docs")
		m.addFile(docs, "a.txt", "x")
		b := newAdapter(t, m)

		require.NoError(t, b.Rename("/docs/a.txt", "/docs/b.txt"))
		_, err := b.Stat("/docs/b.txt")
		require.NoError(t, err)
		_, err = b.Stat("/docs/a.txt")
		assert.ErrorIs(t, err, os.ErrNotExist)

		require.NoError(t, b.Remove("/docs/b.txt"))
		require.NoError(t, b.Remove("/docs"))
		_, err = b.Stat("/docs")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("mkdir all", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		b := newAdapter(t, m)
		require.NoError(t, b.MkdirAll("/a/b/c", 0755))
		fi, err := b.Stat("/a/b/c")
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	})

	t.Run("stable file ids for nfs handles", func(t *testing.T) {
		t.Parallel()
		m := newMemDrive()
		docs := m.addDir(remote.RootID, "docs")
		id := m.addFile(docs, "a.txt", "x")
		b := newAdapter(t, m)

		fi, err := b.Stat("/docs/a.txt")
		require.NoError(t, err)
		sys, ok := fi.Sys().(*nfsfile.FileInfo)
		require.True(t, ok, "Sys() must return the go-nfs file info type")
		assert.Equal(t, id, sys.Fileid)

		infos, err := b.ReadDir("/docs")
		require.NoError(t, err)
		dirSys := infos[0].Sys().(*nfsfile.FileInfo)
		assert.Equal(t, sys.Fileid, dirSys.Fileid,
			"stat and readdir must agree on the file id")
	})
}
