package fs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panfs/internal/common"
	"panfs/internal/node"
	"panfs/internal/remote"
)

func TestCopyFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("same name uses the native copy", func(t *testing.T) {
		t.Parallel()
		f := newFakeRemote()
		src := f.addDir(remote.RootID, "src")
		f.addDir(remote.RootID, "dst")
		id := f.addFile(src, "a.txt", "x", time.Now())
		p := newTestFS(t, f, Options{})

		copies := 0
		f.onCopy = func([]uint64, uint64) error { copies++; return nil }

		n, err := p.Copy(ctx, ByPath("/src/a.txt"), "/dst/a.txt", CopyOptions{})
		require.NoError(t, err)
		assert.Equal(t, "/dst/a.txt", n.Path())
		assert.NotEqual(t, id, n.ID)
		assert.Equal(t, 1, copies)
		assert.True(t, f.exists(id), "the source must survive a copy")
		assert.Zero(t, f.streamedBytes)
	})

	t.Run("extension change transfers by hash", func(t *testing.T) {
		t.Parallel()
		f := newFakeRemote()
		src := f.addDir(remote.RootID, "src")
		f.addFile(src, "notes.txt", "content", time.Now())
		p := newTestFS(t, f, Options{})

		copies := 0
		f.onCopy = func([]uint64, uint64) error { copies++; return nil }

		n, err := p.Copy(ctx, ByPath("/src/notes.txt"), "/src/notes.md", CopyOptions{})
		require.NoError(t, err)
		assert.Equal(t, "/src/notes.md", n.Path())
		assert.Zero(t, copies)
		assert.Zero(t, f.streamedBytes, "matching hash must not move content bytes")
	})

	t.Run("new name in the same extension stages through a temp dir", func(t *testing.T) {
		t.Parallel()
		f := newFakeRemote()
		src := f.addDir(remote.RootID, "src")
		dst := f.addDir(remote.RootID, "dst")
		f.addFile(src, "a.txt", "x", time.Now())
		p := newTestFS(t, f, Options{})

		n, err := p.Copy(ctx, ByPath("/src/a.txt"), "/dst/b.txt", CopyOptions{})
		require.NoError(t, err)
		assert.Equal(t, "/dst/b.txt", n.Path())
		assert.Equal(t, "b.txt", f.get(n.ID).Name)

		// Only the copied file remains; the staging directory is gone.
		kids := f.childrenOf(dst)
		require.Len(t, kids, 1)
		assert.Equal(t, "b.txt", kids[0].Name)
	})

	t.Run("staging failure leaves no debris", func(t *testing.T) {
		t.Parallel()
		f := newFakeRemote()
		src := f.addDir(remote.RootID, "src")
		dst := f.addDir(remote.RootID, "dst")
		f.addFile(src, "a.txt", "x", time.Now())
		p := newTestFS(t, f, Options{})

		boom := errors.New("copy rejected")
		f.onCopy = func([]uint64, uint64) error { return boom }

		_, err := p.Copy(ctx, ByPath("/src/a.txt"), "/dst/b.txt", CopyOptions{})
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.childrenOf(dst), "the staging directory must be cleaned up")
	})

	t.Run("occupied destination", func(t *testing.T) {
		t.Parallel()
		f := newFakeRemote()
		src := f.addDir(remote.RootID, "src")
		dst := f.addDir(remote.RootID, "dst")
		f.addFile(src, "a.txt", "new", time.Now())
		old := f.addFile(dst, "a.txt", "old", time.Now())
		p := newTestFS(t, f, Options{})

		_, err := p.Copy(ctx, ByPath("/src/a.txt"), "/dst/a.txt", CopyOptions{})
		assert.ErrorIs(t, err, common.ErrExists)

		n, err := p.Copy(ctx, ByPath("/src/a.txt"), "/dst/a.txt", CopyOptions{Replace: true})
		require.NoError(t, err)
		assert.False(t, f.exists(old))
		assert.Equal(t, "sha-new", f.get(n.ID).SHA1)
	})

	t.Run("copy onto itself", func(t *testing.T) {
		t.Parallel()
		f := newFakeRemote()
		src := f.addDir(remote.RootID, "src")
		f.addFile(src, "a.txt", "x", time.Now())
		p := newTestFS(t, f, Options{})
		_, err := p.Copy(ctx, ByPath("/src/a.txt"), "/src/a.txt", CopyOptions{})
		assert.ErrorIs(t, err, common.ErrExists)
	})
}

func TestCopyDir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	seed := func() (*fakeRemote, uint64) {
		f := newFakeRemote()
		proj := f.addDir(remote.RootID, "proj")
		f.addFile(proj, "readme.md", "r", time.Now())
		sub := f.addDir(proj, "sub")
		f.addFile(sub, "deep.txt", "d", time.Now())
		f.addFile(proj, "skip.log", "s", time.Now())
		return f, proj
	}

	t.Run("recursive", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		p := newTestFS(t, f, Options{})

		_, err := p.Copy(ctx, ByPath("/proj"), "/backup", CopyOptions{})
		require.NoError(t, err)

		for _, path := range []string{"/backup/readme.md", "/backup/sub/deep.txt", "/backup/skip.log"} {
			ok, err := p.Exists(ctx, ByPath(path))
			require.NoError(t, err)
			assert.True(t, ok, path)
		}
	})

	t.Run("filter prunes entries", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		p := newTestFS(t, f, Options{})

		_, err := p.Copy(ctx, ByPath("/proj"), "/backup", CopyOptions{
			Filter: func(n *node.Node) bool { return n.Name() != "skip.log" },
		})
		require.NoError(t, err)

		ok, err := p.Exists(ctx, ByPath("/backup/skip.log"))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = p.Exists(ctx, ByPath("/backup/sub/deep.txt"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("merge into an existing directory", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		backup := f.addDir(remote.RootID, "backup")
		f.addFile(backup, "existing.txt", "e", time.Now())
		p := newTestFS(t, f, Options{})

		_, err := p.Copy(ctx, ByPath("/proj"), "/backup", CopyOptions{})
		require.NoError(t, err)

		for _, path := range []string{"/backup/existing.txt", "/backup/readme.md"} {
			ok, err := p.Exists(ctx, ByPath(path))
			require.NoError(t, err)
			assert.True(t, ok, path)
		}
	})

	t.Run("error policy skips failing entries", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		p := newTestFS(t, f, Options{})

		boom := errors.New("copy rejected")
		f.onCopy = func(ids []uint64, _ uint64) error {
			for _, id := range ids {
				if f.get(id).Name == "readme.md" {
					return boom
				}
			}
			return nil
		}

		var skipped []string
		_, err := p.Copy(ctx, ByPath("/proj"), "/backup", CopyOptions{
			OnError: func(path string, err error) error {
				skipped = append(skipped, path)
				return nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"/proj/readme.md"}, skipped)

		ok, err := p.Exists(ctx, ByPath("/backup/skip.log"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("nil policy aborts", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		p := newTestFS(t, f, Options{})

		boom := errors.New("copy rejected")
		f.onCopy = func([]uint64, uint64) error { return boom }

		_, err := p.Copy(ctx, ByPath("/proj"), "/backup", CopyOptions{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("directory into its own subtree", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		p := newTestFS(t, f, Options{})
		_, err := p.Resolve(ctx, ByPath("/proj/sub"))
		require.NoError(t, err)
		_, err = p.Copy(ctx, ByPath("/proj"), "/proj/sub/proj", CopyOptions{})
		assert.ErrorIs(t, err, common.ErrPermission)
	})

	t.Run("merge into its own existing descendant", func(t *testing.T) {
		t.Parallel()
		f, _ := seed()
		p := newTestFS(t, f, Options{})
		_, err := p.Resolve(ctx, ByPath("/proj/sub"))
		require.NoError(t, err)

		before := len(f.items)
		_, err = p.Copy(ctx, ByPath("/proj"), "/proj/sub", CopyOptions{})
		assert.ErrorIs(t, err, common.ErrPermission)
		assert.Equal(t, before, len(f.items), "the refused merge must not create anything")
	})
}
