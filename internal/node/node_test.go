package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panfs/internal/remote"
)

func TestAncestorPath(t *testing.T) {
	t.Parallel()

	c := NewChain()
	assert.Equal(t, "/", c.Root().Path())

	a := c.Bind(10, remote.RootID, "docs")
	b := c.Bind(20, 10, "reports")
	assert.Equal(t, "/docs", a.Path())
	assert.Equal(t, "/docs/reports", b.Path())
}

func TestAncestorRenamePropagates(t *testing.T) {
	t.Parallel()

	c := NewChain()
	docs := c.Bind(10, remote.RootID, "docs")
	reports := c.Bind(20, 10, "reports")

	n := New(remote.Item{ID: 30, ParentID: 20, Name: "q1.txt"}, reports)
	require.Equal(t, "/docs/reports/q1.txt", n.Path())

	// Renaming the grandparent in place must be visible through the
	// existing node reference without re-fetching.
	c.Bind(10, remote.RootID, "archive")
	assert.Equal(t, "/archive/reports/q1.txt", n.Path())
	assert.Equal(t, "/archive", docs.Path())
}

func TestAncestorMovePropagates(t *testing.T) {
	t.Parallel()

	c := NewChain()
	c.Bind(10, remote.RootID, "a")
	c.Bind(11, remote.RootID, "b")
	sub := c.Bind(20, 10, "sub")
	n := New(remote.Item{ID: 30, ParentID: 20, Name: "f"}, sub)

	require.Equal(t, "/a/sub/f", n.Path())
	// Move /a/sub under /b.
	c.Bind(20, 11, "sub")
	assert.Equal(t, "/b/sub/f", n.Path())
}

func TestIsAncestorOf(t *testing.T) {
	t.Parallel()

	c := NewChain()
	a := c.Bind(10, remote.RootID, "a")
	b := c.Bind(20, 10, "b")
	d := c.Bind(30, 20, "c")
	other := c.Bind(40, remote.RootID, "other")

	assert.True(t, a.IsAncestorOf(d))
	assert.True(t, b.IsAncestorOf(d))
	assert.False(t, d.IsAncestorOf(a))
	assert.False(t, a.IsAncestorOf(a))
	assert.False(t, other.IsAncestorOf(d))
	assert.True(t, c.Root().IsAncestorOf(d))
	assert.False(t, c.Root().IsAncestorOf(c.Root()))
}

func TestBindPath(t *testing.T) {
	t.Parallel()

	c := NewChain()
	// Remote reports ancestors nearest-first.
	leaf := c.BindPath([]remote.PathEntry{
		{ID: 20, ParentID: 10, Name: "reports"},
		{ID: 10, ParentID: remote.RootID, Name: "docs"},
	})
	assert.Equal(t, "/docs/reports", leaf.Path())
	assert.Equal(t, leaf, c.Get(20))

	root := c.BindPath(nil)
	assert.Equal(t, "/", root.Path())
}

func TestNodeUpdateInPlace(t *testing.T) {
	t.Parallel()

	c := NewChain()
	parent := c.Bind(10, remote.RootID, "dir")
	mt := time.Unix(1700000000, 0)
	n := New(remote.Item{ID: 5, ParentID: 10, Name: "f.txt", Size: 3, SHA1: "abc", MTime: mt}, parent)

	held := n // second reference
	n.Update(remote.Item{ID: 5, ParentID: 10, Name: "f.txt", Size: 9, SHA1: "def", MTime: mt.Add(time.Hour)}, parent)

	assert.Equal(t, int64(9), held.Size())
	assert.Equal(t, "def", held.SHA1())
	assert.Equal(t, mt.Add(time.Hour), held.MTime())
}

func TestEscapedNamesInPath(t *testing.T) {
	t.Parallel()

	c := NewChain()
	weird := c.Bind(10, remote.RootID, "a/b")
	n := New(remote.Item{ID: 20, ParentID: 10, Name: "c/d"}, weird)
	assert.Equal(t, "/a\\/b/c\\/d", n.Path())
}

func TestForget(t *testing.T) {
	t.Parallel()

	c := NewChain()
	c.Bind(10, remote.RootID, "a")
	c.Bind(20, 10, "b")
	require.Equal(t, 3, c.Len())

	c.Forget(20, 10)
	assert.Nil(t, c.Get(20))
	assert.Equal(t, 1, c.Len())

	// The root can never be forgotten.
	c.Forget(remote.RootID)
	assert.NotNil(t, c.Get(remote.RootID))
}
