package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"panfs/internal/common"
	"panfs/internal/remote"
)

// fakeRemote is an in-memory drive implementing remote.Client with the
// provider's quirks: id-addressed mutations, flat paginated listings,
// extension-locked renames, name-keeping copies and hash deduplication.
type fakeRemote struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]*remote.Item
	blobs  map[string][]byte // sha1 -> content

	listCalls     map[uint64]int
	resolveCalls  int
	attrCalls     int
	streamedBytes int64

	// failure hooks, nil means succeed
	onRename func(id uint64, newName string) error
	onMove   func(ids []uint64, newParentID uint64) error
	onDelete func(ids []uint64) error
	onCopy   func(ids []uint64, newParentID uint64) error
	onList   func(dirID uint64) error

	// scrambleMTime makes mtime-sorted listings come back oldest first,
	// simulating a provider that breaks the ordering contract mid-refresh.
	scrambleMTime bool

	listDelay time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:    100,
		items:     map[uint64]*remote.Item{},
		blobs:     map[string][]byte{},
		listCalls: map[uint64]int{},
	}
}

// fixtureEpoch anchors directory fixture stamps. It predates every
// test-chosen file mtime so the wall clock never reorders a listing.
var fixtureEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func (f *fakeRemote) addDir(parentID uint64, name string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	stamp := fixtureEpoch.Add(time.Duration(id) * time.Second)
	f.items[id] = &remote.Item{
		ID: id, ParentID: parentID, Name: name, IsDir: true,
		MTime: stamp, CTime: stamp,
	}
	return id
}

func (f *fakeRemote) addFile(parentID uint64, name, content string, mtime time.Time) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	sha := fmt.Sprintf("sha-%s", content)
	f.blobs[sha] = []byte(content)
	f.items[id] = &remote.Item{
		ID: id, ParentID: parentID, Name: name, IsDir: false,
		Size: int64(len(content)), SHA1: sha,
		PickCode: fmt.Sprintf("pick-%d", id),
		MTime:    mtime, CTime: mtime,
	}
	return id
}

func (f *fakeRemote) touch(id uint64, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id].MTime = mtime
}

func (f *fakeRemote) get(id uint64) remote.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

func (f *fakeRemote) exists(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[id]
	return ok
}

func (f *fakeRemote) childrenOf(dirID uint64) []remote.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.childrenLocked(dirID)
}

func (f *fakeRemote) childrenLocked(dirID uint64) []remote.Item {
	var out []remote.Item
	for _, it := range f.items {
		if it.ParentID == dirID {
			out = append(out, *it)
		}
	}
	return out
}

func (f *fakeRemote) FetchChildren(ctx context.Context, dirID uint64, q remote.ListQuery) (*remote.Page, error) {
	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[dirID]++
	if f.onList != nil {
		if err := f.onList(dirID); err != nil {
			return nil, err
		}
	}
	if dirID != remote.RootID {
		if it, ok := f.items[dirID]; !ok || !it.IsDir {
			return nil, common.ErrNotFound
		}
	}

	all := f.childrenLocked(dirID)
	switch q.Sort {
	case remote.SortByMTime:
		sort.Slice(all, func(i, j int) bool {
			newer := all[i].MTime.After(all[j].MTime)
			if f.scrambleMTime || q.Ascending {
				return !newer
			}
			return newer
		})
	default:
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	}

	total := len(all)
	start := q.Offset
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	var ancestors []remote.PathEntry
	for id := dirID; id != remote.RootID; {
		it := f.items[id]
		ancestors = append(ancestors, remote.PathEntry{ID: it.ID, ParentID: it.ParentID, Name: it.Name})
		id = it.ParentID
	}

	return &remote.Page{Items: all[start:end], Total: total, Ancestors: ancestors}, nil
}

func (f *fakeRemote) FetchAttributes(ctx context.Context, id uint64) (*remote.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrCalls++
	it, ok := f.items[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeRemote) ResolvePath(ctx context.Context, literalPath string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	cur := remote.RootID
	for _, seg := range strings.Split(strings.Trim(literalPath, "/"), "/") {
		if seg == "" {
			continue
		}
		var next uint64
		found := false
		for _, it := range f.items {
			if it.ParentID == cur && it.Name == seg && it.IsDir {
				next, found = it.ID, true
				break
			}
		}
		if !found {
			return 0, common.ErrNotFound
		}
		cur = next
	}
	return cur, nil
}

func (f *fakeRemote) CreateDirectory(ctx context.Context, name string, parentID uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ParentID == parentID && it.Name == name {
			return 0, common.ErrExists
		}
	}
	f.nextID++
	id := f.nextID
	f.items[id] = &remote.Item{
		ID: id, ParentID: parentID, Name: name, IsDir: true,
		MTime: time.Now(), CTime: time.Now(),
	}
	return id, nil
}

func (f *fakeRemote) Delete(ctx context.Context, ids []uint64) error {
	if f.onDelete != nil {
		if err := f.onDelete(ids); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var drop func(id uint64)
	drop = func(id uint64) {
		for _, it := range f.childrenLocked(id) {
			drop(it.ID)
		}
		delete(f.items, id)
	}
	for _, id := range ids {
		if _, ok := f.items[id]; !ok {
			return common.ErrNotFound
		}
		drop(id)
	}
	return nil
}

func (f *fakeRemote) Move(ctx context.Context, ids []uint64, newParentID uint64) error {
	if f.onMove != nil {
		if err := f.onMove(ids, newParentID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		it, ok := f.items[id]
		if !ok {
			return common.ErrNotFound
		}
		it.ParentID = newParentID
		it.MTime = time.Now()
	}
	return nil
}

func (f *fakeRemote) Rename(ctx context.Context, id uint64, newName string) error {
	if f.onRename != nil {
		if err := f.onRename(id, newName); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if !it.IsDir {
		// The provider refuses renames that change the extension.
		_, oldExt := common.SplitExt(it.Name)
		_, newExt := common.SplitExt(newName)
		if oldExt != newExt {
			return common.ErrPermission
		}
	}
	it.Name = newName
	it.MTime = time.Now()
	return nil
}

func (f *fakeRemote) RenameBatch(ctx context.Context, pairs []remote.RenamePair) error {
	for _, p := range pairs {
		if err := f.Rename(ctx, p.ID, p.NewName); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRemote) Copy(ctx context.Context, ids []uint64, newParentID uint64) error {
	if f.onCopy != nil {
		if err := f.onCopy(ids, newParentID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var dup func(id, parentID uint64) error
	dup = func(id, parentID uint64) error {
		src, ok := f.items[id]
		if !ok {
			return common.ErrNotFound
		}
		f.nextID++
		cp := *src
		cp.ID = f.nextID
		cp.ParentID = parentID
		if !cp.IsDir {
			cp.PickCode = fmt.Sprintf("pick-%d", cp.ID)
		}
		f.items[cp.ID] = &cp
		for _, child := range f.childrenLocked(id) {
			if err := dup(child.ID, cp.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range ids {
		if err := dup(id, newParentID); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRemote) BeginUpload(ctx context.Context, name string, size int64, sha1 string, parentID uint64, src remote.ByteSource) (remote.UploadStatus, error) {
	f.mu.Lock()
	_, dedup := f.blobs[sha1]
	f.mu.Unlock()

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
		f.mu.Lock()
		f.blobs[sha1] = data
		f.streamedBytes += int64(len(data))
		f.mu.Unlock()
		status = remote.UploadStreamed
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.items[id] = &remote.Item{
		ID: id, ParentID: parentID, Name: name, IsDir: false,
		Size: size, SHA1: sha1,
		PickCode: fmt.Sprintf("pick-%d", id),
		MTime:    time.Now(), CTime: time.Now(),
	}
	return status, nil
}

func (f *fakeRemote) Download(ctx context.Context, pickCode string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if !it.IsDir && it.PickCode == pickCode {
			return io.NopCloser(bytes.NewReader(f.blobs[it.SHA1])), nil
		}
	}
	return nil, common.ErrNotFound
}

var _ remote.Client = (*fakeRemote)(nil)
