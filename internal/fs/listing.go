package fs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"panfs/internal/common"
	"panfs/internal/node"
	"panfs/internal/remote"
)

// ListOptions shapes one ListChildren call. The zero value lists the whole
// directory, directories first, by name.
type ListOptions struct {
	// Offset skips entries from the front; a negative offset counts from the
	// end, like a slice of the tail.
	Offset int
	// Limit caps the returned entry count; 0 means unlimited.
	Limit int
	// Sort orders the result. Empty means SortByName.
	Sort remote.SortKey
	// Desc reverses the sort order.
	Desc bool
	// MixDirs interleaves files and directories instead of listing
	// directories first.
	MixDirs bool
	// Refresh forces revalidation against the remote even when the listing
	// is cached.
	Refresh bool
}

// ListChildren returns the children of a directory, ordered and windowed
// per opts. The listing is served from cache when possible; concurrent
// cold reads of the same directory share one remote fetch.
func (p *PanFS) ListChildren(ctx context.Context, t Target, opts ListOptions) ([]*node.Node, error) {
	dir, err := p.ResolveDir(ctx, t)
	if err != nil {
		return nil, err
	}
	children, err := p.loadDir(ctx, dir.ID, opts.Refresh)
	if err != nil {
		return nil, err
	}

	out := make([]*node.Node, 0, len(children))
	for _, c := range children {
		out = append(out, c)
	}
	sortChildren(out, opts)
	return window(out, opts.Offset, opts.Limit), nil
}

func sortChildren(ns []*node.Node, opts ListOptions) {
	key := opts.Sort
	if key == "" {
		key = remote.SortByName
	}
	less := func(a, b *node.Node) bool {
		switch key {
		case remote.SortBySize:
			if a.Size() != b.Size() {
				return a.Size() < b.Size()
			}
		case remote.SortByType:
			ae, be := extOf(a), extOf(b)
			if ae != be {
				return ae < be
			}
		case remote.SortByMTime:
			if !a.MTime().Equal(b.MTime()) {
				return a.MTime().Before(b.MTime())
			}
		case remote.SortByCTime:
			if !a.CTime().Equal(b.CTime()) {
				return a.CTime().Before(b.CTime())
			}
		case remote.SortByATime:
			if !a.ATime().Equal(b.ATime()) {
				return a.ATime().Before(b.ATime())
			}
		}
		return a.Name() < b.Name()
	}
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i], ns[j]
		if !opts.MixDirs && a.IsDir != b.IsDir {
			return a.IsDir
		}
		if opts.Desc {
			a, b = b, a
		}
		return less(a, b)
	})
}

func extOf(n *node.Node) string {
	if n.IsDir {
		return ""
	}
	_, ext := common.SplitExt(n.Name())
	return strings.ToLower(ext)
}

// window applies slice-style offset/limit, with negative offsets counting
// from the end.
func window(ns []*node.Node, offset, limit int) []*node.Node {
	if offset < 0 {
		offset += len(ns)
		if offset < 0 {
			offset = 0
		}
	}
	if offset >= len(ns) {
		return nil
	}
	ns = ns[offset:]
	if limit > 0 && limit < len(ns) {
		ns = ns[:limit]
	}
	return ns
}

// errOutOfOrder signals that the remote returned a non-monotonic
// mtime-ordered page stream, meaning the directory changed mid-refresh.
var errOutOfOrder = errors.New("listing pages out of order")

// loadDir returns the child set of a directory, fetching it when uncached
// or when refresh is requested. Fetches are deduplicated per directory id:
// every concurrent caller receives the result of a single remote sequence.
func (p *PanFS) loadDir(ctx context.Context, dirID uint64, refresh bool) (map[uint64]*node.Node, error) {
	if p.dirs == nil {
		return p.fetchFull(ctx, dirID)
	}
	if !refresh {
		if children, ok := p.dirs.Get(dirID); ok {
			return children, nil
		}
	}

	key := fmt.Sprintf("%d", dirID)
	v, err, shared := p.flight.Do(key, func() (interface{}, error) {
		// A caller that queued behind a finished fetch is satisfied by it.
		if !refresh {
			if children, ok := p.dirs.Get(dirID); ok {
				return children, nil
			}
		}

		var children map[uint64]*node.Node
		var err error
		if cached, ok := p.dirs.Get(dirID); ok {
			children, err = p.fetchIncremental(ctx, dirID, cached)
			if errors.Is(err, errOutOfOrder) {
				if log.IsLevelEnabled(log.DebugLevel) {
					log.Debugf("[Listing] dir %d changed during refresh, re-fetching in full", dirID)
				}
				children, err = p.fetchFull(ctx, dirID)
			}
		} else {
			children, err = p.fetchFull(ctx, dirID)
		}
		if err != nil {
			return nil, err
		}
		p.dirs.Put(dirID, children)
		return children, nil
	})
	if err != nil {
		return nil, err
	}
	if shared && log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("[Listing] coalesced fetch of dir %d", dirID)
	}
	return v.(map[uint64]*node.Node), nil
}

// fetchFull pages through the complete child set of a directory. A total
// count that drifts while paginating means a concurrent writer raced the
// listing; one clean retry is attempted before giving up with ErrConflict.
func (p *PanFS) fetchFull(ctx context.Context, dirID uint64) (map[uint64]*node.Node, error) {
	for attempt := 0; ; attempt++ {
		children, err := p.fetchFullOnce(ctx, dirID)
		if err == nil || !errors.Is(err, common.ErrConflict) || attempt > 0 {
			return children, err
		}
	}
}

func (p *PanFS) fetchFullOnce(ctx context.Context, dirID uint64) (map[uint64]*node.Node, error) {
	children := make(map[uint64]*node.Node)
	offset := 0
	total := -1
	for {
		page, err := p.client.FetchChildren(ctx, dirID, remote.ListQuery{
			Offset: offset,
			Limit:  p.pageSize,
			Sort:   remote.SortByName,
		})
		if err != nil {
			return nil, fmt.Errorf("list dir %d: %w", dirID, err)
		}
		if offset == 0 {
			total = page.Total
			p.chain.BindPath(page.Ancestors)
		} else if page.Total != total {
			return nil, fmt.Errorf("dir %d: total changed %d -> %d: %w", dirID, total, page.Total, common.ErrConflict)
		}
		for _, it := range page.Items {
			n := p.adopt(it)
			children[n.ID] = n
		}
		offset += len(page.Items)
		if offset >= total || len(page.Items) == 0 {
			break
		}
	}
	if len(children) != total {
		return nil, fmt.Errorf("dir %d: fetched %d of %d entries: %w", dirID, len(children), total, common.ErrConflict)
	}
	return children, nil
}

// fetchIncremental revalidates a cached listing by reading pages newest
// first and stopping as soon as the unread remainder provably equals the
// still-pending cached entries. Directories whose recent churn is small
// refresh in a single page regardless of size.
func (p *PanFS) fetchIncremental(ctx context.Context, dirID uint64, cached map[uint64]*node.Node) (map[uint64]*node.Node, error) {
	pending := make(map[uint64]*node.Node, len(cached))
	for id, n := range cached {
		pending[id] = n
	}

	result := make(map[uint64]*node.Node)
	offset := 0
	total := -1
	seenOldest := false
	var oldest = int64(1<<63 - 1) // unix nanos of the oldest item fetched so far

	for {
		page, err := p.client.FetchChildren(ctx, dirID, remote.ListQuery{
			Offset:  offset,
			Limit:   p.pageSize,
			Sort:    remote.SortByMTime,
			MixDirs: true,
		})
		if err != nil {
			return nil, fmt.Errorf("refresh dir %d: %w", dirID, err)
		}
		if offset == 0 {
			total = page.Total
			p.chain.BindPath(page.Ancestors)
		} else if page.Total != total {
			return nil, errOutOfOrder
		}

		for _, it := range page.Items {
			mt := it.MTime.UnixNano()
			if seenOldest && mt > oldest {
				return nil, errOutOfOrder
			}
			oldest = mt
			seenOldest = true

			n := p.adopt(it)
			result[n.ID] = n
			delete(pending, n.ID)
		}
		offset += len(page.Items)

		// Cached entries at or above the fetched horizon would already have
		// appeared; ones that did not were removed or renamed away.
		for id, n := range pending {
			if seenOldest && n.MTime().UnixNano() > oldest {
				delete(pending, id)
			}
		}

		if total-len(result) == len(pending) {
			for id, n := range pending {
				result[id] = n
			}
			return result, nil
		}
		if offset >= total || len(page.Items) == 0 {
			break
		}
	}
	if len(result) != total {
		return nil, errOutOfOrder
	}
	return result, nil
}
