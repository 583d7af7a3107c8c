package remote

import "time"

// RootID is the id of the remote root directory.
const RootID uint64 = 0

// Item is the wire-level record for one remote file or directory.
type Item struct {
	ID       uint64
	ParentID uint64
	Name     string
	IsDir    bool

	// File-only fields; zero for directories.
	Size     int64
	SHA1     string
	PickCode string // opaque provider token used for downloads/transfers

	MTime time.Time // last modification
	CTime time.Time // creation
	ATime time.Time // last open
}

// SortKey selects the remote-side ordering of a child listing.
type SortKey string

const (
	SortByName  SortKey = "file_name"
	SortBySize  SortKey = "file_size"
	SortByType  SortKey = "file_type"
	SortByMTime SortKey = "user_utime"
	SortByCTime SortKey = "user_ptime"
	SortByATime SortKey = "user_otime"
)

// ListQuery is the window and ordering of one FetchChildren page.
type ListQuery struct {
	Offset    int
	Limit     int
	Sort      SortKey
	Ascending bool
	// MixDirs interleaves files and directories in remote order instead of
	// the provider default of directories first.
	MixDirs bool
}

// PathEntry is one hop of the ancestor path info the remote reports
// alongside a child listing.
type PathEntry struct {
	ID       uint64
	ParentID uint64
	Name     string
}

// Page is the result of one FetchChildren call.
type Page struct {
	Items []Item
	// Total is the remote-reported number of children matching the query,
	// independent of the page window.
	Total int
	// Ancestors is the chain from the listed directory up to the root,
	// nearest first.
	Ancestors []PathEntry
}

// RenamePair is one entry of a bulk rename.
type RenamePair struct {
	ID      uint64
	NewName string
}

// UploadStatus reports how BeginUpload completed.
type UploadStatus int

const (
	// UploadDeduplicated means the remote matched the content hash and
	// completed the transfer without reading any bytes.
	UploadDeduplicated UploadStatus = iota
	// UploadStreamed means the byte source was consumed in full.
	UploadStreamed
)
