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

// Package remote defines the client interface to the id-addressed drive
// service and its HTTP binding. The service knows nothing about paths: every
// mutation is by numeric id, child listings are flat and paginated, and the
// only path-shaped call (ResolvePath) works solely for slash-free names.
package remote

import (
	"context"
	"io"
)

// ByteSource lazily opens the content to upload. It is only invoked when the
// remote could not complete the transfer by content hash alone.
type ByteSource func(ctx context.Context) (io.ReadCloser, error)

// Client is the remote drive API, one method per endpoint.
type Client interface {
	// FetchChildren lists one page of a directory's children together with
	// the remote-reported total and the directory's ancestor path info.
	// Fails with ErrNotFound if dirID does not exist.
	FetchChildren(ctx context.Context, dirID uint64, q ListQuery) (*Page, error)

	// FetchAttributes returns the record for a single id.
	// Fails with ErrNotFound on absent id.
	FetchAttributes(ctx context.Context, id uint64) (*Item, error)

	// ResolvePath resolves a literal path to a directory id. Only works when
	// no ancestor name contains a '/'; fails with ErrNotFound otherwise.
	ResolvePath(ctx context.Context, literalPath string) (uint64, error)

	// CreateDirectory creates one directory and returns its new id.
	CreateDirectory(ctx context.Context, name string, parentID uint64) (uint64, error)

	// Delete removes the given ids (recursively for directories).
	Delete(ctx context.Context, ids []uint64) error

	// Move reparents the given ids under newParentID, keeping names.
	Move(ctx context.Context, ids []uint64, newParentID uint64) error

	// Rename changes the name of one id in place. The provider rejects
	// renames that change a file's extension.
	Rename(ctx context.Context, id uint64, newName string) error

	// RenameBatch renames several ids in one call.
	RenameBatch(ctx context.Context, pairs []RenamePair) error

	// Copy duplicates the given ids into newParentID, keeping names.
	Copy(ctx context.Context, ids []uint64, newParentID uint64) error

	// BeginUpload creates a file at parentID/name. If the remote already
	// holds content with the given hash the transfer completes instantly
	// and src is never called; otherwise src is opened and streamed.
	BeginUpload(ctx context.Context, name string, size int64, sha1 string, parentID uint64, src ByteSource) (UploadStatus, error)

	// Download opens the content stream for a file's pick code.
	Download(ctx context.Context, pickCode string) (io.ReadCloser, error)
}
