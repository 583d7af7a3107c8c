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

// Package cache provides the in-memory cache layers of panfs.
//
// Design Principles:
// 1. Fine-grained invalidation - Invalidate only affected ids/paths, not entire cache
// 2. Freshness over trust - A stale entry is corrected by the next read's
//    path check, so cache writes stay lock-free and last-writer-wins
//
// Provides:
// - AttrCache: id -> node record, TTL + size bounded
// - DirCache:  directory id -> full child map, LRU bounded
// - PathIndex: normalized path -> id, LRU bounded, eager prefix invalidation
package cache

import "os"

// Disabled controls whether all caching mechanisms are disabled.
// Set via PANFS_CACHE=0 environment variable.
// When true every Get misses and every Set is a no-op, which forces all
// reads through the remote. Useful to isolate cache-related bugs.
var Disabled = os.Getenv("PANFS_CACHE") == "0"

// Invalidator is implemented by all caches that support full invalidation.
type Invalidator interface {
	// Invalidate clears all entries from the cache.
	Invalidate()
}
