// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements xwin's content-addressed blob store.
//
// Every downloaded VSIX/MSI payload is stored once, keyed by the SHA256
// digest of its bytes ([lib/binhash]); the files the unpack stage
// extracts are written to per-package directories, not to this store.
// [Cache.Put] writes to a temporary file under dl/ (the same filesystem
// as the final path) and renames it into place, so a
// killed process never leaves a half-written blob at a content address
// other readers might trust.
//
// Blobs live in a sharded two-level directory layout under
// dl/<hex[:2]>/<hex[2:4]>/<hex>, keeping any one directory from
// accumulating too many entries for common filesystems to list
// efficiently.
//
// A sqlite index (modernc.org/sqlite, pure Go, no cgo) tracks which
// digests are present and their size, so [Cache.Contains] and
// [Cache.Stats] don't need a directory walk. The index is a
// performance cache over the filesystem's ground truth, not a second
// source of truth -- [Cache.Sync] rebuilds it from a directory walk if
// it's ever missing or corrupt.
//
// [Cache.StoreManifest] and [Cache.LoadManifest] separately memoize the
// resolved package manifest itself (not its payload blobs) as a small
// zstd-compressed JSON file, so repeat invocations against the same
// version/channel can skip the channel-manifest and package-manifest
// network round trips within a bounded TTL.
package cache
