// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/binhash"
)

// Cache is xwin's content-addressed blob store, rooted at a single
// directory on disk.
type Cache struct {
	root    string
	blobDir string

	writeMu sync.Mutex
	db      *sql.DB
}

// Stats summarizes the cache's contents.
type Stats struct {
	BlobCount int64
	TotalSize int64
}

// New opens (creating if necessary) a content-addressed cache rooted at
// dir. dir/dl holds blobs; dir/index.sqlite holds the size/presence
// index.
func New(dir string) (*Cache, error) {
	blobDir := filepath.Join(dir, "dl")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating cache blob directory %s", blobDir)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "opening cache index")
	}
	// The index is single-writer (writeMu serializes Put) but readers
	// may run concurrently with the sqlite driver's own locking; one
	// connection avoids "database is locked" errors from modernc.org's
	// file-backed driver under concurrent access from a single process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		digest TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		added_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "initializing cache index schema")
	}

	c := &Cache{root: dir, blobDir: blobDir, db: db}
	return c, nil
}

// Close releases the cache's index handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path returns the sharded filesystem path a blob with the given digest
// would occupy: dl/<hex[:2]>/<hex[2:4]>/<hex>. The blob need not exist.
func (c *Cache) Path(digest [32]byte) string {
	hex := binhash.FormatDigest(digest)
	return filepath.Join(c.blobDir, hex[:2], hex[2:4], hex)
}

// Contains reports whether digest is already stored.
func (c *Cache) Contains(digest [32]byte) bool {
	hex := binhash.FormatDigest(digest)
	var one int
	err := c.db.QueryRow(`SELECT 1 FROM blobs WHERE digest = ?`, hex).Scan(&one)
	return err == nil
}

// Open returns a reader for the blob at digest. The caller must Close
// it. Returns a KindFilesystem error if the blob is not present.
func (c *Cache) Open(digest [32]byte) (io.ReadCloser, error) {
	f, err := os.Open(c.Path(digest))
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "opening cached blob %s", binhash.FormatDigest(digest))
	}
	return f, nil
}

// Put streams r into the cache atomically (temp file under dl/, then
// rename into its shard directory) and returns the digest of what was
// written. If wantDigest is non-nil, Put verifies the streamed content
// hashes to that digest before the rename and returns a KindIntegrity
// error (leaving no partial file behind) if it doesn't.
func (c *Cache) Put(r io.Reader, wantDigest *[32]byte) ([32]byte, int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tmpFile, err := os.CreateTemp(c.blobDir, "put-*.tmp")
	if err != nil {
		return [32]byte{}, 0, xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating temp cache file")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmpFile, hasher), r)
	if err != nil {
		tmpFile.Close()
		return [32]byte{}, 0, xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing cache blob")
	}
	if err := tmpFile.Close(); err != nil {
		return [32]byte{}, 0, xwinerr.Wrap(xwinerr.KindFilesystem, err, "closing temp cache file")
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))

	if wantDigest != nil && digest != *wantDigest {
		return [32]byte{}, 0, xwinerr.New(xwinerr.KindIntegrity,
			"cache blob digest mismatch: got %s, want %s",
			binhash.FormatDigest(digest), binhash.FormatDigest(*wantDigest))
	}

	finalPath := c.Path(digest)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return [32]byte{}, 0, xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating cache shard directory")
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return [32]byte{}, 0, xwinerr.Wrap(xwinerr.KindFilesystem, err, "renaming cache blob into place")
	}

	hex := binhash.FormatDigest(digest)
	if _, err := c.db.Exec(
		`INSERT OR REPLACE INTO blobs (digest, size, added_at) VALUES (?, ?, ?)`,
		hex, size, time.Now().Unix(),
	); err != nil {
		return [32]byte{}, 0, xwinerr.Wrap(xwinerr.KindFilesystem, err, "recording cache blob in index")
	}

	success = true
	return digest, size, nil
}

// Stats returns aggregate cache statistics from the index.
func (c *Cache) Stats() (Stats, error) {
	var s Stats
	err := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blobs`).Scan(&s.BlobCount, &s.TotalSize)
	if err != nil {
		return Stats{}, xwinerr.Wrap(xwinerr.KindFilesystem, err, "reading cache stats")
	}
	return s, nil
}

// Sync rebuilds the index from a directory walk of the blob store. Use
// this if the index file is missing, deleted, or suspected corrupt --
// the filesystem contents remain the source of truth.
func (c *Cache) Sync() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.db.Exec(`DELETE FROM blobs`); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "clearing cache index")
	}

	return filepath.WalkDir(c.blobDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hex := filepath.Base(path)
		if len(hex) != 64 {
			return nil
		}
		_, execErr := c.db.Exec(
			`INSERT OR REPLACE INTO blobs (digest, size, added_at) VALUES (?, ?, ?)`,
			hex, info.Size(), info.ModTime().Unix(),
		)
		return execErr
	})
}

// String implements fmt.Stringer for diagnostic output.
func (c *Cache) String() string {
	return fmt.Sprintf("cache(%s)", c.root)
}
