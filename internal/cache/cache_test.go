// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/binhash"
)

func TestPutGetRoundtrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	content := []byte("hello xwin cache")
	digest, size, err := c.Put(bytes.NewReader(content), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}

	want := sha256.Sum256(content)
	if digest != want {
		t.Errorf("digest mismatch")
	}

	if !c.Contains(digest) {
		t.Error("Contains should report true after Put")
	}

	r, err := c.Open(digest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.String() != string(content) {
		t.Errorf("read content = %q, want %q", buf.String(), content)
	}
}

func TestPutDigestMismatch(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var wrongDigest [32]byte
	_, _, err = c.Put(bytes.NewReader([]byte("data")), &wrongDigest)
	if err == nil {
		t.Fatal("expected integrity error")
	}
	if !xwinerr.Is(err, xwinerr.KindIntegrity) {
		t.Errorf("expected KindIntegrity, got %v", err)
	}
}

func TestStats(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Put(bytes.NewReader([]byte("one")), nil)
	c.Put(bytes.NewReader([]byte("two!!")), nil)

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.BlobCount != 2 {
		t.Errorf("BlobCount = %d, want 2", stats.BlobCount)
	}
	if stats.TotalSize != int64(len("one")+len("two!!")) {
		t.Errorf("TotalSize = %d, want %d", stats.TotalSize, len("one")+len("two!!"))
	}
}

func TestSyncRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	digest, _, err := c.Put(bytes.NewReader([]byte("payload")), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.Close()

	// Simulate a lost index by deleting it, then reopening.
	if err := os.Remove(filepath.Join(dir, "index.sqlite")); err != nil {
		t.Fatalf("removing index: %v", err)
	}
	c2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}
	defer c2.Close()

	if err := c2.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !c2.Contains(digest) {
		t.Error("Sync should rediscover the blob from the filesystem")
	}
}

func TestPath(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var digest [32]byte
	copy(digest[:], []byte{0xab, 0xcd, 0xef})
	path := c.Path(digest)

	hex := binhash.FormatDigest(digest)
	want := filepath.Join(c.blobDir, hex[:2], hex[2:4], hex)
	if path != want {
		t.Errorf("Path = %s, want %s", path, want)
	}
}
