// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vsix decodes VSIX packages, which are plain ZIP archives
// used by several Visual Studio component payloads (the CRT headers
// and per-arch/variant CRT libs are all shipped this way).
package vsix

import (
	"archive/zip"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/crosswin/xwin/internal/xwinerr"
)

// Entry is one file inside a VSIX archive.
type Entry struct {
	Name string
	Size int64
}

// Archive is an opened VSIX (ZIP) payload.
type Archive struct {
	zr *zip.Reader
}

// Open parses the ZIP central directory of r, which must expose size
// bytes of content. Payloads are opened from files already verified
// and stored in the cache, so r is typically an *os.File over a cached
// blob rather than something read fully into memory.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "opening VSIX archive")
	}
	// klauspost/compress's flate decoder is a drop-in faster
	// replacement for the standard library's; every VSIX payload in a
	// full sysroot download runs through this decompressor, so the
	// throughput difference is worth taking. It is registered on this
	// reader only: the package-level registry already holds Deflate.
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	return &Archive{zr: zr}, nil
}

// Entries lists every regular file in the archive, skipping
// directories.
func (a *Archive) Entries() []Entry {
	var entries []Entry
	for _, f := range a.zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, Entry{Name: f.Name, Size: int64(f.UncompressedSize64)})
	}
	return entries
}

// Open returns a reader for the named entry's decompressed content.
// The caller must close it.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	f, err := a.zr.Open(name)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "reading VSIX entry %s", name)
	}
	return f, nil
}
