// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package container gives both payload container formats xwin
// downloads -- VSIX (ZIP) and MSI+CAB -- the same shape: a pure
// function from a payload's bytes to a list of logical files, each
// with a path and a way to read its content. The unpack stage
// consumes this list without caring which container format produced
// it.
package container

import (
	"bytes"
	"io"

	"github.com/crosswin/xwin/internal/container/msi"
	"github.com/crosswin/xwin/internal/container/msi/cab"
	"github.com/crosswin/xwin/internal/container/vsix"
	"github.com/crosswin/xwin/internal/xwinerr"
)

// LogicalFile is one file a container decodes to, independent of
// which archive format produced it.
type LogicalFile struct {
	Path string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FromVSIX decodes a VSIX (ZIP) payload's entries in archive order.
func FromVSIX(r io.ReaderAt, size int64) ([]LogicalFile, error) {
	a, err := vsix.Open(r, size)
	if err != nil {
		return nil, err
	}
	entries := a.Entries()
	out := make([]LogicalFile, len(entries))
	for i, e := range entries {
		e := e
		out[i] = LogicalFile{
			Path: e.Name,
			Size: e.Size,
			Open: func() (io.ReadCloser, error) { return a.Open(e.Name) },
		}
	}
	return out, nil
}

// FromMSI decodes an MSI database's File table, joined through
// Component/Directory to logical paths, and fetches each file's bytes
// out of the cabinet its Media table row names. Iteration order is
// lexical by logical path, matching spec-visible directory listings
// rather than the MSI's internal row order.
//
// Cabinets are read from the MSI's own embedded streams; a Media
// table row naming a cabinet that isn't embedded surfaces as
// [xwinerr.KindMissingCabinet] rather than attempting a network fetch,
// since original_source's own reference implementation only ever
// exercises the embedded case for the sysroot packages xwin cares
// about.
func FromMSI(data []byte) ([]LogicalFile, error) {
	db, err := msi.Open(data)
	if err != nil {
		return nil, err
	}
	resolved, err := db.Resolve()
	if err != nil {
		return nil, err
	}
	sortByPath(resolved)

	resolver := db.EmbeddedCabinets()
	cabinets := map[string]*cab.Archive{}

	out := make([]LogicalFile, 0, len(resolved))
	for _, rf := range resolved {
		rf := rf
		var size int64 = int64(rf.Size)
		out = append(out, LogicalFile{
			Path: rf.Path,
			Size: size,
			Open: func() (io.ReadCloser, error) {
				archive, ok := cabinets[rf.Cabinet]
				if !ok {
					mediaBytes, err := resolveCabinetBytes(resolver, rf)
					if err != nil {
						return nil, err
					}
					archive, err = cab.Open(mediaBytes)
					if err != nil {
						return nil, err
					}
					cabinets[rf.Cabinet] = archive
				}
				content, err := archive.Extract(rf.CabinetEntryName)
				if err != nil {
					return nil, err
				}
				return io.NopCloser(bytes.NewReader(content)), nil
			},
		})
	}
	return out, nil
}

func resolveCabinetBytes(resolver msi.CabinetResolver, rf msi.ResolvedFile) ([]byte, error) {
	if rf.Cabinet == "" {
		return nil, xwinerr.New(xwinerr.KindMissingCabinet, "file %s has no cabinet in its Media row", rf.Path)
	}
	return resolver.Cabinet(msi.MediaEntry{Cabinet: rf.Cabinet, Embedded: rf.CabinetEmbedded})
}

func sortByPath(files []msi.ResolvedFile) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j-1].Path > files[j].Path; j-- {
			files[j-1], files[j] = files[j], files[j-1]
		}
	}
}
