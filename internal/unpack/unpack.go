// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package unpack decodes a downloaded payload blob into its logical
// files on disk, once per package. The result is a tree rooted at
// workDir/<package-key>/, with a manifest file recording the relative
// paths and sizes unpack wrote -- the witness a rerun uses to skip
// unpacking work that already happened.
package unpack

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/crosswin/xwin/internal/cache"
	"github.com/crosswin/xwin/internal/container"
	"github.com/crosswin/xwin/internal/xwinerr"
)

// manifestName is the file written into a package's unpack directory
// once every logical file has been written; its presence (with a
// matching digest on its first line) is what lets Run treat a rerun as
// a no-op.
const manifestName = ".unpack"

// Entry is one logical file unpack wrote, relative to the package's
// unpack root.
type Entry struct {
	Path string
	Size int64
}

// Result is the outcome of unpacking a single package's payload.
type Result struct {
	Dir     string
	Entries []Entry
}

// Run unpacks the payload blob at blobPath (identified by digest, for
// the manifest witness) into workDir/key, picking the container
// decoder by the payload's own filename suffix. If a matching manifest
// already exists under that directory, Run does nothing and returns
// the entries it recorded.
func Run(ctx context.Context, workDir, key, payloadFilename, blobPath, digestHex string) (*Result, error) {
	dir := filepath.Join(workDir, key)

	if existing, ok, err := readManifest(dir, digestHex); err != nil {
		return nil, err
	} else if ok {
		return &Result{Dir: dir, Entries: existing}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindCancelled, err, "unpacking %s", key)
	}

	files, err := decode(payloadFilename, blobPath)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "clearing stale unpack directory %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating unpack directory %s", dir)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindCancelled, err, "unpacking %s", key)
		}

		dest := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating directory for %s", dest)
		}
		if err := writeFile(f, dest); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: f.Path, Size: f.Size})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if err := writeManifest(dir, digestHex, entries); err != nil {
		return nil, err
	}
	return &Result{Dir: dir, Entries: entries}, nil
}

// decode reads the payload blob at blobPath and picks the container
// decoder by filename: ".vsix" for the ZIP-based VSIX format, ".msi"
// for the compound-file MSI format paired with embedded CAB cabinets.
// Any other suffix is a payload unpack was never meant to see -- the
// manifest-selection stage only ever hands unpack a VSIX or MSI.
func decode(filename, blobPath string) ([]container.LogicalFile, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".vsix"):
		f, err := os.Open(blobPath)
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "opening payload %s", blobPath)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "stat payload %s", blobPath)
		}
		return container.FromVSIX(f, info.Size())
	case strings.HasSuffix(strings.ToLower(filename), ".msi"):
		data, err := os.ReadFile(blobPath)
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "reading payload %s", blobPath)
		}
		return container.FromMSI(data)
	default:
		return nil, xwinerr.New(xwinerr.KindUser, "payload %q is neither a .vsix nor a .msi archive", filename)
	}
}

func writeFile(f container.LogicalFile, dest string) error {
	src, err := f.Open()
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "reading %s", f.Path)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating %s", dest)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing %s", dest)
	}
	return nil
}

// writeManifest records digestHex and the sorted entry list so a
// future Run can recognize this directory as already unpacked.
func writeManifest(dir, digestHex string, entries []Entry) error {
	path := filepath.Join(dir, manifestName)
	f, err := os.Create(path)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing unpack manifest %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, digestHex)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\n", e.Path, e.Size)
	}
	return w.Flush()
}

// readManifest reports whether dir already carries a manifest matching
// digestHex, returning the entries it recorded if so.
func readManifest(dir, digestHex string) ([]Entry, bool, error) {
	path := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xwinerr.Wrap(xwinerr.KindFilesystem, err, "reading unpack manifest %s", path)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || lines[0] != digestHex {
		return nil, false, nil
	}

	var entries []Entry
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Path: parts[0], Size: size})
	}
	return entries, true, nil
}

// BlobPath is a convenience for callers that only have a Cache and a
// digest, not a raw path.
func BlobPath(c *cache.Cache, digest [32]byte) string {
	return c.Path(digest)
}
