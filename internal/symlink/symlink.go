// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package symlink creates the small set of compatibility aliases the
// splat engine leaves for its emitted tree: an uppercase ".lib" alias
// for libraries commonly linked with SCREAMING names, and a fixed list
// of mixed-case header/library aliases that some consumers reference
// by a different case than the file actually has on disk. Every probe
// and every alias is created inside the splat output directory, never
// under /tmp, so the case-sensitivity of the destination filesystem
// (not the build machine's temp filesystem, which may differ) is what
// decides whether aliasing is needed at all.
package symlink

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/crosswin/xwin/internal/xwinerr"
)

// Alias is one fixed mixed-case alternate name for a file splat wrote
// under its canonical (usually lowercase) name.
type Alias struct {
	Canonical string
	Aliases   []string
}

// FixedHeaderAliases lists the header names whose canonical on-disk
// casing doesn't match every consumer's #include spelling.
var FixedHeaderAliases = []Alias{
	{Canonical: "mstcpip.h", Aliases: []string{"Mstcpip.h"}},
	{Canonical: "basetsd.h", Aliases: []string{"BaseTsd.h"}},
}

// FixedLibAliases lists the CRT import libraries conventionally linked
// with an all-uppercase name.
var FixedLibAliases = []Alias{
	{Canonical: "libcmt.lib", Aliases: []string{"LIBCMT.lib"}},
	{Canonical: "msvcrt.lib", Aliases: []string{"MSVCRT.lib"}},
	{Canonical: "oldnames.lib", Aliases: []string{"OLDNAMES.lib"}},
}

// Options controls whether and how Layer creates aliases.
type Options struct {
	// Disable skips every alias and probe, leaving the canonical
	// splat output untouched. Set from --disable-symlinks.
	Disable bool
}

// Layer creates the fixed alias set for one directory's canonical
// files, unless Options.Disable is set or dir's filesystem turns out
// to be case-insensitive (in which case the canonical name already
// resolves under any case, and a real symlink would just collide).
// A symlink-creation failure (e.g. an unprivileged Windows host, or a
// filesystem that rejects symlinks outright) skips that alias silently
// rather than failing the whole splat run -- the canonical name
// is still present and correct either way.
func Layer(dir string, aliases []Alias, opts Options) error {
	if opts.Disable {
		return nil
	}

	caseInsensitive, err := probeCaseInsensitive(dir)
	if err != nil {
		return err
	}
	if caseInsensitive {
		return nil
	}

	for _, a := range aliases {
		canonicalPath := filepath.Join(dir, a.Canonical)
		if _, err := os.Lstat(canonicalPath); err != nil {
			// Nothing to alias -- this package didn't splat the
			// canonical file into this directory.
			continue
		}
		for _, alias := range a.Aliases {
			linkPath := filepath.Join(dir, alias)
			if _, err := os.Lstat(linkPath); err == nil {
				continue
			}
			if err := unix.Symlink(a.Canonical, linkPath); err != nil {
				continue
			}
		}
	}
	return nil
}

// UppercaseLibAlias creates an all-uppercase ".lib"/".LIB" alias for a
// single emitted library file, matching the splat engine's general
// case-normalization rule for SDK libraries (almost all of them are
// referenced with a trailing ".lib" or ".Lib" inconsistently, but a
// handful of consumers link with SCREAMING names).
func UppercaseLibAlias(dir, canonical string, opts Options) error {
	if opts.Disable || !strings.HasSuffix(strings.ToLower(canonical), ".lib") {
		return nil
	}

	caseInsensitive, err := probeCaseInsensitive(dir)
	if err != nil {
		return err
	}
	if caseInsensitive {
		return nil
	}

	upper := strings.ToUpper(canonical)
	if upper == canonical {
		return nil
	}

	linkPath := filepath.Join(dir, upper)
	if _, err := os.Lstat(linkPath); err == nil {
		return nil
	}
	if err := unix.Symlink(canonical, linkPath); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "linking uppercase alias %s", linkPath)
	}
	return nil
}

// probeCaseInsensitive reports whether dir's filesystem folds case, by
// creating a small marker file and statting it back under a
// differently-cased name. The probe runs inside dir itself (the splat
// output tree), never in a separate temp directory, since the whole
// point is to learn the case-sensitivity of the filesystem symlinks
// will actually be read from.
func probeCaseInsensitive(dir string) (bool, error) {
	marker := filepath.Join(dir, ".xwin-case-probe")
	flipped := filepath.Join(dir, ".XWIN-CASE-PROBE")

	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return false, xwinerr.Wrap(xwinerr.KindFilesystem, err, "probing case sensitivity of %s", dir)
	}
	defer os.Remove(marker)

	_, err := os.Lstat(flipped)
	return err == nil, nil
}
