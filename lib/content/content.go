// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package content provides embedded xwin patch-set definitions: the
// fixed, audited textual patches applied to specific headers during
// emission, and the whitelist of output paths exempt from the splat
// engine's duplicate-content invariant. Files are JSONC (JSON with
// comments and trailing commas) so the data can carry a rationale
// alongside each entry.
//
// Files are embedded at compile time via go:embed. The splat engine
// loads them once via [Patches] and [DuplicateWhitelist] rather than
// reading from disk, so a patch set ships inside the xwin binary and
// can't drift from the code that interprets it.
package content

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

//go:embed patchset/*.jsonc
var patchsetFiles embed.FS

// Patch is one exact-match textual substitution applied to a single
// output file, relative to the splat output root.
type Patch struct {
	Path    string `json:"path"`
	Find    string `json:"find"`
	Replace string `json:"replace"`
	Reason  string `json:"reason"`
}

type patchFile struct {
	Name    string  `json:"name"`
	Patches []Patch `json:"patches"`
}

type whitelistFile struct {
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}

// Patches returns every embedded textual patch, from every *.jsonc file
// under patchset/ that declares a non-empty "patches" array. Returns an
// error if any embedded file fails to parse -- that indicates a bug in
// the embedded content, not a runtime condition.
func Patches() ([]Patch, error) {
	entries, err := patchsetFiles.ReadDir("patchset")
	if err != nil {
		return nil, fmt.Errorf("reading embedded patchset directory: %w", err)
	}

	var patches []Patch
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := patchsetFiles.ReadFile("patchset/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded patchset file %s: %w", entry.Name(), err)
		}

		var pf patchFile
		if err := json.Unmarshal(jsonc.ToJSON(data), &pf); err != nil {
			return nil, fmt.Errorf("parsing embedded patchset file %s: %w", entry.Name(), err)
		}
		patches = append(patches, pf.Patches...)
	}

	return patches, nil
}

// DuplicateWhitelist returns the set of splat output paths (relative to
// the output root, already lowercased) that are permitted to be written
// more than once with non-identical content. Every other path collision
// during emission is a DuplicateContentConflict.
func DuplicateWhitelist() (map[string]bool, error) {
	entries, err := patchsetFiles.ReadDir("patchset")
	if err != nil {
		return nil, fmt.Errorf("reading embedded patchset directory: %w", err)
	}

	whitelist := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := patchsetFiles.ReadFile("patchset/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded patchset file %s: %w", entry.Name(), err)
		}

		var wf whitelistFile
		if err := json.Unmarshal(jsonc.ToJSON(data), &wf); err != nil {
			return nil, fmt.Errorf("parsing embedded patchset file %s: %w", entry.Name(), err)
		}
		for _, p := range wf.Paths {
			whitelist[p] = true
		}
	}

	return whitelist, nil
}
