// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest fetches and decodes the Visual Studio channel and
// package manifests, and prunes the full package graph down to the
// CRT, ATL, and Windows SDK payloads a cross-compilation sysroot
// actually needs.
package manifest

// Payload is one downloadable file attached to a ManifestItem, as
// reported by the wire manifest.
type Payload struct {
	FileName string `json:"fileName"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// ManifestItem is one entry in the Visual Studio package graph: a
// component, workload, or product with zero or more downloadable
// payloads and a dependency list keyed by the IDs of other items.
type ManifestItem struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Type     string `json:"type"`
	Chip     string `json:"chip,omitempty"`
	// Language is empty for language-neutral packages. Most packages
	// this tool cares about (CRT, SDK, ATL libs) are neutral; a few
	// headers/tools ship one copy per locale under the same ID, and
	// the language-neutral or en-US copy is always the one wanted.
	Language     string            `json:"language,omitempty"`
	Payloads     []Payload         `json:"payloads"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Manifest is the top-level channel manifest fetched from
// https://aka.ms/vs/{version}/{channel}/channel. Its only useful
// content, for xwin's purposes, is the channel item that points at the
// full package manifest.
type Manifest struct {
	ChannelItems []ManifestItem `json:"channelItems"`
}

// PackageManifest is the full Visual Studio package graph, grouped by
// item ID. A single ID legitimately maps to several ManifestItems in
// the wire format -- one per language the package ships in -- so
// grouping (rather than collapsing to one entry per ID) is what lets
// the language-preference step in Prune choose between them instead of
// silently keeping whichever one the decoder happened to see last.
type PackageManifest struct {
	Packages map[string][]ManifestItem `json:"packages"`
}
