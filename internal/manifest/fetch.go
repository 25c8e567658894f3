// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/binhash"
)

// Fetcher retrieves the bytes at url. It is satisfied by
// internal/fetch's HTTP client; taking the narrow interface here
// instead of importing that package avoids a manifest<->fetch import
// cycle, since the fetch package's retry logging wants to describe
// what it's fetching in manifest terms.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ChannelURL is the URL of the Visual Studio channel manifest for the
// given release line (e.g. "17") and channel (e.g. "release").
func ChannelURL(version, channel string) string {
	return fmt.Sprintf("https://aka.ms/vs/%s/%s/channel", version, channel)
}

// GetManifest fetches and decodes the channel manifest for version and
// channel.
func GetManifest(ctx context.Context, f Fetcher, version, channel string) (*Manifest, error) {
	data, err := f.Fetch(ctx, ChannelURL(version, channel))
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindNetwork, err, "fetching channel manifest")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindManifest, err, "decoding channel manifest")
	}
	return &m, nil
}

// GetPackageManifest locates the channel item that points at the full
// package manifest, fetches its payload, verifies the payload's SHA256
// against what the channel manifest declared, and decodes the result.
func GetPackageManifest(ctx context.Context, f Fetcher, m *Manifest) (*PackageManifest, error) {
	var found *ManifestItem
	for i := range m.ChannelItems {
		ci := &m.ChannelItems[i]
		if ci.Type == "Manifest" && len(ci.Payloads) > 0 {
			found = ci
			break
		}
	}
	if found == nil {
		return nil, xwinerr.New(xwinerr.KindManifest, "unable to locate package manifest in channel manifest")
	}

	payload := found.Payloads[0]
	data, err := f.Fetch(ctx, payload.URL)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindNetwork, err, "fetching package manifest")
	}

	if payload.SHA256 != "" {
		want, err := binhash.ParseDigest(payload.SHA256)
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindManifest, err, "parsing package manifest digest")
		}
		got := sha256.Sum256(data)
		if got != want {
			return nil, xwinerr.New(xwinerr.KindIntegrity,
				"package manifest digest mismatch: got %s, want %s",
				binhash.FormatDigest(got), binhash.FormatDigest(want))
		}
	}

	var wire struct {
		Packages []ManifestItem `json:"packages"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindManifest, err, "decoding package manifest")
	}

	pm := &PackageManifest{Packages: make(map[string][]ManifestItem, len(wire.Packages))}
	for _, item := range wire.Packages {
		pm.Packages[item.ID] = append(pm.Packages[item.ID], item)
	}
	return pm, nil
}
