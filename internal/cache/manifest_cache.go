// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/crosswin/xwin/internal/manifest"
	"github.com/crosswin/xwin/internal/xwinerr"
)

// manifestCacheTTL bounds how long a resolved package manifest is
// trusted before a caller should re-fetch it from the channel; VS
// channel manifests are republished on every servicing release, and a
// week-old cache is more likely to point at payloads Microsoft has
// already rotated out from under their original URLs.
const manifestCacheTTL = 7 * 24 * time.Hour

type manifestCacheEntry struct {
	Version   string                    `json:"version"`
	Channel   string                    `json:"channel"`
	FetchedAt int64                     `json:"fetched_at"`
	Manifest  *manifest.PackageManifest `json:"manifest"`
}

func (c *Cache) manifestCachePath() string {
	return filepath.Join(c.root, "ctx.json.zst")
}

// StoreManifest memoizes the already-resolved package manifest so a
// later run asking for the same version/channel within manifestCacheTTL
// can skip the channel-manifest round trip and the package-manifest
// download entirely.
func (c *Cache) StoreManifest(version, channel string, pm *manifest.PackageManifest) error {
	entry := manifestCacheEntry{
		Version:   version,
		Channel:   channel,
		FetchedAt: time.Now().Unix(),
		Manifest:  pm,
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindInternal, err, "encoding manifest cache entry")
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindInternal, err, "creating zstd encoder")
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)

	path := c.manifestCachePath()
	tmp, err := os.CreateTemp(filepath.Dir(path), "ctx-*.json.zst.tmp")
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating temp manifest cache file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing manifest cache")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "closing manifest cache")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "renaming manifest cache into place")
	}
	return nil
}

// LoadManifest returns a memoized package manifest for version/channel
// if one was stored within manifestCacheTTL, and ok is false otherwise
// (no cache file, a different version/channel, decode failure, or
// expired) -- any of which just means the caller falls back to fetching
// live.
func (c *Cache) LoadManifest(version, channel string) (pm *manifest.PackageManifest, ok bool) {
	data, err := os.ReadFile(c.manifestCachePath())
	if err != nil {
		return nil, false
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false
	}

	var entry manifestCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	if entry.Version != version || entry.Channel != channel {
		return nil, false
	}
	if time.Since(time.Unix(entry.FetchedAt, 0)) > manifestCacheTTL {
		return nil, false
	}
	return entry.Manifest, true
}
