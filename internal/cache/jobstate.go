// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"os"
	"path/filepath"

	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/codec"
)

// PackageState records how far a single package has progressed through
// the scheduler's download/unpack/splat pipeline, keyed by package ID.
type PackageState struct {
	PackageID string `cbor:"package_id"`
	State     string `cbor:"state"`
	Digest    string `cbor:"digest,omitempty"`
}

// JobState is the per-package progress of one xwin run, persisted to
// jobs.cbor in the cache directory by Save and read back by
// LoadJobState. The download, unpack, and splat subcommands do not read
// or write this file; skipping already-downloaded payloads relies on
// the cache index instead.
type JobState struct {
	ManifestVersion string                  `cbor:"manifest_version"`
	Packages        map[string]PackageState `cbor:"packages"`
}

// LoadJobState reads the job-state file from dir. Returns a fresh empty
// JobState, not an error, if the file doesn't exist yet -- there is
// nothing to resume on a first run.
func LoadJobState(dir string) (*JobState, error) {
	data, err := os.ReadFile(filepath.Join(dir, "jobs.cbor"))
	if os.IsNotExist(err) {
		return &JobState{Packages: make(map[string]PackageState)}, nil
	}
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "reading job state")
	}

	var state JobState
	if err := codec.Unmarshal(data, &state); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "parsing job state")
	}
	if state.Packages == nil {
		state.Packages = make(map[string]PackageState)
	}
	return &state, nil
}

// Save writes the job-state file atomically (temp file + rename) into
// dir.
func (s *JobState) Save(dir string) error {
	data, err := codec.Marshal(s)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindInternal, err, "encoding job state")
	}

	tmpFile, err := os.CreateTemp(dir, "jobs-*.cbor.tmp")
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating temp job state file")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing job state")
	}
	if err := tmpFile.Close(); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "closing temp job state file")
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, "jobs.cbor")); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "renaming job state into place")
	}

	success = true
	return nil
}
