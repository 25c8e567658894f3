// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree materializes a fixture directory tree under a fresh
// t.TempDir(), given a map of relative path to file content. Parent
// directories are created as needed. Returns the tree's root. For
// tests that need a small on-disk source tree without constructing a
// real VSIX or MSI archive.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for relPath, contents := range files {
		fullPath := filepath.Join(root, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(fullPath, []byte(contents), 0o644); err != nil {
			t.Fatalf("writing fixture file %s: %v", relPath, err)
		}
	}
	return root
}
