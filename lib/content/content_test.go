// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import "testing"

func TestPatches(t *testing.T) {
	t.Parallel()

	patches, err := Patches()
	if err != nil {
		t.Fatalf("Patches: %v", err)
	}

	if len(patches) == 0 {
		t.Fatal("expected at least one embedded patch")
	}

	for _, p := range patches {
		if p.Path == "" {
			t.Error("patch has empty path")
		}
		if p.Find == p.Replace {
			t.Errorf("patch for %s is a no-op (find == replace)", p.Path)
		}
	}
}

func TestDuplicateWhitelist(t *testing.T) {
	t.Parallel()

	whitelist, err := DuplicateWhitelist()
	if err != nil {
		t.Fatalf("DuplicateWhitelist: %v", err)
	}

	if len(whitelist) == 0 {
		t.Fatal("expected at least one whitelisted path")
	}

	if !whitelist["sdk/include/um/gl/gl.h"] {
		t.Error("expected gl.h to be in the duplicate whitelist")
	}
}

func TestPatchesStable(t *testing.T) {
	t.Parallel()

	first, err := Patches()
	if err != nil {
		t.Fatalf("first Patches call: %v", err)
	}
	second, err := Patches()
	if err != nil {
		t.Fatalf("second Patches call: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("patch count changed between calls: %d vs %d", len(first), len(second))
	}
}
