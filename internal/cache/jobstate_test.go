// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import "testing"

func TestLoadJobStateMissingFileIsEmpty(t *testing.T) {
	state, err := LoadJobState(t.TempDir())
	if err != nil {
		t.Fatalf("LoadJobState: %v", err)
	}
	if len(state.Packages) != 0 {
		t.Errorf("expected empty package map, got %d entries", len(state.Packages))
	}
}

func TestJobStateSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	state := &JobState{
		ManifestVersion: "17",
		Packages: map[string]PackageState{
			"Microsoft.VC.14.40.CRT.x64.Desktop.base": {
				PackageID: "Microsoft.VC.14.40.CRT.x64.Desktop.base",
				State:     "unpacked",
				Digest:    "deadbeef",
			},
		},
	}

	if err := state.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadJobState(dir)
	if err != nil {
		t.Fatalf("LoadJobState: %v", err)
	}

	if reloaded.ManifestVersion != "17" {
		t.Errorf("ManifestVersion = %q, want 17", reloaded.ManifestVersion)
	}
	pkg, ok := reloaded.Packages["Microsoft.VC.14.40.CRT.x64.Desktop.base"]
	if !ok {
		t.Fatal("expected package to round-trip")
	}
	if pkg.State != "unpacked" {
		t.Errorf("State = %q, want unpacked", pkg.State)
	}
}
