// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import "testing"

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"14.40", "14.9", 1},
		{"14.9", "14.40", -1},
		{"14.40", "14.40", 0},
		{"14.40.33807", "14.40.33805", 1},
		{"10.0.22621", "10.0.19041", 1},
		{"1", "1.0", 0},
	}
	for _, tt := range tests {
		got := CompareVersions(tt.a, tt.b)
		if sign(got) != sign(tt.want) {
			t.Errorf("CompareVersions(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestParseSDKKey(t *testing.T) {
	tests := []struct {
		key       string
		wantMajor int
		wantRest  string
		wantOK    bool
	}{
		{"Win11SDK_10.0.22621", 11, "10.0.22621", true},
		{"Win10SDK_10.0.19041", 10, "10.0.19041", true},
		{"Microsoft.VC.14.40.CRT.Headers.base", 0, "", false},
	}
	for _, tt := range tests {
		major, rest, ok := parseSDKKey(tt.key)
		if ok != tt.wantOK || major != tt.wantMajor || rest != tt.wantRest {
			t.Errorf("parseSDKKey(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.key, major, rest, ok, tt.wantMajor, tt.wantRest, tt.wantOK)
		}
	}
}

func TestLatestSDKVersionPrefersHigherGeneration(t *testing.T) {
	pkgs := map[string]ManifestItem{
		"Win10SDK_10.0.26100": {ID: "Win10SDK_10.0.26100"},
		// A Win11 SDK can carry a numerically lower release version
		// than a Win10 SDK; generation must still win.
		"Win11SDK_10.0.22000": {ID: "Win11SDK_10.0.22000"},
	}
	id, version, err := LatestSDKVersion(pkgs)
	if err != nil {
		t.Fatalf("LatestSDKVersion: %v", err)
	}
	if id != "Win11SDK_10.0.22000" || version != "10.0.22000" {
		t.Errorf("LatestSDKVersion = (%q, %q), want (Win11SDK_10.0.22000, 10.0.22000)", id, version)
	}
}

func TestLatestSDKVersionNoCandidates(t *testing.T) {
	_, _, err := LatestSDKVersion(map[string]ManifestItem{"unrelated": {}})
	if err == nil {
		t.Fatal("expected an error when no SDK keys are present")
	}
}
