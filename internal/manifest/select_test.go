// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"testing"

	"github.com/crosswin/xwin/internal/xwinerr"
)

func TestParseArch(t *testing.T) {
	tests := []struct {
		in   string
		want Arch
	}{
		{"x86", ArchX86},
		{"x86_64", ArchX8664},
		{"aarch", ArchAarch},
		{"aarch64", ArchAarch64},
	}
	for _, tt := range tests {
		got, err := ParseArch(tt.in)
		if err != nil {
			t.Errorf("ParseArch(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseArch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseArch("mips"); err == nil {
		t.Error("expected an error for an unknown architecture")
	}
}

func TestArchesInOrder(t *testing.T) {
	set := ArchAarch64 | ArchX86
	got := archesIn(set)
	want := []Arch{ArchX86, ArchAarch64}
	if len(got) != len(want) {
		t.Fatalf("archesIn = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("archesIn[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPrimaryVariantsInChecksOneCoreBeforeDesktop(t *testing.T) {
	// OneCore.Desktop's manifest token contains "Desktop" as a
	// substring; a naive Desktop-first scan would misclassify it.
	got := primaryVariantsIn(VariantDesktop | VariantOneCore)
	if len(got) != 2 || got[0] != VariantOneCore || got[1] != VariantDesktop {
		t.Errorf("primaryVariantsIn = %v, want [OneCore Desktop]", got)
	}
}

func TestTargetArchFromNameChecksARM64BeforeARM(t *testing.T) {
	got := targetArchFromName("Windows SDK Desktop Libs arm64-x86_arm64_en-us.msi", true)
	if got == nil || *got != ArchAarch64 {
		t.Errorf("targetArchFromName = %v, want Aarch64", got)
	}
}

func TestTargetArchFromNameChecksX64BeforeX86(t *testing.T) {
	got := targetArchFromName("Windows SDK Desktop Libs x64-x86_en-us.msi", true)
	if got == nil || *got != ArchX8664 {
		t.Errorf("targetArchFromName = %v, want X8664", got)
	}
}

func buildTestManifest() map[string]ManifestItem {
	return map[string]ManifestItem{
		"Microsoft.VisualStudio.Product.BuildTools": {
			ID: "Microsoft.VisualStudio.Product.BuildTools",
			Dependencies: map[string]string{
				"Microsoft.VisualStudio.Component.VC.14.40.17.10.x86.x64": "1.0",
			},
		},
		"Microsoft.VC.14.40.17.10.CRT.Headers.base": {
			ID:       "Microsoft.VC.14.40.17.10.CRT.Headers.base",
			Payloads: []Payload{{FileName: "crt_headers.zip", SHA256: "aa", Size: 1, URL: "https://example/crt_headers.zip"}},
		},
		"Microsoft.VC.14.40.17.10.CRT.x64.Desktop.base": {
			ID:       "Microsoft.VC.14.40.17.10.CRT.x64.Desktop.base",
			Payloads: []Payload{{FileName: "crt_x64_desktop.zip", SHA256: "bb", Size: 1, URL: "https://example/crt_x64_desktop.zip"}},
		},
		"Microsoft.VC.14.40.17.10.CRT.x64.Store.base": {
			ID:       "Microsoft.VC.14.40.17.10.CRT.x64.Store.base",
			Payloads: []Payload{{FileName: "crt_x64_store.zip", SHA256: "cc", Size: 1, URL: "https://example/crt_x64_store.zip"}},
		},
	}
}

func TestSelectCRTFindsLatestVersionAndForcesStoreVariant(t *testing.T) {
	pkgs := buildTestManifest()
	version, payloads, err := selectCRT(pkgs, PruneOptions{Arches: ArchX8664, Variants: VariantDesktop})
	if err != nil {
		t.Fatalf("selectCRT: %v", err)
	}
	if version != "14.40.17.10" {
		t.Errorf("crt version = %q, want 14.40.17.10", version)
	}

	var sawStore bool
	for _, p := range payloads {
		if p.Kind == KindCrtLibs && p.VariantHint == nil && p.Payload.FileName == "crt_x64_store.zip" {
			sawStore = true
		}
	}
	if !sawStore {
		t.Error("expected the Store variant to be force-included even though only Desktop was requested")
	}
}

func TestSelectCRTExplicitVersionMustExist(t *testing.T) {
	pkgs := buildTestManifest()
	_, _, err := selectCRT(pkgs, PruneOptions{Arches: ArchX8664, Variants: VariantDesktop, CRTVersion: "99.99"})
	if err == nil {
		t.Fatal("expected an error for a CRT version absent from the manifest")
	}
}

func TestSelectCRTFollowsDependencyClosure(t *testing.T) {
	pkgs := buildTestManifest()
	headers := pkgs["Microsoft.VC.14.40.17.10.CRT.Headers.base"]
	headers.Dependencies = map[string]string{"Microsoft.VC.14.40.17.10.CRT.Redist.base": "1.0"}
	pkgs["Microsoft.VC.14.40.17.10.CRT.Headers.base"] = headers
	pkgs["Microsoft.VC.14.40.17.10.CRT.Redist.base"] = ManifestItem{
		ID:       "Microsoft.VC.14.40.17.10.CRT.Redist.base",
		Payloads: []Payload{{FileName: "crt_redist.msi", SHA256: "dd", Size: 1, URL: "https://example/crt_redist.msi"}},
	}

	_, payloads, err := selectCRT(pkgs, PruneOptions{Arches: ArchX8664, Variants: VariantDesktop})
	if err != nil {
		t.Fatalf("selectCRT: %v", err)
	}

	var sawRedist bool
	for _, p := range payloads {
		if p.Payload.FileName == "crt_redist.msi" {
			sawRedist = true
			if p.Kind != KindDependency {
				t.Errorf("closure payload kind = %v, want KindDependency", p.Kind)
			}
		}
	}
	if !sawRedist {
		t.Error("expected the dependency-closure walk to pull in the redist package reachable only via Dependencies")
	}
}

func TestSelectCRTDependencyClosureMissingIDIsManifestError(t *testing.T) {
	pkgs := buildTestManifest()
	headers := pkgs["Microsoft.VC.14.40.17.10.CRT.Headers.base"]
	headers.Dependencies = map[string]string{"Microsoft.VC.Nonexistent": "1.0"}
	pkgs["Microsoft.VC.14.40.17.10.CRT.Headers.base"] = headers

	_, _, err := selectCRT(pkgs, PruneOptions{Arches: ArchX8664, Variants: VariantDesktop})
	if !xwinerr.Is(err, xwinerr.KindManifest) {
		t.Fatalf("expected KindManifest for an unresolvable dependency, got %v", err)
	}
}

func TestPreferredItemChoosesEnUSOverOtherLanguages(t *testing.T) {
	items := []ManifestItem{
		{ID: "x", Language: "ja-JP", Version: "1"},
		{ID: "x", Language: "en-US", Version: "2"},
	}
	got := preferredItem(items)
	if got.Version != "2" {
		t.Errorf("preferredItem picked version %q, want the en-US copy (2)", got.Version)
	}
}

func TestPreferredItemFallsBackWhenNoPreferredLanguageMatches(t *testing.T) {
	items := []ManifestItem{
		{ID: "x", Language: "ja-JP", Version: "1"},
		{ID: "x", Language: "de-DE", Version: "2"},
	}
	got := preferredItem(items)
	if got.Version != "1" {
		t.Errorf("preferredItem = %q, want the first copy when none match", got.Version)
	}
}

func TestBuildIndexGroupsByLanguage(t *testing.T) {
	idx := buildIndex(map[string][]ManifestItem{
		"x": {
			{ID: "x", Language: "ja-JP", Version: "1"},
			{ID: "x", Language: "", Version: "2"},
		},
	})
	if idx["x"].Version != "2" {
		t.Errorf("buildIndex[x].Version = %q, want the language-neutral copy (2)", idx["x"].Version)
	}
}
