// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package splat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crosswin/xwin/internal/manifest"
	"github.com/crosswin/xwin/internal/unpack"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestRunSplatsCrtHeaders(t *testing.T) {
	unpackDir := writeTree(t, map[string]string{
		"include/stdio.h": "int printf();",
	})
	out := t.TempDir()

	e, err := New(Config{Output: out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	items := []Item{{
		Kind:     manifest.KindCrtHeaders,
		Unpacked: &unpack.Result{Dir: unpackDir},
	}}
	if err := e.Run(items); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(out, "crt", "include", "stdio.h"))
	if err != nil {
		t.Fatalf("reading splatted header: %v", err)
	}
	if string(got) != "int printf();" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestRunLowercasesSdkLibNames(t *testing.T) {
	unpackDir := writeTree(t, map[string]string{
		"lib/um/x86_64/Kernel32.Lib": "stub",
	})
	out := t.TempDir()
	arch := manifest.ArchX8664

	e, err := New(Config{Output: out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items := []Item{{
		Kind:       manifest.KindSdkLibs,
		TargetArch: &arch,
		Unpacked:   &unpack.Result{Dir: unpackDir},
	}}
	if err := e.Run(items); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "sdk", "lib", "um", "x86_64", "kernel32.lib")); err != nil {
		t.Errorf("expected lowercased lib name: %v", err)
	}
}

func TestRunSkipsDebugLibsByDefault(t *testing.T) {
	unpackDir := writeTree(t, map[string]string{
		"lib/x86_64/libcpmtd.lib": "debug stub",
		"lib/x86_64/libcpmt.lib":  "release stub",
	})
	out := t.TempDir()
	arch := manifest.ArchX8664

	e, err := New(Config{Output: out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items := []Item{{
		Kind:       manifest.KindCrtLibs,
		TargetArch: &arch,
		Unpacked:   &unpack.Result{Dir: unpackDir},
	}}
	if err := e.Run(items); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "crt", "lib", "x86_64", "libcpmt.lib")); err != nil {
		t.Errorf("expected release lib to be splatted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "crt", "lib", "x86_64", "libcpmtd.lib")); err == nil {
		t.Error("expected debug lib to be filtered by default")
	}
}

func TestRunDetectsDuplicateContentConflict(t *testing.T) {
	dirA := writeTree(t, map[string]string{"include/foo.h": "version A"})
	dirB := writeTree(t, map[string]string{"include/foo.h": "version B"})
	out := t.TempDir()

	e, err := New(Config{Output: out, Copy: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items := []Item{
		{Kind: manifest.KindCrtHeaders, Unpacked: &unpack.Result{Dir: dirA}},
		{Kind: manifest.KindCrtHeaders, Unpacked: &unpack.Result{Dir: dirB}},
	}
	if err := e.Run(items); err == nil {
		t.Fatal("expected a duplicate-content conflict")
	}
}
