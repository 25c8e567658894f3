// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package symlink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayerCreatesFixedAliasWhenCanonicalPresent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "basetsd.h"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if err := Layer(dir, FixedHeaderAliases, Options{}); err != nil {
		t.Fatalf("Layer: %v", err)
	}

	insensitive, err := probeCaseInsensitive(dir)
	if err != nil {
		t.Fatalf("probeCaseInsensitive: %v", err)
	}
	if insensitive {
		t.Skip("test filesystem is case-insensitive; alias would be redundant")
	}

	if _, err := os.Lstat(filepath.Join(dir, "BaseTsd.h")); err != nil {
		t.Errorf("expected BaseTsd.h alias to exist: %v", err)
	}
}

func TestLayerSkipsWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "basetsd.h"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := Layer(dir, FixedHeaderAliases, Options{Disable: true}); err != nil {
		t.Fatalf("Layer: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dir, "BaseTsd.h")); err == nil {
		t.Error("expected no alias to be created when disabled")
	}
}

func TestUppercaseLibAliasSkipsNonLibFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "foo.h"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := UppercaseLibAlias(dir, "foo.h", Options{}); err != nil {
		t.Fatalf("UppercaseLibAlias: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dir, "FOO.H")); err == nil {
		t.Error("expected no alias for a non-.lib file")
	}
}
