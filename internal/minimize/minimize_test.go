// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package minimize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func writeTrace(t *testing.T, path string, opened []string) {
	t.Helper()
	var out string
	for _, p := range opened {
		out += fmt.Sprintf(`1234 openat(AT_FDCWD, "%s", O_RDONLY) = 3 <0.000012>`+"\n", p)
	}
	out += `1234 openat(AT_FDCWD, "/does/not/exist.h", O_RDONLY) = -1 ENOENT (No such file or directory) <0.000003>` + "\n"
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		t.Fatalf("writing trace: %v", err)
	}
}

func TestRunWritesUsageMapForOpenedFiles(t *testing.T) {
	root := t.TempDir()
	crt := filepath.Join(root, "crt")
	sdk := filepath.Join(root, "sdk")

	writeFile(t, filepath.Join(crt, "include", "stdio.h"), "used\n")
	writeFile(t, filepath.Join(crt, "include", "unused.h"), "not used\n")
	writeFile(t, filepath.Join(crt, "lib", "x86_64", "libcmt.lib"), "used lib\n")
	writeFile(t, filepath.Join(sdk, "include", "windows.h"), "used sdk header\n")
	writeFile(t, filepath.Join(sdk, "lib", "um", "x86_64", "kernel32.lib"), "used sdk lib\n")

	tracePath := filepath.Join(root, "trace.log")
	writeTrace(t, tracePath, []string{
		filepath.Join(crt, "include", "stdio.h"),
		filepath.Join(crt, "lib", "x86_64", "libcmt.lib"),
		filepath.Join(sdk, "include", "windows.h"),
		filepath.Join(sdk, "lib", "um", "x86_64", "kernel32.lib"),
	})

	mapPath := filepath.Join(root, "used.yaml")
	results, err := Run(Config{
		TracePath: tracePath,
		CRT:       crt,
		SDK:       sdk,
		MapPath:   mapPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if results.CRTHeaders.Used.Count != 1 {
		t.Errorf("crt headers used = %d, want 1", results.CRTHeaders.Used.Count)
	}
	if results.CRTHeaders.Total.Count != 2 {
		t.Errorf("crt headers total = %d, want 2", results.CRTHeaders.Total.Count)
	}
	if results.CRTLibs.Used.Count != 1 {
		t.Errorf("crt libs used = %d, want 1", results.CRTLibs.Used.Count)
	}
	if results.SDKHeaders.Used.Count != 1 {
		t.Errorf("sdk headers used = %d, want 1", results.SDKHeaders.Used.Count)
	}
	if results.SDKLibs.Used.Count != 1 {
		t.Errorf("sdk libs used = %d, want 1", results.SDKLibs.Used.Count)
	}

	m, err := LoadMap(mapPath)
	if err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	if !m.Allows(CRTHeader, "stdio.h") {
		t.Errorf("expected stdio.h to be allowed")
	}
	if m.Allows(CRTHeader, "unused.h") {
		t.Errorf("expected unused.h to not be allowed")
	}
	if !m.Allows(SDKHeader, "windows.h") {
		t.Errorf("expected windows.h to be allowed")
	}
	if !m.Allows(SDKLib, filepath.ToSlash(filepath.Join("um", "x86_64", "kernel32.lib"))) {
		t.Errorf("expected kernel32.lib to be allowed")
	}
}

func TestRunMergesSymlinkAliasesIntoUsageMap(t *testing.T) {
	root := t.TempDir()
	crt := filepath.Join(root, "crt")

	writeFile(t, filepath.Join(crt, "lib", "x86_64", "msvcrt.lib"), "real lib\n")
	alias := filepath.Join(crt, "lib", "x86_64", "MSVCRT.lib")
	if err := os.Symlink("msvcrt.lib", alias); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tracePath := filepath.Join(root, "trace.log")
	writeTrace(t, tracePath, []string{alias})

	mapPath := filepath.Join(root, "used.yaml")
	if _, err := Run(Config{
		TracePath: tracePath,
		CRT:       crt,
		SDK:       filepath.Join(root, "sdk"),
		MapPath:   mapPath,
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(mapPath)
	if err != nil {
		t.Fatalf("reading map: %v", err)
	}
	if !strings.Contains(string(data), "msvcrt.lib") {
		t.Errorf("expected map to reference msvcrt.lib, got:\n%s", data)
	}
	if !strings.Contains(string(data), "MSVCRT.lib") {
		t.Errorf("expected map to record MSVCRT.lib as a symlink alias, got:\n%s", data)
	}
}

func TestAllowsWithNilMapAllowsEverything(t *testing.T) {
	var m *UsageMap
	if !m.Allows(CRTHeader, "anything.h") {
		t.Errorf("nil usage map should allow everything")
	}
}

func TestRunRequiresTracePath(t *testing.T) {
	root := t.TempDir()
	_, err := Run(Config{
		CRT: filepath.Join(root, "crt"),
		SDK: filepath.Join(root, "sdk"),
	})
	if err == nil {
		t.Fatalf("expected an error for a missing --trace path")
	}
}
