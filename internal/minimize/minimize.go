// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package minimize figures out the subset of a splatted sysroot that a
// particular build actually touches. It consumes a trace of that
// build's file opens -- captured externally, e.g. with
// "strace -f -e trace=openat -o trace.log -- <build command>" -- rather
// than driving the build itself, since xwin has no opinion about which
// compiler or build system produced the trace. The result is a usage
// map that "xwin splat --map" can later consume to emit only the files
// a real build needed.
package minimize

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crosswin/xwin/internal/xwinerr"
)

// Kind is the section of the sysroot a used path belongs to.
type Kind int

const (
	CRTHeader Kind = iota
	CRTLib
	SDKHeader
	SDKLib
)

// FileCounts tallies bytes and file count for one section.
type FileCounts struct {
	Bytes int64
	Count int
}

// FileNumbers pairs the total size of a section against the subset a
// build actually used.
type FileNumbers struct {
	Total FileCounts
	Used  FileCounts
}

// Results summarizes how much of the sysroot a build needed.
type Results struct {
	CRTHeaders FileNumbers
	CRTLibs    FileNumbers
	SDKHeaders FileNumbers
	SDKLibs    FileNumbers
}

// Config controls one minimize run.
type Config struct {
	// TracePath is the strace output to parse, produced externally by
	// running the build once under "strace -f -e trace=openat".
	TracePath string

	// CRT, SDK are a splatted sysroot's crt/ and sdk/ directories.
	CRT string
	SDK string

	// SDKVersion names the Windows SDK version directory, used to
	// strip the right prefix when --use-winsysroot-style was passed to
	// splat.
	SDKVersion string

	// MapPath is where the usage map is written, as YAML. Any existing
	// content is replaced, not merged: a stale entry from a previous
	// build that's no longer reachable should disappear rather than
	// accumulate forever.
	MapPath string
}

type usedRecord struct {
	kind    Kind
	aliases map[string]bool
	size    int64
}

// sectionMap is the on-disk shape of the map file: one list of
// relative paths (plus any symlink aliases that reference them) per
// section.
type sectionMap struct {
	Filter   []string            `yaml:"filter"`
	Symlinks map[string][]string `yaml:"symlinks,omitempty"`
}

type mapFile struct {
	CRT struct {
		Headers sectionMap `yaml:"headers"`
		Libs    sectionMap `yaml:"libs"`
	} `yaml:"crt"`
	SDK struct {
		Headers sectionMap `yaml:"headers"`
		Libs    sectionMap `yaml:"libs"`
	} `yaml:"sdk"`
}

// UsageMap is a loaded usage map, indexed for fast membership checks.
// internal/splat consumes this to restrict what it emits into a
// minimized sysroot.
type UsageMap struct {
	CRTHeaders map[string]bool
	CRTLibs    map[string]bool
	SDKHeaders map[string]bool
	SDKLibs    map[string]bool
}

// Allows reports whether the relative path rel, in the given section,
// was recorded as used.
func (m *UsageMap) Allows(kind Kind, rel string) bool {
	if m == nil {
		return true
	}
	var set map[string]bool
	switch kind {
	case CRTHeader:
		set = m.CRTHeaders
	case CRTLib:
		set = m.CRTLibs
	case SDKHeader:
		set = m.SDKHeaders
	case SDKLib:
		set = m.SDKLibs
	}
	return set[filepath.ToSlash(rel)]
}

// LoadMap reads a usage map previously written by Run.
func LoadMap(path string) (*UsageMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindUser, err, "reading usage map %s", path)
	}
	var m mapFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindUser, err, "decoding usage map %s", path)
	}
	return &UsageMap{
		CRTHeaders: toSet(m.CRT.Headers.Filter),
		CRTLibs:    toSet(m.CRT.Libs.Filter),
		SDKHeaders: toSet(m.SDK.Headers.Filter),
		SDKLibs:    toSet(m.SDK.Libs.Filter),
	}, nil
}

func toSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[filepath.ToSlash(p)] = true
	}
	return set
}

// Run parses cfg.TracePath for every file a traced build successfully
// opened under the CRT or SDK roots, writes the resulting usage map to
// cfg.MapPath, and reports how much of the sysroot the build needed
// against its total size.
func Run(cfg Config) (*Results, error) {
	crtRoot, err := filepath.Abs(cfg.CRT)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindUser, err, "resolving crt root")
	}
	sdkRoot, err := filepath.Abs(cfg.SDK)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindUser, err, "resolving sdk root")
	}

	used, err := parseTrace(cfg.TracePath, crtRoot, sdkRoot)
	if err != nil {
		return nil, err
	}

	crtSymlinks, err := walkSymlinks(crtRoot)
	if err != nil {
		return nil, err
	}
	sdkSymlinks, err := walkSymlinks(sdkRoot)
	if err != nil {
		return nil, err
	}
	mergeSymlinks(used, crtSymlinks)
	mergeSymlinks(used, sdkSymlinks)

	totalCRTHeaders, totalCRTLibs, err := walkTotals(crtRoot)
	if err != nil {
		return nil, err
	}
	totalSDKHeaders, totalSDKLibs, err := walkTotals(sdkRoot)
	if err != nil {
		return nil, err
	}

	if cfg.MapPath != "" {
		if err := writeMap(cfg, used, crtRoot, sdkRoot); err != nil {
			return nil, err
		}
	}

	results := &Results{
		CRTHeaders: FileNumbers{Total: totalCRTHeaders, Used: usedCounts(used, CRTHeader)},
		CRTLibs:    FileNumbers{Total: totalCRTLibs, Used: usedCounts(used, CRTLib)},
		SDKHeaders: FileNumbers{Total: totalSDKHeaders, Used: usedCounts(used, SDKHeader)},
		SDKLibs:    FileNumbers{Total: totalSDKLibs, Used: usedCounts(used, SDKLib)},
	}
	return results, nil
}

var openatRe = regexp.MustCompile(`openat\(AT_FDCWD, "([^"]*)"`)

// parseTrace reads an strace log produced by "-e trace=openat",
// skipping calls that failed with ENOENT, and classifies the
// successfully-opened paths under crtRoot/sdkRoot by section,
// accumulating their sizes.
func parseTrace(tracePath, crtRoot, sdkRoot string) (map[string]*usedRecord, error) {
	if tracePath == "" {
		return nil, xwinerr.New(xwinerr.KindUser, "minimize requires --trace pointing at a captured strace log")
	}

	f, err := os.Open(tracePath)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindUser, err, "opening trace file %s", tracePath)
	}
	defer f.Close()

	used := make(map[string]*usedRecord)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ENOENT") {
			continue
		}
		m := openatRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		recordOpen(used, m[1], crtRoot, sdkRoot)
	}
	if err := scanner.Err(); err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindInternal, err, "reading trace file %s", tracePath)
	}
	return used, nil
}

func recordOpen(used map[string]*usedRecord, path, crtRoot, sdkRoot string) {
	isSDK := strings.HasPrefix(path, sdkRoot)
	isCRT := !isSDK && strings.HasPrefix(path, crtRoot)
	if !isSDK && !isCRT {
		return
	}

	target := path
	var alias string
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := os.Readlink(path); err == nil {
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(filepath.Dir(path), resolved)
			}
			target = resolved
			alias = filepath.Base(path)
		}
	}

	kind, ok := classifyExt(target, isSDK)
	if !ok {
		return
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	rec, ok := used[target]
	if !ok {
		rec = &usedRecord{kind: kind, aliases: make(map[string]bool), size: info.Size()}
		used[target] = rec
	}
	if alias != "" {
		rec.aliases[alias] = true
	}
}

func classifyExt(path string, isSDK bool) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case "", ".h", ".hpp", ".idl":
		if isSDK {
			return SDKHeader, true
		}
		return CRTHeader, true
	case ".lib":
		if isSDK {
			return SDKLib, true
		}
		return CRTLib, true
	default:
		return 0, false
	}
}

// walkSymlinks indexes every symlink under root by its resolved
// target, so Run can conservatively treat all aliases of a used file
// as used too -- a trace doesn't always observe every alias a linker
// dereferences.
func walkSymlinks(root string) (map[string][]string, error) {
	out := make(map[string][]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		resolved, err := os.Readlink(path)
		if err != nil {
			return nil
		}
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(path), resolved)
		}
		out[resolved] = append(out[resolved], filepath.Base(path))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, xwinerr.Wrap(xwinerr.KindFilesystem, err, "walking %s for symlinks", root)
	}
	return out, nil
}

func mergeSymlinks(used map[string]*usedRecord, symlinks map[string][]string) {
	for target, aliases := range symlinks {
		rec, ok := used[target]
		if !ok {
			continue
		}
		for _, a := range aliases {
			rec.aliases[a] = true
		}
	}
}

func walkTotals(root string) (headers, libs FileCounts, err error) {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case "", ".h", ".hpp", ".idl":
			headers.Bytes += info.Size()
			headers.Count++
		case ".lib":
			libs.Bytes += info.Size()
			libs.Count++
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return headers, libs, xwinerr.Wrap(xwinerr.KindFilesystem, walkErr, "walking %s", root)
	}
	return headers, libs, nil
}

func usedCounts(used map[string]*usedRecord, kind Kind) FileCounts {
	var c FileCounts
	for _, rec := range used {
		if rec.kind == kind {
			c.Bytes += rec.size
			c.Count++
		}
	}
	return c
}

func writeMap(cfg Config, used map[string]*usedRecord, crtRoot, sdkRoot string) error {
	sdkHeaderPrefix := filepath.Join(sdkRoot, "include", cfg.SDKVersion)
	if _, err := os.Stat(sdkHeaderPrefix); err != nil {
		sdkHeaderPrefix = filepath.Join(sdkRoot, "include")
	}
	crtHeaderPrefix := filepath.Join(crtRoot, "include")
	crtLibPrefix := filepath.Join(crtRoot, "lib")
	sdkLibPrefix := filepath.Join(sdkRoot, "lib", cfg.SDKVersion)
	if _, err := os.Stat(sdkLibPrefix); err != nil {
		sdkLibPrefix = filepath.Join(sdkRoot, "lib")
	}

	var m mapFile
	for path, rec := range used {
		var prefix string
		var section *sectionMap
		switch rec.kind {
		case CRTHeader:
			prefix, section = crtHeaderPrefix, &m.CRT.Headers
		case CRTLib:
			prefix, section = crtLibPrefix, &m.CRT.Libs
		case SDKHeader:
			prefix, section = sdkHeaderPrefix, &m.SDK.Headers
		case SDKLib:
			prefix, section = sdkLibPrefix, &m.SDK.Libs
		}
		rel, err := filepath.Rel(prefix, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		section.Filter = append(section.Filter, rel)
		if len(rec.aliases) > 0 {
			if section.Symlinks == nil {
				section.Symlinks = make(map[string][]string)
			}
			var aliases []string
			for a := range rec.aliases {
				aliases = append(aliases, a)
			}
			sort.Strings(aliases)
			section.Symlinks[rel] = aliases
		}
	}
	sortSection(&m.CRT.Headers)
	sortSection(&m.CRT.Libs)
	sortSection(&m.SDK.Headers)
	sortSection(&m.SDK.Libs)

	data, err := yaml.Marshal(&m)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindInternal, err, "encoding minimize map")
	}
	if err := os.WriteFile(cfg.MapPath, data, 0o644); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing minimize map %s", cfg.MapPath)
	}
	return nil
}

func sortSection(s *sectionMap) {
	sort.Strings(s.Filter)
}
