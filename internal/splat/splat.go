// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package splat assembles the unpacked CRT, ATL, and SDK trees into a
// single cross-compilation sysroot: classifying each unpacked payload
// by kind, filtering debug artifacts the caller didn't ask for,
// canonicalizing every output path, deduplicating identical content
// that legitimately appears under more than one source package, and
// emitting the result with a fixed-point include scanner that patches
// over the SDK headers' internally inconsistent casing.
package splat

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/crosswin/xwin/internal/manifest"
	"github.com/crosswin/xwin/internal/minimize"
	"github.com/crosswin/xwin/internal/symlink"
	"github.com/crosswin/xwin/internal/unpack"
	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/content"
)

// Config controls how the splat engine lays out its output tree.
type Config struct {
	Output              string
	Arches              manifest.Arch
	Variants            manifest.Variant
	IncludeDebugLibs    bool
	IncludeDebugSymbols bool
	DisableSymlinks     bool
	PreserveMSLayout    bool
	UseWinsysrootStyle  bool
	Copy                bool
	SDKVersion          string

	// UsageMap, if set, restricts emission to headers and libraries a
	// prior "xwin minimize" run recorded as actually used by a real
	// build; anything else classify would normally emit is skipped.
	UsageMap *minimize.UsageMap
}

// Item is one unpacked payload ready to be splatted: the classification
// metadata Prune attached, plus the tree Run wrote it to.
type Item struct {
	Kind        manifest.PayloadKind
	TargetArch  *manifest.Arch
	VariantHint *manifest.Variant
	Unpacked    *unpack.Result
}

// roots is the pair of directories every mapping resolves relative to.
type roots struct {
	crt string
	sdk string
}

// Engine runs the splat pipeline over a fixed set of unpacked items.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	byPathKey map[[32]byte]pathRecord // blake3(path) -> canonical path + content digest
	whitelist map[string]bool
	patches   []content.Patch
	warnings  []string
}

// pathRecord pairs a canonical splat output path with the SHA-256
// digest of the content last written there, keyed in byPathKey by a
// BLAKE3 hash of the path itself -- a fast, fixed-size key that lets
// Deduplication short-circuit on a simple map lookup before falling
// back to the SHA-256 content comparison that decides whether a second
// writer to the same path is a harmless re-splat or a real conflict.
type pathRecord struct {
	path   string
	digest [32]byte
}

// New constructs an Engine, loading the embedded patch set and
// duplicate-path whitelist once up front.
func New(cfg Config) (*Engine, error) {
	whitelist, err := content.DuplicateWhitelist()
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindInternal, err, "loading duplicate-path whitelist")
	}
	patches, err := content.Patches()
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindInternal, err, "loading header patch set")
	}
	return &Engine{cfg: cfg, byPathKey: make(map[[32]byte]pathRecord), whitelist: whitelist, patches: patches}, nil
}

// Run classifies, filters, deduplicates, and emits every item, then
// runs the include-scanning fixed point and applies the embedded
// textual patches. Emission is single-threaded and idempotent: a rerun
// against an output tree that already has a file at a given canonical
// path with matching content is a no-op for that file.
func (e *Engine) Run(items []Item) error {
	if err := e.prepareRoots(); err != nil {
		return err
	}
	r := roots{crt: e.crtRoot(), sdk: e.sdkRoot()}

	for _, item := range items {
		mappings, err := classify(item, r, e.cfg)
		if err != nil {
			return err
		}
		for _, m := range mappings {
			if err := e.emitMapping(m); err != nil {
				return err
			}
		}
	}

	if err := e.scanIncludesFixedPoint(r); err != nil {
		return err
	}
	if err := e.applyPatches(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) crtRoot() string {
	if e.cfg.PreserveMSLayout {
		return filepath.Join(e.cfg.Output, "VC", "Tools", "MSVC")
	}
	return filepath.Join(e.cfg.Output, "crt")
}

func (e *Engine) sdkRoot() string {
	if e.cfg.PreserveMSLayout {
		return filepath.Join(e.cfg.Output, "Windows Kits", "10")
	}
	return filepath.Join(e.cfg.Output, "sdk")
}

func (e *Engine) prepareRoots() error {
	if err := os.MkdirAll(e.crtRoot(), 0o755); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating CRT output directory")
	}
	if err := os.MkdirAll(e.sdkRoot(), 0o755); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating SDK output directory")
	}
	return nil
}

// mapping is one source subtree paired with its canonicalized output
// directory, alongside the metadata the filter and symlink stages need.
type mapping struct {
	srcDir string
	tarDir string
	kind   manifest.PayloadKind
	arch   *manifest.Arch
}

// classify implements the path-canonicalization table: each
// PayloadKind maps its unpacked subtree to a fixed location under the
// CRT or SDK root, branching on architecture and variant the same way
// the manifest selection stage branched when it picked the payload.
func classify(item Item, r roots, cfg Config) ([]mapping, error) {
	dir := item.Unpacked.Dir

	switch item.Kind {
	case manifest.KindCrtHeaders, manifest.KindAtlHeaders:
		return []mapping{{
			srcDir: filepath.Join(dir, "include"),
			tarDir: filepath.Join(r.crt, "include"),
			kind:   item.Kind,
		}}, nil

	case manifest.KindAtlLibs:
		if item.TargetArch == nil {
			return nil, xwinerr.New(xwinerr.KindInternal, "ATL libs payload missing target architecture")
		}
		return []mapping{{
			srcDir: filepath.Join(dir, "lib", item.TargetArch.String()),
			tarDir: filepath.Join(r.crt, "lib", item.TargetArch.String()),
			kind:   item.Kind,
			arch:   item.TargetArch,
		}}, nil

	case manifest.KindCrtLibs:
		if item.TargetArch == nil {
			return nil, xwinerr.New(xwinerr.KindInternal, "CRT libs payload missing target architecture")
		}
		sub := ""
		if item.VariantHint != nil && *item.VariantHint == manifest.VariantOneCore {
			sub = "onecore"
		}
		src := filepath.Join(dir, "lib")
		tar := filepath.Join(r.crt, "lib")
		if sub != "" {
			src = filepath.Join(src, sub)
			tar = filepath.Join(tar, sub)
		}
		return []mapping{{
			srcDir: filepath.Join(src, item.TargetArch.String()),
			tarDir: filepath.Join(tar, item.TargetArch.String()),
			kind:   item.Kind,
			arch:   item.TargetArch,
		}}, nil

	case manifest.KindSdkHeaders:
		tar := filepath.Join(r.sdk, "include")
		if cfg.UseWinsysrootStyle && cfg.SDKVersion != "" {
			tar = filepath.Join(tar, cfg.SDKVersion)
		}
		return []mapping{{
			srcDir: filepath.Join(dir, "include"),
			tarDir: tar,
			kind:   item.Kind,
		}}, nil

	case manifest.KindSdkLibs:
		if item.TargetArch == nil {
			return nil, xwinerr.New(xwinerr.KindInternal, "SDK libs payload missing target architecture")
		}
		tar := filepath.Join(r.sdk, "lib")
		if cfg.UseWinsysrootStyle && cfg.SDKVersion != "" {
			tar = filepath.Join(tar, cfg.SDKVersion)
		}
		return []mapping{{
			srcDir: filepath.Join(dir, "lib", "um", item.TargetArch.String()),
			tarDir: filepath.Join(tar, "um", item.TargetArch.String()),
			kind:   item.Kind,
			arch:   item.TargetArch,
		}}, nil

	case manifest.KindSdkStoreLibs:
		tar := filepath.Join(r.sdk, "lib")
		if cfg.UseWinsysrootStyle && cfg.SDKVersion != "" {
			tar = filepath.Join(tar, cfg.SDKVersion)
		}
		var out []mapping
		for _, arch := range archesOf(cfg.Arches) {
			a := arch
			out = append(out, mapping{
				srcDir: filepath.Join(dir, "lib", "um", arch.String()),
				tarDir: filepath.Join(tar, "um", arch.String()),
				kind:   item.Kind,
				arch:   &a,
			})
		}
		return out, nil

	case manifest.KindUcrt:
		tar := filepath.Join(r.sdk, "include")
		if cfg.UseWinsysrootStyle && cfg.SDKVersion != "" {
			tar = filepath.Join(tar, cfg.SDKVersion)
		}
		out := []mapping{{
			srcDir: filepath.Join(dir, "include", "ucrt"),
			tarDir: filepath.Join(tar, "ucrt"),
			kind:   item.Kind,
		}}

		libTar := filepath.Join(r.sdk, "lib")
		if cfg.UseWinsysrootStyle && cfg.SDKVersion != "" {
			libTar = filepath.Join(libTar, cfg.SDKVersion)
		}
		for _, arch := range archesOf(cfg.Arches) {
			a := arch
			out = append(out, mapping{
				srcDir: filepath.Join(dir, "lib", "ucrt", arch.String()),
				tarDir: filepath.Join(libTar, "ucrt", arch.String()),
				kind:   item.Kind,
				arch:   &a,
			})
		}
		return out, nil

	case manifest.KindDependency:
		// A dependency-closure payload has no fixed home in the sysroot
		// layout; it's downloaded and unpacked for completeness (some
		// dependents assume its files exist alongside them) but never
		// splatted on its own.
		return nil, nil

	default:
		return nil, xwinerr.New(xwinerr.KindInternal, "unclassified payload kind %v", item.Kind)
	}
}

var allArches = []manifest.Arch{manifest.ArchX86, manifest.ArchX8664, manifest.ArchAarch, manifest.ArchAarch64}

func archesOf(set manifest.Arch) []manifest.Arch {
	var out []manifest.Arch
	for _, a := range allArches {
		if set&a != 0 {
			out = append(out, a)
		}
	}
	return out
}

// emitMapping walks m.srcDir (as recorded by the unpack witness under
// m.kind's item) and moves or copies each file into m.tarDir,
// filtering debug artifacts and running the dedup check first.
func (e *Engine) emitMapping(m mapping) error {
	entries, err := os.ReadDir(m.srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "reading unpacked directory %s", m.srcDir)
	}

	if err := os.MkdirAll(m.tarDir, 0o755); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating splat output directory %s", m.tarDir)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			if err := e.emitMapping(mapping{
				srcDir: filepath.Join(m.srcDir, entry.Name()),
				tarDir: filepath.Join(m.tarDir, entry.Name()),
				kind:   m.kind,
				arch:   m.arch,
			}); err != nil {
				return err
			}
			continue
		}

		name := entry.Name()
		if e.shouldSkip(m.kind, name) {
			continue
		}

		destName := canonicalName(m.kind, name)
		srcPath := filepath.Join(m.srcDir, name)
		dstPath := filepath.Join(m.tarDir, destName)

		if e.skippedByUsageMap(dstPath, destName) {
			continue
		}

		if err := e.emitFile(srcPath, dstPath); err != nil {
			return err
		}

		if !e.cfg.DisableSymlinks {
			e.addCompatAliases(m.kind, m.tarDir, name, destName)
		}
	}
	return nil
}

// shouldSkip implements the Filtering stage: PDBs are dropped unless
// --include-debug-symbols was given, and CRT/UCRT debug-flavored
// import libraries (names ending in a lowercase "d", optionally before
// a trailing digit or "_netcore") are dropped unless
// --include-debug-libs was given.
func (e *Engine) shouldSkip(kind manifest.PayloadKind, name string) bool {
	if !e.cfg.IncludeDebugSymbols && strings.EqualFold(filepath.Ext(name), ".pdb") {
		return true
	}
	if e.cfg.IncludeDebugLibs || (kind != manifest.KindCrtLibs && kind != manifest.KindUcrt) {
		return false
	}
	stem, ok := strings.CutSuffix(name, ".lib")
	if !ok {
		return false
	}
	stem = strings.TrimSuffix(stem, "_netcore")
	stem = strings.TrimRight(stem, "0123456789")
	return strings.HasSuffix(stem, "d")
}

// skippedByUsageMap implements the minimized-splat path: when
// cfg.UsageMap is set, a header or library that the traced build never
// opened is dropped just like a debug artifact shouldSkip would drop.
// Extensions the usage map doesn't track (anything that isn't a header
// or a .lib) are always kept -- "xwin minimize" never recorded an
// opinion about them.
func (e *Engine) skippedByUsageMap(dstPath, destName string) bool {
	if e.cfg.UsageMap == nil {
		return false
	}

	isSDK := strings.HasPrefix(dstPath, e.sdkRoot())
	sdkHeaderPrefix := filepath.Join(e.sdkRoot(), "include")
	sdkLibPrefix := filepath.Join(e.sdkRoot(), "lib")
	if e.cfg.UseWinsysrootStyle && e.cfg.SDKVersion != "" {
		sdkHeaderPrefix = filepath.Join(sdkHeaderPrefix, e.cfg.SDKVersion)
		sdkLibPrefix = filepath.Join(sdkLibPrefix, e.cfg.SDKVersion)
	}

	var kind minimize.Kind
	var prefix string
	switch ext := strings.ToLower(filepath.Ext(destName)); ext {
	case "", ".h", ".hpp", ".idl":
		if isSDK {
			kind, prefix = minimize.SDKHeader, sdkHeaderPrefix
		} else {
			kind, prefix = minimize.CRTHeader, filepath.Join(e.crtRoot(), "include")
		}
	case ".lib":
		if isSDK {
			kind, prefix = minimize.SDKLib, sdkLibPrefix
		} else {
			kind, prefix = minimize.CRTLib, filepath.Join(e.crtRoot(), "lib")
		}
	default:
		return false
	}

	rel, err := filepath.Rel(prefix, dstPath)
	if err != nil {
		return false
	}
	return !e.cfg.UsageMap.Allows(kind, rel)
}

// canonicalName implements the Lowercasing stage: SDK libraries are
// notoriously inconsistent about case (including the ".lib"/".Lib"
// extension itself), so every SDK library name is folded to lowercase
// on the way into the output tree. CRT and header names keep their
// original case; the include scanner reconciles those separately.
func canonicalName(kind manifest.PayloadKind, name string) string {
	if kind == manifest.KindSdkLibs || kind == manifest.KindSdkStoreLibs {
		return strings.ToLower(name)
	}
	return name
}

// addCompatAliases creates the small set of alternate-case names some
// consumers link against, per the fixed alias tables in
// internal/symlink.
func (e *Engine) addCompatAliases(kind manifest.PayloadKind, dir, srcName, destName string) {
	opts := symlink.Options{Disable: e.cfg.DisableSymlinks}
	switch kind {
	case manifest.KindCrtLibs:
		_ = symlink.Layer(dir, symlink.FixedLibAliases, opts)
	case manifest.KindSdkHeaders, manifest.KindUcrt:
		_ = symlink.Layer(dir, symlink.FixedHeaderAliases, opts)
	case manifest.KindSdkLibs, manifest.KindSdkStoreLibs:
		_ = symlink.UppercaseLibAlias(dir, destName, opts)
	}
	_ = srcName
}

// emitFile implements Deduplication and Emission together: it hashes
// the source file with SHA-256 and records that digest under a BLAKE3
// hash of the canonical output path, so a repeat write of identical
// content to that path (or to an existing output file with the same
// SHA-256) is a no-op. A second write to
// the same canonical path with different content is a
// DuplicateContentConflict unless the path is in the embedded
// whitelist, in which case the first writer wins and later writers are
// dropped.
func (e *Engine) emitFile(srcPath, dstPath string) error {
	digest, err := sha256File(srcPath)
	if err != nil {
		return err
	}

	relKey := filepath.ToSlash(dstPath)
	key := blake3PathKey(relKey)

	e.mu.Lock()
	existing, seen := e.byPathKey[key]
	if !seen {
		e.byPathKey[key] = pathRecord{path: relKey, digest: digest}
	}
	e.mu.Unlock()

	if seen {
		if existing.path != relKey {
			return xwinerr.New(xwinerr.KindInternal, "BLAKE3 path-key collision between %q and %q", existing.path, relKey)
		}
		if existing.digest == digest {
			return nil
		}
		if rel, err := filepath.Rel(e.cfg.Output, dstPath); err == nil && e.whitelist[strings.ToLower(filepath.ToSlash(rel))] {
			return nil
		}
		return xwinerr.New(xwinerr.KindDuplicateContentConflict,
			"%s: content differs between packages that both splat this path", dstPath)
	}

	if _, err := os.Stat(dstPath); err == nil {
		if existingDigest, err := sha256File(dstPath); err == nil && existingDigest == digest {
			return nil
		}
	}

	if e.cfg.Copy {
		return copyFile(srcPath, dstPath)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		if linkErr, ok := err.(*os.LinkError); ok && linkErr.Err != nil {
			return copyFile(srcPath, dstPath)
		}
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "moving %s to %s", srcPath, dstPath)
	}
	return nil
}

// blake3PathKey hashes a canonical splat output path into the fixed-size
// key byPathKey is indexed by.
func blake3PathKey(relKey string) [32]byte {
	h := blake3.New()
	_, _ = io.WriteString(h, strings.ToLower(relKey))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func sha256File(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, xwinerr.Wrap(xwinerr.KindFilesystem, err, "opening %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, xwinerr.Wrap(xwinerr.KindFilesystem, err, "hashing %s", path)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "opening %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "creating %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return xwinerr.Wrap(xwinerr.KindFilesystem, err, "copying %s to %s", src, dst)
	}
	return nil
}

var includeRe = regexp.MustCompile(`#include\s*[<"]([^">]+)[">]`)

// includeScanRoots fixes the order the fixed-point include scanner
// walks the SDK's top-level include directories in, so that a header
// present under more than one root resolves the same way across runs.
var includeScanRoots = []string{"shared", "um", "ucrt", "winrt", "cppwinrt"}

// scanIncludesFixedPoint implements the Include scanner stage: it
// repeatedly scans every emitted header for #include directives,
// resolves each referenced path case-insensitively against the files
// actually on disk, and adds a symlink alias whenever the reference's
// case doesn't match the canonical file. Because adding an alias can
// itself be followed by another header (an alias resolving to a header
// that in turn includes something not yet aliased), the scan repeats
// until a full pass adds nothing new.
func (e *Engine) scanIncludesFixedPoint(r roots) error {
	incRoot := filepath.Join(r.sdk, "include")
	if _, err := os.Stat(incRoot); os.IsNotExist(err) {
		return nil
	}

	index, err := buildCaseIndex(incRoot)
	if err != nil {
		return err
	}

	for {
		added, err := e.scanIncludesOnce(incRoot, index)
		if err != nil {
			return err
		}
		if added == 0 {
			return nil
		}
	}
}

// buildCaseIndex maps every lowercased relative header path under root
// to its actual on-disk relative path, visiting includeScanRoots in a
// fixed order so a header duplicated under more than one root
// (Desktop vs Store headers do overlap heavily) always resolves to the
// same canonical file.
func buildCaseIndex(root string) (map[string]string, error) {
	index := make(map[string]string)

	visit := func(sub string) error {
		base := filepath.Join(root, sub)
		return filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			key := strings.ToLower(filepath.ToSlash(rel))
			if _, ok := index[key]; !ok {
				index[key] = filepath.ToSlash(rel)
			}
			return nil
		})
	}

	seen := map[string]bool{}
	for _, sub := range includeScanRoots {
		if _, err := os.Stat(filepath.Join(root, sub)); err != nil {
			continue
		}
		if err := visit(sub); err != nil {
			return nil, err
		}
		seen[sub] = true
	}
	// Any remaining top-level directory not in the fixed root order
	// (unusual, but not fatal) is still scanned, just after the
	// canonical set.
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}
			if err := visit(entry.Name()); err != nil {
				return nil, err
			}
		}
	}
	return index, nil
}

func (e *Engine) scanIncludesOnce(incRoot string, index map[string]string) (int, error) {
	added := 0
	err := filepath.WalkDir(incRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !isHeaderFile(path) {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			matches := includeRe.FindStringSubmatch(scanner.Text())
			if matches == nil {
				continue
			}
			ref := filepath.ToSlash(matches[1])
			key := strings.ToLower(ref)
			canonical, ok := index[key]
			if !ok || canonical == ref {
				continue
			}
			if e.aliasFor(incRoot, canonical, ref) {
				added++
			}
		}
		return nil
	})
	return added, err
}

func isHeaderFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".h" || ext == ".hpp" || ext == ".inl"
}

// aliasFor creates a symlink at incRoot/ref pointing at the canonical
// file incRoot/canonical, unless ref's directory doesn't exist (the
// reference is resolved relative to a directory this scan doesn't
// have permission to invent) or the alias already exists.
func (e *Engine) aliasFor(incRoot, canonical, ref string) bool {
	canonicalPath := filepath.Join(incRoot, filepath.FromSlash(canonical))
	refPath := filepath.Join(incRoot, filepath.FromSlash(ref))

	if _, err := os.Lstat(refPath); err == nil {
		return false
	}
	dir := filepath.Dir(refPath)
	if _, err := os.Stat(dir); err != nil {
		return false
	}

	relTarget, err := filepath.Rel(dir, canonicalPath)
	if err != nil {
		return false
	}
	if err := os.Symlink(relTarget, refPath); err != nil {
		return false
	}
	return true
}

// applyPatches implements the Emission stage's audited textual
// patches: each patch's Find text must appear exactly once in the file
// at Path (relative to the output root) or the patch is skipped rather
// than silently mismatching a header xwin no longer recognizes.
func (e *Engine) applyPatches() error {
	if len(e.patches) == 0 {
		return nil
	}
	sorted := append([]content.Patch(nil), e.patches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, p := range sorted {
		full := filepath.Join(e.cfg.Output, filepath.FromSlash(p.Path))
		data, err := os.ReadFile(full)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return xwinerr.Wrap(xwinerr.KindFilesystem, err, "reading %s for patching", full)
		}
		if strings.Count(string(data), p.Find) != 1 {
			e.warnings = append(e.warnings, fmt.Sprintf("skipped patch for %s: %q does not occur exactly once", p.Path, p.Find))
			continue
		}
		patched := strings.Replace(string(data), p.Find, p.Replace, 1)
		if err := os.WriteFile(full, []byte(patched), 0o644); err != nil {
			return xwinerr.Wrap(xwinerr.KindFilesystem, err, "writing patched %s", full)
		}
	}
	return nil
}

// Warnings returns non-fatal notices accumulated during Run, such as a
// patch that didn't apply cleanly.
func (e *Engine) Warnings() []string { return e.warnings }
