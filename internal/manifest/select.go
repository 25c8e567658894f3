// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crosswin/xwin/internal/xwinerr"
)

// Arch is a target CPU architecture, encoded as a bitflag so a set of
// architectures can be requested at once (e.g. "--arch x86_64 --arch
// aarch64" on the command line becomes ArchX8664|ArchAarch64).
type Arch uint8

const (
	ArchX86 Arch = 1 << iota
	ArchX8664
	ArchAarch
	ArchAarch64
)

var allArches = []Arch{ArchX86, ArchX8664, ArchAarch, ArchAarch64}

// ParseArch converts a CLI-facing architecture name to an Arch value.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "x86":
		return ArchX86, nil
	case "x86_64":
		return ArchX8664, nil
	case "aarch":
		return ArchAarch, nil
	case "aarch64":
		return ArchAarch64, nil
	default:
		return 0, xwinerr.New(xwinerr.KindUser, "unknown architecture %q", s)
	}
}

// String returns the xwin-facing name of the architecture.
func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX8664:
		return "x86_64"
	case ArchAarch:
		return "aarch"
	case ArchAarch64:
		return "aarch64"
	default:
		return "unknown"
	}
}

// msName returns the name Microsoft's manifests use for the
// architecture, distinct from xwin's own CLI-facing name.
func (a Arch) msName() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX8664:
		return "x64"
	case ArchAarch:
		return "arm"
	case ArchAarch64:
		return "arm64"
	default:
		return "unknown"
	}
}

// archesIn returns the members of set in a fixed, deterministic order.
func archesIn(set Arch) []Arch {
	var out []Arch
	for _, a := range allArches {
		if set&a != 0 {
			out = append(out, a)
		}
	}
	return out
}

// Variant is a CRT build flavor, also a bitflag so multiple variants
// can be requested together.
type Variant uint8

const (
	VariantDesktop Variant = 1 << iota
	VariantOneCore
	VariantStore
	// VariantSpectre is a modifier, not a primary variant: it selects
	// the Spectre-mitigated build of whichever variants are already
	// requested, rather than standing on its own.
	VariantSpectre
)

// ParseVariant converts a CLI-facing variant name to a Variant value.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "desktop":
		return VariantDesktop, nil
	case "onecore":
		return VariantOneCore, nil
	case "spectre":
		return VariantSpectre, nil
	default:
		return 0, xwinerr.New(xwinerr.KindUser, "unknown variant %q", s)
	}
}

// manifestToken is the substring that identifies a primary variant in
// a CRT lib manifest ID, e.g. "Microsoft.VC.14.40.CRT.x64.Desktop.base".
func (v Variant) manifestToken() string {
	switch v {
	case VariantDesktop:
		return "Desktop"
	case VariantOneCore:
		return "OneCore.Desktop"
	case VariantStore:
		return "Store"
	default:
		return ""
	}
}

// primaryVariantsIn returns the primary (non-Spectre) members of set,
// in a fixed order chosen so substring matches against payload
// filenames never misfire: "OneCore.Desktop" would otherwise satisfy a
// naive "Desktop" match, so OneCore is always checked first.
func primaryVariantsIn(set Variant) []Variant {
	var out []Variant
	for _, v := range []Variant{VariantOneCore, VariantDesktop, VariantStore} {
		if set&v != 0 {
			out = append(out, v)
		}
	}
	return out
}

// PayloadKind classifies a pruned Payload by what it contributes to
// the sysroot, driving how the unpack and splat stages handle it.
type PayloadKind int

const (
	KindAtlHeaders PayloadKind = iota
	KindAtlLibs
	KindCrtHeaders
	KindCrtLibs
	KindSdkHeaders
	KindSdkLibs
	KindSdkStoreLibs
	KindUcrt
	// KindDependency covers a payload pulled in only via the
	// dependency-closure walk rather than one of the id-pattern roots
	// above; it is downloaded and unpacked, but the splat stage emits
	// nothing for it.
	KindDependency
)

// PrunedPayload is one payload selected for download, decoration with
// the classification metadata the unpack and splat stages need.
type PrunedPayload struct {
	Payload
	// Filename is the on-disk name to store this payload under, which
	// may differ from Payload.FileName -- some manifest filenames are
	// disambiguated with a package ID prefix, and any aarch64
	// filename containing "ARM" has it lowercased to "arm" to match
	// the rest of xwin's arch naming.
	Filename    string
	Kind        PayloadKind
	TargetArch  *Arch
	VariantHint *Variant
}

// PrunedList is the outcome of pruning a PackageManifest down to
// exactly what's needed for the requested architectures, variants, and
// versions.
type PrunedList struct {
	CRTVersion string
	SDKVersion string
	Payloads   []PrunedPayload
}

// PruneOptions controls which slice of the package graph Prune
// selects.
type PruneOptions struct {
	Arches      Arch
	Variants    Variant
	IncludeATL  bool
	SDKVersion  string // empty selects the newest available
	CRTVersion  string // empty selects the newest available
}

// packageKey is the (id, version, chip) triple the dependency-closure
// walk dedupes visited packages by, so a package reachable through two
// different dependency edges is only emitted once.
type packageKey struct {
	id, version, chip string
}

func keyOf(mi ManifestItem) packageKey {
	return packageKey{id: mi.ID, version: mi.Version, chip: mi.Chip}
}

// isPreferredLanguage reports whether lang is language-neutral or
// en-US, the two forms Prune prefers when a package ID is present more
// than once in the wire manifest under different languages.
func isPreferredLanguage(lang string) bool {
	return lang == "" || strings.EqualFold(lang, "en-US") || strings.EqualFold(lang, "neutral")
}

// preferredItem picks one ManifestItem out of the language variants a
// single ID groups together: the first neutral or en-US copy, or,
// failing that, whichever copy came first, so a manifest that ships
// only (say) a ja-JP copy of some package still resolves rather than
// vanishing outright.
func preferredItem(items []ManifestItem) ManifestItem {
	for _, it := range items {
		if isPreferredLanguage(it.Language) {
			return it
		}
	}
	return items[0]
}

// buildIndex applies the language-preference rule to every ID group in
// packages, producing the flat id->item map the id-pattern root
// selectors and the dependency-closure walk both key off of.
func buildIndex(packages map[string][]ManifestItem) map[string]ManifestItem {
	idx := make(map[string]ManifestItem, len(packages))
	for id, items := range packages {
		if len(items) == 0 {
			continue
		}
		idx[id] = preferredItem(items)
	}
	return idx
}

// closeDependencies walks roots' Dependencies fields transitively,
// resolving each referenced ID through idx (which has already applied
// the language preference), and returns one PrunedPayload of kind per
// payload belonging to a package discovered this way that isn't
// already in seen. Callers pre-populate seen with the keys of the
// roots themselves and any payload already selected directly, so the
// closure only contributes packages reachable purely by a dependency
// edge. Traversal order is sorted so the result is deterministic
// regardless of Go's randomized map iteration.
func closeDependencies(idx map[string]ManifestItem, roots []ManifestItem, kind PayloadKind, seen map[packageKey]bool) ([]PrunedPayload, error) {
	var out []PrunedPayload
	queue := append([]ManifestItem(nil), roots...)

	for len(queue) > 0 {
		mi := queue[0]
		queue = queue[1:]

		depIDs := make([]string, 0, len(mi.Dependencies))
		for id := range mi.Dependencies {
			depIDs = append(depIDs, id)
		}
		sort.Strings(depIDs)

		for _, depID := range depIDs {
			dep, ok := idx[depID]
			if !ok {
				return nil, xwinerr.New(xwinerr.KindManifest, "dependency %q of %q not found in manifest", depID, mi.ID)
			}
			k := keyOf(dep)
			if seen[k] {
				continue
			}
			seen[k] = true
			for _, p := range dep.Payloads {
				out = append(out, toPrunedPayload(p, kind, nil, nil))
			}
			queue = append(queue, dep)
		}
	}
	return out, nil
}

// Prune walks a package manifest and returns exactly the CRT, ATL (if
// requested), and Windows SDK payloads needed to assemble a
// cross-compilation sysroot for the requested architectures.
func Prune(pm *PackageManifest, opts PruneOptions) (*PrunedList, error) {
	list := &PrunedList{}
	idx := buildIndex(pm.Packages)

	crtVersion, crtPayloads, err := selectCRT(idx, opts)
	if err != nil {
		return nil, err
	}
	list.CRTVersion = crtVersion
	list.Payloads = append(list.Payloads, crtPayloads...)

	sdkVersion, sdkPayloads, err := selectSDK(idx, opts)
	if err != nil {
		return nil, err
	}
	list.SDKVersion = sdkVersion
	list.Payloads = append(list.Payloads, sdkPayloads...)

	return list, nil
}

func targetArchFromName(name string, includeBareARM64 bool) *Arch {
	candidates := []struct {
		token string
		arch  Arch
	}{
		{"x64", ArchX8664},
		{"arm64", ArchAarch64},
	}
	if includeBareARM64 {
		candidates = append(candidates, struct {
			token string
			arch  Arch
		}{"ARM64", ArchAarch64})
	}
	candidates = append(candidates,
		struct {
			token string
			arch  Arch
		}{"arm", ArchAarch},
		struct {
			token string
			arch  Arch
		}{"x86", ArchX86},
	)
	for _, c := range candidates {
		if strings.Contains(name, c.token) {
			a := c.arch
			return &a
		}
	}
	return nil
}

func lowercaseARM(name string) string {
	return strings.ReplaceAll(name, "ARM", "arm")
}

func toPrunedPayload(p Payload, kind PayloadKind, targetArch *Arch, variant *Variant) PrunedPayload {
	filename := p.FileName
	if targetArch != nil && *targetArch == ArchAarch64 {
		filename = lowercaseARM(filename)
	}
	return PrunedPayload{
		Payload:     p,
		Filename:    filename,
		Kind:        kind,
		TargetArch:  targetArch,
		VariantHint: variant,
	}
}

func selectCRT(pkgs map[string]ManifestItem, opts PruneOptions) (string, []PrunedPayload, error) {
	buildTools, ok := pkgs["Microsoft.VisualStudio.Product.BuildTools"]
	if !ok {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find root BuildTools item")
	}

	crtVersion := opts.CRTVersion
	if crtVersion != "" {
		key := fmt.Sprintf("Microsoft.VisualStudio.Component.VC.%s.x86.x64", crtVersion)
		if _, ok := buildTools.Dependencies[key]; !ok {
			return "", nil, xwinerr.New(xwinerr.KindUser, "CRT version %q does not exist in the manifest", crtVersion)
		}
	} else {
		var latest string
		for key := range buildTools.Dependencies {
			v, ok := strings.CutPrefix(key, "Microsoft.VisualStudio.Component.VC.")
			if !ok {
				continue
			}
			v, ok = strings.CutSuffix(v, ".x86.x64")
			if !ok {
				continue
			}
			if latest == "" || CompareVersions(v, latest) > 0 {
				latest = v
			}
		}
		if latest == "" {
			return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find latest CRT version")
		}
		crtVersion = latest
	}

	var payloads []PrunedPayload
	var roots []ManifestItem
	seen := make(map[packageKey]bool)

	headerKey := fmt.Sprintf("Microsoft.VC.%s.CRT.Headers.base", crtVersion)
	headers, ok := pkgs[headerKey]
	if !ok || len(headers.Payloads) == 0 {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find CRT headers item %q", headerKey)
	}
	payloads = append(payloads, toPrunedPayload(headers.Payloads[0], KindCrtHeaders, nil, nil))
	roots = append(roots, headers)
	seen[keyOf(headers)] = true

	spectre := opts.Variants&VariantSpectre != 0
	// The Store variant's libraries (e.g. oldnames.lib) are often
	// linked by default even when Store support wasn't requested.
	variants := opts.Variants | VariantStore

	for _, arch := range archesIn(opts.Arches) {
		for _, variant := range primaryVariantsIn(variants) {
			archToken := arch.msName()
			if arch == ArchAarch64 {
				// Every other package family uses the lowercase MS
				// name, but the CRT lib IDs uppercase arm64.
				archToken = "ARM64"
			}
			spectreSuffix := ""
			if spectre && variant != VariantStore {
				spectreSuffix = ".spectre"
			}
			id := fmt.Sprintf("Microsoft.VC.%s.CRT.%s.%s%s.base", crtVersion, archToken, variant.manifestToken(), spectreSuffix)

			mi, ok := pkgs[id]
			if !ok || len(mi.Payloads) == 0 {
				continue
			}
			a := arch
			payloads = append(payloads, toPrunedPayload(mi.Payloads[0], KindCrtLibs, &a, nil))
			roots = append(roots, mi)
			seen[keyOf(mi)] = true
		}
	}

	if opts.IncludeATL {
		atl, atlRoots, err := selectATL(pkgs, opts.Arches, spectre, crtVersion)
		if err != nil {
			return "", nil, err
		}
		payloads = append(payloads, atl...)
		for _, mi := range atlRoots {
			if !seen[keyOf(mi)] {
				roots = append(roots, mi)
				seen[keyOf(mi)] = true
			}
		}
	}

	closure, err := closeDependencies(pkgs, roots, KindDependency, seen)
	if err != nil {
		return "", nil, err
	}
	payloads = append(payloads, closure...)

	return crtVersion, payloads, nil
}

func selectATL(pkgs map[string]ManifestItem, arches Arch, spectre bool, crtVersion string) ([]PrunedPayload, []ManifestItem, error) {
	var payloads []PrunedPayload
	var roots []ManifestItem

	headerKey := fmt.Sprintf("Microsoft.VC.%s.ATL.Headers.base", crtVersion)
	headers, ok := pkgs[headerKey]
	if !ok || len(headers.Payloads) == 0 {
		return nil, nil, xwinerr.New(xwinerr.KindManifest, "unable to find ATL headers item %q", headerKey)
	}
	payloads = append(payloads, toPrunedPayload(headers.Payloads[0], KindAtlHeaders, nil, nil))
	roots = append(roots, headers)

	spectreOptions := []bool{false}
	if spectre {
		spectreOptions = append(spectreOptions, true)
	}

	for _, wantSpectre := range spectreOptions {
		for _, arch := range archesIn(arches) {
			suffix := ""
			if wantSpectre {
				suffix = ".spectre"
			}
			// ATL lib IDs uppercase the MS architecture token for every
			// architecture, not just arm64.
			id := fmt.Sprintf("Microsoft.VC.%s.ATL.%s%s.base", crtVersion, strings.ToUpper(arch.msName()), suffix)

			mi, ok := pkgs[id]
			if !ok || len(mi.Payloads) == 0 {
				continue
			}
			a := arch
			payloads = append(payloads, toPrunedPayload(mi.Payloads[0], KindAtlLibs, &a, nil))
			roots = append(roots, mi)
		}
	}

	return payloads, roots, nil
}

func selectSDK(pkgs map[string]ManifestItem, opts PruneOptions) (string, []PrunedPayload, error) {
	var sdk ManifestItem
	var sdkVersion string

	if opts.SDKVersion != "" {
		sdkVersion = opts.SDKVersion
		var found bool
		for key, mi := range pkgs {
			if strings.HasSuffix(key, opts.SDKVersion) {
				sdk = mi
				found = true
				break
			}
		}
		if !found {
			return "", nil, xwinerr.New(xwinerr.KindUser, "unable to locate SDK %q", opts.SDKVersion)
		}
	} else {
		full, version, err := LatestSDKVersion(pkgs)
		if err != nil {
			return "", nil, err
		}
		mi, ok := pkgs[full]
		if !ok {
			return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to locate SDK %s", full)
		}
		sdk = mi
		sdkVersion = version
	}

	var payloads []PrunedPayload

	findPayload := func(match func(string) bool) *Payload {
		for i := range sdk.Payloads {
			if match(sdk.Payloads[i].FileName) {
				return &sdk.Payloads[i]
			}
		}
		return nil
	}

	// x86 carries the vast majority of the Desktop headers; the
	// remaining ones are scattered across per-arch and Store packages.
	base := findPayload(func(n string) bool {
		return strings.HasSuffix(n, "Windows SDK Desktop Headers x86-x86_en-us.msi")
	})
	if base == nil {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find headers for %s", sdk.ID)
	}
	payloads = append(payloads, prunedFrom(*base, fmt.Sprintf("%s_headers.msi", sdk.ID), KindSdkHeaders, nil, nil))

	if p := findPayload(func(n string) bool {
		return strings.HasSuffix(n, "Windows SDK OnecoreUap Headers x86-x86_en-us.msi")
	}); p != nil {
		payloads = append(payloads, prunedFrom(*p, fmt.Sprintf("%s_uap_headers.msi", sdk.ID), KindSdkHeaders, nil, nil))
	}

	storeHeaders := findPayload(func(n string) bool {
		return strings.HasSuffix(n, "Windows SDK for Windows Store Apps Headers-x86_en-us.msi")
	})
	if storeHeaders == nil {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find Windows Store Apps headers for %s", sdk.ID)
	}
	storeVariant := VariantStore
	payloads = append(payloads, prunedFrom(*storeHeaders, fmt.Sprintf("%s_store_headers.msi", sdk.ID), KindSdkHeaders, nil, &storeVariant))

	if p := findPayload(func(n string) bool {
		return strings.HasSuffix(n, "Windows SDK for Windows Store Apps Headers OnecoreUap-x86_en-us.msi")
	}); p != nil {
		payloads = append(payloads, prunedFrom(*p, fmt.Sprintf("%s_store_headers_onecoreuap.msi", sdk.ID), KindSdkHeaders, nil, &storeVariant))
	}

	for _, arch := range archesIn(opts.Arches) {
		if arch == ArchX86 {
			continue
		}
		prefix := "Installers\\Windows SDK Desktop Headers "
		p := findPayload(func(n string) bool {
			rest, ok := strings.CutPrefix(n, prefix)
			if !ok {
				return false
			}
			rest, ok = strings.CutSuffix(rest, "-x86_en-us.msi")
			return ok && rest == arch.msName()
		})
		if p == nil {
			return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find %s headers for %s", arch, sdk.ID)
		}
		a := arch
		payloads = append(payloads, prunedFrom(*p, fmt.Sprintf("%s_%s_headers.msi", sdk.ID, arch.msName()), KindSdkHeaders, &a, nil))
	}

	for _, arch := range archesIn(opts.Arches) {
		prefix := "Installers\\Windows SDK Desktop Libs "
		p := findPayload(func(n string) bool {
			rest, ok := strings.CutPrefix(n, prefix)
			if !ok {
				return false
			}
			rest, ok = strings.CutSuffix(rest, "-x86_en-us.msi")
			return ok && rest == arch.msName()
		})
		if p == nil {
			return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find SDK libs for %s", arch)
		}
		a := arch
		payloads = append(payloads, prunedFrom(*p, fmt.Sprintf("%s_libs_%s.msi", sdk.ID, arch), KindSdkLibs, &a, nil))
	}

	storeLibs := findPayload(func(n string) bool {
		return strings.HasSuffix(n, "Windows SDK for Windows Store Apps Libs-x86_en-us.msi")
	})
	if storeLibs == nil {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find Windows Store Apps libs for %s", sdk.ID)
	}
	payloads = append(payloads, prunedFrom(*storeLibs, fmt.Sprintf("%s_store_libs.msi", sdk.ID), KindSdkStoreLibs, nil, nil))

	ucrt, ok := pkgs["Microsoft.Windows.UniversalCRT.HeadersLibsSources.Msi"]
	if !ok {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find Universal CRT")
	}
	ucrtMSI := findPayloadIn(ucrt.Payloads, func(n string) bool {
		return n == "Universal CRT Headers Libraries and Sources-x86_en-us.msi"
	})
	if ucrtMSI == nil {
		return "", nil, xwinerr.New(xwinerr.KindManifest, "unable to find Universal CRT MSI")
	}
	payloads = append(payloads, prunedFrom(*ucrtMSI, "ucrt.msi", KindUcrt, nil, nil))

	seen := map[packageKey]bool{keyOf(sdk): true, keyOf(ucrt): true}
	closure, err := closeDependencies(pkgs, []ManifestItem{sdk, ucrt}, KindDependency, seen)
	if err != nil {
		return "", nil, err
	}
	payloads = append(payloads, closure...)

	return sdkVersion, payloads, nil
}

func findPayloadIn(payloads []Payload, match func(string) bool) *Payload {
	for i := range payloads {
		if match(payloads[i].FileName) {
			return &payloads[i]
		}
	}
	return nil
}

func prunedFrom(p Payload, filename string, kind PayloadKind, arch *Arch, variant *Variant) PrunedPayload {
	return PrunedPayload{
		Payload:     p,
		Filename:    filename,
		Kind:        kind,
		TargetArch:  arch,
		VariantHint: variant,
	}
}

// LatestSDKVersion finds the highest Windows SDK version present in
// the package graph. SDK package IDs look like "Win11SDK_10.0.22621",
// so the major SDK generation and the dotted release version must be
// compared independently -- a Win11 SDK can still carry a 10.x release
// version, so release-version order alone can't be trusted to imply
// generation order.
func LatestSDKVersion(pkgs map[string]ManifestItem) (id string, version string, err error) {
	type candidate struct {
		major int
		rest  string
		id    string
	}
	var candidates []candidate
	for key := range pkgs {
		major, rest, ok := parseSDKKey(key)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{major: major, rest: rest, id: key})
	}
	if len(candidates) == 0 {
		return "", "", xwinerr.New(xwinerr.KindManifest, "unable to find latest WinSDK version")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].major != candidates[j].major {
			return candidates[i].major < candidates[j].major
		}
		return CompareVersions(candidates[i].rest, candidates[j].rest) < 0
	})

	best := candidates[len(candidates)-1]
	return best.id, best.rest, nil
}
