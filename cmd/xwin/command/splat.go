// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/pflag"

	"github.com/crosswin/xwin/cmd/xwin/cli"
	"github.com/crosswin/xwin/internal/cache"
	"github.com/crosswin/xwin/internal/manifest"
	"github.com/crosswin/xwin/internal/minimize"
	"github.com/crosswin/xwin/internal/scheduler"
	"github.com/crosswin/xwin/internal/splat"
	"github.com/crosswin/xwin/internal/unpack"
)

// SplatCommand returns the "splat" subcommand: the end-to-end path
// from manifest selection through download, unpack, and assembly into
// a single cross-compilation sysroot under --output.
func SplatCommand() *cli.Command {
	var common *commonFlags
	var concurrency int
	var output, mapPath string
	var includeDebugLibs, includeDebugSymbols bool
	var disableSymlinks, preserveMSLayout, useWinsysrootStyle, copyFiles bool

	return &cli.Command{
		Name:    "splat",
		Summary: "Download, unpack, and assemble a cross-compilation sysroot",
		Description: `Download every payload "xwin list" would select, decode each
payload's container, and assemble the result into a single sysroot
directory under --output: crt/include, crt/lib/<arch>, sdk/include,
sdk/lib/um/<arch>, and so on. Requires --accept-license.`,
		Usage: "xwin splat --output DIR [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("splat", pflag.ContinueOnError)
			common = addCommonFlags(fs)
			fs.IntVar(&concurrency, "jobs", 0, "number of concurrent download/unpack workers (default: number of CPUs)")
			fs.StringVar(&output, "output", "", "sysroot output directory (required)")
			fs.BoolVar(&includeDebugLibs, "include-debug-libs", false, "include debug-flavored CRT/UCRT static libraries")
			fs.BoolVar(&includeDebugSymbols, "include-debug-symbols", false, "include .pdb debug symbol files")
			fs.BoolVar(&disableSymlinks, "disable-symlinks", false, "skip creating compatibility symlink aliases")
			fs.BoolVar(&preserveMSLayout, "preserve-ms-layout", false, "lay out the tree like a real MSVC/SDK install instead of crt/sdk")
			fs.BoolVar(&useWinsysrootStyle, "use-winsysroot-style", false, "nest SDK headers and libs under their version directory")
			fs.BoolVar(&copyFiles, "copy", false, "copy files into the sysroot instead of moving them out of the unpack tree")
			fs.StringVar(&mapPath, "map", "", "usage map from \"xwin minimize\": restrict emission to just the files it recorded as used")
			return fs
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			var usageMap *minimize.UsageMap
			if mapPath != "" {
				var err error
				usageMap, err = minimize.LoadMap(mapPath)
				if err != nil {
					return err
				}
			}
			return runSplat(common, concurrency, splat.Config{
				Output:              output,
				IncludeDebugLibs:    includeDebugLibs,
				IncludeDebugSymbols: includeDebugSymbols,
				DisableSymlinks:     disableSymlinks,
				PreserveMSLayout:    preserveMSLayout,
				UseWinsysrootStyle:  useWinsysrootStyle,
				Copy:                copyFiles,
				UsageMap:            usageMap,
			})
		},
		Examples: []cli.Example{
			{Description: "Build a sysroot for x86_64", Command: "xwin splat --accept-license --output ./xwin-sysroot"},
			{Description: "Build an ARM64 sysroot with ATL, copying rather than moving", Command: "xwin splat --accept-license --arch aarch64 --include-atl --copy --output ./xwin-sysroot"},
			{Description: "Build a minimized sysroot from a usage map produced by \"xwin minimize\"", Command: "xwin splat --accept-license --map used.yaml --output ./xwin-sysroot-min"},
		},
	}
}

func runSplat(common *commonFlags, concurrency int, splatCfg splat.Config) error {
	if err := requireLicenseAccepted(common); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, logger, err := common.resolveConfig()
	if err != nil {
		return err
	}
	client, err := newFetchClient(cfg, logger)
	if err != nil {
		return err
	}
	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return err
	}
	defer c.Close()

	tempDir := common.tempDir
	if tempDir == "" {
		tempDir = filepath.Join(cfg.CacheDir, "unpack")
	}

	pm, err := common.loadPackageManifest(ctx, client, c)
	if err != nil {
		return err
	}
	opts, err := common.pruneOptions()
	if err != nil {
		return err
	}
	pruned, err := manifest.Prune(pm, opts)
	if err != nil {
		return err
	}
	splatCfg.Arches = opts.Arches
	splatCfg.Variants = opts.Variants
	splatCfg.SDKVersion = pruned.SDKVersion

	reporter := NewReporter(os.Stderr, logger, common.jsonOutput)
	reporter.Start(len(pruned.Payloads))
	defer reporter.Stop()

	results := make(map[string]*unpack.Result, len(pruned.Payloads))
	var resultsMu sync.Mutex

	pkgs := make([]scheduler.Package, 0, len(pruned.Payloads))
	for i := range pruned.Payloads {
		p := pruned.Payloads[i]
		pkgs = append(pkgs, scheduler.Package{
			Key:      p.Filename,
			Download: downloadPayload(client, c, p),
			Unpack: func(ctx context.Context, blobPath, digestHex string) error {
				result, err := unpack.Run(ctx, tempDir, p.Filename, p.Filename, blobPath, digestHex)
				if err != nil {
					return err
				}
				resultsMu.Lock()
				results[p.Filename] = result
				resultsMu.Unlock()
				return nil
			},
		})
	}

	engine, err := splat.New(splatCfg)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Concurrency: concurrency,
		Logger:      logger,
		OnStatus:    reporter.OnStatus,
		Splat: func(ctx context.Context) error {
			items := make([]splat.Item, 0, len(pruned.Payloads))
			for i := range pruned.Payloads {
				p := pruned.Payloads[i]
				result, ok := results[p.Filename]
				if !ok {
					continue
				}
				items = append(items, splat.Item{
					Kind:        p.Kind,
					TargetArch:  p.TargetArch,
					VariantHint: p.VariantHint,
					Unpacked:    result,
				})
			}
			return engine.Run(items)
		},
	})
	if err := sched.Run(ctx, pkgs); err != nil {
		return err
	}

	for _, w := range engine.Warnings() {
		logger.Warn(w)
	}
	logger.Info("splat complete", "output", splatCfg.Output, "payloads", len(pruned.Payloads))
	return nil
}
