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
	"github.com/crosswin/xwin/internal/scheduler"
	"github.com/crosswin/xwin/internal/unpack"
)

// UnpackCommand returns the "unpack" subcommand: downloads (if needed)
// and decodes every selected payload into its own directory under
// --temp, without assembling a splat tree.
func UnpackCommand() *cli.Command {
	var common *commonFlags
	var concurrency int

	return &cli.Command{
		Name:    "unpack",
		Summary: "Download and decode payloads without splatting",
		Description: `Download every payload "xwin list" would select and decode each
one's VSIX or MSI container into its own directory, without assembling
the final sysroot layout. Requires --accept-license.`,
		Usage: "xwin unpack [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
			common = addCommonFlags(fs)
			fs.IntVar(&concurrency, "jobs", 0, "number of concurrent download/unpack workers (default: number of CPUs)")
			return fs
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			_, err := runUnpack(common, concurrency)
			return err
		},
		Examples: []cli.Example{
			{Description: "Unpack the default selection", Command: "xwin unpack --accept-license"},
		},
	}
}

// unpackOutcome is what runUnpack hands back: the pruned selection and
// each payload's unpack result. The "unpack" subcommand discards it;
// "xwin splat" runs its own download/unpack pipeline in runSplat
// rather than calling runUnpack.
type unpackOutcome struct {
	pruned  *manifest.PrunedList
	results map[string]*unpack.Result
}

func runUnpack(common *commonFlags, concurrency int) (*unpackOutcome, error) {
	if err := requireLicenseAccepted(common); err != nil {
		return nil, err
	}

	ctx := context.Background()
	cfg, logger, err := common.resolveConfig()
	if err != nil {
		return nil, err
	}
	client, err := newFetchClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	tempDir := common.tempDir
	if tempDir == "" {
		tempDir = filepath.Join(cfg.CacheDir, "unpack")
	}

	pm, err := common.loadPackageManifest(ctx, client, c)
	if err != nil {
		return nil, err
	}
	opts, err := common.pruneOptions()
	if err != nil {
		return nil, err
	}
	pruned, err := manifest.Prune(pm, opts)
	if err != nil {
		return nil, err
	}

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

	sched := scheduler.New(scheduler.Config{
		Concurrency: concurrency,
		Logger:      logger,
		OnStatus:    reporter.OnStatus,
	})
	if err := sched.Run(ctx, pkgs); err != nil {
		return nil, err
	}
	logger.Info("unpack complete", "payloads", len(pruned.Payloads), "dir", tempDir)

	return &unpackOutcome{pruned: pruned, results: results}, nil
}
