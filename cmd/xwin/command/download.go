// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/crosswin/xwin/cmd/xwin/cli"
	"github.com/crosswin/xwin/internal/cache"
	"github.com/crosswin/xwin/internal/fetch"
	"github.com/crosswin/xwin/internal/manifest"
	"github.com/crosswin/xwin/internal/scheduler"
	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/binhash"
)

// DownloadCommand returns the "download" subcommand: prunes the
// package manifest and pulls every selected payload into the
// content-addressed cache, verifying each against its declared digest.
// It does not unpack or splat anything -- that's "xwin unpack" and
// "xwin splat", chained together by "xwin splat" itself when run
// end-to-end.
func DownloadCommand() *cli.Command {
	var common *commonFlags
	var concurrency int

	return &cli.Command{
		Name:    "download",
		Summary: "Download the selected CRT, ATL, and SDK payloads",
		Description: `Download every payload "xwin list" would select into the local
content-addressed cache, verifying each one's SHA-256 digest against
what the manifest declared. Requires --accept-license.`,
		Usage: "xwin download [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
			common = addCommonFlags(fs)
			fs.IntVar(&concurrency, "jobs", 0, "number of concurrent downloads (default: number of CPUs)")
			return fs
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runDownload(common, concurrency)
		},
		Examples: []cli.Example{
			{Description: "Download the default selection", Command: "xwin download --accept-license"},
		},
	}
}

func runDownload(common *commonFlags, concurrency int) error {
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

	reporter := NewReporter(os.Stderr, logger, common.jsonOutput)
	reporter.Start(len(pruned.Payloads))
	defer reporter.Stop()

	pkgs := make([]scheduler.Package, 0, len(pruned.Payloads))
	for i := range pruned.Payloads {
		p := pruned.Payloads[i]
		pkgs = append(pkgs, scheduler.Package{
			Key:      p.Filename,
			Download: downloadPayload(client, c, p),
		})
	}

	sched := scheduler.New(scheduler.Config{
		Concurrency: concurrency,
		Logger:      logger,
		OnStatus:    reporter.OnStatus,
	})
	if err := sched.Run(ctx, pkgs); err != nil {
		return err
	}
	logger.Info("download complete", "payloads", len(pruned.Payloads), "run", sched.RunID())
	return nil
}

// downloadPayload builds the scheduler.Package.Download closure for a
// single payload: skip the fetch entirely if the cache already has the
// content at the expected digest, otherwise stream it in verifying as
// it goes.
func downloadPayload(client *fetch.Client, c *cache.Cache, p manifest.PrunedPayload) func(ctx context.Context) (string, string, error) {
	return func(ctx context.Context) (string, string, error) {
		if p.SHA256 == "" {
			return "", "", xwinerr.New(xwinerr.KindManifest, "payload %s has no declared digest", p.Filename)
		}
		want, err := binhash.ParseDigest(p.SHA256)
		if err != nil {
			return "", "", xwinerr.Wrap(xwinerr.KindManifest, err, "parsing digest for %s", p.Filename)
		}

		if c.Contains(want) {
			return c.Path(want), p.SHA256, nil
		}

		body, _, err := client.Open(ctx, p.URL)
		if err != nil {
			return "", "", err
		}
		defer body.Close()

		got, _, err := c.Put(body, &want)
		if err != nil {
			return "", "", err
		}
		return c.Path(got), binhash.FormatDigest(got), nil
	}
}
