// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package command implements xwin's subcommands: list, download,
// unpack, splat, and minimize. Each owns its own flag set built on top
// of the global flags every subcommand shares (cache location,
// architectures, variants, channel, logging).
package command

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/crosswin/xwin/internal/cache"
	"github.com/crosswin/xwin/internal/fetch"
	"github.com/crosswin/xwin/internal/manifest"
	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/config"
)

// commonFlags holds the destinations for every flag shared across
// xwin's subcommands. Each subcommand registers these on its own
// pflag.FlagSet rather than inheriting a parent's, since the command
// tree has no flag-inheritance mechanism of its own.
type commonFlags struct {
	acceptLicense     bool
	arches            []string
	variants          []string
	includeATL        bool
	channel           string
	manifestVersion   string
	manifestFile      string
	cacheDir          string
	tempDir           string
	sdkVersion        string
	crtVersion        string
	jsonOutput        bool
	logLevel          string
	httpsProxy        string
	caBundle          string
	configFile        string
	maxRequestsPerSec float64
}

func addCommonFlags(fs *pflag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.BoolVar(&c.acceptLicense, "accept-license", false, "accept the Microsoft Software License Terms without prompting")
	fs.StringArrayVar(&c.arches, "arch", nil, "target architecture (x86, x86_64, aarch, aarch64); repeatable, default x86_64")
	fs.StringArrayVar(&c.variants, "variant", nil, "CRT variant (desktop, onecore, spectre); repeatable, default desktop")
	fs.BoolVar(&c.includeATL, "include-atl", false, "also select the ATL headers and libraries")
	fs.StringVar(&c.channel, "channel", "release", "Visual Studio release channel")
	fs.StringVar(&c.manifestVersion, "manifest-version", "17", "Visual Studio release line")
	fs.StringVar(&c.manifestFile, "manifest", "", "path to a pinned package manifest JSON file instead of fetching one")
	fs.StringVar(&c.cacheDir, "cache-dir", "", "content-addressed cache directory (default: config file or XDG cache dir)")
	fs.StringVar(&c.tempDir, "temp", "", "scratch directory for unpacked payloads (default: <cache-dir>/unpack)")
	fs.StringVar(&c.sdkVersion, "sdk-version", "", "Windows SDK version to select (default: newest available)")
	fs.StringVar(&c.crtVersion, "crt-version", "", "MSVC CRT version to select (default: newest available)")
	fs.BoolVar(&c.jsonOutput, "json", false, "emit machine-readable JSON instead of human-readable output")
	fs.StringVarP(&c.logLevel, "log-level", "L", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&c.httpsProxy, "https-proxy", "", "HTTPS proxy for CDN requests")
	fs.StringVar(&c.caBundle, "ca-bundle", "", "additional PEM certificate bundle for CDN requests")
	fs.StringVar(&c.configFile, "config", "", "configuration file path (overrides XWIN_CONFIG)")
	fs.Float64Var(&c.maxRequestsPerSec, "max-requests-per-sec", 0, "throttle CDN requests per second (0 means unlimited)")
	return c
}

// resolveConfig merges the loaded configuration file with whatever
// flags the caller actually set, flags always winning, and returns a
// logger built from --log-level.
func (c *commonFlags) resolveConfig() (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if c.configFile != "" {
		cfg, err = config.LoadFile(c.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, xwinerr.Wrap(xwinerr.KindUser, err, "loading configuration")
	}

	if c.cacheDir != "" {
		cfg.CacheDir = c.cacheDir
	}
	if c.channel != "" {
		cfg.Channel = c.channel
	}
	if c.httpsProxy != "" {
		cfg.Fetch.HTTPSProxy = c.httpsProxy
	}
	if c.caBundle != "" {
		cfg.Fetch.CABundle = c.caBundle
	}
	if c.maxRequestsPerSec > 0 {
		cfg.Fetch.MaxRequestsPerSec = c.maxRequestsPerSec
	}
	if err := cfg.EnsureCacheDir(); err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch strings.ToLower(c.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

// newFetchClient builds the shared HTTP client every network-touching
// subcommand uses to talk to aka.ms and the CDN.
func newFetchClient(cfg *config.Config, logger *slog.Logger) (*fetch.Client, error) {
	return fetch.New(fetch.Config{
		HTTPSProxy:        cfg.Fetch.HTTPSProxy,
		CABundle:          cfg.Fetch.CABundle,
		MaxRequestsPerSec: cfg.Fetch.MaxRequestsPerSec,
		Logger:            logger,
	})
}

// pruneOptions translates the --arch/--variant/--include-atl/--sdk-version/
// --crt-version flags into the manifest package's PruneOptions, applying
// xwin's defaults (x86_64, Desktop) when the caller didn't pass any.
func (c *commonFlags) pruneOptions() (manifest.PruneOptions, error) {
	var opts manifest.PruneOptions

	if len(c.arches) == 0 {
		opts.Arches = manifest.ArchX8664
	} else {
		for _, a := range c.arches {
			parsed, err := manifest.ParseArch(a)
			if err != nil {
				return opts, err
			}
			opts.Arches |= parsed
		}
	}

	if len(c.variants) == 0 {
		opts.Variants = manifest.VariantDesktop
	} else {
		for _, v := range c.variants {
			parsed, err := manifest.ParseVariant(v)
			if err != nil {
				return opts, err
			}
			opts.Variants |= parsed
		}
	}

	opts.IncludeATL = c.includeATL
	opts.SDKVersion = c.sdkVersion
	opts.CRTVersion = c.crtVersion
	return opts, nil
}

// loadPackageManifest returns the full package graph, either decoded
// from a pinned --manifest file or fetched live from the channel named
// by --channel/--manifest-version. If mc is non-nil and already holds a
// package manifest resolved for the same version/channel within its
// TTL, the channel-manifest and package-manifest fetches are skipped
// entirely; otherwise the freshly-resolved manifest is memoized into mc
// for next time. Callers that never touch the cache (list) pass nil.
func (c *commonFlags) loadPackageManifest(ctx context.Context, client *fetch.Client, mc *cache.Cache) (*manifest.PackageManifest, error) {
	if c.manifestFile != "" {
		data, err := os.ReadFile(c.manifestFile)
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindUser, err, "reading pinned manifest %s", c.manifestFile)
		}
		var pm manifest.PackageManifest
		if err := json.Unmarshal(data, &pm); err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindManifest, err, "decoding pinned manifest %s", c.manifestFile)
		}
		return &pm, nil
	}

	if mc != nil {
		if pm, ok := mc.LoadManifest(c.manifestVersion, c.channel); ok {
			return pm, nil
		}
	}

	channelManifest, err := manifest.GetManifest(ctx, client, c.manifestVersion, c.channel)
	if err != nil {
		return nil, err
	}
	pm, err := manifest.GetPackageManifest(ctx, client, channelManifest)
	if err != nil {
		return nil, err
	}
	if mc != nil {
		// Memoization is an optimization, not a correctness requirement:
		// a failure to write it shouldn't fail the command that just
		// successfully resolved the manifest it needed.
		_ = mc.StoreManifest(c.manifestVersion, c.channel, pm)
	}
	return pm, nil
}

// requireLicenseAccepted fails unless the caller passed --accept-license,
// the one gate every subcommand that writes Microsoft's binaries to disk
// must pass through before touching the network or the cache.
func requireLicenseAccepted(c *commonFlags) error {
	if c.acceptLicense {
		return nil
	}
	return xwinerr.New(xwinerr.KindUser,
		"this command downloads and repackages binaries redistributed under Microsoft's "+
			"Software License Terms for Visual Studio; pass --accept-license to confirm you accept them")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
