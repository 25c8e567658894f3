// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/crosswin/xwin/cmd/xwin/cli"
	"github.com/crosswin/xwin/internal/manifest"
)

// ListCommand returns the "list" subcommand: fetches (or loads) the
// package manifest, prunes it down to the requested architectures and
// variants, and prints what would be downloaded without touching the
// cache or the network beyond the manifest fetch itself.
func ListCommand() *cli.Command {
	var common *commonFlags

	return &cli.Command{
		Name:    "list",
		Summary: "List the payloads a download would select",
		Description: `List the CRT, ATL, and Windows SDK payloads that "xwin download"
would select for the given architectures, variants, and versions,
without downloading anything.`,
		Usage: "xwin list [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			common = addCommonFlags(fs)
			return fs
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runList(common)
		},
		Examples: []cli.Example{
			{Description: "List the default x86_64 desktop selection", Command: "xwin list"},
			{Description: "List ARM64 plus ATL", Command: "xwin list --arch aarch64 --include-atl"},
		},
	}
}

func runList(common *commonFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, logger, err := common.resolveConfig()
	if err != nil {
		return err
	}
	client, err := newFetchClient(cfg, logger)
	if err != nil {
		return err
	}

	pm, err := common.loadPackageManifest(ctx, client, nil)
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

	if common.jsonOutput {
		return printJSON(pruned)
	}

	fmt.Printf("CRT %s, SDK %s\n\n", pruned.CRTVersion, pruned.SDKVersion)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tARCH\tSIZE\tFILENAME")
	var total int64
	for _, p := range pruned.Payloads {
		arch := "-"
		if p.TargetArch != nil {
			arch = p.TargetArch.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kindName(p.Kind), arch, formatSize(p.Size), p.Filename)
		total += p.Size
	}
	w.Flush()
	fmt.Printf("\n%d payloads, %s total\n", len(pruned.Payloads), formatSize(total))
	return nil
}

func kindName(k manifest.PayloadKind) string {
	switch k {
	case manifest.KindAtlHeaders:
		return "atl-headers"
	case manifest.KindAtlLibs:
		return "atl-libs"
	case manifest.KindCrtHeaders:
		return "crt-headers"
	case manifest.KindCrtLibs:
		return "crt-libs"
	case manifest.KindSdkHeaders:
		return "sdk-headers"
	case manifest.KindSdkLibs:
		return "sdk-libs"
	case manifest.KindSdkStoreLibs:
		return "sdk-store-libs"
	case manifest.KindUcrt:
		return "ucrt"
	case manifest.KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}
