// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/crosswin/xwin/cmd/xwin/cli"
	"github.com/crosswin/xwin/internal/minimize"
)

// MinimizeCommand returns the "minimize" subcommand: consumes a build's
// file-open trace, captured externally, and writes a usage map that
// "xwin splat --map" can later read to emit only the files that build
// actually needed.
func MinimizeCommand() *cli.Command {
	var sysroot, tracePath, mapPath, sdkVersion string

	return &cli.Command{
		Name:    "minimize",
		Summary: "Turn a captured build trace into a sysroot usage map",
		Description: `Parse a strace log of a real build's openat calls, classify every
header and library it opened under an already-splatted sysroot, and
write a usage map recording just those paths. Pass the map to
"xwin splat --map" to produce a second, far smaller sysroot containing
only what that build needed.

Capture the trace yourself first, e.g.:

  strace -f -e trace=openat -o trace.log -- cargo build --target x86_64-pc-windows-msvc

xwin does not run the build for you: it has no opinion about which
compiler or build system produced the trace.`,
		Usage: "xwin minimize --sysroot DIR --trace FILE --map FILE",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("minimize", pflag.ContinueOnError)
			fs.StringVar(&sysroot, "sysroot", "", "splatted sysroot the trace was built against (required)")
			fs.StringVar(&tracePath, "trace", "", "path to a captured strace log (required)")
			fs.StringVar(&mapPath, "map", "", "path to write the usage map (required)")
			fs.StringVar(&sdkVersion, "sdk-version", "", "SDK version directory, if --sysroot was splatted with --use-winsysroot-style")
			return fs
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if sysroot == "" {
				return fmt.Errorf("--sysroot is required")
			}
			if tracePath == "" {
				return fmt.Errorf("--trace is required")
			}
			if mapPath == "" {
				return fmt.Errorf("--map is required")
			}
			return runMinimize(sysroot, tracePath, mapPath, sdkVersion)
		},
		Examples: []cli.Example{
			{
				Description: "Turn a captured cargo build trace into a usage map",
				Command:     "xwin minimize --sysroot ./xwin-sysroot --trace trace.log --map used.yaml",
			},
		},
	}
}

func runMinimize(sysroot, tracePath, mapPath, sdkVersion string) error {
	results, err := minimize.Run(minimize.Config{
		TracePath:  tracePath,
		CRT:        filepath.Join(sysroot, "crt"),
		SDK:        filepath.Join(sysroot, "sdk"),
		SDKVersion: sdkVersion,
		MapPath:    mapPath,
	})
	if err != nil {
		return err
	}

	fmt.Printf("crt headers: %d/%d files, %d/%d bytes\n",
		results.CRTHeaders.Used.Count, results.CRTHeaders.Total.Count,
		results.CRTHeaders.Used.Bytes, results.CRTHeaders.Total.Bytes)
	fmt.Printf("crt libs:    %d/%d files, %d/%d bytes\n",
		results.CRTLibs.Used.Count, results.CRTLibs.Total.Count,
		results.CRTLibs.Used.Bytes, results.CRTLibs.Total.Bytes)
	fmt.Printf("sdk headers: %d/%d files, %d/%d bytes\n",
		results.SDKHeaders.Used.Count, results.SDKHeaders.Total.Count,
		results.SDKHeaders.Used.Bytes, results.SDKHeaders.Total.Bytes)
	fmt.Printf("sdk libs:    %d/%d files, %d/%d bytes\n",
		results.SDKLibs.Used.Count, results.SDKLibs.Total.Count,
		results.SDKLibs.Used.Bytes, results.SDKLibs.Total.Bytes)
	fmt.Printf("\nusage map written to %s\n", mapPath)
	return nil
}
