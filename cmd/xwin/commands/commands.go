// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles xwin's command tree.
package commands

import (
	"github.com/crosswin/xwin/cmd/xwin/cli"
	"github.com/crosswin/xwin/cmd/xwin/command"
)

// Root returns the top-level "xwin" command with every subcommand
// attached.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "xwin",
		Summary: "Download and assemble a Windows cross-compilation sysroot",
		Description: `xwin downloads the Microsoft Visual C++ Build Tools and Windows SDK
installer payloads, decodes their VSIX and MSI containers without
needing Windows, and assembles the result into a single
cross-compilation sysroot for targeting Windows from Linux or macOS.`,
		Usage: "xwin <command> [flags]",
		Subcommands: []*cli.Command{
			command.ListCommand(),
			command.DownloadCommand(),
			command.UnpackCommand(),
			command.SplatCommand(),
			command.MinimizeCommand(),
		},
	}
}
