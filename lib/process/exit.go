// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that carry a specific process exit
// code. xwin's error taxonomy (internal/xwinerr) marks user-input
// errors with exit code 2; every other error exits 1.
type ExitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits with the error's exit
// code. If err implements [ExitCoder] (directly, or via errors.As
// through a wrapped chain), that code is used; otherwise it exits 1.
// This is the standard xwin binary entrypoint error handler. Use it in
// main() for errors returned from run(), where the structured logger
// may not yet be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var coder ExitCoder
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	os.Exit(1)
}
