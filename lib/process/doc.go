// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the xwin CLI.
// [Fatal] centralizes the one legitimate raw-I/O pattern that exists
// before the structured logger can be trusted to have the right output
// mode configured: reporting a run() error to stderr and exiting with
// the correct process code (0 success, 1 fatal, 2 user input error, per
// [ExitCoder]).
package process
