// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for xwin packages.
//
// [WriteTree] materializes a small fixture directory tree from a map of
// relative paths to contents, for tests of the unpack and splat stages
// that need on-disk input without constructing a real VSIX or MSI
// archive.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests exercising the scheduler's worker pool do not
// need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, used in place of time.Now() when tests need unique
// job or cache keys.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no xwin-internal dependencies.
package testutil
