// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides SHA256 content hashing for downloaded and
// unpacked files.
//
// xwin identifies every blob it touches -- VSIX packages, MSI payloads,
// individual headers and libraries extracted from them -- by the SHA256
// digest of its bytes. The cache indexes blobs by digest
// ([FormatDigest] of [HashFile]'s result), the manifest records the
// expected digest of each payload, and the splat engine's
// duplicate-content merge falls back to a digest comparison once two
// candidate files collide on their fast pre-hash.
//
// The API surface is three functions:
//
//   - [HashFile] -- streams a file through SHA256, returning a [32]byte
//     digest with constant memory usage regardless of file size
//   - [FormatDigest] -- converts a [32]byte digest to its canonical
//     hex-encoded string representation, used as the cache's on-disk
//     shard key and in log output
//   - [ParseDigest] -- parses a hex-encoded digest string back to a
//     [32]byte array, validating length and encoding
//
// This package has no dependencies on other xwin packages.
package binhash
