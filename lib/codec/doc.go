// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides xwin's standard CBOR encoding configuration.
//
// xwin uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the VS channel/package manifest
//     (read, not written, but decoded through the same tag convention)
//     and CLI --json output. The usage map written by "minimize" is
//     YAML, not JSON.
//   - CBOR for internal state: the cache's job-state file (jobs.cbor,
//     see internal/cache's JobState).
//
// This package provides the shared CBOR encoding and decoding modes so
// that every xwin package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, so two job-state files with the same content are
// byte-for-byte equal.
//
// For buffer-oriented operations (the job-state file):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. Example:
//     the cache's on-disk job-state records (internal/cache's
//     PackageState).
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor` tags
//     are absent, so a single `json` tag controls field naming and
//     omitempty for both formats. Example: types shared between the
//     manifest decoder (JSON) and the job-state file (CBOR).
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract -- doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
