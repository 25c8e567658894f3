// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch is the HTTP client xwin uses to reach aka.ms and the
// Visual Studio CDN. It applies a shared rate limit across every
// request, retries transient failures with exponential backoff through
// an injected clock, and exposes both a small-body path for JSON
// manifests and a streaming path for multi-hundred-megabyte MSI/VSIX
// payloads.
package fetch
