// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for xwin.
//
// Configuration is loaded from a single file specified by:
//   - XWIN_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides: the
// same invocation against the same config file (or none) always resolves
// the same defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the base configuration for xwin. CLI flags always take
// precedence over values loaded here; this file only supplies defaults
// for flags the user didn't pass.
type Config struct {
	// CacheDir is the root of the content-addressed cache and pinned
	// manifest/package metadata. Default: $XDG_CACHE_HOME/xwin or
	// ~/.cache/xwin.
	CacheDir string `yaml:"cache_dir"`

	// Channel is the default Visual Studio release channel manifest URL
	// or channel name passed to "xwin download" when --channel is not
	// given on the command line.
	Channel string `yaml:"channel"`

	// Fetch configures the HTTP fetcher.
	Fetch FetchConfig `yaml:"fetch"`

	// Concurrency is the default number of worker goroutines used by
	// the scheduler. Zero means "use runtime.NumCPU()".
	Concurrency int `yaml:"concurrency"`
}

// FetchConfig configures outbound HTTP behavior.
type FetchConfig struct {
	// HTTPSProxy, if set, overrides the HTTPS_PROXY environment variable
	// for CDN requests.
	HTTPSProxy string `yaml:"https_proxy"`

	// CABundle is an additional PEM-encoded certificate bundle path,
	// equivalent to setting SSL_CERT_FILE.
	CABundle string `yaml:"ca_bundle"`

	// MaxRequestsPerSec throttles concurrent CDN requests. Zero means
	// unlimited.
	MaxRequestsPerSec float64 `yaml:"max_requests_per_sec"`
}

// Default returns the default configuration. These defaults are used as
// a base before loading the config file; they exist primarily to ensure
// all fields have sensible zero-values, not as a fallback for a missing
// config file -- when no file is given at all, Default alone drives the
// program.
func Default() *Config {
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		cacheRoot = filepath.Join(os.Getenv("HOME"), ".cache")
	}

	return &Config{
		CacheDir:    filepath.Join(cacheRoot, "xwin"),
		Channel:     "release",
		Concurrency: 0,
	}
}

// Load loads configuration from the XWIN_CONFIG environment variable.
//
// There are no fallbacks or defaults beyond [Default] -- if XWIN_CONFIG
// is not set, Load returns the default configuration unmodified rather
// than searching well-known paths. Callers that accept --config should
// prefer [LoadFile] when the flag is present.
func Load() (*Config, error) {
	path := os.Getenv("XWIN_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// [Default]. The only expansion performed is ${HOME} and similar path
// variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.CacheDir = expandVars(c.CacheDir, vars)
	c.Fetch.CABundle = expandVars(c.Fetch.CABundle, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// EnsureCacheDir creates the cache directory if it doesn't exist.
func (c *Config) EnsureCacheDir() error {
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", c.CacheDir, err)
	}
	return nil
}
