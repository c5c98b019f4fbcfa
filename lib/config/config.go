// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for coldstore.
//
// Configuration is loaded from a single file specified by:
//   - COLDSTORE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. A missing setting
// means the built-in default; flags override file values. This keeps
// every freeze auditable: the effective options come from exactly one
// file plus the command line.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/janfasnacht/coldstore/lib/archive"
)

// Config is the on-disk configuration for coldstore.
type Config struct {
	// Freeze configures archive creation.
	Freeze FreezeConfig `yaml:"freeze"`

	// Exclude lists glob patterns applied to every freeze, in
	// addition to per-invocation --exclude flags.
	Exclude []string `yaml:"exclude"`
}

// FreezeConfig configures the freeze pipeline.
type FreezeConfig struct {
	// Destination is the default output directory for bundles.
	// Default: the current working directory.
	Destination string `yaml:"destination"`

	// CompressionLevel is the gzip level, 1-9. Default: 6.
	CompressionLevel int `yaml:"compression_level"`

	// PreserveOwnership records verbatim uid/gid in archive members
	// instead of normalizing both to zero. Default: false.
	PreserveOwnership bool `yaml:"preserve_ownership"`

	// InlineFileLimit is the largest file count for which per-file
	// checksums are inlined in the manifest; larger trees get an
	// external FILELIST.csv.gz. Default: 10000.
	InlineFileLimit int `yaml:"inline_file_limit"`

	// ExcludeVCS excludes version-control directories (.git and
	// friends). Default: true.
	ExcludeVCS bool `yaml:"exclude_vcs"`

	// RespectGitignore additionally loads exclusion patterns from the
	// source root's .gitignore. Default: false, an archival snapshot
	// includes ignored build products unless told otherwise.
	RespectGitignore bool `yaml:"respect_gitignore"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Freeze: FreezeConfig{
			Destination:      ".",
			CompressionLevel: archive.DefaultCompressionLevel,
			InlineFileLimit:  10000,
			ExcludeVCS:       true,
		},
	}
}

// Load loads configuration from the COLDSTORE_CONFIG environment
// variable, or returns the defaults when it is not set.
func Load() (*Config, error) {
	path := os.Getenv("COLDSTORE_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from the given file, applied on top of
// the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// An empty file is a valid config meaning "all defaults".
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Freeze.CompressionLevel < 1 || c.Freeze.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("freeze.compression_level must be 1-9, got %d", c.Freeze.CompressionLevel))
	}
	if c.Freeze.InlineFileLimit < 0 {
		errs = append(errs, fmt.Errorf("freeze.inline_file_limit must not be negative, got %d", c.Freeze.InlineFileLimit))
	}
	if c.Freeze.Destination == "" {
		errs = append(errs, errors.New("freeze.destination must not be empty"))
	}
	return errors.Join(errs...)
}
