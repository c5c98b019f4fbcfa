// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"
)

// Scanner walks a source tree and emits entries in lexicographic
// RelPath order. A Scanner is consumed once per freeze; each call to
// Run restarts the walk from the root. It is not safe for concurrent
// use.
type Scanner struct {
	// Root is the absolute path of the tree to scan.
	Root string

	// Rules is the exclusion rule set.
	Rules Rules

	// Strict aborts the scan on the first per-entry error instead of
	// collecting it and continuing.
	Strict bool

	errs []EntryError
}

// New returns a Scanner over root with the given rules.
func New(root string, rules Rules) *Scanner {
	return &Scanner{Root: root, Rules: rules}
}

// Errors returns the per-entry failures collected during the most
// recent Run. Empty on a clean scan.
func (s *Scanner) Errors() []EntryError {
	return s.errs
}

// Run walks the tree and invokes fn once per entry, in lexicographic
// RelPath order. Directories are emitted as entries themselves (empty
// directories and their permissions survive into the archive) and
// symlinks are never followed.
//
// The walk itself visits directories in filesystem readdir order with
// exclusion pruning; entries are then sorted by RelPath before
// emission, because readdir component order and plain string order
// disagree for names like "a.txt" vs "a/b". Only entry metadata is
// held in memory, never file content.
//
// Per-entry failures (unreadable directory, failed stat or readlink)
// are collected via Errors and the affected entry is omitted; in
// strict mode the first such failure aborts the run. Cancellation is
// honored at entry boundaries.
func (s *Scanner) Run(ctx context.Context, fn func(Entry) error) error {
	info, err := os.Lstat(s.Root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", s.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scanning %s: not a directory", s.Root)
	}

	s.errs = nil
	if s.Rules.RespectGitignore {
		patterns, err := LoadGitignore(s.Root)
		if err != nil {
			return err
		}
		s.Rules.gitignore = patterns
	}

	entries, err := s.collect()
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// collect walks the tree, applying exclusion rules and gathering entry
// metadata. Excluded directories are pruned without descending.
func (s *Scanner) collect() ([]Entry, error) {
	var entries []Entry

	walkErr := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.Root {
				return err
			}
			return s.entryError(path, err, d != nil && d.IsDir())
		}
		if path == s.Root {
			return nil
		}

		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return s.entryError(path, err, d.IsDir())
		}
		relPath := Normalize(rel)

		if s.Rules.Excluded(relPath, d.Name(), d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return s.entryError(path, err, d.IsDir())
		}

		entry := Entry{
			RelPath:     relPath,
			DiskRelPath: rel,
			Kind:        KindOf(info.Mode()),
			Mode:        info.Mode(),
			ModTime:     info.ModTime().UTC().Truncate(time.Second),
		}
		if entry.Kind == KindFile {
			entry.Size = info.Size()
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			entry.UID = stat.Uid
			entry.GID = stat.Gid
		}
		if entry.Kind == KindSymlink {
			target, err := os.Readlink(path)
			if err != nil {
				return s.entryError(path, err, false)
			}
			entry.LinkTarget = target
		}

		entries = append(entries, entry)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scanning %s: %w", s.Root, walkErr)
	}
	return entries, nil
}

// entryError records a per-entry failure. In strict mode it aborts the
// walk; otherwise the failing directory subtree is skipped and the
// walk continues.
func (s *Scanner) entryError(path string, err error, isDir bool) error {
	rel, relErr := filepath.Rel(s.Root, path)
	if relErr != nil {
		rel = path
	}
	s.errs = append(s.errs, EntryError{RelPath: Normalize(rel), Err: err})
	if s.Strict {
		return fmt.Errorf("%s: %w", path, err)
	}
	if isDir {
		return fs.SkipDir
	}
	return nil
}
