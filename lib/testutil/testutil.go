// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for coldstore
// packages.
//
// [WriteTree] materializes a fixture tree from a map of relative
// paths to file contents. [Symlink] and [PinTimes] cover the two
// fixture needs plain file maps cannot express: link members and
// deterministic mtimes.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no coldstore-internal dependencies.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteTree creates files (content keyed by slash-separated relative
// path) under a fresh temp dir and returns the root. Parent
// directories are created as needed. A nil map yields an empty tree.
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

// Symlink creates a symlink at the slash-separated relative path
// under root, pointing at target. The target is recorded verbatim and
// may dangle.
func Symlink(t testing.TB, root, rel, target string) {
	t.Helper()
	if err := os.Symlink(target, filepath.Join(root, filepath.FromSlash(rel))); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
}

// PinTimes sets the mtime of every entry under root (root included)
// to when, so that repeated archive runs over the tree see identical
// metadata.
func PinTimes(t testing.TB, root string, when time.Time) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil // Chtimes would follow the link
		}
		return os.Chtimes(path, when, when)
	})
	if err != nil {
		t.Fatalf("PinTimes: %v", err)
	}
}
