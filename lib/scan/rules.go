// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/jsonc"
)

// vcsDirectories are the version-control control directories excluded
// by default. Matching a directory prunes its whole subtree.
var vcsDirectories = map[string]struct{}{
	".git": {},
	".hg":  {},
	".svn": {},
	".bzr": {},
	"CVS":  {},
}

// Rules is the compiled exclusion rule set consumed by the Scanner.
// The zero value excludes nothing.
type Rules struct {
	// Patterns are glob patterns (doublestar syntax, so "**" works).
	// A pattern matches an entry when it matches either the full
	// relative path or the basename, mirroring the common fnmatch
	// convention where "*.log" excludes logs at any depth.
	Patterns []string

	// ExcludeVCS enables the default exclusion of version-control
	// control directories.
	ExcludeVCS bool

	// RespectGitignore loads patterns from the root .gitignore file.
	// Off by default: an archival snapshot should normally include
	// everything, ignored build products included, unless the caller
	// explicitly opts out.
	RespectGitignore bool

	// gitignore holds patterns loaded from the root .gitignore when
	// RespectGitignore is set. Populated by the Scanner.
	gitignore []string
}

// Validate checks every pattern for glob syntax errors so a bad
// pattern fails the freeze up front instead of silently excluding
// nothing.
func (r Rules) Validate() error {
	for _, pattern := range r.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return nil
}

// Excluded reports whether the entry at relPath (basename base) should
// be excluded. isDir enables the VCS-directory rule; the scanner uses
// a true result on a directory to prune the subtree without
// descending.
func (r Rules) Excluded(relPath, base string, isDir bool) bool {
	if isDir && r.ExcludeVCS {
		if _, ok := vcsDirectories[base]; ok {
			return true
		}
	}
	for _, pattern := range r.Patterns {
		if matchPattern(pattern, relPath, base) {
			return true
		}
	}
	for _, pattern := range r.gitignore {
		if matchPattern(pattern, relPath, base) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, relPath, base string) bool {
	if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(pattern, base); err == nil && ok {
		return true
	}
	return false
}

// LoadGitignore reads exclusion patterns from the .gitignore file at
// the root of the tree, skipping blanks and comments. Negation and
// directory-only markers from the full gitignore spec are not
// interpreted; patterns are applied as plain globs. A missing file
// yields no patterns.
func LoadGitignore(root string) ([]string, error) {
	file, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading .gitignore: %w", err)
	}
	defer file.Close()

	var patterns []string
	lines := bufio.NewScanner(file)
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("reading .gitignore: %w", err)
	}
	return patterns, nil
}

// ruleFile is the on-disk shape of an exclusion rule file.
type ruleFile struct {
	Exclude []string `json:"exclude"`
}

// LoadRuleFile reads exclusion patterns from a JSONC document of the
// form {"exclude": ["*.log", "build/**"]}. Comments and trailing
// commas are permitted so rule files can document themselves.
func LoadRuleFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	var parsed ruleFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return nil, fmt.Errorf("parsing rule file %s: %w", path, err)
	}
	return parsed.Exclude, nil
}
