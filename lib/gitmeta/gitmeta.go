// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitmeta collects repository state for the manifest's git
// block via typed access to the git CLI. All commands target the
// source directory via the -C flag, which is automatically injected by
// all Repository methods. When the source is not inside a work tree
// the collector reports nil rather than an error: absence of git is a
// fact worth recording, not a failure.
package gitmeta

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/janfasnacht/coldstore/lib/manifest"
)

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory; callers must always specify which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// InsideWorkTree reports whether the directory is inside a git work
// tree. A missing git binary counts as "no".
func (r *Repository) InsideWorkTree(ctx context.Context) bool {
	out, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Head returns the current commit hash.
func (r *Repository) Head(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Branch returns the current branch name, or "" for a detached HEAD.
func (r *Repository) Branch(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(out)
	if name == "HEAD" {
		return "", nil
	}
	return name, nil
}

// Tag returns the tag pointing exactly at HEAD, or "" when there is
// none.
func (r *Repository) Tag(ctx context.Context) string {
	out, err := r.Run(ctx, "describe", "--tags", "--exact-match", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// IsDirty reports whether the working tree has uncommitted changes,
// untracked files included.
func (r *Repository) IsDirty(ctx context.Context) (bool, error) {
	out, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Remotes returns the fetch URL of every configured remote.
func (r *Repository) Remotes(ctx context.Context) (map[string]string, error) {
	out, err := r.Run(ctx, "remote", "-v")
	if err != nil {
		return nil, err
	}
	remotes := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[2] != "(fetch)" {
			continue
		}
		remotes[fields[0]] = fields[1]
	}
	return remotes, nil
}

// Collect gathers the manifest git block for the repository containing
// dir. Returns nil when dir is not inside a work tree. Fields that git
// cannot answer (no commits yet, no remotes) are left empty rather
// than failing the freeze; the only error Collect returns is the
// context's, when the collection was cancelled.
func Collect(ctx context.Context, dir string) (*manifest.Git, error) {
	repo := NewRepository(dir)
	if !repo.InsideWorkTree(ctx) {
		// A cancelled context makes every git command fail, which is
		// indistinguishable from "not a repository" at this level.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	block := &manifest.Git{}
	commit, err := repo.Head(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// A freshly initialized repository has no HEAD commit. Record
		// its presence with everything else empty.
		return block, nil
	}
	block.Commit = commit

	if branch, err := repo.Branch(ctx); err == nil {
		block.Branch = branch
	}
	block.Tag = repo.Tag(ctx)
	if dirty, err := repo.IsDirty(ctx); err == nil {
		block.IsDirty = dirty
	}
	if remotes, err := repo.Remotes(ctx); err == nil && len(remotes) > 0 {
		block.Remotes = remotes
		if origin, ok := remotes["origin"]; ok {
			block.Remote = origin
		} else {
			// No origin; pick the lexicographically first remote so
			// the summary field is still deterministic.
			first := ""
			for name := range remotes {
				if first == "" || name < first {
					first = name
				}
			}
			block.Remote = remotes[first]
		}
	}
	// The degraded branches above swallow command failures; a block
	// assembled during cancellation would be silently incomplete.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return block, nil
}
