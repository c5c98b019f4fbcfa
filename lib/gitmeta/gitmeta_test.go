// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package gitmeta

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"
)

// initRepo creates a working repository with one commit and returns
// its path.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		command := exec.Command("git", append([]string{"-C", dir}, args...)...)
		command.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@test.local",
			"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.local",
		)
		if output, err := command.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, output)
		}
	}

	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("test\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run("add", "README")
	run("commit", "-m", "initial")
	return dir
}

func TestCollectOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	block, err := Collect(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if block != nil {
		t.Errorf("block = %+v, want nil outside a repository", block)
	}
}

func TestCollectCleanRepository(t *testing.T) {
	dir := initRepo(t)

	block, err := Collect(context.Background(), dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if block == nil {
		t.Fatal("block = nil inside a repository")
	}
	if !regexp.MustCompile(`^[a-f0-9]{40}$`).MatchString(block.Commit) {
		t.Errorf("commit = %q, want 40 hex characters", block.Commit)
	}
	if block.Branch != "main" {
		t.Errorf("branch = %q, want main", block.Branch)
	}
	if block.IsDirty {
		t.Error("clean repository reported dirty")
	}
}

func TestCollectDirtyRepository(t *testing.T) {
	dir := initRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	block, err := Collect(context.Background(), dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if block == nil || !block.IsDirty {
		t.Error("untracked file should mark the repository dirty")
	}
}

func TestCollectRemotesAndTag(t *testing.T) {
	dir := initRepo(t)
	repo := NewRepository(dir)
	ctx := context.Background()
	if _, err := repo.Run(ctx, "remote", "add", "origin", "git@example.org:jan/project.git"); err != nil {
		t.Fatalf("remote add: %v", err)
	}
	if _, err := repo.Run(ctx, "tag", "v1.0"); err != nil {
		t.Fatalf("tag: %v", err)
	}

	block, err := Collect(ctx, dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if block.Remote != "git@example.org:jan/project.git" {
		t.Errorf("remote = %q", block.Remote)
	}
	if block.Remotes["origin"] != "git@example.org:jan/project.git" {
		t.Errorf("remotes = %v", block.Remotes)
	}
	if block.Tag != "v1.0" {
		t.Errorf("tag = %q, want v1.0", block.Tag)
	}
}

func TestSubdirectoryBelongsToRepository(t *testing.T) {
	dir := initRepo(t)
	sub := filepath.Join(dir, "nested", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	block, err := Collect(context.Background(), sub)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if block == nil || block.Commit == "" {
		t.Error("subdirectory of a repository should collect the git block")
	}
}

func TestCollectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Collect(ctx, t.TempDir()); err == nil {
		t.Fatal("Collect should surface a cancelled context, not report no repository")
	}
}
