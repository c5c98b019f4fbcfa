// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify checks bundle integrity at three levels: the archive
// checksum, the manifest's structure, and (optionally) every file's
// content digest. Nothing is ever extracted to disk; all three levels
// stream.
package verify

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/janfasnacht/coldstore/lib/archive"
	"github.com/janfasnacht/coldstore/lib/digest"
	"github.com/janfasnacht/coldstore/lib/manifest"
)

// Sentinel errors for the CLI exit-code contract.
var (
	ErrArchiveChecksum = errors.New("archive checksum mismatch")
	ErrFileChecksum    = errors.New("file checksum mismatch")
	ErrManifestInvalid = errors.New("manifest invalid")
)

// Options configures one verification.
type Options struct {
	// ArchivePath is the bundle archive. Sibling files (sidecar
	// manifest, detached checksum) are found by name.
	ArchivePath string

	// Deep additionally recomputes every file's SHA-256 (level 3).
	Deep bool

	// Logger receives progress events. Nil means slog.Default().
	Logger *slog.Logger
}

// PerFile reports level 3 results.
type PerFile struct {
	// Checked is the number of file members whose content was hashed.
	Checked int

	// Mismatched lists the relative paths whose digest disagreed with
	// the manifest, plus paths present on one side only.
	Mismatched []string
}

// Report is the outcome of one verification. It is transient: levels
// that did not run (deep verification when not requested, or anything
// after a fail-fast stop) report false without meaning failure on
// their own; Overall is the verdict.
type Report struct {
	ArchiveOK  bool
	ManifestOK bool
	PerFile    PerFile
	Overall    bool
}

// Run verifies a bundle. Levels run in order and the first failing
// level stops the run; the returned error is the sentinel for that
// level and the report shows how far verification got.
func Run(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report := &Report{}

	if _, err := os.Stat(opts.ArchivePath); err != nil {
		return report, fmt.Errorf("archive %s: %w", opts.ArchivePath, err)
	}

	m, fromSidecar, err := loadManifest(opts.ArchivePath)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}

	// Level 1: the archive bytes against the recorded digest. The
	// embedded manifest cannot carry one, so a bundle missing its
	// sidecar falls back to the detached checksum file.
	expected := m.Archive.SHA256
	if expected == "" {
		expected, err = readDetachedChecksum(opts.ArchivePath)
		if err != nil {
			return report, fmt.Errorf("%w: no archive digest available: %v", ErrManifestInvalid, err)
		}
	}
	actual, err := digest.File(opts.ArchivePath)
	if err != nil {
		return report, fmt.Errorf("hashing archive: %w", err)
	}
	if actual.String() != expected {
		logger.Error("archive checksum mismatch",
			"expected", expected, "actual", actual.String())
		return report, fmt.Errorf("%w: expected %s, got %s", ErrArchiveChecksum, expected, actual)
	}
	report.ArchiveOK = true
	logger.Debug("archive checksum verified", "sha256", expected)

	// Level 2: manifest structure and the FILELIST digest pin.
	if err := m.Validate(); err != nil {
		return report, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	filelistSums, err := checkFilelist(opts.ArchivePath, m)
	if err != nil {
		return report, err
	}
	if fromSidecar && m.Archive.SizeBytes > 0 {
		if info, err := os.Stat(opts.ArchivePath); err == nil && info.Size() != m.Archive.SizeBytes {
			return report, fmt.Errorf("%w: archive is %d bytes, manifest records %d",
				ErrManifestInvalid, info.Size(), m.Archive.SizeBytes)
		}
	}
	report.ManifestOK = true

	if !opts.Deep {
		report.Overall = true
		return report, nil
	}

	// Level 3: every file's content against its recorded digest.
	expectedSums := m.Files.Checksums
	if expectedSums == nil {
		expectedSums = filelistSums
	}
	if expectedSums == nil {
		return report, fmt.Errorf("%w: no per-file checksums recorded", ErrManifestInvalid)
	}
	perFile, err := deepVerify(ctx, opts.ArchivePath, expectedSums, logger)
	if err != nil {
		return report, err
	}
	report.PerFile = *perFile
	if len(perFile.Mismatched) > 0 {
		return report, fmt.Errorf("%w: %d of %d files",
			ErrFileChecksum, len(perFile.Mismatched), perFile.Checked)
	}
	report.Overall = true
	logger.Info("deep verification passed", "files", perFile.Checked)
	return report, nil
}

// loadManifest reads the sidecar manifest, falling back to the copy
// embedded in the archive. The second return reports which one was
// used.
func loadManifest(archivePath string) (*manifest.Manifest, bool, error) {
	base := strings.TrimSuffix(archivePath, ".tar.gz")
	data, err := os.ReadFile(base + manifest.SidecarSuffix)
	if err == nil {
		m, err := manifest.DecodeJSON(data)
		return m, true, err
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	embedded, err := archive.ReadMetadataFile(archivePath, manifest.EmbeddedName)
	if err != nil {
		return nil, false, fmt.Errorf("no sidecar manifest and no embedded copy: %w", err)
	}
	m, err := manifest.DecodeYAML(embedded)
	return m, false, err
}

// readDetachedChecksum parses the "<hex>  <filename>" line from the
// .sha256 file next to the archive.
func readDetachedChecksum(archivePath string) (string, error) {
	base := strings.TrimSuffix(archivePath, ".tar.gz")
	file, err := os.Open(base + ".sha256")
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return "", fmt.Errorf("%s.sha256 is empty", base)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 1 || len(fields[0]) != 64 {
		return "", fmt.Errorf("%s.sha256 is malformed", base)
	}
	return fields[0], nil
}

// checkFilelist verifies the embedded FILELIST against the digest
// pinned in the manifest and returns its per-file sums for deep
// verification. Returns nil sums when the bundle has no FILELIST.
func checkFilelist(archivePath string, m *manifest.Manifest) (map[string]string, error) {
	pinned := m.Verification.PerFileHash.ManifestHashOfFilelist
	if ref := m.Files.ExternalReference; ref != nil {
		pinned = ref.SHA256
	}
	if pinned == "" {
		return nil, nil
	}

	data, err := archive.ReadMetadataFile(archivePath, manifest.FilelistName)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest references a FILELIST the archive does not contain: %v",
			ErrManifestInvalid, err)
	}
	w := digest.NewWriter()
	w.Write(data)
	if w.Sum().String() != pinned {
		return nil, fmt.Errorf("%w: FILELIST digest mismatch", ErrManifestInvalid)
	}

	rows, err := manifest.DecodeFilelist(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	sums := make(map[string]string)
	for _, row := range rows {
		if row.SHA256 != "" {
			sums[row.RelPath] = row.SHA256
		}
	}
	return sums, nil
}

// deepVerify streams the tar once, recomputing each file member's
// digest. All mismatches are collected so the report can name every
// damaged path.
func deepVerify(ctx context.Context, archivePath string, expected map[string]string, logger *slog.Logger) (*PerFile, error) {
	r, err := archive.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	perFile := &PerFile{}
	seen := make(map[string]bool, len(expected))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		relPath, ok := archive.SourceRelPath(header.Name)
		if !ok {
			continue
		}

		want, recorded := expected[relPath]
		if !recorded {
			logger.Warn("archive member missing from manifest", "path", relPath)
			perFile.Mismatched = append(perFile.Mismatched, relPath)
			continue
		}
		seen[relPath] = true
		sum, _, err := digest.Reader(r)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", relPath, err)
		}
		perFile.Checked++
		if sum.String() != want {
			logger.Warn("file checksum mismatch", "path", relPath,
				"expected", want, "actual", sum.String())
			perFile.Mismatched = append(perFile.Mismatched, relPath)
		}
	}

	for relPath := range expected {
		if !seen[relPath] {
			logger.Warn("manifest entry missing from archive", "path", relPath)
			perFile.Mismatched = append(perFile.Mismatched, relPath)
		}
	}
	sort.Strings(perFile.Mismatched)
	return perFile, nil
}
