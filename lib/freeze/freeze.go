// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package freeze orchestrates the archival pipeline: scan, hash,
// archive, manifest, checksum sidecar. One call to Run produces one
// immutable bundle (or, in dry-run mode, a report of what would be
// archived and nothing on disk).
//
// The pipeline is single-threaded and lock-step: each scanned entry is
// streamed into the archive and the per-file hasher before the next
// entry is touched. File content is read exactly once.
package freeze

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/janfasnacht/coldstore/lib/archive"
	"github.com/janfasnacht/coldstore/lib/clock"
	"github.com/janfasnacht/coldstore/lib/digest"
	"github.com/janfasnacht/coldstore/lib/manifest"
	"github.com/janfasnacht/coldstore/lib/scan"
)

// Sentinel errors for the CLI exit-code contract. Callers branch with
// errors.Is.
var (
	ErrSourceNotFound     = errors.New("source directory not found")
	ErrDestinationInvalid = errors.New("destination invalid")
	ErrArchiveCreation    = errors.New("archive creation failed")
)

// ArchiveSuffix is the bundle archive extension.
const ArchiveSuffix = ".tar.gz"

// ChecksumSuffix is the detached checksum file extension.
const ChecksumSuffix = ".sha256"

// Options configures one freeze. The git and environment blocks are
// supplied by the caller; the pipeline treats them as opaque input to
// the manifest.
type Options struct {
	// Source is the directory to archive.
	Source string

	// Destination is the directory the bundle is written into.
	Destination string

	// Name overrides the generated archive name. The .tar.gz suffix
	// is appended when missing. Empty means the timestamped default.
	Name string

	// Rules is the exclusion rule set.
	Rules scan.Rules

	// Strict aborts on the first per-entry scan error instead of
	// recording it and continuing.
	Strict bool

	// CompressionLevel is the gzip level, 1-9. Zero means the
	// default.
	CompressionLevel int

	// PreserveOwnership records verbatim uid/gid instead of
	// normalizing both to zero.
	PreserveOwnership bool

	// InlineFileLimit is the largest file count for which per-file
	// checksums are inlined in the manifest.
	InlineFileLimit int

	// Milestone, Notes, and Contacts populate the manifest event
	// block.
	Milestone string
	Notes     []string
	Contacts  []string

	// Git is the repository state block, nil when the source is not
	// a git work tree.
	Git *manifest.Git

	// Environment identifies the producing machine and tool.
	Environment manifest.Environment

	// NoManifest skips both manifest renderings. NoFilelist skips the
	// embedded FILELIST table. NoSHA256 skips the detached checksum
	// file.
	NoManifest bool
	NoFilelist bool
	NoSHA256   bool

	// DryRun scans and reports without writing anything.
	DryRun bool

	// Clock supplies the freeze timestamp. Nil means wall clock.
	Clock clock.Clock

	// Entropy supplies the random archive name suffix. Nil means
	// crypto/rand.
	Entropy io.Reader

	// Logger receives progress events. Nil means slog.Default().
	Logger *slog.Logger
}

// Result describes a completed (or dry-run) freeze.
type Result struct {
	// ArchivePath, ChecksumPath, and SidecarPath are the bundle files
	// written. Empty when the corresponding output was disabled, or
	// all empty on a dry run.
	ArchivePath  string
	ChecksumPath string
	SidecarPath  string

	// Manifest is the assembled provenance record, present even when
	// manifest output was disabled (the caller may want the data).
	// Nil on a dry run.
	Manifest *manifest.Manifest

	// Record is the archive record. Zero on a dry run.
	Record archive.Record

	// TotalCount and TotalSizeBytes describe the files that were (or
	// would be) archived.
	TotalCount     int
	TotalSizeBytes int64

	// Counts tallies all entries by kind.
	Counts archive.Counts

	// ScanErrors are the per-entry failures tolerated during the
	// scan. Empty in strict mode (the first one aborts).
	ScanErrors []scan.EntryError

	// DryRun records whether anything was written.
	DryRun bool
}

// Run executes one freeze.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	source, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, opts.Source, err)
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, opts.Source)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, opts.Source)
	}

	if err := opts.Rules.Validate(); err != nil {
		return nil, err
	}

	scanner := scan.New(source, opts.Rules)
	scanner.Strict = opts.Strict

	if opts.DryRun {
		return dryRun(ctx, scanner, logger)
	}

	destination, err := filepath.Abs(opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDestinationInvalid, opts.Destination, err)
	}
	destInfo, err := os.Stat(destination)
	if err != nil || !destInfo.IsDir() {
		return nil, fmt.Errorf("%w: %s is not an existing directory", ErrDestinationInvalid, opts.Destination)
	}

	now := clk.Now().UTC()
	name, err := archiveName(opts, now)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(name, ArchiveSuffix)
	archivePath := filepath.Join(destination, name)
	if _, err := os.Lstat(archivePath); err == nil {
		return nil, fmt.Errorf("%w: %s already exists", ErrDestinationInvalid, archivePath)
	}

	logger.Info("freezing", "source", source, "archive", archivePath)

	builder, err := archive.NewBuilder(archivePath, archive.Options{
		RootName:          filepath.Base(source),
		CompressionLevel:  opts.CompressionLevel,
		PreserveOwnership: opts.PreserveOwnership,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
	}

	result, err := build(ctx, scanner, builder, base, source, now, opts, logger)
	if err != nil {
		builder.Abort()
		return nil, err
	}
	return result, nil
}

// build streams the tree into an open builder and finalizes the
// bundle. On error the caller aborts the builder.
func build(ctx context.Context, scanner *scan.Scanner, builder *archive.Builder,
	base, source string, now time.Time, opts Options, logger *slog.Logger) (*Result, error) {

	var (
		rows      []manifest.Row
		checksums = make(map[string]string)
		totalSize int64
	)
	err := scanner.Run(ctx, func(entry scan.Entry) error {
		// Open through the on-disk path; RelPath is NFC-normalized
		// and may not name the file on byte-preserving filesystems.
		sum, skipped, err := builder.Add(entry, filepath.Join(source, entry.DiskRelPath))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrArchiveCreation, err)
		}
		if skipped {
			logger.Warn("entry has no tar representation, recorded in manifest only",
				"path", entry.RelPath)
		}
		hexSum := ""
		if entry.Kind == scan.KindFile {
			hexSum = sum.String()
			checksums[entry.RelPath] = hexSum
			totalSize += entry.Size
		}
		// One ownership switch governs every rendering of an entry;
		// the FILELIST must agree with the tar headers.
		if !opts.PreserveOwnership {
			entry.UID, entry.GID = 0, 0
		}
		rows = append(rows, manifest.RowFromEntry(entry, hexSum))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		ManifestVersion: manifest.Version,
		CreatedUTC:      manifest.FormatTime(now),
		ID:              base,
		Source: manifest.Source{
			Root:          source,
			Normalization: manifest.DefaultNormalization(opts.Rules.ExcludeVCS),
		},
		Event: manifest.Event{
			Milestone: opts.Milestone,
			Notes:     opts.Notes,
			Contacts:  opts.Contacts,
			Timestamp: manifest.FormatTime(now),
		},
		Git:         opts.Git,
		Environment: opts.Environment,
		Archive: manifest.Archive{
			Path:             base + ArchiveSuffix,
			CompressionLevel: builderLevel(opts),
			MemberCounts:     builder.Counts(),
		},
		Files: manifest.Files{
			TotalCount:     len(checksums),
			TotalSizeBytes: totalSize,
		},
		Verification: manifest.Verification{
			PerFileHash: manifest.PerFileHash{Algorithm: "sha256"},
		},
	}

	var filelist []byte
	if !opts.NoFilelist {
		data, err := manifest.EncodeFilelist(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
		}
		filelist = data
		sum := digestBytes(data)
		m.Verification.PerFileHash.ManifestHashOfFilelist = sum
		if len(checksums) > opts.InlineFileLimit && opts.InlineFileLimit > 0 {
			m.Files.ExternalReference = &manifest.ExternalReference{
				Path:   archive.MetadataDir + "/" + manifest.FilelistName,
				SHA256: sum,
			}
		}
	}
	if m.Files.ExternalReference == nil {
		m.Files.Checksums = checksums
	}

	// Metadata members are appended after all source entries, in
	// fixed order.
	if err := builder.AddMetadataFile(manifest.SummaryName, []byte(m.Summary()), now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
	}
	if filelist != nil {
		if err := builder.AddMetadataFile(manifest.FilelistName, filelist, now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
		}
	}
	if !opts.NoManifest {
		embedded, err := m.Embedded().EncodeYAML()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
		}
		if err := builder.AddMetadataFile(manifest.EmbeddedName, embedded, now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
		}
	}

	record, err := builder.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
	}
	m.Archive.SHA256 = record.SHA256.String()
	m.Archive.SizeBytes = record.SizeBytes

	result := &Result{
		ArchivePath:    record.Path,
		Manifest:       m,
		Record:         record,
		TotalCount:     m.Files.TotalCount,
		TotalSizeBytes: totalSize,
		Counts:         record.Counts,
		ScanErrors:     scanner.Errors(),
	}

	if !opts.NoSHA256 {
		line := record.SHA256.String() + "  " + base + ArchiveSuffix + "\n"
		result.ChecksumPath = filepath.Join(filepath.Dir(record.Path), base+ChecksumSuffix)
		if err := os.WriteFile(result.ChecksumPath, []byte(line), 0o644); err != nil {
			cleanup(result)
			return nil, fmt.Errorf("writing checksum file: %w", err)
		}
	}
	if !opts.NoManifest {
		sidecar, err := m.EncodeJSON()
		if err != nil {
			cleanup(result)
			return nil, err
		}
		result.SidecarPath = filepath.Join(filepath.Dir(record.Path), base+manifest.SidecarSuffix)
		if err := os.WriteFile(result.SidecarPath, sidecar, 0o644); err != nil {
			cleanup(result)
			return nil, fmt.Errorf("writing manifest sidecar: %w", err)
		}
	}

	logger.Info("freeze complete",
		"archive", record.Path,
		"size", record.SizeBytes,
		"sha256", record.SHA256.String(),
		"files", result.TotalCount)
	return result, nil
}

// dryRun scans and tallies without touching the destination.
func dryRun(ctx context.Context, scanner *scan.Scanner, logger *slog.Logger) (*Result, error) {
	result := &Result{DryRun: true}
	err := scanner.Run(ctx, func(entry scan.Entry) error {
		switch entry.Kind {
		case scan.KindFile:
			result.Counts.Files++
			result.TotalCount++
			result.TotalSizeBytes += entry.Size
		case scan.KindDir:
			result.Counts.Dirs++
		case scan.KindSymlink:
			result.Counts.Symlinks++
		default:
			result.Counts.Other++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.ScanErrors = scanner.Errors()
	logger.Info("dry run",
		"files", result.Counts.Files,
		"dirs", result.Counts.Dirs,
		"total_size", result.TotalSizeBytes)
	return result, nil
}

// cleanup removes bundle files written before a late failure. A
// partial bundle must not survive looking complete.
func cleanup(result *Result) {
	for _, path := range []string{result.ArchivePath, result.ChecksumPath, result.SidecarPath} {
		if path != "" {
			os.Remove(path)
		}
	}
}

// archiveName resolves the output filename: an explicit override with
// the suffix ensured, or the timestamped default with random entropy
// so simultaneous freezes in one second cannot collide.
func archiveName(opts Options, now time.Time) (string, error) {
	if opts.Name != "" {
		name := opts.Name
		if !strings.HasSuffix(name, ArchiveSuffix) {
			name += ArchiveSuffix
		}
		if strings.ContainsRune(name, os.PathSeparator) {
			return "", fmt.Errorf("%w: archive name %q must not contain path separators", ErrDestinationInvalid, opts.Name)
		}
		return name, nil
	}

	entropy := opts.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	var b [3]byte
	if _, err := io.ReadFull(entropy, b[:]); err != nil {
		return "", fmt.Errorf("generating archive name: %w", err)
	}
	return fmt.Sprintf("coldstore_%s_%s%s",
		now.Format("2006-01-02_15-04-05"), hex.EncodeToString(b[:]), ArchiveSuffix), nil
}

func digestBytes(data []byte) string {
	w := digest.NewWriter()
	w.Write(data)
	return w.Sum().String()
}

func builderLevel(opts Options) int {
	if opts.CompressionLevel == 0 {
		return archive.DefaultCompressionLevel
	}
	return opts.CompressionLevel
}
