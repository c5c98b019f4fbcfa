// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive writes and reads coldstore tar+gzip archives.
//
// The builder is single-pass and deterministic: members are written in
// exactly the order they are handed in, the gzip header carries no
// wall-clock timestamp, and tar headers are PAX format with
// second-precision mtimes and no atime/ctime records. Identical input
// sequences with identical options therefore produce byte-identical
// archives. The archive checksum is accumulated from the bytes as they
// are written; there is no re-read pass.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/janfasnacht/coldstore/lib/digest"
	"github.com/janfasnacht/coldstore/lib/scan"
)

// DefaultCompressionLevel is the gzip level used when the caller does
// not choose one. Level 6 is the usual speed/size balance.
const DefaultCompressionLevel = 6

// MetadataDir is the directory inside the archive root that holds the
// embedded manifest, the human summary, and the optional FILELIST
// table.
const MetadataDir = ".coldstore"

// Options configures a Builder. The struct is immutable once the
// Builder is created; there are no per-member switches.
type Options struct {
	// RootName is the top-level directory name all members are
	// placed under (conventionally the source directory's basename).
	RootName string

	// CompressionLevel is the gzip level, 1-9.
	CompressionLevel int

	// PreserveOwnership writes numeric uid/gid verbatim. When false,
	// both are normalized to zero. One switch governs every member;
	// a mixed archive is never produced. User and group names are
	// always left empty (they vary by host and would break
	// determinism).
	PreserveOwnership bool
}

// Counts tallies archive members by kind. Metadata members written via
// AddMetadataFile are not counted; the counts describe the source
// tree.
type Counts struct {
	Files    int `json:"files" yaml:"files"`
	Dirs     int `json:"dirs" yaml:"dirs"`
	Symlinks int `json:"symlinks" yaml:"symlinks"`
	Other    int `json:"other" yaml:"other"`
}

// Total returns the total member count.
func (c Counts) Total() int { return c.Files + c.Dirs + c.Symlinks + c.Other }

// Record describes a finished archive. It exists only after Close:
// the checksum covers every byte of the output stream and cannot be
// known earlier.
type Record struct {
	Path             string
	SizeBytes        int64
	SHA256           digest.Digest
	CompressionLevel int
	Counts           Counts
}

// Builder streams entries into a single tar+gzip archive. Not safe
// for concurrent use; the freeze pipeline is the only writer.
type Builder struct {
	opts Options
	path string

	file    *os.File
	hash    *digest.Writer
	gz      *gzip.Writer
	tw      *tar.Writer
	buffer  []byte
	counts  Counts
	metaDir bool
	closed  bool
}

// NewBuilder creates the output file and the compression pipeline.
// The file is created exclusively; an existing archive is never
// overwritten.
func NewBuilder(outPath string, opts Options) (*Builder, error) {
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = DefaultCompressionLevel
	}
	if opts.CompressionLevel < gzip.BestSpeed || opts.CompressionLevel > gzip.BestCompression {
		return nil, fmt.Errorf("compression level must be 1-9, got %d", opts.CompressionLevel)
	}

	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating archive %s: %w", outPath, err)
	}

	hash := digest.NewWriter()
	gz, err := gzip.NewWriterLevel(io.MultiWriter(file, hash), opts.CompressionLevel)
	if err != nil {
		file.Close()
		os.Remove(outPath)
		return nil, fmt.Errorf("initializing gzip: %w", err)
	}
	// Fix the gzip header: no wall-clock mtime, explicit "unknown"
	// OS byte. Any drift here changes the archive checksum.
	gz.ModTime = time.Time{}
	gz.OS = 255

	return &Builder{
		opts:   opts,
		path:   outPath,
		file:   file,
		hash:   hash,
		gz:     gz,
		tw:     tar.NewWriter(gz),
		buffer: make([]byte, digest.ChunkSize),
	}, nil
}

// Add writes one entry to the archive. sourcePath is the on-disk
// location of the entry's content. For regular files the content is
// read once, in chunks, feeding the tar stream and the per-file
// SHA-256 simultaneously; the returned digest is that content digest.
// For all other kinds the returned digest is zero.
//
// An entry with no tar representation (a socket) produces no archive
// member but is still counted; skipped reports this so the caller can
// log it.
//
// A size mismatch between the scanned entry and the bytes actually
// read (the file changed underneath the freeze) is fatal: the tar
// stream can no longer be trusted and the caller must Abort.
func (b *Builder) Add(entry scan.Entry, sourcePath string) (sum digest.Digest, skipped bool, err error) {
	header, ok := b.headerFor(entry)
	if !ok {
		// Unrepresentable in tar. The entry stays in the manifest as
		// kind "other" but has no archive member.
		b.counts.Other++
		return digest.Digest{}, true, nil
	}

	if err := b.tw.WriteHeader(header); err != nil {
		return digest.Digest{}, false, fmt.Errorf("writing header for %s: %w", entry.RelPath, err)
	}

	var content digest.Digest
	if entry.Kind == scan.KindFile {
		d, err := b.copyFile(entry, sourcePath)
		if err != nil {
			return digest.Digest{}, false, err
		}
		content = d
	}

	switch entry.Kind {
	case scan.KindFile:
		b.counts.Files++
	case scan.KindDir:
		b.counts.Dirs++
	case scan.KindSymlink:
		b.counts.Symlinks++
	default:
		b.counts.Other++
	}
	return content, false, nil
}

// copyFile streams one file's content into the tar writer while
// folding it into a fresh SHA-256.
func (b *Builder) copyFile(entry scan.Entry, sourcePath string) (digest.Digest, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("opening %s: %w", entry.RelPath, err)
	}
	defer file.Close()

	hash := digest.NewWriter()
	n, err := io.CopyBuffer(io.MultiWriter(b.tw, hash), io.LimitReader(file, entry.Size), b.buffer)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("archiving %s: %w", entry.RelPath, err)
	}
	if n != entry.Size {
		return digest.Digest{}, fmt.Errorf("archiving %s: size changed during freeze (header %d bytes, read %d)",
			entry.RelPath, entry.Size, n)
	}
	return hash.Sum(), nil
}

// headerFor builds the tar header for an entry. The second return is
// false when the entry kind has no tar representation.
func (b *Builder) headerFor(entry scan.Entry) (*tar.Header, bool) {
	header := &tar.Header{
		Name:    path.Join(b.opts.RootName, entry.RelPath),
		Mode:    int64(unixModeBits(entry.Mode)),
		ModTime: entry.ModTime,
		Format:  tar.FormatPAX,
	}
	if b.opts.PreserveOwnership {
		header.Uid = int(entry.UID)
		header.Gid = int(entry.GID)
	}

	switch entry.Kind {
	case scan.KindFile:
		header.Typeflag = tar.TypeReg
		header.Size = entry.Size
	case scan.KindDir:
		header.Typeflag = tar.TypeDir
		header.Name += "/"
	case scan.KindSymlink:
		header.Typeflag = tar.TypeSymlink
		header.Linkname = entry.LinkTarget
	default:
		switch {
		case entry.Mode&fs.ModeNamedPipe != 0:
			header.Typeflag = tar.TypeFifo
		case entry.Mode&fs.ModeCharDevice != 0:
			header.Typeflag = tar.TypeChar
		case entry.Mode&fs.ModeDevice != 0:
			header.Typeflag = tar.TypeBlock
		default:
			return nil, false
		}
	}
	return header, true
}

// AddMetadataFile writes an in-memory file into the archive's
// metadata directory (MetadataDir under the root). The directory
// member itself is written before the first file. modTime should come
// from the pipeline clock so the archive stays reproducible.
func (b *Builder) AddMetadataFile(name string, data []byte, modTime time.Time) error {
	modTime = modTime.UTC().Truncate(time.Second)
	if !b.metaDir {
		dir := &tar.Header{
			Name:     path.Join(b.opts.RootName, MetadataDir) + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
			ModTime:  modTime,
			Format:   tar.FormatPAX,
		}
		if err := b.tw.WriteHeader(dir); err != nil {
			return fmt.Errorf("writing metadata directory: %w", err)
		}
		b.metaDir = true
	}

	header := &tar.Header{
		Name:     path.Join(b.opts.RootName, MetadataDir, name),
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	}
	if err := b.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing metadata header for %s: %w", name, err)
	}
	if _, err := b.tw.Write(data); err != nil {
		return fmt.Errorf("writing metadata %s: %w", name, err)
	}
	return nil
}

// Counts returns the member tally so far.
func (b *Builder) Counts() Counts { return b.counts }

// Close flushes the tar and gzip streams and finalizes the output
// file. The returned Record carries the checksum of the complete
// output stream; it is valid only after Close succeeds.
func (b *Builder) Close() (Record, error) {
	if b.closed {
		return Record{}, fmt.Errorf("archive %s: already closed", b.path)
	}
	b.closed = true

	if err := b.tw.Close(); err != nil {
		b.file.Close()
		return Record{}, fmt.Errorf("finalizing tar stream: %w", err)
	}
	if err := b.gz.Close(); err != nil {
		b.file.Close()
		return Record{}, fmt.Errorf("finalizing gzip stream: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return Record{}, fmt.Errorf("closing archive %s: %w", b.path, err)
	}

	return Record{
		Path:             b.path,
		SizeBytes:        b.hash.BytesWritten(),
		SHA256:           b.hash.Sum(),
		CompressionLevel: b.opts.CompressionLevel,
		Counts:           b.counts,
	}, nil
}

// Abort closes the underlying streams and removes the partial output
// file. A half-written archive must never be left claiming success.
func (b *Builder) Abort() {
	if !b.closed {
		b.closed = true
		b.tw.Close()
		b.gz.Close()
		b.file.Close()
	}
	os.Remove(b.path)
}

// unixModeBits converts an fs.FileMode to classic Unix permission
// bits including setuid/setgid/sticky, as stored in tar headers.
func unixModeBits(mode fs.FileMode) uint32 {
	bits := uint32(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}
