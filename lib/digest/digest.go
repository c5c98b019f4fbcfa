// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes and formats SHA-256 content digests.
//
// All content fingerprints in a coldstore bundle (per-file checksums,
// the archive checksum, and the FILELIST table checksum) are SHA-256
// digests in lowercase hex. Files are streamed through the hash in
// fixed-size chunks so peak memory is independent of file size.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// ChunkSize is the read buffer size used when streaming content
// through the hash function. It bounds peak memory per file.
const ChunkSize = 1 << 20 // 1 MiB

// Digest is a SHA-256 content digest.
type Digest [sha256.Size]byte

// IsZero reports whether the digest is the all-zero value, used as the
// "no digest" marker for directories, symlinks, and other non-file
// entries. Note this is distinct from the digest of empty input.
func (d Digest) IsZero() bool { return d == Digest{} }

// String returns the canonical lowercase hex encoding.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Parse parses a 64-character lowercase or uppercase hex string into a
// Digest.
func Parse(hexString string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != sha256.Size {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(decoded), sha256.Size)
	}
	copy(d[:], decoded)
	return d, nil
}

// File computes the digest of the file at path. The file is streamed
// through the hash in ChunkSize reads; a zero-byte file produces the
// well-defined digest of empty input.
func File(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	d, _, err := Reader(file)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return d, nil
}

// Reader computes the digest of everything readable from r, returning
// the digest and the number of bytes consumed.
func Reader(r io.Reader) (Digest, int64, error) {
	hasher := sha256.New()
	buffer := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(hasher, r, buffer)
	if err != nil {
		return Digest{}, n, err
	}
	return sum(hasher), n, nil
}

// Writer is an io.Writer that accumulates a digest and a byte count
// for everything written through it. The archive builder tees its
// output stream through a Writer so the archive checksum is computed
// in the same pass as the write, with no re-read.
type Writer struct {
	hasher hash.Hash
	n      int64
}

// NewWriter returns a Writer with an empty accumulator.
func NewWriter() *Writer {
	return &Writer{hasher: sha256.New()}
}

// Write folds p into the digest accumulator. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.hasher.Write(p)
	w.n += int64(len(p))
	return len(p), nil
}

// Sum returns the digest of all bytes written so far.
func (w *Writer) Sum() Digest { return sum(w.hasher) }

// BytesWritten returns the total number of bytes written so far.
func (w *Writer) BytesWritten() int64 { return w.n }

func sum(h hash.Hash) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
