// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Reader streams members out of a coldstore archive without extracting
// anything to disk. Verification and inspection both read through it.
type Reader struct {
	file *os.File
	gz   *gzip.Reader
	tr   *tar.Reader
}

// OpenReader opens an archive for streaming reads.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading archive %s: not a gzip stream: %w", path, err)
	}
	return &Reader{file: file, gz: gz, tr: tar.NewReader(gz)}, nil
}

// Next advances to the next member. io.EOF signals the end of the
// archive.
func (r *Reader) Next() (*tar.Header, error) {
	return r.tr.Next()
}

// Read reads the current member's content.
func (r *Reader) Read(p []byte) (int, error) {
	return r.tr.Read(p)
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	gzErr := r.gz.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return gzErr
}

// SourceRelPath maps a tar member name back to the relative path the
// scanner produced: the leading root component is stripped, and
// members under the metadata directory (and the root itself) are
// reported as non-source.
func SourceRelPath(memberName string) (string, bool) {
	name := strings.TrimSuffix(memberName, "/")
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", false // the root directory member, if present
	}
	rel := name[i+1:]
	if rel == MetadataDir || strings.HasPrefix(rel, MetadataDir+"/") {
		return "", false
	}
	return rel, true
}

// ReadMetadataFile scans the archive for the named file in the
// metadata directory and returns its content. The archive is read
// sequentially; metadata members sit at the end, so this touches the
// whole stream.
func ReadMetadataFile(path, name string) ([]byte, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	suffix := "/" + MetadataDir + "/" + name
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("archive %s: no embedded %s", path, name)
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive %s: %w", path, err)
		}
		if header.Typeflag == tar.TypeReg && strings.HasSuffix(header.Name, suffix) {
			return io.ReadAll(r)
		}
	}
}
