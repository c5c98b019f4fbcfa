// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janfasnacht/coldstore/lib/digest"
	"github.com/janfasnacht/coldstore/lib/scan"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// writeTestArchive builds a small archive with one dir, one file, and
// one symlink and returns the record plus the file's content digest.
func writeTestArchive(t *testing.T, path string, opts Options) (Record, digest.Digest) {
	t.Helper()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	b, err := NewBuilder(path, opts)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if _, _, err := b.Add(scan.Entry{
		RelPath: "docs", Kind: scan.KindDir, Mode: os.ModeDir | 0o755,
		ModTime: testTime, UID: 1000, GID: 1000,
	}, ""); err != nil {
		t.Fatalf("Add dir: %v", err)
	}
	fileDigest, skipped, err := b.Add(scan.Entry{
		RelPath: "docs/hello.txt", Kind: scan.KindFile, Mode: 0o644, Size: 6,
		ModTime: testTime, UID: 1000, GID: 1000,
	}, filepath.Join(src, "hello.txt"))
	if err != nil {
		t.Fatalf("Add file: %v", err)
	}
	if skipped {
		t.Fatal("regular file reported as skipped")
	}
	if _, _, err := b.Add(scan.Entry{
		RelPath: "link", Kind: scan.KindSymlink, Mode: os.ModeSymlink | 0o777,
		LinkTarget: "docs/hello.txt", ModTime: testTime,
	}, ""); err != nil {
		t.Fatalf("Add symlink: %v", err)
	}
	if err := b.AddMetadataFile("ARCHIVE_INFO.txt", []byte("summary\n"), testTime); err != nil {
		t.Fatalf("AddMetadataFile: %v", err)
	}

	record, err := b.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	return record, fileDigest
}

func TestBuilderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tar.gz")
	record, fileDigest := writeTestArchive(t, path, Options{RootName: "proj"})

	if record.Counts != (Counts{Files: 1, Dirs: 1, Symlinks: 1}) {
		t.Errorf("counts = %+v", record.Counts)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if record.SizeBytes != info.Size() {
		t.Errorf("record size %d, file size %d", record.SizeBytes, info.Size())
	}
	got, err := digest.File(path)
	if err != nil {
		t.Fatalf("digest.File: %v", err)
	}
	if got != record.SHA256 {
		t.Errorf("streamed digest %s, re-read digest %s", record.SHA256, got)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	wantNames := []string{
		"proj/docs/", "proj/docs/hello.txt", "proj/link",
		"proj/.coldstore/", "proj/.coldstore/ARCHIVE_INFO.txt",
	}
	var names []string
	var fileHeader *tar.Header
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		names = append(names, header.Name)
		if header.Name == "proj/docs/hello.txt" {
			h := *header
			fileHeader = &h
			content, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(content) != "hello\n" {
				t.Errorf("content = %q", content)
			}
		}
		if header.Name == "proj/link" && header.Linkname != "docs/hello.txt" {
			t.Errorf("linkname = %q", header.Linkname)
		}
	}
	if len(names) != len(wantNames) {
		t.Fatalf("members = %v, want %v", names, wantNames)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("member[%d] = %q, want %q", i, names[i], wantNames[i])
		}
	}

	if fileHeader == nil {
		t.Fatal("file member missing")
	}
	if fileHeader.Uid != 0 || fileHeader.Gid != 0 {
		t.Errorf("ownership not normalized: uid=%d gid=%d", fileHeader.Uid, fileHeader.Gid)
	}
	if fileHeader.Uname != "" || fileHeader.Gname != "" {
		t.Errorf("user/group names should be empty, got %q/%q", fileHeader.Uname, fileHeader.Gname)
	}
	if !fileHeader.ModTime.Equal(testTime) {
		t.Errorf("mtime = %v, want %v", fileHeader.ModTime, testTime)
	}

	// The per-file digest returned by Add matches the content.
	sum, _, err := digestOf([]byte("hello\n"))
	if err != nil {
		t.Fatalf("digestOf: %v", err)
	}
	if fileDigest != sum {
		t.Errorf("Add digest %s, want %s", fileDigest, sum)
	}
}

func TestBuilderPreserveOwnership(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owned.tar.gz")
	writeTestArchive(t, path, Options{RootName: "proj", PreserveOwnership: true})

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if header.Name == "proj/docs/hello.txt" {
			if header.Uid != 1000 || header.Gid != 1000 {
				t.Errorf("ownership not preserved: uid=%d gid=%d", header.Uid, header.Gid)
			}
		}
	}
}

func TestBuilderDeterministic(t *testing.T) {
	dir := t.TempDir()
	first, _ := writeTestArchive(t, filepath.Join(dir, "a.tar.gz"), Options{RootName: "proj"})
	second, _ := writeTestArchive(t, filepath.Join(dir, "b.tar.gz"), Options{RootName: "proj"})
	if first.SHA256 != second.SHA256 {
		t.Errorf("same inputs produced different archives: %s vs %s", first.SHA256, second.SHA256)
	}
}

func TestBuilderRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists.tar.gz")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := NewBuilder(path, Options{RootName: "p"}); err == nil {
		t.Fatal("NewBuilder should refuse an existing file")
	}
}

func TestBuilderRejectsBadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.tar.gz")
	if _, err := NewBuilder(path, Options{RootName: "p", CompressionLevel: 12}); err == nil {
		t.Fatal("NewBuilder should reject level 12")
	}
}

func TestBuilderSizeMismatchFatal(t *testing.T) {
	src := t.TempDir()
	file := filepath.Join(src, "short.bin")
	if err := os.WriteFile(file, []byte("abc"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	b, err := NewBuilder(path, Options{RootName: "p"})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	// The entry claims 10 bytes but only 3 exist on disk.
	_, _, err = b.Add(scan.Entry{
		RelPath: "short.bin", Kind: scan.KindFile, Mode: 0o644, Size: 10,
		ModTime: testTime,
	}, file)
	if err == nil {
		t.Fatal("Add should fail when the file is shorter than scanned")
	}
	b.Abort()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Abort left the partial archive behind")
	}
}

func TestBuilderSkipsUnrepresentableEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock.tar.gz")
	b, err := NewBuilder(path, Options{RootName: "p"})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	_, skipped, err := b.Add(scan.Entry{
		RelPath: "ipc.sock", Kind: scan.KindOther, Mode: os.ModeSocket | 0o600,
		ModTime: testTime,
	}, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !skipped {
		t.Error("socket entry not reported as skipped")
	}

	record, err := b.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if record.Counts.Other != 1 {
		t.Errorf("counts = %+v, want Other 1", record.Counts)
	}

	// The skipped entry left no member behind.
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	if header, err := r.Next(); err != io.EOF {
		t.Errorf("archive not empty: %v, %v", header, err)
	}
}

func TestSourceRelPath(t *testing.T) {
	tests := []struct {
		member string
		want   string
		ok     bool
	}{
		{"proj/docs/hello.txt", "docs/hello.txt", true},
		{"proj/docs/", "docs", true},
		{"proj/", "", false},
		{"proj/.coldstore/", "", false},
		{"proj/.coldstore/MANIFEST.yaml", "", false},
	}
	for _, tt := range tests {
		got, ok := SourceRelPath(tt.member)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SourceRelPath(%q) = %q,%v want %q,%v", tt.member, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReadMetadataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.tar.gz")
	writeTestArchive(t, path, Options{RootName: "proj"})

	data, err := ReadMetadataFile(path, "ARCHIVE_INFO.txt")
	if err != nil {
		t.Fatalf("ReadMetadataFile: %v", err)
	}
	if string(data) != "summary\n" {
		t.Errorf("content = %q", data)
	}

	if _, err := ReadMetadataFile(path, "MANIFEST.yaml"); err == nil {
		t.Error("ReadMetadataFile should fail for a missing member")
	}
}

func digestOf(data []byte) (digest.Digest, int64, error) {
	w := digest.NewWriter()
	n, err := w.Write(data)
	return w.Sum(), int64(n), err
}
