// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/janfasnacht/coldstore/lib/scan"
)

func testRows() []Row {
	mtime := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return []Row{
		RowFromEntry(scan.Entry{
			RelPath: "a.txt", Kind: scan.KindFile, Size: 5, Mode: 0o644,
			UID: 1000, GID: 1000, ModTime: mtime,
		}, strings.Repeat("12", 32)),
		RowFromEntry(scan.Entry{
			RelPath: "bin", Kind: scan.KindDir, Mode: 0o755, ModTime: mtime,
		}, ""),
		RowFromEntry(scan.Entry{
			RelPath: "bin/run.sh", Kind: scan.KindFile, Size: 120, Mode: 0o755,
			ModTime: mtime,
		}, strings.Repeat("34", 32)),
		RowFromEntry(scan.Entry{
			RelPath: "link", Kind: scan.KindSymlink, Mode: 0o777,
			LinkTarget: "a.txt", ModTime: mtime,
		}, ""),
	}
}

func TestFilelistRoundTrip(t *testing.T) {
	rows := testRows()
	data, err := EncodeFilelist(rows)
	if err != nil {
		t.Fatalf("EncodeFilelist: %v", err)
	}

	got, err := DecodeFilelist(data)
	if err != nil {
		t.Fatalf("DecodeFilelist: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("decoded %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}

func TestFilelistColumnContract(t *testing.T) {
	data, err := EncodeFilelist(testRows())
	if err != nil {
		t.Fatalf("EncodeFilelist: %v", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	lines := strings.Split(string(raw), "\n")
	wantHeader := "relpath,type,size_bytes,mode_octal,uid,gid,mtime_utc,sha256,link_target,is_executable,ext"
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}
	if strings.Contains(string(raw), "\r") {
		t.Error("filelist contains carriage returns")
	}

	// Spot-check one full row: the executable script.
	wantRow := "bin/run.sh,file,120,0755,0,0,2026-03-14T09:26:53Z," +
		strings.Repeat("34", 32) + ",,1,sh"
	if lines[3] != wantRow {
		t.Errorf("row = %q, want %q", lines[3], wantRow)
	}
	// Directories carry no size and no checksum.
	if !strings.HasPrefix(lines[2], "bin,dir,,0755,") {
		t.Errorf("dir row = %q, want empty size", lines[2])
	}
}

func TestFilelistDeterministic(t *testing.T) {
	first, err := EncodeFilelist(testRows())
	if err != nil {
		t.Fatalf("EncodeFilelist: %v", err)
	}
	second, err := EncodeFilelist(testRows())
	if err != nil {
		t.Fatalf("EncodeFilelist: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same rows encoded differently twice")
	}
}

func TestFilelistEmpty(t *testing.T) {
	data, err := EncodeFilelist(nil)
	if err != nil {
		t.Fatalf("EncodeFilelist: %v", err)
	}
	rows, err := DecodeFilelist(data)
	if err != nil {
		t.Fatalf("DecodeFilelist: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %v, want none", rows)
	}
}

func TestDecodeFilelistRejectsGarbage(t *testing.T) {
	if _, err := DecodeFilelist([]byte("not gzip at all")); err == nil {
		t.Error("DecodeFilelist should reject non-gzip input")
	}
}
