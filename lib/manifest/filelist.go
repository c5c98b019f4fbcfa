// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/janfasnacht/coldstore/lib/scan"
)

// FilelistName is the compressed file table's name inside the archive
// metadata directory.
const FilelistName = "FILELIST.csv.gz"

// filelistColumns is the fixed header row. Column order is part of the
// format contract; consumers index by name but producers never
// reorder.
var filelistColumns = []string{
	"relpath", "type", "size_bytes", "mode_octal", "uid", "gid",
	"mtime_utc", "sha256", "link_target", "is_executable", "ext",
}

// Row is one FILELIST record. String fields are empty when the value
// does not apply to the entry kind (sha256 for directories, size for
// anything but a file).
type Row struct {
	RelPath      string
	Type         string
	SizeBytes    string
	ModeOctal    string
	UID          uint32
	GID          uint32
	MTimeUTC     string
	SHA256       string
	LinkTarget   string
	IsExecutable bool
	Ext          string
}

// RowFromEntry converts a scanned entry plus its content digest (empty
// for non-files) into a FILELIST row.
func RowFromEntry(entry scan.Entry, sha256 string) Row {
	row := Row{
		RelPath:      entry.RelPath,
		Type:         string(entry.Kind),
		ModeOctal:    entry.ModeOctal(),
		UID:          entry.UID,
		GID:          entry.GID,
		MTimeUTC:     FormatTime(entry.ModTime),
		SHA256:       sha256,
		LinkTarget:   entry.LinkTarget,
		IsExecutable: entry.Executable(),
		Ext:          entry.Ext(),
	}
	if entry.Kind == scan.KindFile {
		row.SizeBytes = strconv.FormatInt(entry.Size, 10)
	}
	return row
}

// EncodeFilelist renders rows, in the order given, as a gzip
// compressed CSV with a header row. Newlines are always \n and the
// gzip header is fixed, so the encoding is deterministic.
func EncodeFilelist(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("encoding filelist: %w", err)
	}
	gz.ModTime = time.Time{}
	gz.OS = 255

	w := csv.NewWriter(gz)
	if err := w.Write(filelistColumns); err != nil {
		return nil, fmt.Errorf("encoding filelist: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.RelPath,
			row.Type,
			row.SizeBytes,
			row.ModeOctal,
			strconv.FormatUint(uint64(row.UID), 10),
			strconv.FormatUint(uint64(row.GID), 10),
			row.MTimeUTC,
			row.SHA256,
			row.LinkTarget,
			boolDigit(row.IsExecutable),
			row.Ext,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("encoding filelist row %s: %w", row.RelPath, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encoding filelist: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("encoding filelist: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFilelist parses a compressed file table back into rows.
func DecodeFilelist(data []byte) ([]Row, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing filelist: %w", err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = len(filelistColumns)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parsing filelist header: %w", err)
	}
	for i, name := range filelistColumns {
		if header[i] != name {
			return nil, fmt.Errorf("parsing filelist: column %d is %q, want %q", i, header[i], name)
		}
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing filelist: %w", err)
		}
		uid, err := strconv.ParseUint(record[4], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing filelist row %s: uid: %w", record[0], err)
		}
		gid, err := strconv.ParseUint(record[5], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing filelist row %s: gid: %w", record[0], err)
		}
		rows = append(rows, Row{
			RelPath:      record[0],
			Type:         record[1],
			SizeBytes:    record[2],
			ModeOctal:    record[3],
			UID:          uint32(uid),
			GID:          uint32(gid),
			MTimeUTC:     record[6],
			SHA256:       record[7],
			LinkTarget:   record[8],
			IsExecutable: record[9] == "1",
			Ext:          record[10],
		})
	}
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
