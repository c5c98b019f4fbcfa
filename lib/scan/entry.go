// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package scan walks a source tree and produces the canonical ordered
// entry sequence that the archive builder and manifest engine consume.
//
// Entry order is strictly lexicographic by normalized relative path
// (plain byte-wise string comparison, not directory-walk order). That
// single ordering is what makes archive member order, manifest order,
// and FILELIST row order identical, and two scans of an unchanged tree
// produce identical sequences.
package scan

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// Kind classifies a scanned entry.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
	KindOther   Kind = "other"
)

// KindOf classifies a file mode. Anything that is not a regular file,
// directory, or symlink (sockets, devices, FIFOs) is KindOther.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindOther
	}
}

// Entry is one member of the scanned sequence. Entries are immutable
// once emitted; all path, ownership, and time fields are already
// normalized.
type Entry struct {
	// RelPath is the normalized path relative to the scan root:
	// POSIX separators, Unicode NFC, no leading "./".
	RelPath string

	// DiskRelPath is the path relative to the scan root exactly as
	// the filesystem reports it: OS-native separators, original
	// bytes. On byte-preserving filesystems a decomposed (NFD) name
	// differs from RelPath, and only DiskRelPath can reopen the
	// entry. RelPath is the recorded form; DiskRelPath is the access
	// path.
	DiskRelPath string

	// Kind is the entry classification.
	Kind Kind

	// Size is the content size in bytes. Meaningful only for
	// KindFile; zero for all other kinds.
	Size int64

	// Mode is the file mode as reported by lstat.
	Mode fs.FileMode

	// UID and GID are the numeric owner and group.
	UID uint32
	GID uint32

	// ModTime is the modification time in UTC, truncated to second
	// precision (the precision the tar and FILELIST formats carry).
	ModTime time.Time

	// LinkTarget is the verbatim symlink target string. Empty for
	// non-symlinks. Targets are never resolved or validated; a
	// dangling target is recorded as-is.
	LinkTarget string
}

// Executable reports whether the owner-execute bit is set. Recorded as
// the is_executable column in FILELIST rows.
func (e Entry) Executable() bool {
	return e.Kind == KindFile && e.Mode&0o100 != 0
}

// Ext returns the lowercase filename extension without the leading
// dot, or "" when the name has none.
func (e Entry) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(e.RelPath)), ".")
}

// ModeOctal returns the classic four-digit octal permission string
// (setuid/setgid/sticky bits included), e.g. "0644" or "0755".
func (e Entry) ModeOctal() string {
	bits := uint32(e.Mode.Perm())
	if e.Mode&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if e.Mode&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if e.Mode&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return fmt.Sprintf("%04o", bits)
}

// EntryError is a per-entry scan failure (unreadable directory,
// failed stat, failed readlink). The scan continues past these unless
// strict mode is set; callers aggregate them for reporting.
type EntryError struct {
	// RelPath identifies the failing entry relative to the scan root.
	RelPath string

	// Err is the underlying cause.
	Err error
}

func (e EntryError) Error() string {
	return e.RelPath + ": " + e.Err.Error()
}

func (e EntryError) Unwrap() error { return e.Err }
