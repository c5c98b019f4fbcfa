// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a relative path for use as an Entry.RelPath:
// POSIX "/" separators, Unicode NFC, no leading "./". The input must
// already be relative to the scan root.
//
// NFC normalization matters on filesystems that return decomposed
// UTF-8 (HFS+, some network mounts): without it, the same logical name
// can produce different manifest keys on different hosts.
func Normalize(rel string) string {
	p := filepath.ToSlash(rel)
	p = strings.TrimPrefix(p, "./")
	return norm.NFC.String(p)
}
