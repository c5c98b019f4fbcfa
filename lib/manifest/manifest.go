// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the provenance record written alongside and
// inside every coldstore archive.
//
// One Manifest value is assembled after the archive stream is closed
// and never mutated afterward. It is dual-rendered: a JSON sidecar
// next to the archive (the canonical machine encoding) and a YAML copy
// embedded in the archive's metadata directory. Both renderings derive
// from the same struct; the embedded copy alone carries an empty
// archive checksum and size, because no digest can describe a stream
// that contains it.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/janfasnacht/coldstore/lib/archive"
)

// Version is the manifest schema version this tool reads and writes.
const Version = "1.0"

// SidecarSuffix is appended to the archive base name to form the JSON
// sidecar filename.
const SidecarSuffix = ".MANIFEST.json"

// EmbeddedName is the YAML copy's filename inside the archive metadata
// directory.
const EmbeddedName = "MANIFEST.yaml"

// TimeLayout is the timestamp encoding used throughout the manifest:
// ISO-8601 UTC with second precision.
const TimeLayout = "2006-01-02T15:04:05Z"

// Manifest is the aggregate provenance record.
type Manifest struct {
	ManifestVersion string `json:"manifest_version" yaml:"manifest_version"`
	CreatedUTC      string `json:"created_utc" yaml:"created_utc"`
	// ID is the archive base name (filename without .tar.gz), unique
	// per freeze via the timestamp+entropy naming scheme.
	ID string `json:"id" yaml:"id"`

	Source      Source      `json:"source" yaml:"source"`
	Event       Event       `json:"event" yaml:"event"`
	Git         *Git        `json:"git" yaml:"git"`
	Environment Environment `json:"environment" yaml:"environment"`
	Archive     Archive     `json:"archive" yaml:"archive"`
	Files       Files       `json:"files" yaml:"files"`

	Verification Verification `json:"verification" yaml:"verification"`
}

// Source records where the tree came from and how paths were
// normalized, so a reader can reproduce the ordering and matching
// rules without consulting the tool.
type Source struct {
	Root          string        `json:"root" yaml:"root"`
	Normalization Normalization `json:"normalization" yaml:"normalization"`
}

// Normalization describes the canonical path form used in the files
// section and the FILELIST.
type Normalization struct {
	PathSeparator        string `json:"path_separator" yaml:"path_separator"`
	UnicodeNormalization string `json:"unicode_normalization" yaml:"unicode_normalization"`
	Ordering             string `json:"ordering" yaml:"ordering"`
	ExcludeVCS           bool   `json:"exclude_vcs" yaml:"exclude_vcs"`
}

// DefaultNormalization is what the scanner actually does.
func DefaultNormalization(excludeVCS bool) Normalization {
	return Normalization{
		PathSeparator:        "/",
		UnicodeNormalization: "NFC",
		Ordering:             "lexicographic",
		ExcludeVCS:           excludeVCS,
	}
}

// Event is the externally supplied occasion for the freeze. All
// fields are optional.
type Event struct {
	Milestone string   `json:"milestone" yaml:"milestone"`
	Notes     []string `json:"notes" yaml:"notes"`
	Contacts  []string `json:"contacts" yaml:"contacts"`
	Timestamp string   `json:"timestamp" yaml:"timestamp"`
}

// Git is the repository state block. The whole block is null when the
// source is not inside a git work tree.
type Git struct {
	Branch  string            `json:"branch" yaml:"branch"`
	Commit  string            `json:"commit" yaml:"commit"`
	Tag     string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Remote  string            `json:"remote" yaml:"remote"`
	IsDirty bool              `json:"is_dirty" yaml:"is_dirty"`
	Remotes map[string]string `json:"remotes" yaml:"remotes"`
}

// Environment identifies the machine and tool that produced the
// archive.
type Environment struct {
	Hostname    string `json:"hostname" yaml:"hostname"`
	Username    string `json:"username" yaml:"username"`
	Platform    string `json:"platform" yaml:"platform"`
	ToolVersion string `json:"tool_version" yaml:"tool_version"`
}

// Archive describes the produced archive file. In the embedded YAML
// copy SHA256 is empty and SizeBytes zero.
type Archive struct {
	Path             string         `json:"path" yaml:"path"`
	SizeBytes        int64          `json:"size_bytes" yaml:"size_bytes"`
	SHA256           string         `json:"sha256" yaml:"sha256"`
	CompressionLevel int            `json:"compression_level" yaml:"compression_level"`
	MemberCounts     archive.Counts `json:"member_counts" yaml:"member_counts"`
}

// Files is the per-file integrity section. Exactly one of Checksums
// (inline, small trees) and ExternalReference (FILELIST.csv.gz inside
// the archive, large trees) is set; both empty means per-file hashing
// was disabled.
type Files struct {
	TotalCount        int                `json:"total_count" yaml:"total_count"`
	TotalSizeBytes    int64              `json:"total_size_bytes" yaml:"total_size_bytes"`
	Checksums         map[string]string  `json:"checksums,omitempty" yaml:"checksums,omitempty"`
	ExternalReference *ExternalReference `json:"external_reference,omitempty" yaml:"external_reference,omitempty"`
}

// ExternalReference points at the compressed file table inside the
// archive and pins its digest.
type ExternalReference struct {
	Path   string `json:"path" yaml:"path"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}

// Verification carries parameters a verifier needs beyond the files
// section itself.
type Verification struct {
	PerFileHash PerFileHash `json:"per_file_hash" yaml:"per_file_hash"`
}

// PerFileHash names the per-file algorithm and, when a FILELIST was
// written, repeats its digest.
type PerFileHash struct {
	Algorithm              string `json:"algorithm" yaml:"algorithm"`
	ManifestHashOfFilelist string `json:"manifest_hash_of_filelist,omitempty" yaml:"manifest_hash_of_filelist,omitempty"`
}

// FormatTime renders a timestamp in the manifest's canonical form.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// EncodeJSON renders the canonical sidecar form: two-space indent,
// trailing newline. Map keys sort, so the encoding is deterministic.
func (m *Manifest) EncodeJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeYAML renders the embedded form.
func (m *Manifest) EncodeYAML() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

// Embedded returns the copy destined for inside the archive: identical
// except that the archive digest and size are cleared, since they
// cannot be known while the archive is still being written.
func (m *Manifest) Embedded() *Manifest {
	embedded := *m
	embedded.Archive.SHA256 = ""
	embedded.Archive.SizeBytes = 0
	return &embedded
}

// DecodeJSON parses a sidecar manifest.
func DecodeJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// DecodeYAML parses an embedded manifest.
func DecodeYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Validate checks structural integrity: schema version, required
// fields, digest shapes, and internal count consistency. The archive
// digest may be empty (the embedded copy) but never malformed. All
// problems are reported at once.
func (m *Manifest) Validate() error {
	var errs []error
	if m.ManifestVersion != Version {
		errs = append(errs, fmt.Errorf("unsupported manifest_version %q (want %q)", m.ManifestVersion, Version))
	}
	if m.CreatedUTC == "" {
		errs = append(errs, errors.New("created_utc is required"))
	} else if _, err := time.Parse(TimeLayout, m.CreatedUTC); err != nil {
		errs = append(errs, fmt.Errorf("created_utc: %w", err))
	}
	if m.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if m.Archive.Path == "" {
		errs = append(errs, errors.New("archive.path is required"))
	}
	if m.Archive.SHA256 != "" && !sha256Pattern.MatchString(m.Archive.SHA256) {
		errs = append(errs, fmt.Errorf("archive.sha256 %q is not 64 lowercase hex characters", m.Archive.SHA256))
	}
	if m.Files.TotalCount < 0 || m.Files.TotalSizeBytes < 0 {
		errs = append(errs, errors.New("files counts must not be negative"))
	}
	if m.Files.Checksums != nil && m.Files.ExternalReference != nil {
		errs = append(errs, errors.New("files section has both inline checksums and an external reference"))
	}
	if m.Files.Checksums != nil {
		if len(m.Files.Checksums) != m.Files.TotalCount {
			errs = append(errs, fmt.Errorf("files.total_count %d disagrees with %d inline checksums",
				m.Files.TotalCount, len(m.Files.Checksums)))
		}
		for relPath, sum := range m.Files.Checksums {
			if !sha256Pattern.MatchString(sum) {
				errs = append(errs, fmt.Errorf("checksum for %q is not 64 lowercase hex characters", relPath))
			}
		}
	}
	if ref := m.Files.ExternalReference; ref != nil {
		if ref.Path == "" {
			errs = append(errs, errors.New("external_reference.path is required"))
		}
		if !sha256Pattern.MatchString(ref.SHA256) {
			errs = append(errs, fmt.Errorf("external_reference.sha256 %q is not 64 lowercase hex characters", ref.SHA256))
		}
	}
	return errors.Join(errs...)
}
