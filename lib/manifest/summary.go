// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// SummaryName is the human-readable summary's filename inside the
// archive metadata directory.
const SummaryName = "ARCHIVE_INFO.txt"

// Summary renders the plain-text summary embedded next to the YAML
// manifest. It is written for a human opening the archive years later,
// so it repeats the essentials in prose and points at the manifest for
// the rest. Like the embedded manifest it cannot contain the archive
// digest.
func (m *Manifest) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Coldstore archive %s\n", m.ID)
	fmt.Fprintf(&b, "Created: %s\n", m.CreatedUTC)
	fmt.Fprintf(&b, "Source:  %s\n", m.Source.Root)
	b.WriteString("\n")

	if m.Event.Milestone != "" {
		fmt.Fprintf(&b, "Milestone: %s\n", m.Event.Milestone)
	}
	for _, note := range m.Event.Notes {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	for _, contact := range m.Event.Contacts {
		fmt.Fprintf(&b, "Contact: %s\n", contact)
	}
	if m.Event.Milestone != "" || len(m.Event.Notes) > 0 || len(m.Event.Contacts) > 0 {
		b.WriteString("\n")
	}

	counts := m.Archive.MemberCounts
	fmt.Fprintf(&b, "Contents: %d files, %d directories", counts.Files, counts.Dirs)
	if counts.Symlinks > 0 {
		fmt.Fprintf(&b, ", %d symlinks", counts.Symlinks)
	}
	if counts.Other > 0 {
		fmt.Fprintf(&b, ", %d special files", counts.Other)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total file size: %s (%d bytes)\n",
		humanize.IBytes(uint64(m.Files.TotalSizeBytes)), m.Files.TotalSizeBytes)

	if git := m.Git; git != nil {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Git: %s", git.Commit)
		if git.Branch != "" {
			fmt.Fprintf(&b, " on %s", git.Branch)
		}
		if git.Tag != "" {
			fmt.Fprintf(&b, " (tag %s)", git.Tag)
		}
		if git.IsDirty {
			b.WriteString(" [dirty working tree]")
		}
		b.WriteString("\n")
		for _, name := range sortedKeys(git.Remotes) {
			fmt.Fprintf(&b, "Remote %s: %s\n", name, git.Remotes[name])
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Produced by coldstore %s on %s (%s)\n",
		m.Environment.ToolVersion, m.Environment.Hostname, m.Environment.Platform)
	fmt.Fprintf(&b, "Machine-readable metadata: %s in this directory, %s%s next to the archive.\n",
		EmbeddedName, m.ID, SidecarSuffix)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
