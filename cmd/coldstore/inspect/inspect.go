// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package inspect implements the "coldstore inspect" command: it
// reports a bundle's provenance facts and optionally lists every
// archive member, without extracting anything.
package inspect

import (
	"archive/tar"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/janfasnacht/coldstore/cmd/coldstore/cli"
	"github.com/janfasnacht/coldstore/lib/archive"
	"github.com/janfasnacht/coldstore/lib/manifest"
)

type params struct {
	cli.JSONOutput
	Members bool `flag:"members,l" desc:"list every archive member"`
	Verbose bool `flag:"verbose,v" desc:"enable debug logging"`
}

// member is one archive entry in the --members listing.
type member struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Mode string `json:"mode"`
}

// output is the machine-readable bundle description for --json.
type output struct {
	Archive     string   `json:"archive"`
	SizeBytes   int64    `json:"size_bytes"`
	Fingerprint string   `json:"fingerprint"`
	ID          string   `json:"id,omitempty"`
	CreatedUTC  string   `json:"created_utc,omitempty"`
	SourceRoot  string   `json:"source_root,omitempty"`
	Milestone   string   `json:"milestone,omitempty"`
	GitCommit   string   `json:"git_commit,omitempty"`
	Files       int      `json:"files"`
	FilesSize   int64    `json:"files_size_bytes"`
	SHA256      string   `json:"sha256,omitempty"`
	Members     []member `json:"members,omitempty"`
}

// New returns the inspect command.
func New() *cli.Command {
	var p params
	return &cli.Command{
		Name:    "inspect",
		Summary: "show a bundle's provenance and contents",
		Description: "Inspect reads a bundle's manifest (the sidecar when present,\n" +
			"otherwise the copy embedded in the archive) and prints its\n" +
			"provenance facts plus a BLAKE3 fingerprint of the archive\n" +
			"bytes. With --members it also lists every archive member.",
		Usage: "coldstore inspect <archive> [flags]",
		Examples: []cli.Example{
			{Description: "show bundle facts", Command: "coldstore inspect bundle.tar.gz"},
			{Description: "list the archived tree", Command: "coldstore inspect bundle.tar.gz --members"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("inspect", &p)
		},
		Run: func(args []string) error {
			return run(&p, args)
		},
	}
}

func run(p *params, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one archive path expected, got %d", len(args))
	}
	archivePath := args[0]

	info, err := os.Stat(archivePath)
	if err != nil {
		return cli.Exit(cli.ExitSourceNotFound, err)
	}

	fingerprint, err := fingerprintFile(archivePath)
	if err != nil {
		return err
	}

	out := output{
		Archive:     archivePath,
		SizeBytes:   info.Size(),
		Fingerprint: fingerprint,
	}
	if m := loadManifest(archivePath); m != nil {
		out.ID = m.ID
		out.CreatedUTC = m.CreatedUTC
		out.SourceRoot = m.Source.Root
		out.Milestone = m.Event.Milestone
		out.Files = m.Files.TotalCount
		out.FilesSize = m.Files.TotalSizeBytes
		out.SHA256 = m.Archive.SHA256
		if m.Git != nil {
			out.GitCommit = m.Git.Commit
		}
	}
	if p.Members {
		members, err := listMembers(archivePath)
		if err != nil {
			return err
		}
		out.Members = members
	}

	if done, err := p.EmitJSON(out); done {
		return err
	}
	return printText(out)
}

// loadManifest prefers the sidecar and falls back to the embedded
// copy. A bundle without either is still inspectable; the manifest
// facts are simply absent.
func loadManifest(archivePath string) *manifest.Manifest {
	base := strings.TrimSuffix(archivePath, ".tar.gz")
	if data, err := os.ReadFile(base + manifest.SidecarSuffix); err == nil {
		if m, err := manifest.DecodeJSON(data); err == nil {
			return m
		}
	}
	if data, err := archive.ReadMetadataFile(archivePath, manifest.EmbeddedName); err == nil {
		if m, err := manifest.DecodeYAML(data); err == nil {
			return m
		}
	}
	return nil
}

// fingerprintFile computes the BLAKE3 digest of the archive bytes.
// Unlike the SHA-256 in the manifest this is computed fresh on every
// inspect, so two bundles can be compared even when neither carries a
// manifest.
func fingerprintFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func listMembers(archivePath string) ([]member, error) {
	r, err := archive.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var members []member
	for {
		header, err := r.Next()
		if err == io.EOF {
			return members, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		members = append(members, member{
			Name: header.Name,
			Type: memberType(header.Typeflag),
			Size: header.Size,
			Mode: fmt.Sprintf("%04o", header.Mode&0o7777),
		})
	}
}

func memberType(typeflag byte) string {
	switch typeflag {
	case tar.TypeReg:
		return "file"
	case tar.TypeDir:
		return "dir"
	case tar.TypeSymlink:
		return "symlink"
	case tar.TypeFifo:
		return "fifo"
	case tar.TypeChar:
		return "char"
	case tar.TypeBlock:
		return "block"
	}
	return "other"
}

func printText(out output) error {
	fmt.Printf("archive:     %s\n", out.Archive)
	fmt.Printf("size:        %s\n", humanize.IBytes(uint64(out.SizeBytes)))
	fmt.Printf("fingerprint: blake3:%s\n", out.Fingerprint)
	if out.ID != "" {
		fmt.Printf("id:          %s\n", out.ID)
		fmt.Printf("created:     %s\n", out.CreatedUTC)
		fmt.Printf("source:      %s\n", out.SourceRoot)
		if out.Milestone != "" {
			fmt.Printf("milestone:   %s\n", out.Milestone)
		}
		if out.GitCommit != "" {
			fmt.Printf("git commit:  %s\n", out.GitCommit)
		}
		fmt.Printf("files:       %d (%s)\n", out.Files, humanize.IBytes(uint64(out.FilesSize)))
		if out.SHA256 != "" {
			fmt.Printf("sha256:      %s\n", out.SHA256)
		}
	} else {
		fmt.Println("manifest:    none found")
	}
	for _, m := range out.Members {
		size := ""
		if m.Type == "file" {
			size = humanize.IBytes(uint64(m.Size))
		}
		fmt.Printf("  %-7s %4s %10s  %s\n", m.Type, m.Mode, size, m.Name)
	}
	return nil
}
