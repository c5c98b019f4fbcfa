// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package freeze implements the "coldstore freeze" command.
package freeze

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/janfasnacht/coldstore/cmd/coldstore/cli"
	"github.com/janfasnacht/coldstore/lib/config"
	"github.com/janfasnacht/coldstore/lib/envmeta"
	libfreeze "github.com/janfasnacht/coldstore/lib/freeze"
	"github.com/janfasnacht/coldstore/lib/gitmeta"
	"github.com/janfasnacht/coldstore/lib/scan"
)

type params struct {
	cli.JSONOutput
	Dest              string   `flag:"dest,d" desc:"destination directory for the bundle"`
	Name              string   `flag:"name" desc:"override the generated archive name"`
	Exclude           []string `flag:"exclude,e" desc:"glob pattern to exclude (repeatable)"`
	ExcludeFrom       string   `flag:"exclude-from" desc:"JSONC file with exclusion patterns"`
	RespectGitignore  bool     `flag:"respect-gitignore" desc:"also exclude patterns from the root .gitignore"`
	IncludeVCS        bool     `flag:"include-vcs" desc:"include .git and other version-control directories"`
	Milestone         string   `flag:"milestone,m" desc:"event milestone recorded in the manifest"`
	Notes             []string `flag:"note" desc:"free-form note recorded in the manifest (repeatable)"`
	Contacts          []string `flag:"contact" desc:"contact recorded in the manifest (repeatable)"`
	CompressionLevel  int      `flag:"compression-level" desc:"gzip level, 1-9" default:"6"`
	PreserveOwnership bool     `flag:"preserve-ownership" desc:"record verbatim uid/gid instead of 0/0"`
	Strict            bool     `flag:"strict" desc:"abort on the first unreadable entry"`
	DryRun            bool     `flag:"dry-run" desc:"scan and report without writing anything"`
	NoManifest        bool     `flag:"no-manifest" desc:"skip manifest sidecar and embedded copy"`
	NoFilelist        bool     `flag:"no-filelist" desc:"skip the embedded FILELIST table"`
	NoSHA256          bool     `flag:"no-sha256" desc:"skip the detached checksum file"`
	Config            string   `flag:"config" desc:"path to a coldstore config file"`
	Verbose           bool     `flag:"verbose,v" desc:"enable debug logging"`
}

// output is the machine-readable result for --json.
type output struct {
	Archive        string   `json:"archive,omitempty"`
	Checksum       string   `json:"checksum,omitempty"`
	Manifest       string   `json:"manifest,omitempty"`
	SHA256         string   `json:"sha256,omitempty"`
	SizeBytes      int64    `json:"size_bytes,omitempty"`
	Files          int      `json:"files"`
	TotalSizeBytes int64    `json:"total_size_bytes"`
	DryRun         bool     `json:"dry_run"`
	ScanErrors     []string `json:"scan_errors"`
}

// New returns the freeze command.
func New() *cli.Command {
	var (
		p     params
		flags *pflag.FlagSet
	)
	return &cli.Command{
		Name:    "freeze",
		Summary: "archive a directory tree into an immutable bundle",
		Description: "Freeze walks a directory tree and produces a deterministic\n" +
			"tar.gz archive plus a provenance manifest: per-file SHA-256\n" +
			"checksums, git state, environment, and a detached archive\n" +
			"checksum. The source tree is never modified.",
		Usage: "coldstore freeze [<source>] [flags]",
		Examples: []cli.Example{
			{Description: "freeze the current directory into ./", Command: "coldstore freeze"},
			{Description: "freeze a project at a milestone", Command: "coldstore freeze ~/thesis --dest /mnt/cold --milestone submission"},
			{Description: "preview without writing", Command: "coldstore freeze data/ --exclude '*.tmp' --dry-run"},
		},
		Flags: func() *pflag.FlagSet {
			flags = cli.FlagsFromParams("freeze", &p)
			return flags
		},
		Run: func(args []string) error {
			return run(&p, flags, args)
		},
	}
}

func run(p *params, flags *pflag.FlagSet, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("at most one source directory expected, got %d", len(args))
	}
	source := "."
	if len(args) == 1 {
		source = args[0]
	}

	cfg, err := loadConfig(p)
	if err != nil {
		return err
	}
	opts, err := buildOptions(p, flags, cfg, source)
	if err != nil {
		return err
	}

	ctx := context.Background()
	logger := cli.NewCommandLogger(p.Verbose).With("command", "freeze")
	opts.Logger = logger

	if !p.DryRun {
		git, err := gitmeta.Collect(ctx, source)
		if err != nil {
			logger.Warn("collecting git state", "error", err)
		}
		opts.Git = git
		opts.Environment = envmeta.Collect()
	}

	result, err := libfreeze.Run(ctx, opts)
	if err != nil {
		return mapError(err)
	}
	return emit(p, result)
}

func loadConfig(p *params) (*config.Config, error) {
	if p.Config != "" {
		return config.LoadFile(p.Config)
	}
	return config.Load()
}

// buildOptions merges the config file with the command line. A flag
// the user actually passed wins over the file; otherwise the file
// value (itself defaulted) applies.
func buildOptions(p *params, flags *pflag.FlagSet, cfg *config.Config, source string) (libfreeze.Options, error) {
	destination := cfg.Freeze.Destination
	if flags.Changed("dest") {
		destination = p.Dest
	}
	level := cfg.Freeze.CompressionLevel
	if flags.Changed("compression-level") {
		level = p.CompressionLevel
	}

	patterns := append([]string{}, cfg.Exclude...)
	patterns = append(patterns, p.Exclude...)
	if p.ExcludeFrom != "" {
		loaded, err := scan.LoadRuleFile(p.ExcludeFrom)
		if err != nil {
			return libfreeze.Options{}, err
		}
		patterns = append(patterns, loaded...)
	}

	return libfreeze.Options{
		Source:      source,
		Destination: destination,
		Name:        p.Name,
		Rules: scan.Rules{
			Patterns:         patterns,
			ExcludeVCS:       cfg.Freeze.ExcludeVCS && !p.IncludeVCS,
			RespectGitignore: cfg.Freeze.RespectGitignore || p.RespectGitignore,
		},
		Strict:            p.Strict,
		CompressionLevel:  level,
		PreserveOwnership: cfg.Freeze.PreserveOwnership || p.PreserveOwnership,
		InlineFileLimit:   cfg.Freeze.InlineFileLimit,
		Milestone:         p.Milestone,
		Notes:             p.Notes,
		Contacts:          p.Contacts,
		NoManifest:        p.NoManifest,
		NoFilelist:        p.NoFilelist,
		NoSHA256:          p.NoSHA256,
		DryRun:            p.DryRun,
	}, nil
}

// mapError translates pipeline sentinels into contract exit codes.
func mapError(err error) error {
	switch {
	case errors.Is(err, libfreeze.ErrSourceNotFound):
		return cli.Exit(cli.ExitSourceNotFound, err)
	case errors.Is(err, libfreeze.ErrDestinationInvalid):
		return cli.Exit(cli.ExitDestinationInvalid, err)
	case errors.Is(err, libfreeze.ErrArchiveCreation):
		return cli.Exit(cli.ExitArchiveCreation, err)
	}
	return err
}

func emit(p *params, result *libfreeze.Result) error {
	out := output{
		Archive:        result.ArchivePath,
		Checksum:       result.ChecksumPath,
		Manifest:       result.SidecarPath,
		Files:          result.TotalCount,
		TotalSizeBytes: result.TotalSizeBytes,
		DryRun:         result.DryRun,
		ScanErrors:     []string{},
	}
	if result.Manifest != nil {
		out.SHA256 = result.Manifest.Archive.SHA256
		out.SizeBytes = result.Manifest.Archive.SizeBytes
	}
	for _, scanErr := range result.ScanErrors {
		out.ScanErrors = append(out.ScanErrors, scanErr.Error())
	}
	if done, err := p.EmitJSON(out); done {
		return err
	}

	if result.DryRun {
		fmt.Printf("dry run: %d files (%s), %d dirs, %d symlinks would be archived\n",
			result.Counts.Files, humanize.IBytes(uint64(result.TotalSizeBytes)),
			result.Counts.Dirs, result.Counts.Symlinks)
	} else {
		fmt.Printf("archive:  %s\n", result.ArchivePath)
		if out.SHA256 != "" {
			fmt.Printf("sha256:   %s\n", out.SHA256)
		}
		fmt.Printf("size:     %s\n", humanize.IBytes(uint64(out.SizeBytes)))
		fmt.Printf("files:    %d (%s)\n", result.TotalCount,
			humanize.IBytes(uint64(result.TotalSizeBytes)))
		if result.SidecarPath != "" {
			fmt.Printf("manifest: %s\n", result.SidecarPath)
		}
	}
	for _, scanErr := range result.ScanErrors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", scanErr.Error())
	}
	return nil
}
