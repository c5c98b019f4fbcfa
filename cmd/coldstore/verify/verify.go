// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify implements the "coldstore verify" command.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/janfasnacht/coldstore/cmd/coldstore/cli"
	libverify "github.com/janfasnacht/coldstore/lib/verify"
)

type params struct {
	cli.JSONOutput
	Deep    bool `flag:"deep" desc:"recompute every file's SHA-256 inside the archive"`
	Verbose bool `flag:"verbose,v" desc:"enable debug logging"`
}

// output is the machine-readable report for --json.
type output struct {
	Archive    string   `json:"archive"`
	ArchiveOK  bool     `json:"archive_ok"`
	ManifestOK bool     `json:"manifest_ok"`
	Checked    int      `json:"files_checked"`
	Mismatched []string `json:"mismatched"`
	Overall    bool     `json:"ok"`
	Error      string   `json:"error,omitempty"`
}

// New returns the verify command.
func New() *cli.Command {
	var p params
	return &cli.Command{
		Name:    "verify",
		Summary: "check a bundle's integrity",
		Description: "Verify checks a bundle in three levels, stopping at the first\n" +
			"failure: the archive bytes against the recorded SHA-256, the\n" +
			"manifest's structure and FILELIST pin, and with --deep every\n" +
			"file's content digest. Nothing is extracted to disk.",
		Usage: "coldstore verify <archive> [flags]",
		Examples: []cli.Example{
			{Description: "quick integrity check", Command: "coldstore verify coldstore_2026-03-14_09-26-53_a1b2c3.tar.gz"},
			{Description: "recompute every file checksum", Command: "coldstore verify bundle.tar.gz --deep"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &p)
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

	logger := cli.NewCommandLogger(p.Verbose).With("command", "verify")
	report, err := libverify.Run(context.Background(), libverify.Options{
		ArchivePath: archivePath,
		Deep:        p.Deep,
		Logger:      logger,
	})

	out := output{
		Archive:    archivePath,
		ArchiveOK:  report.ArchiveOK,
		ManifestOK: report.ManifestOK,
		Checked:    report.PerFile.Checked,
		Mismatched: report.PerFile.Mismatched,
		Overall:    report.Overall,
	}
	if out.Mismatched == nil {
		out.Mismatched = []string{}
	}
	if err != nil {
		out.Error = err.Error()
	}
	if done, jsonErr := p.EmitJSON(out); done {
		if jsonErr != nil {
			return jsonErr
		}
		if err != nil {
			// The report already carries the message.
			return &cli.ExitError{Code: exitCode(err)}
		}
		return nil
	}

	if err != nil {
		return cli.Exit(exitCode(err), err)
	}
	if p.Deep {
		fmt.Printf("ok: %s (archive, manifest, %d file checksums)\n",
			archivePath, report.PerFile.Checked)
	} else {
		fmt.Printf("ok: %s (archive, manifest)\n", archivePath)
	}
	return nil
}

// exitCode maps verification sentinels into contract exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cli.ExitSourceNotFound
	case errors.Is(err, libverify.ErrArchiveChecksum):
		return cli.ExitArchiveChecksum
	case errors.Is(err, libverify.ErrFileChecksum):
		return cli.ExitFileChecksum
	case errors.Is(err, libverify.ErrManifestInvalid):
		return cli.ExitManifestInvalid
	}
	return 1
}
