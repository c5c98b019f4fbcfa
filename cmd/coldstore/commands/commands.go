// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the coldstore command tree.
package commands

import (
	"fmt"

	"github.com/janfasnacht/coldstore/cmd/coldstore/cli"
	"github.com/janfasnacht/coldstore/cmd/coldstore/freeze"
	"github.com/janfasnacht/coldstore/cmd/coldstore/inspect"
	"github.com/janfasnacht/coldstore/cmd/coldstore/verify"
	"github.com/janfasnacht/coldstore/lib/version"
)

// Root returns the top-level coldstore command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "coldstore",
		Summary: "freeze directory trees into verifiable archival bundles",
		Description: "Coldstore archives a directory tree into an immutable,\n" +
			"deterministic tar.gz bundle with a provenance manifest, and\n" +
			"verifies such bundles years later without extracting them.",
		Subcommands: []*cli.Command{
			freeze.New(),
			verify.New(),
			inspect.New(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "archive a project at a milestone", Command: "coldstore freeze ~/thesis --milestone submission"},
			{Description: "deep-verify an old bundle", Command: "coldstore verify bundle.tar.gz --deep"},
			{Description: "see what a bundle contains", Command: "coldstore inspect bundle.tar.gz --members"},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print version information",
		Run: func(args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
