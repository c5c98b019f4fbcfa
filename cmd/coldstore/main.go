// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Command coldstore freezes directory trees into verifiable archival
// bundles.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/janfasnacht/coldstore/cmd/coldstore/cli"
	"github.com/janfasnacht/coldstore/cmd/coldstore/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
