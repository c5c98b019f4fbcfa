// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// Exit codes form the CLI contract: scripts wrapping coldstore branch
// on these, so each failure class has a stable number.
const (
	ExitSourceNotFound     = 2
	ExitDestinationInvalid = 3
	ExitArchiveCreation    = 4
	ExitArchiveChecksum    = 5
	ExitFileChecksum       = 6
	ExitManifestInvalid    = 7
)

// ExitError signals a specific exit code. The main function checks
// for the ExitCode method on returned errors; when Message is empty
// the command is expected to have already written its own output.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code for the main function to pass to
// os.Exit.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Exit wraps an error with a contract exit code, preserving the
// message for display.
func Exit(code int, err error) *ExitError {
	return &ExitError{Code: code, Message: err.Error()}
}
