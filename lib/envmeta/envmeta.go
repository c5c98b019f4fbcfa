// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package envmeta collects the environment block recorded in every
// manifest: which machine and which user produced the archive, with
// which tool version. Collection never fails the freeze; fields that
// cannot be determined are recorded as "unknown".
package envmeta

import (
	"os"
	"os/user"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/janfasnacht/coldstore/lib/manifest"
	"github.com/janfasnacht/coldstore/lib/version"
)

// Collect gathers the environment metadata block.
func Collect() manifest.Environment {
	env := manifest.Environment{
		Hostname:    "unknown",
		Username:    "unknown",
		Platform:    runtime.GOOS + " " + runtime.GOARCH,
		ToolVersion: version.Short(),
	}
	if hostname, err := os.Hostname(); err == nil {
		env.Hostname = hostname
	}
	if current, err := user.Current(); err == nil {
		env.Username = current.Username
	} else if name := os.Getenv("USER"); name != "" {
		env.Username = name
	}
	if platform := unamePlatform(); platform != "" {
		env.Platform = platform
	}
	return env
}

// unamePlatform renders "sysname release machine" from uname(2),
// e.g. "Linux 6.18.5 x86_64". Empty on failure; the caller keeps the
// runtime.GOOS fallback.
func unamePlatform() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	parts := []string{
		cString(uts.Sysname[:]),
		cString(uts.Release[:]),
		cString(uts.Machine[:]),
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
