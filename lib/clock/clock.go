// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time observation for testability.
//
// The freeze pipeline stamps archives and manifests with the current
// time. Production code injects Real(); tests inject Fake() with a
// fixed time so that two freezes of the same tree are byte-identical.
package clock

import "time"

// Clock provides the current time. Every production function that
// would call time.Now should accept a Clock (or be a method on a
// struct with a Clock field) instead of calling the time package
// directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
