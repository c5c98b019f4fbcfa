// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 1, 15, 14, 30, 45, 0, time.UTC)
	fake := Fake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Errorf("Now = %v, want %v", got, start)
	}

	// Time stands still without Advance.
	if got := fake.Now(); !got.Equal(start) {
		t.Errorf("Now moved without Advance: %v", got)
	}
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 15, 14, 30, 45, 0, time.UTC)
	fake := Fake(start)

	fake.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if got := fake.Now(); !got.Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", got, want)
	}
}

func TestFakeSet(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	target := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	fake.Set(target)
	if got := fake.Now(); !got.Equal(target) {
		t.Errorf("Now after Set = %v, want %v", got, target)
	}
}
