// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the liveness
// monitor and anything else that schedules work on wall-clock time.
//
// Production code holds a Clock and receives Real(). Tests construct a
// Fake and drive it explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	monitor := startMonitor(fake)
//	fake.WaitForTimers(1)              // monitor registered its ticker
//	fake.Advance(90 * time.Second)     // fire the ticker deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// ticker and the test advancing time past it.
package clock
