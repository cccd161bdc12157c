// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for fleetstate
// packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so individual tests never call time.After themselves. These
// helpers are the only place tests use real wall-clock timeouts, and
// only as a hang guard: a passing test never waits for them.
//
// [SocketDir] returns a short temporary directory for Unix sockets,
// whose paths are limited to 108 bytes, and [WaitForSocket] blocks
// until a server has created its socket.
//
// [UniqueID] generates distinct identifiers for tests that share a bus.
package testutil
