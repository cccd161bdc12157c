// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal is the durable store behind the broker's retained
// stream: a [bus.Journal] backed by SQLite through lib/sqlitepool.
//
// Each row carries a BLAKE3 keyed digest over its sequence, subject,
// timestamp and payload. [Journal.Replay] recomputes the digest for
// every row and fails with [ErrCorrupt] on mismatch, so a damaged
// database stops the broker at startup instead of feeding a silently
// altered history to every state loop that replays it.
package journal
