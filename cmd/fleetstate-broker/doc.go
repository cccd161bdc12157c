// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Fleetstate-broker runs the message bus for a fleetstate deployment.
//
// It opens the SQLite journal named by broker.journal_path, replays it
// into an in-process broker, and serves the broker on the Unix socket
// at broker.socket_path. Retained subjects (broker.retain, default
// state.>) are journaled before they are delivered, so a restart keeps
// the full world-state history. When broker.metrics_address is set the
// broker also serves Prometheus metrics there.
package main
