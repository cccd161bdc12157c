// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Fleetstate-controller keeps the fleet's world state live.
//
// It dials the broker at broker.socket_path, starts the state loop
// (which also answers control.state.apply and acme.dns.set) and the
// drone liveness monitor, and serves HTTP on
// controller.listen_address:
//
//	/metrics   Prometheus metrics
//	/healthz   200 while the loop and monitor run, 503 otherwise
//	/state     the current world state as JSON (?cluster= for one)
//	/drones    drone liveness as JSON
//
// The process exits non-zero as soon as the state loop or the monitor
// stops, so that its supervisor restarts it with a fresh replay.
package main
