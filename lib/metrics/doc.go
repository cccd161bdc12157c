// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus instruments exported by
// fleetstate binaries.
//
// Instruments are grouped per component ([State], [Liveness], [Broker])
// and registered on a caller-supplied prometheus.Registerer, so tests
// can use a private registry and binaries can share one. Every method
// is safe to call on a nil receiver, which components use when no
// metrics are configured.
package metrics
