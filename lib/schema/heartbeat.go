// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/bureau-foundation/fleetstate/lib/ref"
)

// DroneHeartbeat is published periodically by each drone agent on
// heartbeat.<cluster>. Heartbeats are not retained; the liveness
// monitor only needs the most recent one.
type DroneHeartbeat struct {
	Cluster ref.ClusterName `json:"cluster"`
	Drone   ref.DroneID     `json:"drone"`

	// Timestamp is the drone's wall clock at send time. The monitor
	// records its own receive time for health decisions; this field is
	// kept for diagnostics.
	Timestamp time.Time `json:"timestamp"`

	// Ready is false while the drone is draining or still starting.
	Ready bool `json:"ready"`

	// RunningBackends is the number of backends the drone is executing.
	RunningBackends int `json:"running_backends"`
}
