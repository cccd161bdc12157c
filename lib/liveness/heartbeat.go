// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

// PublishHeartbeat sends a drone heartbeat on its cluster's heartbeat
// subject.
func PublishHeartbeat(ctx context.Context, conn bus.Conn, heartbeat schema.DroneHeartbeat) error {
	if heartbeat.Cluster.IsZero() {
		return errors.New("liveness: heartbeat without cluster")
	}
	if heartbeat.Drone.IsZero() {
		return errors.New("liveness: heartbeat without drone")
	}
	data, err := codec.Marshal(heartbeat)
	if err != nil {
		return fmt.Errorf("liveness: encoding heartbeat: %w", err)
	}
	if _, err := conn.Publish(ctx, schema.HeartbeatSubject(heartbeat.Cluster), data); err != nil {
		return fmt.Errorf("liveness: publishing heartbeat: %w", err)
	}
	return nil
}
