// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worldstate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

// Apply folds one message into world and returns the resulting
// snapshot together with a description of the change. When the message
// changes nothing (a backend reporting the state it is already in) the
// original snapshot is returned with a nil Change.
//
// world is never modified. The new snapshot copies only the path from
// the root to the entity that changed.
//
// Apply panics on a union member it does not recognize. The unions in
// lib/schema are closed, so that can only happen if a new variant is
// added there without a case here.
func Apply(world *WorldState, message schema.WorldStateMessage) (*WorldState, *Change) {
	if world == nil {
		world = New()
	}
	cluster := world.clusters[message.Cluster]

	var (
		updated *ClusterState
		change  *Change
	)
	switch body := message.Message.(type) {
	case schema.DroneMessage:
		updated, change = applyDrone(cluster, body)
	case schema.BackendMessage:
		updated, change = applyBackend(cluster, body)
	case schema.AcmeMessage:
		updated = cloneCluster(cluster)
		updated.txtRecords = appendClipped(updated.txtRecords, body.TxtRecord)
		change = &Change{Kind: ChangeTxtRecord, TxtRecord: body.TxtRecord}
	default:
		panic(fmt.Sprintf("worldstate: unhandled ClusterStateMessage %T", message.Message))
	}

	if change == nil {
		return world, nil
	}
	change.Cluster = message.Cluster

	next := &WorldState{clusters: maps.Clone(world.clusters)}
	if next.clusters == nil {
		next.clusters = make(map[ref.ClusterName]*ClusterState, 1)
	}
	next.clusters[message.Cluster] = updated
	return next, change
}

func applyDrone(cluster *ClusterState, message schema.DroneMessage) (*ClusterState, *Change) {
	switch body := message.Message.(type) {
	case schema.DroneMetadata:
		meta := body.Meta
		updated := cloneCluster(cluster)
		updated.drones = maps.Clone(updated.drones)
		if updated.drones == nil {
			updated.drones = make(map[ref.DroneID]*DroneState, 1)
		}
		updated.drones[message.Drone] = &DroneState{meta: &meta}
		return updated, &Change{Kind: ChangeDroneMetadata, Drone: message.Drone}
	default:
		panic(fmt.Sprintf("worldstate: unhandled DroneMessageType %T", message.Message))
	}
}

func applyBackend(cluster *ClusterState, message schema.BackendMessage) (*ClusterState, *Change) {
	var existing *BackendRecord
	if cluster != nil {
		existing = cluster.backends[message.Backend]
	}
	record := BackendRecord{}
	if existing != nil {
		record = *existing
	}

	var change *Change
	switch body := message.Message.(type) {
	case schema.BackendAssignment:
		record.drone = body.Drone
		change = &Change{Kind: ChangeBackendAssignment, Backend: message.Backend, Drone: body.Drone}

	case schema.BackendStateChange:
		if current, ok := existing.lastState(); ok && current == body.State {
			return cluster, nil
		}
		record.states = appendClipped(record.states, StateEntry{
			Timestamp: body.Timestamp,
			State:     body.State,
		})
		change = &Change{
			Kind:      ChangeBackendState,
			Backend:   message.Backend,
			State:     body.State,
			Timestamp: body.Timestamp,
		}

	default:
		panic(fmt.Sprintf("worldstate: unhandled BackendMessageType %T", message.Message))
	}

	updated := cloneCluster(cluster)
	updated.backends = maps.Clone(updated.backends)
	if updated.backends == nil {
		updated.backends = make(map[ref.BackendID]*BackendRecord, 1)
	}
	updated.backends[message.Backend] = &record
	return updated, change
}

// lastState is State without the nil check at every call site.
func (b *BackendRecord) lastState() (schema.BackendState, bool) {
	if b == nil {
		return "", false
	}
	return b.State()
}

// cloneCluster returns a shallow copy of cluster, or a fresh empty
// cluster when it does not exist yet. Callers clone whichever map they
// modify.
func cloneCluster(cluster *ClusterState) *ClusterState {
	if cluster == nil {
		return &ClusterState{}
	}
	copied := *cluster
	return &copied
}

// appendClipped appends without ever writing into capacity shared with
// an older snapshot.
func appendClipped[T any](log []T, entry T) []T {
	return append(slices.Clip(log), entry)
}
