// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worldstate

import (
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

// WorldState is an immutable snapshot of every cluster. The zero value
// and nil are both valid empty worlds.
type WorldState struct {
	clusters map[ref.ClusterName]*ClusterState
}

// New returns an empty world.
func New() *WorldState {
	return &WorldState{clusters: make(map[ref.ClusterName]*ClusterState)}
}

// Cluster returns the named cluster. The returned pointer belongs to
// the snapshot and must not be modified.
func (w *WorldState) Cluster(name ref.ClusterName) (*ClusterState, bool) {
	if w == nil {
		return nil, false
	}
	cluster, ok := w.clusters[name]
	return cluster, ok
}

// Clusters returns the names of all known clusters in lexical order.
func (w *WorldState) Clusters() []ref.ClusterName {
	if w == nil {
		return nil
	}
	names := make([]ref.ClusterName, 0, len(w.clusters))
	for name := range w.clusters {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b ref.ClusterName) int {
		return strings.Compare(a.String(), b.String())
	})
	return names
}

// ClusterCount returns the number of known clusters.
func (w *WorldState) ClusterCount() int {
	if w == nil {
		return 0
	}
	return len(w.clusters)
}

// ClusterState is one cluster's drones, backends and ACME TXT records.
//
// Lookups on a nil *ClusterState behave as on an empty cluster, so the
// result of a missed [WorldState.Cluster] lookup is safe to query.
type ClusterState struct {
	drones     map[ref.DroneID]*DroneState
	backends   map[ref.BackendID]*BackendRecord
	txtRecords []string
}

// Drone returns the drone with the given ID.
func (c *ClusterState) Drone(id ref.DroneID) (*DroneState, bool) {
	if c == nil {
		return nil, false
	}
	drone, ok := c.drones[id]
	return drone, ok
}

// Backend returns the backend with the given ID.
func (c *ClusterState) Backend(id ref.BackendID) (*BackendRecord, bool) {
	if c == nil {
		return nil, false
	}
	backend, ok := c.backends[id]
	return backend, ok
}

// Drones returns the IDs of all known drones in lexical order.
func (c *ClusterState) Drones() []ref.DroneID {
	if c == nil {
		return nil
	}
	ids := make([]ref.DroneID, 0, len(c.drones))
	for id := range c.drones {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ref.DroneID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}

// Backends returns the IDs of all known backends in lexical order.
func (c *ClusterState) Backends() []ref.BackendID {
	if c == nil {
		return nil
	}
	ids := make([]ref.BackendID, 0, len(c.backends))
	for id := range c.backends {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ref.BackendID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}

// TxtRecords returns a copy of the cluster's TXT record log, oldest
// first. Duplicates are preserved.
func (c *ClusterState) TxtRecords() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.txtRecords)
}

// LastTxtRecord returns the most recently appended TXT record.
func (c *ClusterState) LastTxtRecord() (string, bool) {
	if c == nil || len(c.txtRecords) == 0 {
		return "", false
	}
	return c.txtRecords[len(c.txtRecords)-1], true
}

// DroneState is what the stream has said about one drone.
type DroneState struct {
	meta *schema.DroneMeta
}

// Meta returns the drone's most recent self-reported metadata. Drones
// enter the tree only through metadata messages, so the second result
// is false only for a zero DroneState.
func (d *DroneState) Meta() (schema.DroneMeta, bool) {
	if d.meta == nil {
		return schema.DroneMeta{}, false
	}
	meta := *d.meta
	if meta.GitHash != nil {
		gitHash := *meta.GitHash
		meta.GitHash = &gitHash
	}
	return meta, true
}

// StateEntry is one entry in a backend's lifecycle log.
type StateEntry struct {
	Timestamp time.Time           `json:"timestamp"`
	State     schema.BackendState `json:"state"`
}

// BackendRecord is what the stream has said about one backend: the
// drone it is assigned to and its lifecycle log.
type BackendRecord struct {
	drone  ref.DroneID
	states []StateEntry
}

// Drone returns the drone the backend is assigned to.
func (b *BackendRecord) Drone() (ref.DroneID, bool) {
	return b.drone, !b.drone.IsZero()
}

// State returns the most recently recorded lifecycle state.
func (b *BackendRecord) State() (schema.BackendState, bool) {
	if len(b.states) == 0 {
		return "", false
	}
	return b.states[len(b.states)-1].State, true
}

// StateTimestamp returns the most recent log entry: the state and the
// timestamp at which it was first reported. A repeated report of the
// same state does not move the timestamp.
func (b *BackendRecord) StateTimestamp() (StateEntry, bool) {
	if len(b.states) == 0 {
		return StateEntry{}, false
	}
	return b.states[len(b.states)-1], true
}

// States returns a copy of the lifecycle log, oldest first.
func (b *BackendRecord) States() []StateEntry {
	return slices.Clone(b.states)
}
