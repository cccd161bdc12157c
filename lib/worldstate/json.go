// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worldstate

import (
	"encoding/json"

	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

// The view types below are the JSON rendering used by operator tooling.
// Maps are keyed by the identifier strings; encoding/json sorts them.

type worldView struct {
	Clusters map[string]clusterView `json:"clusters"`
}

type clusterView struct {
	Drones     map[string]droneView   `json:"drones"`
	Backends   map[string]backendView `json:"backends"`
	TxtRecords []string               `json:"txt_records"`
}

type droneView struct {
	Meta *schema.DroneMeta `json:"meta"`
}

type backendView struct {
	Drone  *ref.DroneID `json:"drone"`
	States []StateEntry `json:"states"`
}

// MarshalJSON renders the whole snapshot. A nil world renders as an
// empty one.
func (w *WorldState) MarshalJSON() ([]byte, error) {
	view := worldView{Clusters: make(map[string]clusterView)}
	if w != nil {
		for name, cluster := range w.clusters {
			view.Clusters[name.String()] = cluster.view()
		}
	}
	return json.Marshal(view)
}

// MarshalJSON renders one cluster in the same form MarshalJSON on
// WorldState uses for each entry.
func (c *ClusterState) MarshalJSON() ([]byte, error) {
	if c == nil {
		c = &ClusterState{}
	}
	return json.Marshal(c.view())
}

func (c *ClusterState) view() clusterView {
	view := clusterView{
		Drones:     make(map[string]droneView, len(c.drones)),
		Backends:   make(map[string]backendView, len(c.backends)),
		TxtRecords: c.TxtRecords(),
	}
	if view.TxtRecords == nil {
		view.TxtRecords = []string{}
	}
	for id, drone := range c.drones {
		entry := droneView{}
		if meta, ok := drone.Meta(); ok {
			entry.Meta = &meta
		}
		view.Drones[id.String()] = entry
	}
	for id, backend := range c.backends {
		entry := backendView{States: backend.States()}
		if entry.States == nil {
			entry.States = []StateEntry{}
		}
		if drone, ok := backend.Drone(); ok {
			entry.Drone = &drone
		}
		view.Backends[id.String()] = entry
	}
	return view
}
