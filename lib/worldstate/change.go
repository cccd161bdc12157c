// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worldstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

// ChangeKind identifies which part of the tree a Change touched.
type ChangeKind string

const (
	ChangeDroneMetadata     ChangeKind = "drone_metadata"
	ChangeBackendAssignment ChangeKind = "backend_assignment"
	ChangeBackendState      ChangeKind = "backend_state"
	ChangeTxtRecord         ChangeKind = "txt_record"
)

// Change describes the effect of one applied message. Only the fields
// relevant to Kind are set:
//
//   - drone_metadata: Drone
//   - backend_assignment: Backend, Drone (the new assignee)
//   - backend_state: Backend, State, Timestamp
//   - txt_record: TxtRecord
type Change struct {
	Cluster   ref.ClusterName
	Kind      ChangeKind
	Drone     ref.DroneID
	Backend   ref.BackendID
	State     schema.BackendState
	Timestamp time.Time
	TxtRecord string

	// Sequence is the bus sequence of the message that produced the
	// change. Apply leaves it zero; the sync loop fills it in.
	Sequence uint64
}

// changeWire is Change with optional fields as pointers, since zero
// identifiers do not encode.
type changeWire struct {
	Cluster   ref.ClusterName      `json:"cluster"`
	Kind      ChangeKind           `json:"kind"`
	Drone     *ref.DroneID         `json:"drone,omitempty"`
	Backend   *ref.BackendID       `json:"backend,omitempty"`
	State     *schema.BackendState `json:"state,omitempty"`
	Timestamp *time.Time           `json:"timestamp,omitempty"`
	TxtRecord *string              `json:"txt_record,omitempty"`
	Sequence  uint64               `json:"sequence"`
}

func (c Change) toWire() changeWire {
	wire := changeWire{Cluster: c.Cluster, Kind: c.Kind, Sequence: c.Sequence}
	if !c.Drone.IsZero() {
		wire.Drone = &c.Drone
	}
	if !c.Backend.IsZero() {
		wire.Backend = &c.Backend
	}
	if c.Kind == ChangeBackendState {
		wire.State = &c.State
		wire.Timestamp = &c.Timestamp
	}
	if c.Kind == ChangeTxtRecord {
		wire.TxtRecord = &c.TxtRecord
	}
	return wire
}

func (w changeWire) fromWire() (Change, error) {
	switch w.Kind {
	case ChangeDroneMetadata, ChangeBackendAssignment, ChangeBackendState, ChangeTxtRecord:
	default:
		return Change{}, fmt.Errorf("change: unknown kind %q", w.Kind)
	}
	change := Change{Cluster: w.Cluster, Kind: w.Kind, Sequence: w.Sequence}
	if w.Drone != nil {
		change.Drone = *w.Drone
	}
	if w.Backend != nil {
		change.Backend = *w.Backend
	}
	if w.State != nil {
		change.State = *w.State
	}
	if w.Timestamp != nil {
		change.Timestamp = *w.Timestamp
	}
	if w.TxtRecord != nil {
		change.TxtRecord = *w.TxtRecord
	}
	return change, nil
}

// MarshalJSON implements json.Marshaler.
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Change) UnmarshalJSON(data []byte) error {
	var wire changeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded, err := wire.fromWire()
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (c Change) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(c.toWire())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (c *Change) UnmarshalCBOR(data []byte) error {
	var wire changeWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded, err := wire.fromWire()
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}
