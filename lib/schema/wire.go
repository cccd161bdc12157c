// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/ref"
)

// The wire structs give each union one pointer field per variant.
// Exactly one must be set; toWire guarantees it on encode and fromWire
// checks it on decode. Field tags serve both encoding/json and CBOR.

type worldStateWire struct {
	Cluster ref.ClusterName    `json:"cluster"`
	Message clusterMessageWire `json:"message"`
}

type clusterMessageWire struct {
	Drone   *droneMessageWire   `json:"drone,omitempty"`
	Backend *backendMessageWire `json:"backend,omitempty"`
	Acme    *AcmeMessage        `json:"acme,omitempty"`
}

type droneMessageWire struct {
	Drone   ref.DroneID   `json:"drone"`
	Message droneTypeWire `json:"message"`
}

type droneTypeWire struct {
	Metadata *DroneMeta `json:"metadata,omitempty"`
}

type backendMessageWire struct {
	Backend ref.BackendID   `json:"backend"`
	Message backendTypeWire `json:"message"`
}

type backendTypeWire struct {
	Assignment *BackendAssignment  `json:"assignment,omitempty"`
	State      *BackendStateChange `json:"state,omitempty"`
}

func (m WorldStateMessage) toWire() (worldStateWire, error) {
	if m.Cluster.IsZero() {
		return worldStateWire{}, errors.New("world state message: missing cluster")
	}
	wire := worldStateWire{Cluster: m.Cluster}

	switch message := m.Message.(type) {
	case DroneMessage:
		inner := &droneMessageWire{Drone: message.Drone}
		switch droneMessage := message.Message.(type) {
		case DroneMetadata:
			meta := droneMessage.Meta
			inner.Message.Metadata = &meta
		case nil:
			return worldStateWire{}, errors.New("world state message: drone message has no body")
		default:
			panic(fmt.Sprintf("schema: unhandled DroneMessageType %T", droneMessage))
		}
		wire.Message.Drone = inner

	case BackendMessage:
		inner := &backendMessageWire{Backend: message.Backend}
		switch backendMessage := message.Message.(type) {
		case BackendAssignment:
			inner.Message.Assignment = &backendMessage
		case BackendStateChange:
			inner.Message.State = &backendMessage
		case nil:
			return worldStateWire{}, errors.New("world state message: backend message has no body")
		default:
			panic(fmt.Sprintf("schema: unhandled BackendMessageType %T", backendMessage))
		}
		wire.Message.Backend = inner

	case AcmeMessage:
		wire.Message.Acme = &message

	case nil:
		return worldStateWire{}, errors.New("world state message: missing message body")

	default:
		panic(fmt.Sprintf("schema: unhandled ClusterStateMessage %T", message))
	}
	return wire, nil
}

func (w worldStateWire) fromWire() (WorldStateMessage, error) {
	if w.Cluster.IsZero() {
		return WorldStateMessage{}, errors.New("world state message: missing cluster")
	}

	set := 0
	if w.Message.Drone != nil {
		set++
	}
	if w.Message.Backend != nil {
		set++
	}
	if w.Message.Acme != nil {
		set++
	}
	if set != 1 {
		return WorldStateMessage{}, fmt.Errorf("world state message: expected exactly one of drone, backend, acme; got %d", set)
	}

	result := WorldStateMessage{Cluster: w.Cluster}
	switch {
	case w.Message.Drone != nil:
		drone := w.Message.Drone
		if drone.Drone.IsZero() {
			return WorldStateMessage{}, errors.New("drone message: missing drone")
		}
		if drone.Message.Metadata == nil {
			return WorldStateMessage{}, errors.New("drone message: expected metadata")
		}
		result.Message = DroneMessage{
			Drone:   drone.Drone,
			Message: DroneMetadata{Meta: *drone.Message.Metadata},
		}

	case w.Message.Backend != nil:
		backend := w.Message.Backend
		if backend.Backend.IsZero() {
			return WorldStateMessage{}, errors.New("backend message: missing backend")
		}
		inner := backend.Message
		switch {
		case inner.Assignment != nil && inner.State != nil:
			return WorldStateMessage{}, errors.New("backend message: both assignment and state set")
		case inner.Assignment != nil:
			if inner.Assignment.Drone.IsZero() {
				return WorldStateMessage{}, errors.New("backend assignment: missing drone")
			}
			result.Message = BackendMessage{Backend: backend.Backend, Message: *inner.Assignment}
		case inner.State != nil:
			if inner.State.State == "" {
				return WorldStateMessage{}, errors.New("backend state: missing state")
			}
			result.Message = BackendMessage{Backend: backend.Backend, Message: *inner.State}
		default:
			return WorldStateMessage{}, errors.New("backend message: expected one of assignment, state")
		}

	case w.Message.Acme != nil:
		result.Message = *w.Message.Acme
	}
	return result, nil
}

// MarshalJSON encodes the message in its externally tagged form.
func (m WorldStateMessage) MarshalJSON() ([]byte, error) {
	wire, err := m.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the externally tagged form, rejecting messages
// that do not select exactly one variant at each level.
func (m *WorldStateMessage) UnmarshalJSON(data []byte) error {
	var wire worldStateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decoding world state message: %w", err)
	}
	decoded, err := wire.fromWire()
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

// MarshalCBOR encodes the message in its externally tagged form.
func (m WorldStateMessage) MarshalCBOR() ([]byte, error) {
	wire, err := m.toWire()
	if err != nil {
		return nil, err
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR decodes the externally tagged form.
func (m *WorldStateMessage) UnmarshalCBOR(data []byte) error {
	var wire worldStateWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decoding world state message: %w", err)
	}
	decoded, err := wire.fromWire()
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}
