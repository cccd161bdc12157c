// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//nolint:dupl // DroneID and BackendID stay distinct types.
package ref

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	dronePrefix   = "dr-"
	backendPrefix = "ba-"
)

// randomSuffix returns a dash-free random UUID.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DroneID identifies a worker node.
type DroneID struct{ id string }

// NewRandomDroneID returns a fresh random drone identifier of the form
// "dr-<32 hex digits>".
func NewRandomDroneID() DroneID {
	return DroneID{id: dronePrefix + randomSuffix()}
}

// ParseDroneID validates id and returns it as a DroneID. Any valid
// identifier is accepted; the "dr-" prefix is only a convention of
// NewRandomDroneID.
func ParseDroneID(id string) (DroneID, error) {
	if err := validateID("drone", id); err != nil {
		return DroneID{}, err
	}
	return DroneID{id: id}, nil
}

// String returns the identifier.
func (d DroneID) String() string { return d.id }

// IsZero reports whether d is the zero value.
func (d DroneID) IsZero() bool { return d.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (d DroneID) MarshalText() ([]byte, error) {
	if d.id == "" {
		return nil, fmt.Errorf("marshal DroneID: zero value")
	}
	return []byte(d.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DroneID) UnmarshalText(data []byte) error {
	parsed, err := ParseDroneID(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal DroneID: %w", err)
	}
	*d = parsed
	return nil
}

// BackendID identifies an ephemeral workload instance.
type BackendID struct{ id string }

// NewRandomBackendID returns a fresh random backend identifier of the
// form "ba-<32 hex digits>".
func NewRandomBackendID() BackendID {
	return BackendID{id: backendPrefix + randomSuffix()}
}

// ParseBackendID validates id and returns it as a BackendID.
func ParseBackendID(id string) (BackendID, error) {
	if err := validateID("backend", id); err != nil {
		return BackendID{}, err
	}
	return BackendID{id: id}, nil
}

// String returns the identifier.
func (b BackendID) String() string { return b.id }

// IsZero reports whether b is the zero value.
func (b BackendID) IsZero() bool { return b.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (b BackendID) MarshalText() ([]byte, error) {
	if b.id == "" {
		return nil, fmt.Errorf("marshal BackendID: zero value")
	}
	return []byte(b.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BackendID) UnmarshalText(data []byte) error {
	parsed, err := ParseBackendID(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal BackendID: %w", err)
	}
	*b = parsed
	return nil
}
