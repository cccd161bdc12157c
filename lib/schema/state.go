// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"net/netip"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/ref"
)

// WorldStateMessage is one fact on the world-state stream: a message
// scoped to a single cluster. The cluster is created implicitly the
// first time any message names it.
type WorldStateMessage struct {
	Cluster ref.ClusterName
	Message ClusterStateMessage
}

// Subject returns the subject this message is published on.
func (m WorldStateMessage) Subject() string {
	return StateSubject(m.Cluster)
}

// ClusterStateMessage is the closed union of messages scoped to a
// cluster. The members are [DroneMessage], [BackendMessage] and
// [AcmeMessage]; no other package can add one.
type ClusterStateMessage interface {
	isClusterStateMessage()
}

// DroneMessage carries a fact about one drone.
type DroneMessage struct {
	Drone   ref.DroneID
	Message DroneMessageType
}

// BackendMessage carries a fact about one backend.
type BackendMessage struct {
	Backend ref.BackendID
	Message BackendMessageType
}

// AcmeMessage appends a DNS TXT record value to the cluster's record
// log. Produced by the ACME gateway in response to SetAcmeDnsRecord.
type AcmeMessage struct {
	TxtRecord string `json:"txt_record"`
}

func (DroneMessage) isClusterStateMessage()   {}
func (BackendMessage) isClusterStateMessage() {}
func (AcmeMessage) isClusterStateMessage()    {}

// DroneMessageType is the closed union of per-drone facts. Its only
// member is [DroneMetadata].
type DroneMessageType interface {
	isDroneMessageType()
}

// DroneMetadata replaces the drone's self-reported metadata. Last
// write wins.
type DroneMetadata struct {
	Meta DroneMeta
}

func (DroneMetadata) isDroneMessageType() {}

// DroneMeta is a drone's self-description.
type DroneMeta struct {
	// GitHash is the commit the drone agent was built from, when known.
	GitHash *string `json:"git_hash,omitempty"`

	// Version is the drone agent's release version.
	Version string `json:"version"`

	// IP is the address other components use to reach the drone.
	IP netip.Addr `json:"ip"`
}

// Equal reports whether m and other describe the same drone build and
// address.
func (m DroneMeta) Equal(other DroneMeta) bool {
	if m.Version != other.Version || m.IP != other.IP {
		return false
	}
	if (m.GitHash == nil) != (other.GitHash == nil) {
		return false
	}
	return m.GitHash == nil || *m.GitHash == *other.GitHash
}

// BackendMessageType is the closed union of per-backend facts. The
// members are [BackendAssignment] and [BackendStateChange].
type BackendMessageType interface {
	isBackendMessageType()
}

// BackendAssignment records which drone runs the backend. Last write
// wins.
type BackendAssignment struct {
	Drone ref.DroneID `json:"drone"`
}

// BackendStateChange reports that the backend entered State at
// Timestamp. It is appended to the backend's state log unless State
// equals the most recently recorded state.
type BackendStateChange struct {
	State     BackendState `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
}

func (BackendAssignment) isBackendMessageType()  {}
func (BackendStateChange) isBackendMessageType() {}
