// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/fleetstate/lib/ref"

// Bus subjects. Subjects are dot-separated tokens; subscribers may use
// "*" to match one token and a trailing ">" to match one or more.
const (
	// SubjectStatePrefix prefixes the per-cluster world-state subjects.
	// Messages on these subjects are retained by the broker and replayed
	// to every DeliverAll subscriber.
	SubjectStatePrefix = "state."

	// SubjectStateAll matches every world-state subject.
	SubjectStateAll = "state.>"

	// SubjectHeartbeatPrefix prefixes the per-cluster drone heartbeat
	// subjects. Heartbeats are live-only.
	SubjectHeartbeatPrefix = "heartbeat."

	// SubjectHeartbeatAll matches every heartbeat subject.
	SubjectHeartbeatAll = "heartbeat.>"

	// SubjectAcmeDnsSet is the request subject for [SetAcmeDnsRecord].
	// The reply is a CBOR boolean.
	SubjectAcmeDnsSet = "acme.dns.set"

	// SubjectStateApply is the request subject for publishing a
	// [WorldStateMessage] and learning whether it changed anything. The
	// reply is an [ApplyResult].
	SubjectStateApply = "control.state.apply"
)

// StateSubject returns the world-state subject for cluster.
func StateSubject(cluster ref.ClusterName) string {
	return SubjectStatePrefix + cluster.String()
}

// HeartbeatSubject returns the heartbeat subject for cluster.
func HeartbeatSubject(cluster ref.ClusterName) string {
	return SubjectHeartbeatPrefix + cluster.String()
}
