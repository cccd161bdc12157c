// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the messages exchanged over the fleet bus and
// the subjects they travel on.
//
// The world-state stream carries [WorldStateMessage] values on
// state.<cluster> subjects. Each message wraps one member of the closed
// [ClusterStateMessage] union:
//
//   - [DroneMessage] -- a fact about a drone ([DroneMetadata])
//   - [BackendMessage] -- a fact about a backend ([BackendAssignment],
//     [BackendStateChange])
//   - [AcmeMessage] -- a DNS TXT record value for ACME validation
//
// Unions are encoded externally tagged: exactly one key names the
// variant, as in {"backend": {"backend": "ba-...", "message": {"state":
// {...}}}}. The same shape is used for JSON (operator tooling, message
// files) and CBOR (the bus wire format, via lib/codec). Decoding rejects
// objects that set zero or several variants.
//
// Request subjects ([SubjectAcmeDnsSet], [SubjectStateApply]) and the
// non-retained heartbeat subjects carry [SetAcmeDnsRecord],
// [WorldStateMessage] and [DroneHeartbeat] respectively.
//
// This package depends only on lib/ref and lib/codec.
package schema
