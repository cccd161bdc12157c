// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier types for the entities the
// world state tracks: clusters, drones, and backends.
//
// Each identifier is a distinct struct type wrapping a validated
// string, so a DroneID cannot be passed where a BackendID is expected.
// All three implement encoding.TextMarshaler and TextUnmarshaler; the
// codec package encodes them as CBOR text strings and encoding/json
// encodes them as JSON strings. Decoding validates, so a malformed
// identifier never reaches the reducer.
//
// Identifiers are comparable and are used directly as map keys in the
// state tree.
package ref
