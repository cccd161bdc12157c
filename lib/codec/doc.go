// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration shared by every
// fleetstate component that puts bytes on the bus, in the journal, or
// in an archive.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical message always produces the same bytes, which is what
// lets the journal digest entries and lets tests compare replayed
// streams byte for byte.
//
// Times are encoded as RFC 3339 text with nanosecond precision. A
// backend state timestamp read back from a replay is therefore equal to
// the one the live loop applied, not truncated to whole seconds.
//
// Struct tags follow one rule: `json` tags for types that also appear
// in JSON (schema messages, CLI output), `cbor` tags for types that are
// only ever CBOR (socket protocol envelopes, archive headers).
// fxamacker/cbor reads `json` tags when `cbor` tags are absent.
package codec
