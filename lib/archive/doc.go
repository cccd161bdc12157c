// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive exports and imports the retained message stream.
//
// An archive is the 8-byte magic "FSARCHV1", one compression tag byte,
// and then a compressed CBOR sequence: a [Header] followed by one
// [Record] per retained message in stream order. Archives back up a
// broker's history and seed a fresh bus with it; importing republishes
// each record, so the target bus assigns its own sequences.
package archive
