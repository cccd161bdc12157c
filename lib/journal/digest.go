// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/fleetstate/lib/bus"
)

// digestSize is the length of an entry digest in bytes.
const digestSize = 32

// entryDomainKey separates journal digests from any other BLAKE3 use
// of the same bytes. ASCII "fleetstate.journal.entry", zero-padded.
var entryDomainKey = [32]byte{
	'f', 'l', 'e', 'e', 't', 's', 't', 'a', 't', 'e', '.',
	'j', 'o', 'u', 'r', 'n', 'a', 'l', '.',
	'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0,
}

// entryDigest hashes every stored field of entry. Variable-length
// fields are length-prefixed so field boundaries cannot shift.
func entryDigest(entry bus.Entry) []byte {
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("journal: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var header [8 + 8 + 4 + 4]byte
	binary.BigEndian.PutUint64(header[0:8], entry.Sequence)
	binary.BigEndian.PutUint64(header[8:16], uint64(entry.Timestamp.UnixNano()))
	binary.BigEndian.PutUint32(header[16:20], uint32(len(entry.Subject)))
	binary.BigEndian.PutUint32(header[20:24], uint32(len(entry.Data)))
	hasher.Write(header[:])
	hasher.Write([]byte(entry.Subject))
	hasher.Write(entry.Data)
	return hasher.Sum(nil)
}
