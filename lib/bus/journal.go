// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one retained message as stored in a Journal.
type Entry struct {
	Sequence  uint64
	Subject   string
	Data      []byte
	Timestamp time.Time
}

// Journal stores retained messages durably. The broker appends entries
// with strictly increasing sequences and replays the journal once, at
// startup.
type Journal interface {
	// Append stores entry. Implementations must reject a sequence that
	// is not greater than every stored one.
	Append(entry Entry) error

	// Replay calls fn with every stored entry in sequence order,
	// stopping at the first error fn returns.
	Replay(fn func(Entry) error) error
}

// MemoryJournal is a Journal that keeps entries in memory. History is
// lost with the process; use it for tests and single-process setups.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if count := len(j.entries); count > 0 && entry.Sequence <= j.entries[count-1].Sequence {
		return fmt.Errorf("journal: sequence %d does not follow %d", entry.Sequence, j.entries[count-1].Sequence)
	}
	entry.Data = append([]byte(nil), entry.Data...)
	j.entries = append(j.entries, entry)
	return nil
}

func (j *MemoryJournal) Replay(fn func(Entry) error) error {
	j.mu.Lock()
	entries := append([]Entry(nil), j.entries...)
	j.mu.Unlock()

	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (j *MemoryJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
