// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/sqlitepool"
)

// ErrCorrupt is returned by Replay when a stored entry does not match
// its digest.
var ErrCorrupt = errors.New("journal: corrupt entry")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	sequence     INTEGER PRIMARY KEY,
	subject      TEXT    NOT NULL,
	timestamp_ns INTEGER NOT NULL,
	data         BLOB,
	digest       BLOB    NOT NULL
);
`

// Config configures a Journal.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// Logger receives open/close and replay events. Nil discards them.
	Logger *slog.Logger
}

// Journal is a SQLite-backed bus.Journal. Appends run in IMMEDIATE
// transactions with synchronous=FULL.
type Journal struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

var _ bus.Journal = (*Journal)(nil)

// Open opens or creates the journal at cfg.Path.
func Open(cfg Config) (*Journal, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        cfg.Path,
		PoolSize:    2,
		Synchronous: sqlitepool.SynchronousFull,
		Logger:      logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schemaSQL, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{pool: pool, logger: logger}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.pool.Close()
}

// Append implements bus.Journal.
func (j *Journal) Append(entry bus.Entry) (err error) {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("journal: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	last, err := lastSequence(conn)
	if err != nil {
		return err
	}
	if entry.Sequence <= last {
		return fmt.Errorf("journal: sequence %d does not follow %d", entry.Sequence, last)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO entries (sequence, subject, timestamp_ns, data, digest) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				int64(entry.Sequence),
				entry.Subject,
				entry.Timestamp.UnixNano(),
				entry.Data,
				entryDigest(entry),
			},
		})
	if err != nil {
		return fmt.Errorf("journal: insert sequence %d: %w", entry.Sequence, err)
	}
	return nil
}

// Replay implements bus.Journal. Every entry is verified against its
// digest before fn sees it.
func (j *Journal) Replay(fn func(bus.Entry) error) error {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("journal: replay: %w", err)
	}
	defer j.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn,
		`SELECT sequence, subject, timestamp_ns, data, digest FROM entries ORDER BY sequence`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry := bus.Entry{
					Sequence:  uint64(stmt.ColumnInt64(0)),
					Subject:   stmt.ColumnText(1),
					Timestamp: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
					Data:      make([]byte, stmt.ColumnLen(3)),
				}
				stmt.ColumnBytes(3, entry.Data)
				stored := make([]byte, stmt.ColumnLen(4))
				stmt.ColumnBytes(4, stored)

				if len(stored) != digestSize || !bytes.Equal(stored, entryDigest(entry)) {
					return fmt.Errorf("%w: sequence %d", ErrCorrupt, entry.Sequence)
				}
				count++
				return fn(entry)
			},
		})
	if err != nil {
		return err
	}
	j.logger.Info("journal replayed", "path", j.pool.Path(), "entries", count)
	return nil
}

// LastSequence returns the highest stored sequence, or zero for an
// empty journal.
func (j *Journal) LastSequence(ctx context.Context) (uint64, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: %w", err)
	}
	defer j.pool.Put(conn)
	return lastSequence(conn)
}

func lastSequence(conn *sqlite.Conn) (uint64, error) {
	var last int64
	err := sqlitex.Execute(conn, `SELECT COALESCE(MAX(sequence), 0) FROM entries`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			last = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("journal: reading last sequence: %w", err)
	}
	return uint64(last), nil
}
