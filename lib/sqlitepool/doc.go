// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens pooled SQLite connections with the pragmas
// fleetstate storage expects.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, use it from one goroutine, and [Pool.Put] it back, or
// let [Pool.WithConn] do both. Every connection runs in WAL mode with a
// busy timeout so a reader never blocks the writer. The synchronous
// level is configurable: the bus journal is the fleet's ground truth
// and runs with FULL, caches can use NORMAL.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:        "/var/lib/fleetstate/journal.db",
//	    Synchronous: sqlitepool.SynchronousFull,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//
// There is no query builder. Callers write SQL and manage transactions
// with sqlitex.ImmediateTransaction.
package sqlitepool
