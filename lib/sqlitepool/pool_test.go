// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/fleetstate/lib/sqlitepool"
)

func queryInt(t *testing.T, conn *sqlite.Conn, query string) int64 {
	t.Helper()
	var result int64
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return result
}

func TestPragmas(t *testing.T) {
	tests := []struct {
		name        string
		synchronous sqlitepool.Synchronous
		want        int64
	}{
		{"default is normal", "", 1},
		{"full", sqlitepool.SynchronousFull, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pool := openTestPool(t, sqlitepool.Config{Synchronous: test.synchronous})
			err := pool.WithConn(context.Background(), func(conn *sqlite.Conn) error {
				if got := queryInt(t, conn, "PRAGMA synchronous"); got != test.want {
					t.Errorf("synchronous = %d, want %d", got, test.want)
				}
				var journalMode string
				err := sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						journalMode = stmt.ColumnText(0)
						return nil
					},
				})
				if err != nil {
					return err
				}
				if journalMode != "wal" {
					t.Errorf("journal_mode = %q, want wal", journalMode)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("WithConn: %v", err)
			}
		})
	}
}

func TestOnConnectCreatesSchema(t *testing.T) {
	pool := openTestPool(t, sqlitepool.Config{
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, `
				CREATE TABLE IF NOT EXISTS numbers (value INTEGER NOT NULL);
			`, nil)
		},
	})

	err := pool.WithConn(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `INSERT INTO numbers (value) VALUES (1), (2), (3);`, nil)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	const readers = 6
	var wg sync.WaitGroup
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := pool.Take(context.Background())
			if err != nil {
				t.Errorf("Take: %v", err)
				return
			}
			defer pool.Put(conn)
			var sum int64
			err = sqlitex.Execute(conn, "SELECT value FROM numbers", &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					sum += stmt.ColumnInt64(0)
					return nil
				},
			})
			if err != nil {
				t.Errorf("SELECT: %v", err)
				return
			}
			if sum != 6 {
				t.Errorf("sum = %d, want 6", sum)
			}
		}()
	}
	wg.Wait()
}

func TestOpenRejectsBadConfig(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Error("expected error for empty Path")
	}
	_, err := sqlitepool.Open(sqlitepool.Config{
		Path:        filepath.Join(t.TempDir(), "x.db"),
		Synchronous: "OFF",
	})
	if err == nil {
		t.Error("expected error for unsupported synchronous level")
	}
}

func TestTakeHonorsContext(t *testing.T) {
	pool := openTestPool(t, sqlitepool.Config{PoolSize: 1})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("expected error from cancelled context with the only connection borrowed")
	}
}

// openTestPool opens cfg against a temporary database file and closes
// it when the test ends.
func openTestPool(t *testing.T, cfg sqlitepool.Config) *sqlitepool.Pool {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	pool, err := sqlitepool.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pool.Path() != cfg.Path {
		t.Errorf("Path = %q, want %q", pool.Path(), cfg.Path)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
