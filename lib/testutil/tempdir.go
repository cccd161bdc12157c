// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"runtime"
	"testing"
	"time"
)

// SocketDir creates a short-named temporary directory in /tmp for Unix
// domain sockets. t.TempDir() paths can exceed the 108-byte sun_path
// limit. The directory is removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "fleetstate-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// WaitForSocket blocks until a file exists at path, failing the test if
// it does not appear within five seconds.
func WaitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("socket %s did not appear", path)
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond) //nolint:realclock polling a filesystem path
	}
}
