// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Binaries
// call it from main() with the error returned by run(), including the
// terminal error of a failed state loop, so a supervisor sees a
// non-zero exit and restarts the process with a fresh replay.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
