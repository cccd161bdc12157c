// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint helper used by every
// fleetstate command. It is the one place outside CLI output where
// non-CLI code writes to stderr directly: errors that end a process may
// occur before the structured logger exists.
package process
