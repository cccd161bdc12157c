// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Fleetstate is the operator CLI for the fleet world-state stream.
//
// It talks to fleetstate-broker over its Unix socket. State-changing
// commands go through the controller's request handlers so that the
// reply reflects the applied state; "publish --no-wait" bypasses them.
package main
