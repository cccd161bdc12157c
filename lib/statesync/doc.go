// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statesync keeps an in-memory world state in step with the
// world-state stream on the message bus.
//
// [StartStateLoop] subscribes to every state subject from the earliest
// retained message, folds each message into the tree with
// [worldstate.Apply], and publishes the result behind a [Handle]. The
// loop goroutine is the only writer. Readers call [Handle.State] and
// get an immutable snapshot; the handle's lock covers only the pointer
// swap, so readers never wait on a reducer step and the loop never
// waits on a reader.
//
// The loop also answers two request subjects:
//
//   - control.state.apply publishes a world-state message and replies
//     with the change it produced once the loop has applied it
//     ([ApplyStateMessage] is the client side).
//   - acme.dns.set appends a DNS TXT record to a cluster through the
//     same stream ([SetAcmeDnsRecord] is the client side).
//
// Both handlers publish to the stream and then wait for their own
// message to come back through the loop. Every write therefore goes
// through the single reducer and is reproduced exactly on replay.
//
// The loop ends only on a subscription error or cancellation of the
// context passed to StartStateLoop. [Handle.Done] is closed and
// [Handle.Err] reports the cause; the owning process is expected to
// exit. A message that does not decode, or whose cluster does not
// match its subject, is logged, counted and skipped.
package statesync
