// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus defines the message bus abstraction the fleet components
// talk through, and an in-process [Broker] that implements it.
//
// Subjects are dot-separated tokens ("state.plane.test"). Subscription
// patterns may use "*" for exactly one token and a final ">" for one or
// more trailing tokens. Messages published on a retained subject (by
// default everything under "state.") receive a stream sequence number
// and are kept for replay; all other messages are delivered live only.
//
// [Conn] is the client-facing contract:
//
//   - Publish sends a message and, for retained subjects, returns its
//     sequence.
//   - Subscribe with [DeliverAll] replays every retained message that
//     matches before switching to live delivery, with no gap and no
//     duplicate at the boundary. [DeliverNew] starts from the next
//     message.
//   - Request sends a message to the first registered responder for a
//     subject and waits for its reply. Handle registers a responder.
//
// The Broker satisfies Conn directly for in-process use and tests;
// lib/bussocket serves a Broker to other processes over a Unix socket.
// Retained messages are written to a [Journal] so a broker restart can
// recover its history (see lib/journal for the SQLite implementation).
package bus
