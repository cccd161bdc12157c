// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bussocket serves a [bus.Conn] to other processes over a Unix
// socket and provides the matching client.
//
// The protocol is CBOR. Every connection starts with one request map
// carrying an "action" field and receives one [Response] envelope, as
// in a plain request/response service socket:
//
//   - "publish" {subject, data} -> {sequence}
//   - "request" {subject, data} -> reply bytes
//
// Two actions keep the connection open after the envelope:
//
//   - "subscribe" {pattern, deliver} -> {backlog_sequence}, then a
//     stream of delivery frames until either side closes. A final frame
//     with an error code reports why the stream ended.
//   - "handle" {subject}: the server registers a responder on the bus
//     and forwards each request to the client as a request frame; the
//     client answers with reply frames carrying the same ID. Closing
//     the connection unregisters the responder.
//
// Errors carry a code so the client can map them back to the bus
// sentinels (bus.ErrClosed, bus.ErrNoResponders, bus.ErrInvalidSubject)
// and *bus.ResponderError.
package bussocket
