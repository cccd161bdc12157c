// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bussocket

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/codec"
)

const (
	actionPublish   = "publish"
	actionRequest   = "request"
	actionSubscribe = "subscribe"
	actionHandle    = "handle"
)

// Error codes carried in Response.Code and deliveryFrame.Code.
const (
	codeClosed         = "closed"
	codeNoResponders   = "no_responders"
	codeInvalidSubject = "invalid_subject"
	codeResponder      = "responder"
	codeInternal       = "internal"
)

// request is the first value a client writes on every connection.
type request struct {
	Action  string `cbor:"action"`
	Subject string `cbor:"subject,omitempty"`
	Pattern string `cbor:"pattern,omitempty"`
	Deliver string `cbor:"deliver,omitempty"`
	Data    []byte `cbor:"data,omitempty"`
}

// Response is the envelope the server writes in reply to a request.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

type publishResult struct {
	Sequence uint64 `cbor:"sequence"`
}

type subscribeResult struct {
	BacklogSequence uint64 `cbor:"backlog_sequence"`
}

// deliveryFrame is one message on a subscribe stream, or the stream's
// terminating error when Error is set.
type deliveryFrame struct {
	Subject   string    `cbor:"subject,omitempty"`
	Data      []byte    `cbor:"data,omitempty"`
	Sequence  uint64    `cbor:"sequence,omitempty"`
	Timestamp time.Time `cbor:"timestamp"`
	Error     string    `cbor:"error,omitempty"`
	Code      string    `cbor:"code,omitempty"`
}

// requestFrame is a bus request forwarded to a remote responder.
type requestFrame struct {
	ID      uint64 `cbor:"id"`
	Subject string `cbor:"subject"`
	Data    []byte `cbor:"data,omitempty"`
}

// replyFrame is a remote responder's answer to a requestFrame.
type replyFrame struct {
	ID    uint64 `cbor:"id"`
	Data  []byte `cbor:"data,omitempty"`
	Error string `cbor:"error,omitempty"`
}

func parseDeliver(value string) (bus.DeliverPolicy, error) {
	switch value {
	case "", bus.DeliverNew.String():
		return bus.DeliverNew, nil
	case bus.DeliverAll.String():
		return bus.DeliverAll, nil
	default:
		return 0, fmt.Errorf("unknown deliver policy %q", value)
	}
}

// errorCode classifies err for the wire. The message for responder
// errors is the handler's own message, not the wrapped text.
func errorCode(err error) (code, message string) {
	var responderErr *bus.ResponderError
	switch {
	case errors.As(err, &responderErr):
		return codeResponder, responderErr.Message
	case errors.Is(err, bus.ErrClosed):
		return codeClosed, err.Error()
	case errors.Is(err, bus.ErrNoResponders):
		return codeNoResponders, err.Error()
	case errors.Is(err, bus.ErrInvalidSubject):
		return codeInvalidSubject, err.Error()
	default:
		return codeInternal, err.Error()
	}
}

// ServerError is an error reported by the server that does not map to
// a bus sentinel.
type ServerError struct {
	Action  string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("bus socket %s: %s", e.Action, e.Message)
}

// decodeError turns a coded error from the wire back into the error
// the bus itself would have returned.
func decodeError(action, subject, code, message string) error {
	switch code {
	case codeClosed:
		return bus.ErrClosed
	case codeNoResponders:
		return fmt.Errorf("%w: %s", bus.ErrNoResponders, subject)
	case codeInvalidSubject:
		detail := strings.TrimPrefix(message, bus.ErrInvalidSubject.Error()+": ")
		return fmt.Errorf("%w: %s", bus.ErrInvalidSubject, detail)
	case codeResponder:
		return &bus.ResponderError{Subject: subject, Message: message}
	default:
		return &ServerError{Action: action, Message: message}
	}
}
