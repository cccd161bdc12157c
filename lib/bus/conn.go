// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by every operation on a closed connection
	// or subscription, and by Subscription.Next once the broker behind
	// it shuts down.
	ErrClosed = errors.New("bus: connection closed")

	// ErrNoResponders is returned by Request when no responder is
	// registered for the subject.
	ErrNoResponders = errors.New("bus: no responders for subject")

	// ErrInvalidSubject is returned for malformed subjects and patterns.
	ErrInvalidSubject = errors.New("bus: invalid subject")
)

// ResponderError carries an error returned by a remote request handler.
type ResponderError struct {
	Subject string
	Message string
}

func (e *ResponderError) Error() string {
	return "bus: responder for " + e.Subject + " failed: " + e.Message
}

// Message is one delivered message.
type Message struct {
	Subject string
	Data    []byte

	// Sequence is the stream sequence for retained messages and zero
	// for live-only ones.
	Sequence uint64

	// Timestamp is the broker's receive time.
	Timestamp time.Time
}

// DeliverPolicy selects where a new subscription starts.
type DeliverPolicy int

const (
	// DeliverNew delivers only messages published after the
	// subscription is established.
	DeliverNew DeliverPolicy = iota

	// DeliverAll replays every retained message matching the pattern,
	// oldest first, then continues with live messages.
	DeliverAll
)

// String returns the policy name used in logs and on the socket wire.
func (p DeliverPolicy) String() string {
	switch p {
	case DeliverNew:
		return "new"
	case DeliverAll:
		return "all"
	default:
		return "unknown"
	}
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	Deliver DeliverPolicy
}

// Subscription is an ordered message feed. Next must not be called
// concurrently from several goroutines.
type Subscription interface {
	// Next blocks until the next message is available, ctx is done, or
	// the subscription ends. After the broker closes, Next returns
	// ErrClosed.
	Next(ctx context.Context) (Message, error)

	// BacklogSequence is the sequence of the last retained message
	// that was queued for replay when the subscription was created, or
	// zero when there was none (always zero for DeliverNew). A consumer
	// that has processed this sequence has caught up with the history
	// that existed at subscribe time.
	BacklogSequence() uint64

	// Close ends the subscription. Further Next calls return ErrClosed.
	Close() error
}

// Handler answers one request. A returned error is delivered to the
// requester as a *ResponderError.
type Handler func(ctx context.Context, subject string, data []byte) ([]byte, error)

// Responder is a registered request handler.
type Responder interface {
	// Close unregisters the handler. Requests already dispatched to it
	// still complete.
	Close() error
}

// Conn is a connection to the message bus.
type Conn interface {
	// Publish sends data on subject. For retained subjects it returns
	// the stream sequence assigned to the message; otherwise zero.
	Publish(ctx context.Context, subject string, data []byte) (uint64, error)

	// Subscribe starts a subscription on a subject pattern.
	Subscribe(ctx context.Context, pattern string, options SubscribeOptions) (Subscription, error)

	// Request sends data to the first responder registered for subject
	// and returns its reply.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Handle registers handler as a responder for subject. Patterns are
	// not allowed.
	Handle(ctx context.Context, subject string, handler Handler) (Responder, error)
}
