// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"sync"
)

// subscription is the Broker's Subscription. Its queue is unbounded:
// the broker appends under its own lock and never blocks on a slow
// consumer.
type subscription struct {
	broker  *Broker
	id      uint64
	pattern string
	backlog uint64

	mu      sync.Mutex
	queue   []Message
	closed  bool
	wake    chan struct{}
	onClose sync.Once
}

var _ Subscription = (*subscription)(nil)

func newSubscription(broker *Broker, id uint64, pattern string) *subscription {
	return &subscription{
		broker:  broker,
		id:      id,
		pattern: pattern,
		wake:    make(chan struct{}, 1),
	}
}

// enqueue appends message and wakes a waiting Next. Called with the
// broker lock held.
func (s *subscription) enqueue(message Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, message)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

func (s *subscription) Next(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Message{}, ErrClosed
		}
		if len(s.queue) > 0 {
			message := s.queue[0]
			s.queue[0] = Message{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return message, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (s *subscription) BacklogSequence() uint64 {
	return s.backlog
}

// Pending returns the number of queued, undelivered messages.
func (s *subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *subscription) Close() error {
	s.broker.removeSubscription(s.id)
	s.shutdown()
	return nil
}

// shutdown marks the subscription closed and releases its queue.
func (s *subscription) shutdown() {
	s.onClose.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		close(s.wake)
		s.mu.Unlock()
	})
}
