// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/fleetstate/lib/clock"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
)

// DefaultRetainPatterns is the retention used when BrokerConfig.Retain
// is nil: the world-state stream.
var DefaultRetainPatterns = []string{"state.>"}

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Journal stores retained messages. Nil selects a MemoryJournal.
	Journal Journal

	// Retain lists the subject patterns whose messages are sequenced
	// and kept for replay. Nil selects DefaultRetainPatterns.
	Retain []string

	// Clock stamps messages. Nil selects the real clock.
	Clock clock.Clock

	// Logger receives debug-level broker events. Nil discards them.
	Logger *slog.Logger

	// Metrics counts published messages. Nil disables it.
	Metrics *metrics.Broker
}

// Broker is an in-process message bus. It is safe for concurrent use
// and implements Conn.
//
// Publishing, subscribing and replay all happen under one lock, which
// is what gives DeliverAll subscribers a gap-free, duplicate-free
// handover from history to live delivery and every subscriber the same
// total order of retained messages.
type Broker struct {
	journal Journal
	retain  []string
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Broker
	done    chan struct{}

	mu            sync.Mutex
	closed        bool
	sequence      uint64
	retained      []Entry
	subscriptions map[uint64]*subscription
	responders    map[string][]*responder
	nextID        uint64
}

var _ Conn = (*Broker)(nil)

// NewBroker creates a broker and loads the journal's history.
func NewBroker(config BrokerConfig) (*Broker, error) {
	if config.Journal == nil {
		config.Journal = NewMemoryJournal()
	}
	if config.Retain == nil {
		config.Retain = DefaultRetainPatterns
	}
	for _, pattern := range config.Retain {
		if err := ValidatePattern(pattern); err != nil {
			return nil, fmt.Errorf("retain pattern: %w", err)
		}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	broker := &Broker{
		journal:       config.Journal,
		retain:        append([]string(nil), config.Retain...),
		clock:         config.Clock,
		logger:        config.Logger,
		metrics:       config.Metrics,
		done:          make(chan struct{}),
		subscriptions: make(map[uint64]*subscription),
		responders:    make(map[string][]*responder),
	}

	err := config.Journal.Replay(func(entry Entry) error {
		if entry.Sequence <= broker.sequence {
			return fmt.Errorf("journal entry %d does not follow %d", entry.Sequence, broker.sequence)
		}
		broker.sequence = entry.Sequence
		broker.retained = append(broker.retained, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading journal: %w", err)
	}
	broker.logger.Info("broker started",
		"retained_messages", len(broker.retained),
		"last_sequence", broker.sequence,
	)
	return broker, nil
}

func (b *Broker) isRetained(subject string) bool {
	for _, pattern := range b.retain {
		if Match(pattern, subject) {
			return true
		}
	}
	return false
}

// Publish implements Conn.
func (b *Broker) Publish(ctx context.Context, subject string, data []byte) (uint64, error) {
	if err := ValidateSubject(subject); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data = append([]byte(nil), data...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	message := Message{Subject: subject, Data: data, Timestamp: b.clock.Now()}
	if b.isRetained(subject) {
		entry := Entry{
			Sequence:  b.sequence + 1,
			Subject:   subject,
			Data:      data,
			Timestamp: message.Timestamp,
		}
		if err := b.journal.Append(entry); err != nil {
			return 0, fmt.Errorf("journaling %s: %w", subject, err)
		}
		b.sequence = entry.Sequence
		b.retained = append(b.retained, entry)
		message.Sequence = entry.Sequence
	}

	for _, sub := range b.subscriptions {
		if Match(sub.pattern, subject) {
			sub.enqueue(message)
		}
	}
	b.metrics.ObservePublish(message.Sequence)
	return message.Sequence, nil
}

// Subscribe implements Conn.
func (b *Broker) Subscribe(ctx context.Context, pattern string, options SubscribeOptions) (Subscription, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := newSubscription(b, b.nextID, pattern)
	replayed := 0
	if options.Deliver == DeliverAll {
		for _, entry := range b.retained {
			if !Match(pattern, entry.Subject) {
				continue
			}
			sub.enqueue(Message{
				Subject:   entry.Subject,
				Data:      entry.Data,
				Sequence:  entry.Sequence,
				Timestamp: entry.Timestamp,
			})
			sub.backlog = entry.Sequence
			replayed++
		}
	}
	b.subscriptions[sub.id] = sub

	b.logger.Debug("subscription created",
		"pattern", pattern,
		"deliver", options.Deliver.String(),
		"replayed", replayed,
	)
	return sub, nil
}

func (b *Broker) removeSubscription(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, id)
}

// Sequence returns the sequence of the most recent retained message.
func (b *Broker) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence
}

// RetainedCount returns the number of retained messages.
func (b *Broker) RetainedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.retained)
}

// SubscriptionCount returns the number of open subscriptions.
func (b *Broker) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// Done is closed when the broker shuts down.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Close shuts the broker down. Every open subscription starts returning
// ErrClosed and pending requests fail. The journal is not closed; it
// belongs to the caller. Close is idempotent.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subscriptions := b.subscriptions
	b.subscriptions = make(map[uint64]*subscription)
	b.responders = make(map[string][]*responder)
	b.mu.Unlock()

	for _, sub := range subscriptions {
		sub.shutdown()
	}
	close(b.done)
	b.logger.Info("broker closed", "subscriptions", len(subscriptions))
	return nil
}
