// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
	"github.com/bureau-foundation/fleetstate/lib/schema"
	"github.com/bureau-foundation/fleetstate/lib/worldstate"
)

var (
	// ErrLoopStopped wraps the cause reported by Handle.Err once the
	// loop has ended.
	ErrLoopStopped = errors.New("statesync: state loop stopped")

	// ErrSequenceForgotten is returned by WaitForSequence for a
	// sequence that was applied so long ago that its change has been
	// dropped from the handle's change window.
	ErrSequenceForgotten = errors.New("statesync: sequence outside the change window")
)

const (
	defaultReplayTimeout = 30 * time.Second
	defaultChangeWindow  = 4096
)

// Config configures a state loop.
type Config struct {
	// ReplayTimeout bounds how long StartStateLoop waits for the
	// retained history to be applied. Zero selects 30 seconds.
	ReplayTimeout time.Duration

	// ChangeWindow is the number of recently applied sequences whose
	// changes WaitForSequence can report. Zero selects 4096.
	ChangeWindow int

	// ReadOnly skips registering the request responders. Processes
	// that only read the world state (the CLI, the liveness monitor's
	// host) set it so that requests are answered by the controller.
	ReadOnly bool

	// Logger receives loop events. Nil discards them.
	Logger *slog.Logger

	// Metrics instruments the loop. Nil disables it.
	Metrics *metrics.State
}

// Handle is the read side of a running state loop.
type Handle struct {
	conn    bus.Conn
	logger  *slog.Logger
	metrics *metrics.State
	window  int
	cancel  context.CancelFunc
	done    chan struct{}

	// subscription is read only by the loop goroutine.
	subscription bus.Subscription

	mu       sync.RWMutex
	world    *worldstate.WorldState
	sequence uint64
	err      error

	// progress is closed and replaced after every applied message.
	progress chan struct{}

	// changes maps recently applied sequences to the change they
	// produced (nil for no-ops). order holds the same sequences
	// oldest first; forgotten is the newest sequence evicted from it.
	changes   map[uint64]*worldstate.Change
	order     []uint64
	forgotten uint64

	stopped    bool
	responders []bus.Responder
}

// StartStateLoop subscribes to the world-state stream, waits until
// the history retained at subscribe time has been applied, registers
// the request responders (unless config.ReadOnly), and returns the
// handle. Cancelling ctx stops the loop.
func StartStateLoop(ctx context.Context, conn bus.Conn, config Config) (*Handle, error) {
	if config.ReplayTimeout <= 0 {
		config.ReplayTimeout = defaultReplayTimeout
	}
	if config.ChangeWindow <= 0 {
		config.ChangeWindow = defaultChangeWindow
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	subscription, err := conn.Subscribe(ctx, schema.SubjectStateAll, bus.SubscribeOptions{Deliver: bus.DeliverAll})
	if err != nil {
		return nil, fmt.Errorf("statesync: subscribing to %s: %w", schema.SubjectStateAll, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		conn:         conn,
		logger:       config.Logger,
		metrics:      config.Metrics,
		window:       config.ChangeWindow,
		cancel:       cancel,
		done:         make(chan struct{}),
		subscription: subscription,
		world:        worldstate.New(),
		progress:     make(chan struct{}),
		changes:      make(map[uint64]*worldstate.Change),
	}
	go handle.run(loopCtx)

	backlog := subscription.BacklogSequence()
	if backlog > 0 {
		waitCtx, cancelWait := context.WithTimeout(ctx, config.ReplayTimeout)
		_, err := handle.WaitForSequence(waitCtx, backlog)
		cancelWait()
		if err != nil && !errors.Is(err, ErrSequenceForgotten) {
			handle.Close()
			return nil, fmt.Errorf("statesync: replaying history through sequence %d: %w", backlog, err)
		}
	}

	if !config.ReadOnly {
		if err := handle.registerResponders(ctx); err != nil {
			handle.Close()
			return nil, err
		}
	}

	world, sequence := handle.Snapshot()
	handle.logger.Info("state loop started",
		"sequence", sequence,
		"clusters", world.ClusterCount(),
		"read_only", config.ReadOnly,
	)
	return handle, nil
}

// State returns the current world state. The returned tree never
// changes; call State again to observe later messages.
func (h *Handle) State() *worldstate.WorldState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.world
}

// Sequence returns the bus sequence of the last applied message.
func (h *Handle) Sequence() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sequence
}

// Snapshot returns the world state together with the sequence it
// reflects.
func (h *Handle) Snapshot() (*worldstate.WorldState, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.world, h.sequence
}

// WaitForSequence blocks until the loop has applied sequence and
// returns the change that message produced, or nil when it changed
// nothing. It also returns nil for sequences that were not world-state
// messages. If the loop ends first, the loop's error is returned.
func (h *Handle) WaitForSequence(ctx context.Context, sequence uint64) (*worldstate.Change, error) {
	for {
		h.mu.RLock()
		applied := h.sequence
		change, known := h.changes[sequence]
		forgotten := sequence <= h.forgotten
		progress := h.progress
		err := h.err
		h.mu.RUnlock()

		if sequence <= applied {
			switch {
			case known && change != nil:
				copied := *change
				return &copied, nil
			case known || !forgotten:
				return nil, nil
			default:
				return nil, fmt.Errorf("%w: %d", ErrSequenceForgotten, sequence)
			}
		}
		if err != nil {
			return nil, err
		}

		select {
		case <-progress:
		case <-h.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Done is closed when the loop ends.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns nil while the loop runs and the reason it stopped
// afterwards. The error wraps ErrLoopStopped and the cause.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Close stops the loop and waits for it to end. The last snapshot
// stays readable.
func (h *Handle) Close() error {
	h.cancel()
	<-h.done
	return nil
}

func (h *Handle) run(ctx context.Context) {
	err := h.loop(ctx)
	h.stop(err)
}

func (h *Handle) loop(ctx context.Context) error {
	for {
		message, err := h.subscription.Next(ctx)
		if err != nil {
			return fmt.Errorf("reading %s: %w", schema.SubjectStateAll, err)
		}
		h.apply(message)
	}
}

// apply folds one bus message into the tree. Only the loop goroutine
// calls it, so reading h.world without the lock is safe here.
//
// A message that does not decode, or names a cluster other than its
// subject's, is skipped. Its sequence still counts as applied, with no
// change.
func (h *Handle) apply(message bus.Message) {
	var stateMessage schema.WorldStateMessage
	if err := codec.Unmarshal(message.Data, &stateMessage); err != nil {
		h.skip(message, "decode", err)
		return
	}
	if subject := stateMessage.Subject(); subject != message.Subject {
		h.skip(message, "subject", fmt.Errorf("message for cluster %s", stateMessage.Cluster))
		return
	}

	next, change := worldstate.Apply(h.world, stateMessage)
	if change != nil {
		change.Sequence = message.Sequence
	}

	if change == nil {
		h.metrics.ObserveDuplicate()
		h.logger.Debug("world-state message changed nothing",
			"subject", message.Subject,
			"sequence", message.Sequence,
		)
	} else {
		h.metrics.ObserveChange(string(change.Kind))
		h.logger.Debug("world-state change applied",
			"cluster", change.Cluster,
			"kind", change.Kind,
			"sequence", message.Sequence,
		)
	}
	h.metrics.SetSequence(message.Sequence, next.ClusterCount())
	h.publish(next, message.Sequence, change)
}

func (h *Handle) skip(message bus.Message, reason string, err error) {
	h.metrics.ObserveSkipped(reason)
	h.logger.Warn("skipping malformed world-state message",
		"subject", message.Subject,
		"sequence", message.Sequence,
		"reason", reason,
		"error", err,
	)
	h.publish(h.world, message.Sequence, nil)
}

// publish installs world as the current tree and wakes waiters.
func (h *Handle) publish(world *worldstate.WorldState, sequence uint64, change *worldstate.Change) {
	h.mu.Lock()
	h.world = world
	if sequence > h.sequence {
		h.sequence = sequence
		h.recordLocked(sequence, change)
	}
	close(h.progress)
	h.progress = make(chan struct{})
	h.mu.Unlock()
}

func (h *Handle) recordLocked(sequence uint64, change *worldstate.Change) {
	h.changes[sequence] = change
	h.order = append(h.order, sequence)
	if len(h.order) <= h.window {
		return
	}
	evicted := h.order[0]
	delete(h.changes, evicted)
	h.forgotten = evicted
	h.order = h.order[1:]
}

func (h *Handle) stop(cause error) {
	h.subscription.Close()

	h.mu.Lock()
	h.err = fmt.Errorf("%w: %w", ErrLoopStopped, cause)
	h.stopped = true
	responders := h.responders
	h.responders = nil
	h.mu.Unlock()

	for _, responder := range responders {
		responder.Close()
	}
	if errors.Is(cause, context.Canceled) {
		h.logger.Info("state loop stopped", "sequence", h.Sequence())
	} else {
		h.logger.Error("state loop failed", "error", cause, "sequence", h.Sequence())
	}
	close(h.done)
}

// addResponder keeps responder for shutdown, or closes it at once if
// the loop has already stopped.
func (h *Handle) addResponder(responder bus.Responder) error {
	h.mu.Lock()
	if !h.stopped {
		h.responders = append(h.responders, responder)
		h.mu.Unlock()
		return nil
	}
	err := h.err
	h.mu.Unlock()
	responder.Close()
	return err
}
