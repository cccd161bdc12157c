// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/clock"
	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

// ErrMonitorStopped wraps the cause reported by Monitor.Err.
var ErrMonitorStopped = errors.New("liveness: monitor stopped")

const (
	defaultInterval = 30 * time.Second

	// suspectMultiple is how many intervals may pass without a
	// heartbeat before a suspect drone is declared offline.
	suspectMultiple = 3

	transitionBuffer = 64
)

// Health is a drone's derived liveness.
type Health string

const (
	HealthUnknown Health = "unknown"
	HealthOnline  Health = "online"
	HealthSuspect Health = "suspect"
	HealthOffline Health = "offline"
)

// Status is the monitor's view of one drone.
type Status struct {
	Cluster ref.ClusterName
	Drone   ref.DroneID
	Health  Health

	// LastSeen is the monitor's clock when the drone last sent a
	// heartbeat or published metadata.
	LastSeen time.Time

	// Since is when the drone entered its current health.
	Since time.Time

	// Ready and RunningBackends come from the latest heartbeat. A
	// drone seen only through metadata reports zero values.
	Ready           bool
	RunningBackends int
}

// Transition records a drone changing health.
type Transition struct {
	Cluster ref.ClusterName
	Drone   ref.DroneID
	From    Health
	To      Health
	At      time.Time
}

// Config configures a Monitor.
type Config struct {
	// Interval is the expected heartbeat period and the evaluation
	// period. Zero selects 30 seconds.
	Interval time.Duration

	// Clock drives evaluation and stamps last-seen times. Nil selects
	// the real clock.
	Clock clock.Clock

	// Logger receives transitions. Nil discards them.
	Logger *slog.Logger

	// Metrics instruments the monitor. Nil disables it.
	Metrics *metrics.Liveness
}

type droneKey struct {
	cluster ref.ClusterName
	drone   ref.DroneID
}

// Monitor tracks drone health. Create one with MonitorDroneState.
type Monitor struct {
	interval    time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Liveness
	cancel      context.CancelFunc
	done        chan struct{}
	transitions chan Transition

	mu     sync.RWMutex
	drones map[droneKey]*Status
	err    error
}

// MonitorDroneState subscribes to heartbeats and to new world-state
// messages and starts tracking drone health. Cancelling ctx stops the
// monitor.
func MonitorDroneState(ctx context.Context, conn bus.Conn, config Config) (*Monitor, error) {
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	heartbeats, err := conn.Subscribe(ctx, schema.SubjectHeartbeatAll, bus.SubscribeOptions{Deliver: bus.DeliverNew})
	if err != nil {
		return nil, fmt.Errorf("liveness: subscribing to %s: %w", schema.SubjectHeartbeatAll, err)
	}
	stateMessages, err := conn.Subscribe(ctx, schema.SubjectStateAll, bus.SubscribeOptions{Deliver: bus.DeliverNew})
	if err != nil {
		heartbeats.Close()
		return nil, fmt.Errorf("liveness: subscribing to %s: %w", schema.SubjectStateAll, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	monitor := &Monitor{
		interval:    config.Interval,
		clock:       config.Clock,
		logger:      config.Logger,
		metrics:     config.Metrics,
		cancel:      cancel,
		done:        make(chan struct{}),
		transitions: make(chan Transition, transitionBuffer),
		drones:      make(map[droneKey]*Status),
	}
	ticker := config.Clock.NewTicker(config.Interval)

	errs := make(chan error, 3)
	var workers sync.WaitGroup
	workers.Add(3)
	go func() {
		defer workers.Done()
		errs <- monitor.consume(runCtx, heartbeats, monitor.handleHeartbeat)
	}()
	go func() {
		defer workers.Done()
		errs <- monitor.consume(runCtx, stateMessages, monitor.handleStateMessage)
	}()
	go func() {
		defer workers.Done()
		errs <- monitor.evaluateLoop(runCtx, ticker)
	}()
	go func() {
		cause := <-errs
		cancel()
		workers.Wait()
		ticker.Stop()
		heartbeats.Close()
		stateMessages.Close()
		monitor.stop(cause)
	}()

	monitor.logger.Info("liveness monitor started", "interval", config.Interval)
	return monitor, nil
}

func (m *Monitor) consume(ctx context.Context, subscription bus.Subscription, handle func(bus.Message)) error {
	for {
		message, err := subscription.Next(ctx)
		if err != nil {
			return err
		}
		handle(message)
	}
}

func (m *Monitor) evaluateLoop(ctx context.Context, ticker *clock.Ticker) error {
	for {
		select {
		case <-ticker.C:
			m.evaluate()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Monitor) handleHeartbeat(message bus.Message) {
	var heartbeat schema.DroneHeartbeat
	if err := codec.Unmarshal(message.Data, &heartbeat); err != nil {
		m.logger.Warn("discarding undecodable heartbeat", "subject", message.Subject, "error", err)
		return
	}
	if heartbeat.Cluster.IsZero() || heartbeat.Drone.IsZero() {
		m.logger.Warn("discarding heartbeat without cluster or drone", "subject", message.Subject)
		return
	}
	if subject := schema.HeartbeatSubject(heartbeat.Cluster); subject != message.Subject {
		m.logger.Warn("discarding heartbeat on another cluster's subject",
			"subject", message.Subject,
			"cluster", heartbeat.Cluster,
		)
		return
	}
	m.metrics.ObserveHeartbeat()
	m.seen(heartbeat.Cluster, heartbeat.Drone, func(status *Status) {
		status.Ready = heartbeat.Ready
		status.RunningBackends = heartbeat.RunningBackends
	})
}

func (m *Monitor) handleStateMessage(message bus.Message) {
	var stateMessage schema.WorldStateMessage
	if err := codec.Unmarshal(message.Data, &stateMessage); err != nil {
		m.logger.Warn("ignoring undecodable world-state message", "subject", message.Subject, "error", err)
		return
	}
	droneMessage, ok := stateMessage.Message.(schema.DroneMessage)
	if !ok {
		return
	}
	m.seen(stateMessage.Cluster, droneMessage.Drone, nil)
}

// seen marks a drone as heard from now, bringing it online.
func (m *Monitor) seen(cluster ref.ClusterName, drone ref.DroneID, update func(*Status)) {
	now := m.clock.Now()
	key := droneKey{cluster: cluster, drone: drone}

	m.mu.Lock()
	status, ok := m.drones[key]
	if !ok {
		status = &Status{Cluster: cluster, Drone: drone, Health: HealthUnknown}
		m.drones[key] = status
	}
	status.LastSeen = now
	if update != nil {
		update(status)
	}
	var transition *Transition
	if status.Health != HealthOnline {
		transition = m.transitionLocked(status, HealthOnline, now)
	}
	counts := m.countsLocked()
	m.mu.Unlock()

	m.metrics.SetDroneCounts(counts)
	if transition != nil {
		m.publish(*transition)
	}
}

// evaluate re-derives every drone's health from its last-seen time.
func (m *Monitor) evaluate() {
	now := m.clock.Now()

	m.mu.Lock()
	var transitions []*Transition
	for _, status := range m.drones {
		health := m.healthAt(status.LastSeen, now)
		if health != status.Health {
			transitions = append(transitions, m.transitionLocked(status, health, now))
		}
	}
	counts := m.countsLocked()
	m.mu.Unlock()

	slices.SortFunc(transitions, func(a, b *Transition) int {
		return compareKeys(a.Cluster, a.Drone, b.Cluster, b.Drone)
	})
	m.metrics.SetDroneCounts(counts)
	for _, transition := range transitions {
		m.publish(*transition)
	}
}

func (m *Monitor) healthAt(lastSeen, now time.Time) Health {
	elapsed := now.Sub(lastSeen)
	switch {
	case elapsed <= m.interval:
		return HealthOnline
	case elapsed <= suspectMultiple*m.interval:
		return HealthSuspect
	default:
		return HealthOffline
	}
}

func (m *Monitor) transitionLocked(status *Status, to Health, now time.Time) *Transition {
	transition := &Transition{
		Cluster: status.Cluster,
		Drone:   status.Drone,
		From:    status.Health,
		To:      to,
		At:      now,
	}
	status.Health = to
	status.Since = now
	return transition
}

func (m *Monitor) countsLocked() map[string]int {
	counts := map[string]int{
		string(HealthOnline):  0,
		string(HealthSuspect): 0,
		string(HealthOffline): 0,
	}
	for _, status := range m.drones {
		counts[string(status.Health)]++
	}
	return counts
}

// publish logs and counts a transition and offers it on the
// Transitions channel. A full channel drops the transition.
func (m *Monitor) publish(transition Transition) {
	m.metrics.ObserveTransition(string(transition.To))

	attributes := []any{
		"cluster", transition.Cluster,
		"drone", transition.Drone,
		"from", transition.From,
		"to", transition.To,
	}
	switch {
	case transition.From == HealthUnknown:
		m.logger.Info("drone discovered", attributes...)
	case transition.To == HealthOnline:
		m.logger.Info("drone recovered", attributes...)
	case transition.To == HealthOffline:
		m.logger.Warn("drone offline", attributes...)
	default:
		m.logger.Warn("drone heartbeat overdue", attributes...)
	}

	select {
	case m.transitions <- transition:
	default:
	}
}

// Status returns the monitor's view of one drone.
func (m *Monitor) Status(cluster ref.ClusterName, drone ref.DroneID) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.drones[droneKey{cluster: cluster, drone: drone}]
	if !ok {
		return Status{}, false
	}
	return *status, true
}

// Statuses returns every tracked drone ordered by cluster, then drone.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	statuses := make([]Status, 0, len(m.drones))
	for _, status := range m.drones {
		statuses = append(statuses, *status)
	}
	m.mu.RUnlock()

	slices.SortFunc(statuses, func(a, b Status) int {
		return compareKeys(a.Cluster, a.Drone, b.Cluster, b.Drone)
	})
	return statuses
}

// Transitions delivers health transitions as they happen. Transitions
// are dropped while the channel is full.
func (m *Monitor) Transitions() <-chan Transition {
	return m.transitions
}

// Done is closed when the monitor stops.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Err returns nil while the monitor runs and the reason it stopped
// afterwards. The error wraps ErrMonitorStopped.
func (m *Monitor) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Close stops the monitor and waits for it to finish.
func (m *Monitor) Close() error {
	m.cancel()
	<-m.done
	return nil
}

func (m *Monitor) stop(cause error) {
	m.mu.Lock()
	m.err = fmt.Errorf("%w: %w", ErrMonitorStopped, cause)
	m.mu.Unlock()
	if errors.Is(cause, context.Canceled) {
		m.logger.Info("liveness monitor stopped")
	} else {
		m.logger.Error("liveness monitor failed", "error", cause)
	}
	close(m.done)
}

func compareKeys(clusterA ref.ClusterName, droneA ref.DroneID, clusterB ref.ClusterName, droneB ref.DroneID) int {
	return cmp.Or(
		cmp.Compare(clusterA.String(), clusterB.String()),
		cmp.Compare(droneA.String(), droneB.String()),
	)
}
