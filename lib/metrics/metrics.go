// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleetstate"

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// State instruments the world-state sync loop.
type State struct {
	applied    *prometheus.CounterVec
	duplicates prometheus.Counter
	skipped    *prometheus.CounterVec
	sequence   prometheus.Gauge
	clusters   prometheus.Gauge
	requests   *prometheus.CounterVec
}

// NewState registers the sync loop instruments on registerer.
func NewState(registerer prometheus.Registerer) *State {
	factory := promauto.With(registerer)
	return &State{
		applied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "changes_applied_total",
			Help:      "World-state messages that changed the tree, by change kind.",
		}, []string{"kind"}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "duplicates_total",
			Help:      "World-state messages accepted without changing the tree.",
		}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "skipped_total",
			Help:      "Malformed world-state messages skipped by the sync loop, by reason.",
		}, []string{"reason"}),
		sequence: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "applied_sequence",
			Help:      "Bus sequence of the last applied world-state message.",
		}),
		clusters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "clusters",
			Help:      "Clusters present in the world state.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "requests_total",
			Help:      "Requests served by the sync loop responders, by subject and outcome.",
		}, []string{"subject", "outcome"}),
	}
}

// ObserveChange counts one applied change of the given kind.
func (m *State) ObserveChange(kind string) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(kind).Inc()
}

// ObserveDuplicate counts one message that changed nothing.
func (m *State) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// ObserveSkipped counts one malformed message. reason is "decode" or
// "subject".
func (m *State) ObserveSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// SetSequence records the last applied sequence and cluster count.
func (m *State) SetSequence(sequence uint64, clusters int) {
	if m == nil {
		return
	}
	m.sequence.Set(float64(sequence))
	m.clusters.Set(float64(clusters))
}

// ObserveRequest counts one responder request. outcome is "ok" or
// "error".
func (m *State) ObserveRequest(subject, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(subject, outcome).Inc()
}

// Liveness instruments the drone liveness monitor.
type Liveness struct {
	drones      *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	heartbeats  prometheus.Counter
}

// NewLiveness registers the liveness monitor instruments.
func NewLiveness(registerer prometheus.Registerer) *Liveness {
	factory := promauto.With(registerer)
	return &Liveness{
		drones: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "drones",
			Help:      "Tracked drones by health.",
		}, []string{"health"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "transitions_total",
			Help:      "Drone health transitions, by target health.",
		}, []string{"to"}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "heartbeats_total",
			Help:      "Drone heartbeats received.",
		}),
	}
}

// ObserveHeartbeat counts one received heartbeat.
func (m *Liveness) ObserveHeartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}

// ObserveTransition counts one health transition into health.
func (m *Liveness) ObserveTransition(health string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(health).Inc()
}

// SetDroneCounts replaces the per-health drone gauges.
func (m *Liveness) SetDroneCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.drones.Reset()
	for health, count := range counts {
		m.drones.WithLabelValues(health).Set(float64(count))
	}
}

// Broker instruments the message broker.
type Broker struct {
	published *prometheus.CounterVec
	sequence  prometheus.Gauge
}

// NewBroker registers the broker instruments.
func NewBroker(registerer prometheus.Registerer) *Broker {
	factory := promauto.With(registerer)
	return &Broker{
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "published_total",
			Help:      "Messages published, by retention.",
		}, []string{"retained"}),
		sequence: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "sequence",
			Help:      "Sequence of the most recent retained message.",
		}),
	}
}

// ObservePublish counts one published message. A non-zero sequence
// marks it as retained.
func (m *Broker) ObservePublish(sequence uint64) {
	if m == nil {
		return
	}
	if sequence == 0 {
		m.published.WithLabelValues("false").Inc()
		return
	}
	m.published.WithLabelValues("true").Inc()
	m.sequence.Set(float64(sequence))
}

// ListenAndServe serves handler on address until ctx is done, then
// shuts the server down.
func ListenAndServe(ctx context.Context, address string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	logger.Info("http listening", "address", address)

	select {
	case err := <-errs:
		return fmt.Errorf("serving http on %s: %w", address, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http on %s: %w", address, err)
	}
	return nil
}
