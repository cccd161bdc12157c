// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStateInstruments(t *testing.T) {
	registry := prometheus.NewRegistry()
	state := NewState(registry)

	state.ObserveChange("backend_state")
	state.ObserveChange("backend_state")
	state.ObserveChange("txt_record")
	state.ObserveDuplicate()
	state.ObserveSkipped("decode")
	state.SetSequence(42, 3)
	state.ObserveRequest("acme.dns.set", "ok")

	if got := testutil.ToFloat64(state.applied.WithLabelValues("backend_state")); got != 2 {
		t.Errorf("backend_state changes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(state.duplicates); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(state.skipped.WithLabelValues("decode")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(state.sequence); got != 42 {
		t.Errorf("sequence = %v, want 42", got)
	}
	if got := testutil.ToFloat64(state.clusters); got != 3 {
		t.Errorf("clusters = %v, want 3", got)
	}
}

func TestNilReceiversAreNoOps(t *testing.T) {
	var state *State
	state.ObserveChange("x")
	state.ObserveDuplicate()
	state.ObserveSkipped("subject")
	state.SetSequence(1, 1)
	state.ObserveRequest("s", "ok")

	var liveness *Liveness
	liveness.ObserveHeartbeat()
	liveness.ObserveTransition("online")
	liveness.SetDroneCounts(map[string]int{"online": 1})

	var broker *Broker
	broker.ObservePublish(1)
}

func TestLivenessDroneCountsReplace(t *testing.T) {
	registry := prometheus.NewRegistry()
	liveness := NewLiveness(registry)

	liveness.SetDroneCounts(map[string]int{"online": 2, "suspect": 1})
	liveness.SetDroneCounts(map[string]int{"online": 3})

	if got := testutil.ToFloat64(liveness.drones.WithLabelValues("online")); got != 3 {
		t.Errorf("online = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(liveness.drones); got != 1 {
		t.Errorf("series = %d, want 1 after replacement", got)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	registry := NewRegistry()
	broker := NewBroker(registry)
	broker.ObservePublish(7)
	broker.ObservePublish(0)

	server := httptest.NewServer(Handler(registry))
	defer server.Close()

	response, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	for _, want := range []string{
		`fleetstate_broker_published_total{retained="true"} 1`,
		`fleetstate_broker_sequence 7`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestListenAndServe(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	if err := ListenAndServe(context.Background(), "256.0.0.1:bad", http.NotFoundHandler(), logger); err == nil {
		t.Error("ListenAndServe accepted an invalid address")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), logger)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
