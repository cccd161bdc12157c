// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/liveness"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
	"github.com/bureau-foundation/fleetstate/lib/testutil"
)

type controllerFixture struct {
	broker  *bus.Broker
	handle  *statesync.Handle
	monitor *liveness.Monitor
	server  *httptest.Server
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	broker, err := bus.NewBroker(bus.BrokerConfig{})
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	t.Cleanup(func() { broker.Close() })

	registry := prometheus.NewRegistry()
	handle, err := statesync.StartStateLoop(context.Background(), broker, statesync.Config{
		Metrics: metrics.NewState(registry),
	})
	if err != nil {
		t.Fatalf("StartStateLoop: %v", err)
	}
	t.Cleanup(func() { handle.Close() })

	monitor, err := liveness.MonitorDroneState(context.Background(), broker, liveness.Config{
		Metrics: metrics.NewLiveness(registry),
	})
	if err != nil {
		t.Fatalf("MonitorDroneState: %v", err)
	}
	t.Cleanup(func() { monitor.Close() })

	server := httptest.NewServer(newMux(handle, monitor, registry, slog.New(slog.DiscardHandler)))
	t.Cleanup(server.Close)
	return &controllerFixture{broker: broker, handle: handle, monitor: monitor, server: server}
}

func (f *controllerFixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	response, err := f.server.Client().Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return response.StatusCode, string(body)
}

func TestStateEndpoint(t *testing.T) {
	f := newControllerFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cluster := ref.MustClusterName("plane.test")
	if _, err := statesync.SetAcmeDnsRecord(ctx, f.broker, schema.SetAcmeDnsRecord{Cluster: cluster, Value: "token"}); err != nil {
		t.Fatalf("SetAcmeDnsRecord: %v", err)
	}

	status, body := f.get(t, "/state")
	if status != http.StatusOK {
		t.Fatalf("/state status = %d: %s", status, body)
	}
	var response struct {
		Sequence uint64 `json:"sequence"`
		State    struct {
			Clusters map[string]struct {
				TxtRecords []string `json:"txt_records"`
			} `json:"clusters"`
		} `json:"state"`
	}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		t.Fatalf("decoding /state: %v\n%s", err, body)
	}
	if response.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", response.Sequence)
	}
	if got := response.State.Clusters["plane.test"].TxtRecords; len(got) != 1 || got[0] != "token" {
		t.Errorf("txt records = %v", got)
	}

	if status, body := f.get(t, "/state?cluster=plane.test"); status != http.StatusOK || !strings.Contains(body, `"token"`) {
		t.Errorf("/state?cluster=plane.test = %d %s", status, body)
	}
	if status, _ := f.get(t, "/state?cluster=missing.test"); status != http.StatusNotFound {
		t.Errorf("unknown cluster status = %d, want 404", status)
	}
	if status, _ := f.get(t, "/state?cluster=Not..Valid"); status != http.StatusBadRequest {
		t.Errorf("invalid cluster status = %d, want 400", status)
	}
}

func TestDronesEndpoint(t *testing.T) {
	f := newControllerFixture(t)
	drone := ref.NewRandomDroneID()

	err := liveness.PublishHeartbeat(context.Background(), f.broker, schema.DroneHeartbeat{
		Cluster:         ref.MustClusterName("plane.test"),
		Drone:           drone,
		Ready:           true,
		RunningBackends: 3,
	})
	if err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}
	testutil.RequireReceive(t, f.monitor.Transitions(), 5*time.Second, "waiting for drone discovery")

	status, body := f.get(t, "/drones")
	if status != http.StatusOK {
		t.Fatalf("/drones status = %d", status)
	}
	var drones []droneStatus
	if err := json.Unmarshal([]byte(body), &drones); err != nil {
		t.Fatalf("decoding /drones: %v", err)
	}
	if len(drones) != 1 || drones[0].Drone != drone || drones[0].Health != liveness.HealthOnline || drones[0].RunningBackends != 3 {
		t.Errorf("drones = %+v", drones)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newControllerFixture(t)

	if status, body := f.get(t, "/healthz"); status != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz = %d %q", status, body)
	}
	if status, body := f.get(t, "/metrics"); status != http.StatusOK || !strings.Contains(body, "fleetstate_state_applied_sequence") {
		t.Errorf("/metrics = %d, missing state metrics", status)
	}

	f.handle.Close()
	if status, body := f.get(t, "/healthz"); status != http.StatusServiceUnavailable || !strings.Contains(body, "state loop stopped") {
		t.Errorf("/healthz after loop stop = %d %q", status, body)
	}
}
