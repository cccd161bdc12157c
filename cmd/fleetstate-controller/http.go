// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/fleetstate/lib/liveness"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
)

type droneStatus struct {
	Cluster         ref.ClusterName `json:"cluster"`
	Drone           ref.DroneID     `json:"drone"`
	Health          liveness.Health `json:"health"`
	LastSeen        time.Time       `json:"last_seen"`
	Since           time.Time       `json:"since"`
	Ready           bool            `json:"ready"`
	RunningBackends int             `json:"running_backends"`
}

type stateResponse struct {
	Sequence uint64 `json:"sequence"`
	State    any    `json:"state"`
}

func newMux(handle *statesync.Handle, monitor *liveness.Monitor, registry *prometheus.Registry, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(registry))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, component := range []struct {
			done <-chan struct{}
			err  func() error
		}{
			{handle.Done(), handle.Err},
			{monitor.Done(), monitor.Err},
		} {
			select {
			case <-component.done:
				http.Error(w, component.err().Error(), http.StatusServiceUnavailable)
				return
			default:
			}
		}
		w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		world, sequence := handle.Snapshot()
		response := stateResponse{Sequence: sequence, State: world}
		if name := r.URL.Query().Get("cluster"); name != "" {
			cluster, err := ref.ParseClusterName(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			clusterState, ok := world.Cluster(cluster)
			if !ok {
				http.Error(w, "unknown cluster "+name, http.StatusNotFound)
				return
			}
			response.State = clusterState
		}
		writeJSON(w, response, logger)
	})

	mux.HandleFunc("GET /drones", func(w http.ResponseWriter, r *http.Request) {
		statuses := monitor.Statuses()
		drones := make([]droneStatus, 0, len(statuses))
		for _, status := range statuses {
			drones = append(drones, droneStatus(status))
		}
		writeJSON(w, drones, logger)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, value any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		logger.Warn("writing http response failed", "error", err)
	}
}
