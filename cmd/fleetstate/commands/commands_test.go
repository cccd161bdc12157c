// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/bussocket"
	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/config"
	"github.com/bureau-foundation/fleetstate/lib/schema"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
	"github.com/bureau-foundation/fleetstate/lib/testutil"
)

// fleet is a broker served over a socket with a controller state loop
// attached, as fleetstate-broker and fleetstate-controller would run.
type fleet struct {
	broker     *bus.Broker
	socketPath string
}

func startFleet(t *testing.T) *fleet {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")

	broker, err := bus.NewBroker(bus.BrokerConfig{})
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	socketPath := filepath.Join(testutil.SocketDir(t), "bus.sock")
	server := bussocket.NewServer(socketPath, broker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		server.Serve(ctx)
	}()
	testutil.WaitForSocket(t, socketPath)

	controller, err := statesync.StartStateLoop(context.Background(), bussocket.NewClient(socketPath, nil), statesync.Config{})
	if err != nil {
		t.Fatalf("StartStateLoop: %v", err)
	}
	t.Cleanup(func() {
		controller.Close()
		broker.Close()
		cancel()
		<-served
	})
	return &fleet{broker: broker, socketPath: socketPath}
}

// run executes the command line against the fleet and returns stdout.
func (f *fleet) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	args = append(args, "--socket", f.socketPath, "--timeout", "10s")
	err := Root(&stdout).Execute(args)
	return stdout.String(), err
}

func (f *fleet) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := f.run(t, args...)
	if err != nil {
		t.Fatalf("fleetstate %s: %v", strings.Join(args, " "), err)
	}
	return output
}

type backendOutput struct {
	Drone *string `json:"drone"`
}

type clusterOutput struct {
	Sequence uint64 `json:"sequence"`
	State    struct {
		Drones     map[string]json.RawMessage `json:"drones"`
		Backends   map[string]backendOutput   `json:"backends"`
		TxtRecords []string                   `json:"txt_records"`
	} `json:"state"`
}

func (f *fleet) showCluster(t *testing.T, cluster string) clusterOutput {
	t.Helper()
	var output clusterOutput
	if err := json.Unmarshal([]byte(f.mustRun(t, "show", "--cluster", cluster)), &output); err != nil {
		t.Fatalf("decoding show output: %v", err)
	}
	return output
}

func TestSetTxtThenShow(t *testing.T) {
	fleet := startFleet(t)

	if output := fleet.mustRun(t, "set-txt", "prod", "challenge-1"); !strings.Contains(output, `"ok": true`) {
		t.Errorf("set-txt output = %s", output)
	}
	fleet.mustRun(t, "set-txt", "prod", "challenge-2")

	shown := fleet.showCluster(t, "prod")
	if want := []string{"challenge-1", "challenge-2"}; !reflect.DeepEqual(shown.State.TxtRecords, want) {
		t.Errorf("txt records = %v, want %v", shown.State.TxtRecords, want)
	}
	if shown.Sequence == 0 {
		t.Error("show reported sequence 0")
	}

	if _, err := fleet.run(t, "show", "--cluster", "staging"); err == nil || !strings.Contains(err.Error(), "unknown cluster") {
		t.Errorf("show unknown cluster: %v", err)
	}
	if _, err := fleet.run(t, "set-txt", "prod", ""); err == nil {
		t.Error("set-txt accepted an empty value")
	}
	if _, err := fleet.run(t, "set-txt", "Not A Cluster", "x"); err == nil {
		t.Error("set-txt accepted an invalid cluster name")
	}
}

const assignment = `[
	// Register the drone first.
	{
		"cluster": "prod",
		"message": {"drone": {"drone": "dr-1", "message": {"metadata": {"version": "1.4.0", "ip": "10.0.0.7"}}}},
	},
	{
		"cluster": "prod",
		"message": {"backend": {"backend": "ba-1", "message": {"assignment": {"drone": "dr-1"}}}},
	},
]`

func TestPublishFromJSONC(t *testing.T) {
	fleet := startFleet(t)
	path := filepath.Join(t.TempDir(), "assign.jsonc")
	if err := os.WriteFile(path, []byte(assignment), 0o600); err != nil {
		t.Fatal(err)
	}

	var results []struct {
		Subject string          `json:"subject"`
		Change  json.RawMessage `json:"change"`
	}
	if err := json.Unmarshal([]byte(fleet.mustRun(t, "publish", path)), &results); err != nil {
		t.Fatalf("decoding publish output: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for index, kind := range []string{"drone_metadata", "backend_assignment"} {
		if results[index].Subject != "state.prod" {
			t.Errorf("result %d subject = %q", index, results[index].Subject)
		}
		if !strings.Contains(string(results[index].Change), kind) {
			t.Errorf("result %d change = %s, want kind %s", index, results[index].Change, kind)
		}
	}

	// Publishing the same facts again changes nothing.
	if err := json.Unmarshal([]byte(fleet.mustRun(t, "publish", path)), &results); err != nil {
		t.Fatalf("decoding publish output: %v", err)
	}
	for index, result := range results {
		if string(result.Change) != "null" {
			t.Errorf("repeat %d change = %s, want null", index, result.Change)
		}
	}

	shown := fleet.showCluster(t, "prod")
	if _, ok := shown.State.Drones["dr-1"]; !ok {
		t.Errorf("drones = %v", shown.State.Drones)
	}
	if backend := shown.State.Backends["ba-1"]; backend.Drone == nil || *backend.Drone != "dr-1" {
		t.Errorf("backends = %+v", shown.State.Backends)
	}
}

func TestPublishNoWait(t *testing.T) {
	fleet := startFleet(t)
	path := filepath.Join(t.TempDir(), "txt.json")
	message := `{"cluster": "prod", "message": {"acme": {"txt_record": "direct"}}}`
	if err := os.WriteFile(path, []byte(message), 0o600); err != nil {
		t.Fatal(err)
	}

	var results []struct {
		Sequence uint64 `json:"sequence"`
	}
	if err := json.Unmarshal([]byte(fleet.mustRun(t, "publish", "--no-wait", path)), &results); err != nil {
		t.Fatalf("decoding publish output: %v", err)
	}
	if len(results) != 1 || results[0].Sequence == 0 {
		t.Errorf("results = %+v", results)
	}
}

func TestPublishRejectsBadInput(t *testing.T) {
	fleet := startFleet(t)
	dir := t.TempDir()
	tests := map[string]string{
		"empty array":   `[]`,
		"no variant":    `{"cluster": "prod", "message": {}}`,
		"bad cluster":   `{"cluster": "", "message": {"acme": {"txt_record": "x"}}}`,
		"not json":      `cluster: prod`,
		"two variants":  `{"cluster": "prod", "message": {"acme": {"txt_record": "x"}, "drone": {"drone": "dr-1", "message": {}}}}`,
		"unknown state": `{"cluster": "prod", "message": {"backend": {"backend": "ba-1", "message": {"state": {"state": "Bogus", "timestamp": "2026-01-01T00:00:00Z"}}}}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "-")+".jsonc")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := fleet.run(t, "publish", path); err == nil {
				t.Errorf("publish %s succeeded", content)
			}
		})
	}
	if _, err := fleet.run(t, "publish", filepath.Join(dir, "missing.jsonc")); err == nil {
		t.Error("publish of a missing file succeeded")
	}
}

func TestHeartbeat(t *testing.T) {
	fleet := startFleet(t)
	subscription, err := fleet.broker.Subscribe(context.Background(), schema.SubjectHeartbeatAll, bus.SubscribeOptions{Deliver: bus.DeliverNew})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subscription.Close()

	fleet.mustRun(t, "heartbeat", "prod", "dr-7", "--running", "3", "--ready=false")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	message, err := subscription.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if message.Subject != "heartbeat.prod" {
		t.Errorf("subject = %q", message.Subject)
	}
	var heartbeat schema.DroneHeartbeat
	if err := codec.Unmarshal(message.Data, &heartbeat); err != nil {
		t.Fatalf("decoding heartbeat: %v", err)
	}
	if heartbeat.Drone.String() != "dr-7" || heartbeat.Ready || heartbeat.RunningBackends != 3 {
		t.Errorf("heartbeat = %+v", heartbeat)
	}

	if _, err := fleet.run(t, "heartbeat", "prod", "dr-7", "--running", "-1"); err == nil {
		t.Error("negative --running accepted")
	}
	if _, err := fleet.run(t, "heartbeat", "prod"); err == nil {
		t.Error("missing drone argument accepted")
	}
}

func TestExportImport(t *testing.T) {
	source := startFleet(t)
	source.mustRun(t, "set-txt", "prod", "first")
	source.mustRun(t, "set-txt", "prod", "second")
	source.mustRun(t, "set-txt", "staging", "other")

	path := filepath.Join(t.TempDir(), "prod.fsa")
	output := source.mustRun(t, "export", path, "--pattern", "state.prod", "--compression", "lz4")
	if !strings.Contains(output, `"records": 2`) {
		t.Errorf("export output = %s", output)
	}

	target := startFleet(t)
	output = target.mustRun(t, "import", path)
	if !strings.Contains(output, `"records": 2`) {
		t.Errorf("import output = %s", output)
	}
	shown := target.showCluster(t, "prod")
	if want := []string{"first", "second"}; !reflect.DeepEqual(shown.State.TxtRecords, want) {
		t.Errorf("imported txt records = %v, want %v", shown.State.TxtRecords, want)
	}
	if _, err := target.run(t, "show", "--cluster", "staging"); err == nil {
		t.Error("staging was imported despite the pattern")
	}
}

func TestExportRejectsBadFlags(t *testing.T) {
	fleet := startFleet(t)
	path := filepath.Join(t.TempDir(), "out.fsa")
	if _, err := fleet.run(t, "export", path, "--compression", "gzip"); err == nil {
		t.Error("unknown compression accepted")
	}
	if _, err := fleet.run(t, "export", path, "--pattern", "state.>.x"); err == nil {
		t.Error("invalid pattern accepted")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("export left a file behind: %v", err)
	}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := Root(&stdout).Execute([]string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "fleetstate ") {
		t.Errorf("version output = %q", stdout.String())
	}
}
