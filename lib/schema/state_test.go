// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"net/netip"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/ref"
)

func sampleMessages(t *testing.T) []WorldStateMessage {
	t.Helper()
	cluster := ref.MustClusterName("plane.test")
	drone, err := ref.ParseDroneID("dr-alpha")
	if err != nil {
		t.Fatalf("ParseDroneID: %v", err)
	}
	backend, err := ref.ParseBackendID("ba-beta")
	if err != nil {
		t.Fatalf("ParseBackendID: %v", err)
	}
	gitHash := "3f2a9c1"

	return []WorldStateMessage{
		{Cluster: cluster, Message: DroneMessage{
			Drone: drone,
			Message: DroneMetadata{Meta: DroneMeta{
				GitHash: &gitHash,
				Version: "0.1.0",
				IP:      netip.MustParseAddr("12.12.12.12"),
			}},
		}},
		{Cluster: cluster, Message: DroneMessage{
			Drone: drone,
			Message: DroneMetadata{Meta: DroneMeta{
				Version: "0.1.1",
				IP:      netip.MustParseAddr("fd00::1"),
			}},
		}},
		{Cluster: cluster, Message: BackendMessage{
			Backend: backend,
			Message: BackendAssignment{Drone: drone},
		}},
		{Cluster: cluster, Message: BackendMessage{
			Backend: backend,
			Message: BackendStateChange{
				State:     BackendStateStarting,
				Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
			},
		}},
		{Cluster: cluster, Message: AcmeMessage{TxtRecord: "test123"}},
	}
}

func TestWorldStateMessageJSONRoundTrip(t *testing.T) {
	for _, original := range sampleMessages(t) {
		data, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", original.Message, err)
		}
		var decoded WorldStateMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if !reflect.DeepEqual(decoded, original) {
			t.Errorf("round-trip mismatch:\n got  %+v\n want %+v", decoded, original)
		}
	}
}

func TestWorldStateMessageCBORRoundTrip(t *testing.T) {
	for _, original := range sampleMessages(t) {
		data, err := codec.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", original.Message, err)
		}
		var decoded WorldStateMessage
		if err := codec.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !reflect.DeepEqual(decoded, original) {
			t.Errorf("round-trip mismatch:\n got  %+v\n want %+v", decoded, original)
		}
	}
}

func TestWorldStateMessageWireShape(t *testing.T) {
	messages := sampleMessages(t)
	data, err := json.Marshal(messages[3])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	if raw["cluster"] != "plane.test" {
		t.Errorf("cluster = %v, want plane.test", raw["cluster"])
	}
	message, ok := raw["message"].(map[string]any)
	if !ok {
		t.Fatalf("message is %T, want object", raw["message"])
	}
	if len(message) != 1 {
		t.Errorf("message has %d keys, want exactly one variant tag: %v", len(message), message)
	}
	backend, ok := message["backend"].(map[string]any)
	if !ok {
		t.Fatalf("message.backend is %T, want object", message["backend"])
	}
	inner, ok := backend["message"].(map[string]any)
	if !ok {
		t.Fatalf("backend.message is %T, want object", backend["message"])
	}
	state, ok := inner["state"].(map[string]any)
	if !ok {
		t.Fatalf("backend.message.state is %T, want object", inner["state"])
	}
	if state["state"] != "Starting" {
		t.Errorf("state = %v, want Starting", state["state"])
	}
	if state["timestamp"] != "2026-03-01T12:00:00.123456789Z" {
		t.Errorf("timestamp = %v", state["timestamp"])
	}
}

func TestWorldStateMessageDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "missing cluster",
			input:   `{"message": {"acme": {"txt_record": "x"}}}`,
			wantErr: "missing cluster",
		},
		{
			name:    "no variant",
			input:   `{"cluster": "plane.test", "message": {}}`,
			wantErr: "exactly one",
		},
		{
			name:    "two variants",
			input:   `{"cluster": "plane.test", "message": {"acme": {"txt_record": "x"}, "drone": {"drone": "dr-a", "message": {"metadata": {"version": "1", "ip": "1.2.3.4"}}}}}`,
			wantErr: "exactly one",
		},
		{
			name:    "backend without body",
			input:   `{"cluster": "plane.test", "message": {"backend": {"backend": "ba-a", "message": {}}}}`,
			wantErr: "expected one of assignment, state",
		},
		{
			name:    "backend with both bodies",
			input:   `{"cluster": "plane.test", "message": {"backend": {"backend": "ba-a", "message": {"assignment": {"drone": "dr-a"}, "state": {"state": "Ready", "timestamp": "2026-01-01T00:00:00Z"}}}}}`,
			wantErr: "both assignment and state",
		},
		{
			name:    "unknown backend state",
			input:   `{"cluster": "plane.test", "message": {"backend": {"backend": "ba-a", "message": {"state": {"state": "Sleeping", "timestamp": "2026-01-01T00:00:00Z"}}}}}`,
			wantErr: "unknown backend state",
		},
		{
			name:    "drone without metadata",
			input:   `{"cluster": "plane.test", "message": {"drone": {"drone": "dr-a", "message": {}}}}`,
			wantErr: "expected metadata",
		},
		{
			name:    "invalid cluster name",
			input:   `{"cluster": "Plane Test", "message": {"acme": {"txt_record": "x"}}}`,
			wantErr: "cluster",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var decoded WorldStateMessage
			err := json.Unmarshal([]byte(test.input), &decoded)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil (decoded %+v)", test.wantErr, decoded)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, test.wantErr)
			}
		})
	}
}

func TestWorldStateMessageEncodeRejectsEmpty(t *testing.T) {
	if _, err := json.Marshal(WorldStateMessage{Message: AcmeMessage{TxtRecord: "x"}}); err == nil {
		t.Error("expected error marshaling message without cluster")
	}
	if _, err := codec.Marshal(WorldStateMessage{Cluster: ref.MustClusterName("plane.test")}); err == nil {
		t.Error("expected error marshaling message without body")
	}
}

func TestBackendStateText(t *testing.T) {
	for state := range knownBackendStates {
		data, err := state.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", state, err)
		}
		var decoded BackendState
		if err := decoded.UnmarshalText(data); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", data, err)
		}
		if decoded != state {
			t.Errorf("decoded %s, want %s", decoded, state)
		}
	}

	if _, err := BackendState("Sleeping").MarshalText(); err == nil {
		t.Error("expected error marshaling unknown state")
	}
	if BackendStateReady.Terminal() {
		t.Error("Ready should not be terminal")
	}
	if !BackendStateSwept.Terminal() {
		t.Error("Swept should be terminal")
	}
}

func TestDroneMetaEqual(t *testing.T) {
	hashA, hashB := "aaa", "bbb"
	base := DroneMeta{Version: "1", IP: netip.MustParseAddr("10.0.0.1")}

	withA := base
	withA.GitHash = &hashA
	withA2 := base
	copyOfA := hashA
	withA2.GitHash = &copyOfA
	withB := base
	withB.GitHash = &hashB

	if !base.Equal(base) {
		t.Error("meta should equal itself")
	}
	if !withA.Equal(withA2) {
		t.Error("equal hashes behind distinct pointers should compare equal")
	}
	if withA.Equal(withB) || withA.Equal(base) {
		t.Error("different hashes should not compare equal")
	}
}

func TestSubjects(t *testing.T) {
	cluster := ref.MustClusterName("abc.test")
	if got := StateSubject(cluster); got != "state.abc.test" {
		t.Errorf("StateSubject = %q", got)
	}
	if got := HeartbeatSubject(cluster); got != "heartbeat.abc.test" {
		t.Errorf("HeartbeatSubject = %q", got)
	}
	message := WorldStateMessage{Cluster: cluster, Message: AcmeMessage{TxtRecord: "x"}}
	if got := message.Subject(); got != "state.abc.test" {
		t.Errorf("Subject = %q", got)
	}
}

func TestSetAcmeDnsRecordValidate(t *testing.T) {
	if err := (SetAcmeDnsRecord{Cluster: ref.MustClusterName("a.test"), Value: "v"}).Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
	if err := (SetAcmeDnsRecord{Value: "v"}).Validate(); err == nil {
		t.Error("expected error for missing cluster")
	}
	if err := (SetAcmeDnsRecord{Cluster: ref.MustClusterName("a.test")}).Validate(); err == nil {
		t.Error("expected error for empty value")
	}
}
