// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worldstate

import (
	"encoding/json"
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

var testCluster = ref.MustClusterName("plane.test")

func timestamp(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func stateMessage(cluster ref.ClusterName, backend ref.BackendID, state schema.BackendState, at time.Time) schema.WorldStateMessage {
	return schema.WorldStateMessage{
		Cluster: cluster,
		Message: schema.BackendMessage{
			Backend: backend,
			Message: schema.BackendStateChange{State: state, Timestamp: at},
		},
	}
}

func assignMessage(cluster ref.ClusterName, backend ref.BackendID, drone ref.DroneID) schema.WorldStateMessage {
	return schema.WorldStateMessage{
		Cluster: cluster,
		Message: schema.BackendMessage{
			Backend: backend,
			Message: schema.BackendAssignment{Drone: drone},
		},
	}
}

func metaMessage(cluster ref.ClusterName, drone ref.DroneID, version, ip string) schema.WorldStateMessage {
	return schema.WorldStateMessage{
		Cluster: cluster,
		Message: schema.DroneMessage{
			Drone: drone,
			Message: schema.DroneMetadata{Meta: schema.DroneMeta{
				Version: version,
				IP:      netip.MustParseAddr(ip),
			}},
		},
	}
}

func txtMessage(cluster ref.ClusterName, value string) schema.WorldStateMessage {
	return schema.WorldStateMessage{Cluster: cluster, Message: schema.AcmeMessage{TxtRecord: value}}
}

func applyAll(t *testing.T, world *WorldState, messages ...schema.WorldStateMessage) *WorldState {
	t.Helper()
	for _, message := range messages {
		world, _ = Apply(world, message)
	}
	return world
}

func mustBackend(t *testing.T, world *WorldState, cluster ref.ClusterName, id ref.BackendID) *BackendRecord {
	t.Helper()
	clusterState, ok := world.Cluster(cluster)
	if !ok {
		t.Fatalf("cluster %s not found", cluster)
	}
	backend, ok := clusterState.Backend(id)
	if !ok {
		t.Fatalf("backend %s not found in %s", id, cluster)
	}
	return backend
}

func TestRepeatedStateIsNotRecorded(t *testing.T) {
	backend := ref.NewRandomBackendID()

	world, change := Apply(New(), stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)))
	if change == nil {
		t.Fatal("first Starting should produce a change")
	}
	if change.Kind != ChangeBackendState || change.State != schema.BackendStateStarting {
		t.Errorf("change = %+v", change)
	}

	next, change := Apply(world, stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(2)))
	if change != nil {
		t.Fatalf("repeated Starting produced change %+v", change)
	}
	if next != world {
		t.Error("no-op apply should return the same snapshot")
	}

	entry, ok := mustBackend(t, next, testCluster, backend).StateTimestamp()
	if !ok {
		t.Fatal("StateTimestamp reported no entry")
	}
	want := StateEntry{Timestamp: timestamp(1), State: schema.BackendStateStarting}
	if entry != want {
		t.Errorf("StateTimestamp = %+v, want %+v", entry, want)
	}
	if got := len(mustBackend(t, next, testCluster, backend).States()); got != 1 {
		t.Errorf("log length = %d, want 1", got)
	}
}

func TestStatesAccumulateInOrder(t *testing.T) {
	backend := ref.NewRandomBackendID()
	world := applyAll(t, New(),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)),
		stateMessage(testCluster, backend, schema.BackendStateLoading, timestamp(2)),
		stateMessage(testCluster, backend, schema.BackendStateReady, timestamp(3)),
		stateMessage(testCluster, backend, schema.BackendStateReady, timestamp(4)),
		stateMessage(testCluster, backend, schema.BackendStateSwept, timestamp(5)),
	)

	want := []StateEntry{
		{Timestamp: timestamp(1), State: schema.BackendStateStarting},
		{Timestamp: timestamp(2), State: schema.BackendStateLoading},
		{Timestamp: timestamp(3), State: schema.BackendStateReady},
		{Timestamp: timestamp(5), State: schema.BackendStateSwept},
	}
	got := mustBackend(t, world, testCluster, backend).States()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("States = %+v, want %+v", got, want)
	}
}

func TestStateMayReturnToEarlierValue(t *testing.T) {
	backend := ref.NewRandomBackendID()
	world := applyAll(t, New(),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)),
		stateMessage(testCluster, backend, schema.BackendStateLoading, timestamp(2)),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(3)),
	)
	if got := len(mustBackend(t, world, testCluster, backend).States()); got != 3 {
		t.Errorf("log length = %d, want 3 (only consecutive repeats collapse)", got)
	}
}

func TestEntitiesCreatedOnFirstReference(t *testing.T) {
	backend := ref.NewRandomBackendID()
	drone := ref.NewRandomDroneID()

	world, change := Apply(New(), assignMessage(testCluster, backend, drone))
	if change == nil || change.Kind != ChangeBackendAssignment {
		t.Fatalf("change = %+v, want backend_assignment", change)
	}
	record := mustBackend(t, world, testCluster, backend)
	if assigned, ok := record.Drone(); !ok || assigned != drone {
		t.Errorf("Drone() = %v, %v; want %v", assigned, ok, drone)
	}
	if _, ok := record.State(); ok {
		t.Error("new backend should have no state")
	}

	cluster, _ := world.Cluster(testCluster)
	if _, ok := cluster.Drone(drone); ok {
		t.Error("assignment must not create the referenced drone")
	}
}

func TestStateChangeCreatesBackendWithoutAssignment(t *testing.T) {
	backend := ref.NewRandomBackendID()
	world, _ := Apply(nil, stateMessage(testCluster, backend, schema.BackendStateLoading, timestamp(1)))
	record := mustBackend(t, world, testCluster, backend)
	if _, ok := record.Drone(); ok {
		t.Error("backend created by a state change should have no drone")
	}
	if state, ok := record.State(); !ok || state != schema.BackendStateLoading {
		t.Errorf("State() = %v, %v", state, ok)
	}
}

func TestAssignmentOverwrites(t *testing.T) {
	backend := ref.NewRandomBackendID()
	first, second := ref.NewRandomDroneID(), ref.NewRandomDroneID()
	world := applyAll(t, New(),
		assignMessage(testCluster, backend, first),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)),
		assignMessage(testCluster, backend, second),
	)
	record := mustBackend(t, world, testCluster, backend)
	if assigned, _ := record.Drone(); assigned != second {
		t.Errorf("Drone() = %v, want %v", assigned, second)
	}
	if got := len(record.States()); got != 1 {
		t.Errorf("reassignment should keep the state log, got %d entries", got)
	}

	// Assigning the same drone again is still reported as a change.
	_, change := Apply(world, assignMessage(testCluster, backend, second))
	if change == nil {
		t.Error("repeated assignment should report a change")
	}
}

func TestDroneMetadataLastWriteWins(t *testing.T) {
	drone := ref.NewRandomDroneID()
	world := applyAll(t, New(),
		metaMessage(testCluster, drone, "0.1.0", "12.12.12.12"),
		metaMessage(testCluster, drone, "0.2.0", "12.12.12.13"),
	)
	cluster, _ := world.Cluster(testCluster)
	droneState, ok := cluster.Drone(drone)
	if !ok {
		t.Fatal("drone not found")
	}
	meta, ok := droneState.Meta()
	if !ok {
		t.Fatal("Meta() reported none")
	}
	if meta.Version != "0.2.0" || meta.IP != netip.MustParseAddr("12.12.12.13") {
		t.Errorf("meta = %+v", meta)
	}

	_, change := Apply(world, metaMessage(testCluster, drone, "0.2.0", "12.12.12.13"))
	if change == nil || change.Kind != ChangeDroneMetadata || change.Drone != drone {
		t.Errorf("identical metadata change = %+v, want drone_metadata", change)
	}
}

func TestTxtRecordsAreAdditivePerCluster(t *testing.T) {
	other := ref.MustClusterName("abc.test")
	world := applyAll(t, New(),
		txtMessage(testCluster, "test123"),
		txtMessage(other, "test456"),
		txtMessage(testCluster, "test123"),
	)

	cluster, _ := world.Cluster(testCluster)
	if got := cluster.TxtRecords(); !reflect.DeepEqual(got, []string{"test123", "test123"}) {
		t.Errorf("plane.test records = %v", got)
	}
	if last, ok := cluster.LastTxtRecord(); !ok || last != "test123" {
		t.Errorf("LastTxtRecord = %q, %v", last, ok)
	}
	otherCluster, _ := world.Cluster(other)
	if got := otherCluster.TxtRecords(); !reflect.DeepEqual(got, []string{"test456"}) {
		t.Errorf("abc.test records = %v", got)
	}
}

func TestApplyDoesNotAlterEarlierSnapshots(t *testing.T) {
	backend := ref.NewRandomBackendID()
	drone := ref.NewRandomDroneID()

	base := applyAll(t, New(),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)),
		txtMessage(testCluster, "first"),
	)
	baseJSON, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Two divergent successors of the same snapshot must not see each
	// other's appends.
	left := applyAll(t, base,
		stateMessage(testCluster, backend, schema.BackendStateLoading, timestamp(2)),
		txtMessage(testCluster, "left"),
		assignMessage(testCluster, backend, drone),
		metaMessage(testCluster, drone, "1", "10.0.0.1"),
	)
	right := applyAll(t, base,
		stateMessage(testCluster, backend, schema.BackendStateFailed, timestamp(2)),
		txtMessage(testCluster, "right"),
	)

	afterJSON, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(afterJSON) != string(baseJSON) {
		t.Errorf("base snapshot changed:\n before %s\n after  %s", baseJSON, afterJSON)
	}

	leftState, _ := mustBackend(t, left, testCluster, backend).State()
	rightState, _ := mustBackend(t, right, testCluster, backend).State()
	if leftState != schema.BackendStateLoading || rightState != schema.BackendStateFailed {
		t.Errorf("divergent states = %s, %s", leftState, rightState)
	}
	leftCluster, _ := left.Cluster(testCluster)
	rightCluster, _ := right.Cluster(testCluster)
	if got := leftCluster.TxtRecords(); !reflect.DeepEqual(got, []string{"first", "left"}) {
		t.Errorf("left records = %v", got)
	}
	if got := rightCluster.TxtRecords(); !reflect.DeepEqual(got, []string{"first", "right"}) {
		t.Errorf("right records = %v", got)
	}
}

func TestApplySharesUntouchedClusters(t *testing.T) {
	other := ref.MustClusterName("abc.test")
	world := applyAll(t, New(), txtMessage(testCluster, "a"), txtMessage(other, "b"))
	before, _ := world.Cluster(other)

	next, _ := Apply(world, txtMessage(testCluster, "c"))
	after, _ := next.Cluster(other)
	if before != after {
		t.Error("untouched cluster should be shared between snapshots")
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	backend := ref.NewRandomBackendID()
	world := applyAll(t, New(),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)),
		txtMessage(testCluster, "a"),
	)
	record := mustBackend(t, world, testCluster, backend)
	states := record.States()
	states[0].State = schema.BackendStateFailed
	if state, _ := record.State(); state != schema.BackendStateStarting {
		t.Errorf("mutating States() result leaked into the snapshot: %s", state)
	}

	cluster, _ := world.Cluster(testCluster)
	records := cluster.TxtRecords()
	records[0] = "changed"
	if last, _ := cluster.LastTxtRecord(); last != "a" {
		t.Errorf("mutating TxtRecords() result leaked into the snapshot: %s", last)
	}
}

func TestReplayConverges(t *testing.T) {
	backend := ref.NewRandomBackendID()
	drone := ref.NewRandomDroneID()
	history := []schema.WorldStateMessage{
		metaMessage(testCluster, drone, "0.1.0", "12.12.12.12"),
		assignMessage(testCluster, backend, drone),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(1)),
		stateMessage(testCluster, backend, schema.BackendStateStarting, timestamp(2)),
		stateMessage(testCluster, backend, schema.BackendStateReady, timestamp(3)),
		txtMessage(testCluster, "v"),
	}

	// The live process sees every message once; a replaying process
	// may see redeliveries of the state changes. Both must agree.
	live := applyAll(t, New(), history...)
	redelivered := append([]schema.WorldStateMessage{}, history[:4]...)
	redelivered = append(redelivered, history[2], history[4], history[4], history[5])
	replayed := applyAll(t, New(), redelivered...)

	liveJSON, _ := json.Marshal(live)
	replayedJSON, _ := json.Marshal(replayed)
	if string(liveJSON) != string(replayedJSON) {
		t.Errorf("replay diverged:\n live     %s\n replayed %s", liveJSON, replayedJSON)
	}
}

func TestLookupMisses(t *testing.T) {
	var empty *WorldState
	if _, ok := empty.Cluster(testCluster); ok {
		t.Error("nil world reported a cluster")
	}
	if empty.ClusterCount() != 0 || len(empty.Clusters()) != 0 {
		t.Error("nil world should be empty")
	}

	world := applyAll(t, New(), txtMessage(testCluster, "x"))
	cluster, _ := world.Cluster(testCluster)
	if _, ok := cluster.Drone(ref.NewRandomDroneID()); ok {
		t.Error("unknown drone reported present")
	}
	if _, ok := cluster.Backend(ref.NewRandomBackendID()); ok {
		t.Error("unknown backend reported present")
	}
	if _, ok := world.Cluster(ref.MustClusterName("missing.test")); ok {
		t.Error("unknown cluster reported present")
	}
}

func TestMissingClusterBehavesAsEmpty(t *testing.T) {
	world := applyAll(t, New(), txtMessage(testCluster, "x"))
	missing, ok := world.Cluster(ref.MustClusterName("missing.test"))
	if ok || missing != nil {
		t.Fatalf("Cluster(missing) = %v, %v", missing, ok)
	}

	if _, ok := missing.Drone(ref.NewRandomDroneID()); ok {
		t.Error("missing cluster reported a drone")
	}
	if _, ok := missing.Backend(ref.NewRandomBackendID()); ok {
		t.Error("missing cluster reported a backend")
	}
	if len(missing.Drones()) != 0 || len(missing.Backends()) != 0 || len(missing.TxtRecords()) != 0 {
		t.Error("missing cluster should list nothing")
	}
	if _, ok := missing.LastTxtRecord(); ok {
		t.Error("missing cluster reported a TXT record")
	}
	data, err := missing.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if want := `{"drones":{},"backends":{},"txt_records":[]}`; string(data) != want {
		t.Errorf("MarshalJSON = %s, want %s", data, want)
	}
}

func TestApplyPanicsOnNilBody(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for message without a body")
		}
	}()
	Apply(New(), schema.WorldStateMessage{Cluster: testCluster})
}

func TestChangeCBORRoundTrip(t *testing.T) {
	changes := []Change{
		{Cluster: testCluster, Kind: ChangeDroneMetadata, Drone: ref.NewRandomDroneID(), Sequence: 1},
		{Cluster: testCluster, Kind: ChangeBackendAssignment, Backend: ref.NewRandomBackendID(), Drone: ref.NewRandomDroneID(), Sequence: 2},
		{Cluster: testCluster, Kind: ChangeBackendState, Backend: ref.NewRandomBackendID(), State: schema.BackendStateReady, Timestamp: timestamp(3), Sequence: 3},
		{Cluster: testCluster, Kind: ChangeTxtRecord, TxtRecord: "abc", Sequence: 4},
	}
	for _, original := range changes {
		data, err := codec.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal(%s): %v", original.Kind, err)
		}
		var decoded Change
		if err := codec.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s): %v", original.Kind, err)
		}
		if !reflect.DeepEqual(decoded, original) {
			t.Errorf("round-trip mismatch:\n got  %+v\n want %+v", decoded, original)
		}
	}
}

func TestWorldStateJSON(t *testing.T) {
	backend, _ := ref.ParseBackendID("ba-1")
	drone, _ := ref.ParseDroneID("dr-1")
	world := applyAll(t, New(),
		assignMessage(testCluster, backend, drone),
		stateMessage(testCluster, backend, schema.BackendStateReady, timestamp(1)),
	)
	data, err := json.Marshal(world)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"clusters":{"plane.test":{"drones":{},"backends":{"ba-1":{"drone":"dr-1","states":[{"timestamp":"1970-01-01T00:00:01Z","state":"Ready"}]}},"txt_records":[]}}}`
	if string(data) != want {
		t.Errorf("JSON =\n %s\nwant\n %s", data, want)
	}
}
