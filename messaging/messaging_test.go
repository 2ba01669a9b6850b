package messaging

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"gantry/config"
	"gantry/engine"
	"gantry/protocol"
	"gantry/store"
)

type fakeReleaser struct {
	released       [][]string
	releasedHolder []string
}

func (f *fakeReleaser) Release(deviceIDs []string) map[string]string {
	f.released = append(f.released, deviceIDs)
	out := make(map[string]string, len(deviceIDs))
	for _, id := range deviceIDs {
		out[id] = protocol.BindingOK
	}
	return out
}

func (f *fakeReleaser) ReleaseHolder(holder string) []string {
	f.releasedHolder = append(f.releasedHolder, holder)
	return []string{"gpu-0"}
}

func encodeCommand(t *testing.T, p *protocol.ReleaseCommand) []byte {
	t.Helper()
	env, err := protocol.NewEnvelope(
		protocol.TypeReleaseCommand,
		protocol.Address{Role: protocol.RoleCore},
		protocol.Address{Role: protocol.RoleAgent, Node: "node-1"},
		p,
	)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return data
}

func TestAgentHandlerReleaseByID(t *testing.T) {
	releaser := &fakeReleaser{}
	ing := protocol.NewIngestor(NewAgentHandler(releaser), nil)

	ing.HandleRaw(encodeCommand(t, &protocol.ReleaseCommand{
		NodeID:    "node-1",
		DeviceIDs: []string{"gpu-0", "gpu-1"},
	}))

	if len(releaser.released) != 1 || len(releaser.released[0]) != 2 {
		t.Fatalf("expected one release of two devices, got %v", releaser.released)
	}
	if len(releaser.releasedHolder) != 0 {
		t.Fatalf("unexpected holder release: %v", releaser.releasedHolder)
	}
}

func TestAgentHandlerReleaseByHolder(t *testing.T) {
	releaser := &fakeReleaser{}
	ing := protocol.NewIngestor(NewAgentHandler(releaser), nil)

	ing.HandleRaw(encodeCommand(t, &protocol.ReleaseCommand{
		NodeID: "node-1",
		Holder: "job-7",
		Reason: "workload teardown",
	}))

	if len(releaser.releasedHolder) != 1 || releaser.releasedHolder[0] != "job-7" {
		t.Fatalf("expected holder release for job-7, got %v", releaser.releasedHolder)
	}
	if len(releaser.released) != 0 {
		t.Fatalf("unexpected by-ID release: %v", releaser.released)
	}
}

func TestSubscriberFilterDropsOtherNodes(t *testing.T) {
	cfg := config.Defaults()
	cfg.Messaging.NodeID = "node-1"
	releaser := &fakeReleaser{}
	sub := NewSubscriber(NewClient(&cfg.Messaging), cfg, NewAgentHandler(releaser))

	env, err := protocol.NewEnvelope(
		protocol.TypeReleaseCommand,
		protocol.Address{Role: protocol.RoleCore},
		protocol.Address{Role: protocol.RoleAgent, Node: "node-2"},
		&protocol.ReleaseCommand{NodeID: "node-2", DeviceIDs: []string{"gpu-0"}},
	)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	data, _ := env.Encode()
	sub.ingestor.HandleRaw(data)
	if len(releaser.released) != 0 {
		t.Fatalf("message for node-2 must be dropped, got %v", releaser.released)
	}

	env.Dst.Node = protocol.NodeBroadcast
	data, _ = env.Encode()
	sub.ingestor.HandleRaw(data)
	if len(releaser.released) != 1 {
		t.Fatalf("broadcast message must be processed, got %v", releaser.released)
	}
}

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTelemetryReporterEnqueues(t *testing.T) {
	db := openTestStore(t)

	cfg := config.Defaults()
	cfg.Messaging.NodeID = "node-1"
	bus := engine.NewEventBus()
	NewTelemetryReporter(db, cfg).Attach(bus)

	bus.Emit(engine.Event{Type: engine.EventReservationGranted, Payload: engine.ReservationGrantedEvent{
		Holder:    "job-1",
		DeviceIDs: []string{"gpu-0"},
	}})
	bus.Emit(engine.Event{Type: engine.EventDeviceHealth, Payload: engine.DeviceHealthEvent{
		DeviceID: "gpu-0", Healthy: false, HealthDesc: "thermal shutdown",
	}})

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 outbox messages, got %d", len(msgs))
	}
	if msgs[0].MsgType != protocol.TypeReservationGranted {
		t.Fatalf("expected %s first, got %s", protocol.TypeReservationGranted, msgs[0].MsgType)
	}

	var env protocol.Envelope
	if err := json.Unmarshal(msgs[0].Payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var granted protocol.ReservationGranted
	if err := env.DecodePayload(&granted); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if granted.Holder != "job-1" || granted.NodeID != "node-1" {
		t.Fatalf("unexpected payload: %+v", granted)
	}
}

type fakePublisher struct {
	up     bool
	fail   bool
	topics []string
}

func (f *fakePublisher) IsConnected() bool { return f.up }

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	if f.fail {
		return errBrokerDown
	}
	f.topics = append(f.topics, topic)
	return nil
}

var errBrokerDown = fmt.Errorf("broker down")

func TestOutboxDrainerIdlesWhileDisconnected(t *testing.T) {
	db := openTestStore(t)
	cfg := config.Defaults()

	if _, err := db.EnqueueOutbox("", []byte(`{}`), protocol.TypeAgentHeartbeat); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	d := NewOutboxDrainer(db, &fakePublisher{up: false}, &cfg.Messaging)
	if sent, failed := d.drain(); sent != 0 || failed != 0 {
		t.Fatalf("drain while disconnected = %d/%d, want 0/0", sent, failed)
	}

	// The backlog must survive for a later drain.
	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("pending = %d, want 1 untouched message", len(msgs))
	}
}

func TestOutboxDrainerFlushesBacklog(t *testing.T) {
	db := openTestStore(t)
	cfg := config.Defaults()

	if _, err := db.EnqueueOutbox("", []byte(`{}`), protocol.TypeAgentHeartbeat); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := db.EnqueueOutbox("gantry/custom", []byte(`{}`), protocol.TypeDeviceHealth); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pub := &fakePublisher{up: true}
	d := NewOutboxDrainer(db, pub, &cfg.Messaging)
	if sent, failed := d.drain(); sent != 2 || failed != 0 {
		t.Fatalf("drain = %d/%d, want 2/0", sent, failed)
	}

	// An empty topic falls back to the telemetry topic.
	if len(pub.topics) != 2 || pub.topics[0] != cfg.Messaging.TelemetryTopic || pub.topics[1] != "gantry/custom" {
		t.Fatalf("published topics = %v", pub.topics)
	}

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("pending = %d after flush, want 0", len(msgs))
	}
}

func TestOutboxDrainerRetriesOnPublishFailure(t *testing.T) {
	db := openTestStore(t)
	cfg := config.Defaults()

	if _, err := db.EnqueueOutbox("", []byte(`{}`), protocol.TypeAgentHeartbeat); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	d := NewOutboxDrainer(db, &fakePublisher{up: true, fail: true}, &cfg.Messaging)
	if sent, failed := d.drain(); sent != 0 || failed != 1 {
		t.Fatalf("drain = %d/%d, want 0/1", sent, failed)
	}

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Retries != 1 {
		t.Fatalf("pending = %+v, want one message with a recorded retry", msgs)
	}
}
