package devices

import (
	"sync"
	"testing"

	"gantry/config"
	"gantry/protocol"
)

// mockEmitter records emitted events for test assertions.
type mockEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *mockEmitter) record(s string) {
	e.mu.Lock()
	e.events = append(e.events, s)
	e.mu.Unlock()
}

func (e *mockEmitter) EmitCatalogChanged(protocol.Catalog) { e.record("catalog_changed") }
func (e *mockEmitter) EmitDeviceHealth(id string, healthy bool, _ string) {
	if healthy {
		e.record("health_up:" + id)
	} else {
		e.record("health_down:" + id)
	}
}
func (e *mockEmitter) EmitBridgeConnected()         { e.record("bridge_connected") }
func (e *mockEmitter) EmitBridgeDisconnected(error) { e.record("bridge_disconnected") }

func (e *mockEmitter) getEvents() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.events))
	copy(cp, e.events)
	return cp
}

// fakeProvider is a scriptable in-memory provider.
type fakeProvider struct {
	name    string
	groups  []protocol.DeviceGroup
	samples map[string]Sample
	err     error
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Enumerate() ([]protocol.DeviceGroup, map[string]Runtime, error) {
	return p.groups, nil, p.err
}
func (p *fakeProvider) Collect() (map[string]Sample, error) {
	return p.samples, p.err
}

func testGroup(vendor, devType, name string, ids ...string) protocol.DeviceGroup {
	g := protocol.DeviceGroup{Vendor: vendor, Type: devType, Name: name}
	for _, id := range ids {
		g.Devices = append(g.Devices, protocol.Device{ID: id, Healthy: true, HealthDesc: "OK"})
	}
	return g
}

func TestFingerprintMergesProviders(t *testing.T) {
	m := NewManager(nil,
		&fakeProvider{name: "a", groups: []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0", "gpu-1")}},
		&fakeProvider{name: "b", groups: []protocol.DeviceGroup{testGroup("mellanox", "nic", "cx6", "nic-0")}},
	)

	cat := m.Fingerprint()
	if cat.Error != "" {
		t.Fatalf("unexpected error: %s", cat.Error)
	}
	if len(cat.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(cat.Groups))
	}
	if err := cat.Validate(); err != nil {
		t.Fatalf("merged catalog invalid: %v", err)
	}
	if m.DeviceCount() != 3 {
		t.Errorf("DeviceCount = %d, want 3", m.DeviceCount())
	}
}

func TestFingerprintDropsDuplicateIDs(t *testing.T) {
	m := NewManager(nil,
		&fakeProvider{name: "a", groups: []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0")}},
		&fakeProvider{name: "b", groups: []protocol.DeviceGroup{testGroup("other", "gpu", "clone", "gpu-0")}},
	)

	cat := m.Fingerprint()
	if err := cat.Validate(); err != nil {
		t.Fatalf("catalog with deduped IDs should validate: %v", err)
	}
	total := 0
	for _, g := range cat.Groups {
		total += len(g.Devices)
	}
	if total != 1 {
		t.Errorf("devices = %d, want 1 after dedupe", total)
	}
}

func TestFingerprintReportsProviderErrorInBand(t *testing.T) {
	m := NewManager(nil,
		&fakeProvider{name: "a", groups: []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0")}},
		&fakeProvider{name: "b", err: errFake},
	)

	cat := m.Fingerprint()
	if cat.Error == "" {
		t.Error("expected in-band error from failing provider")
	}
	if len(cat.Groups) != 1 {
		t.Errorf("healthy provider groups should survive: got %d", len(cat.Groups))
	}
}

func TestHealthTransitionEmitsEvent(t *testing.T) {
	em := &mockEmitter{}
	p := &fakeProvider{name: "a", groups: []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0")}}
	m := NewManager(em, p)

	m.Fingerprint()
	p.groups[0].Devices[0].Healthy = false
	p.groups[0].Devices[0].HealthDesc = "XID 79"
	m.Fingerprint()

	var sawDown, sawChange bool
	for _, ev := range em.getEvents() {
		switch ev {
		case "health_down:gpu-0":
			sawDown = true
		case "catalog_changed":
			sawChange = true
		}
	}
	if !sawDown {
		t.Error("expected health_down event for gpu-0")
	}
	if !sawChange {
		t.Error("expected catalog_changed event after health flip")
	}
}

func TestStatsCoversCatalogDevices(t *testing.T) {
	summary := protocol.StringValue("busy")
	p := &fakeProvider{
		name:   "a",
		groups: []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0", "gpu-1")},
		samples: map[string]Sample{
			"gpu-0": {Summary: &summary, Stats: protocol.NewStatTree().Set("util", protocol.FloatRatio(55, 100, "%"))},
			// gpu-1 failed collection this tick: absent from samples
		},
	}
	m := NewManager(nil, p)
	m.Fingerprint()

	resp := m.Stats()
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if len(resp.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(resp.Groups))
	}
	gs := resp.Groups[0]
	if _, ok := gs.InstanceStats["gpu-0"]; !ok {
		t.Error("gpu-0 snapshot missing")
	}
	if _, ok := gs.InstanceStats["gpu-1"]; ok {
		t.Error("gpu-1 failed collection and should be absent")
	}

	snap := gs.InstanceStats["gpu-0"]
	if snap.Timestamp == "" || snap.Time().IsZero() {
		t.Errorf("timestamp missing or unparseable: %q", snap.Timestamp)
	}
	if v, ok := snap.Stats.Lookup("util"); !ok || !v.IsRatio() {
		t.Error("ratio stat lost in assembly")
	}
}

func TestStatsWithoutPriorFingerprint(t *testing.T) {
	summary := protocol.StringValue("OK")
	p := &fakeProvider{
		name:    "a",
		groups:  []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0")},
		samples: map[string]Sample{"gpu-0": {Summary: &summary}},
	}
	m := NewManager(nil, p)

	// Stats before any fingerprint must self-bootstrap the catalog.
	resp := m.Stats()
	if len(resp.Groups) != 1 || len(resp.Groups[0].InstanceStats) != 1 {
		t.Fatalf("stats did not bootstrap catalog: %+v", resp)
	}
}

func TestTimestampsNonDecreasing(t *testing.T) {
	summary := protocol.StringValue("OK")
	p := &fakeProvider{
		name:    "a",
		groups:  []protocol.DeviceGroup{testGroup("nvidia", "gpu", "a100", "gpu-0")},
		samples: map[string]Sample{"gpu-0": {Summary: &summary}},
	}
	m := NewManager(nil, p)
	m.Fingerprint()

	first := m.Stats().Groups[0].InstanceStats["gpu-0"]
	second := m.Stats().Groups[0].InstanceStats["gpu-0"]
	if second.Time().Before(first.Time()) {
		t.Errorf("timestamp decreased: %s then %s", first.Timestamp, second.Timestamp)
	}
}

func TestStaticProviderScenario(t *testing.T) {
	// The canonical single-device setup: one Test/Hello/World group.
	p := NewStaticProvider([]config.StaticGroupConfig{{
		Vendor:     "Test",
		Type:       "Hello",
		Name:       "World",
		Attributes: map[string]string{"GenericAttr": "Yee"},
		Devices: []config.StaticDeviceConfig{{
			ID:  "1234",
			Env: map[string]string{"TEST_DEVICE": "1234"},
			DeviceNodes: []config.DeviceNodeConfig{
				{TaskPath: "/dev/test0", HostPath: "/dev/test0", CgroupPerms: "rwm"},
			},
		}},
	}})
	m := NewManager(nil, p)

	cat := m.Fingerprint()
	if len(cat.Groups) != 1 || cat.Groups[0].Key() != "Test/Hello/World" {
		t.Fatalf("catalog = %+v", cat)
	}
	d := cat.Groups[0].Devices[0]
	if d.ID != "1234" || !d.Healthy {
		t.Errorf("device = %+v", d)
	}

	rt, ok := m.ResolveDevice("1234")
	if !ok {
		t.Fatal("1234 should resolve")
	}
	if rt.Env["TEST_DEVICE"] != "1234" || len(rt.DeviceSpecs) != 1 {
		t.Errorf("runtime = %+v", rt)
	}
	if _, ok := m.ResolveDevice("9999"); ok {
		t.Error("9999 should not resolve")
	}

	resp := m.Stats()
	if _, ok := resp.Groups[0].InstanceStats["1234"]; !ok {
		t.Error("stats snapshot for 1234 missing")
	}
}

var errFake = &fakeError{}

type fakeError struct{}

func (*fakeError) Error() string { return "enumeration failed" }
