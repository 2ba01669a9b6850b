package devices

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gantry/config"
)

// newBridgeServer serves canned /devices and /stats JSON.
func newBridgeServer(devicesJSON, statsJSON string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/devices":
			fmt.Fprint(w, devicesJSON)
		case "/stats":
			fmt.Fprint(w, statsJSON)
		default:
			http.NotFound(w, r)
		}
	}))
}

func bridgeConfig(url string) *config.BridgeConfig {
	// PollRate 0 disables response caching so each call hits the server.
	return &config.BridgeConfig{URL: url, PollRate: 0, Enabled: true}
}

func TestBridgeEnumerate(t *testing.T) {
	ts := newBridgeServer(`{
		"groups": [{
			"vendor": "nvidia", "type": "gpu", "name": "a100",
			"attributes": {"driver": {"kind": "string", "string": "535.104"}},
			"devices": [{
				"id": "GPU-1f8a", "healthy": true, "health_desc": "OK",
				"pci_bus_id": "0000:3b:00.0",
				"env": {"CUDA_VISIBLE_DEVICES": "0"},
				"device_nodes": [{"task_path": "/dev/nvidia0", "host_path": "/dev/nvidia0", "cgroup_perms": "rwm"}]
			}]
		}]
	}`, `{}`)
	defer ts.Close()

	em := &mockEmitter{}
	p := NewBridgeProvider(bridgeConfig(ts.URL), em)

	groups, runtimes, err := p.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(groups) != 1 || groups[0].Key() != "nvidia/gpu/a100" {
		t.Fatalf("groups = %+v", groups)
	}
	d := groups[0].Devices[0]
	if d.Locality == nil || d.Locality.PCIBusID != "0000:3b:00.0" {
		t.Errorf("locality = %+v", d.Locality)
	}
	if v, ok := groups[0].Attributes["driver"]; !ok || *v.StringVal != "535.104" {
		t.Errorf("driver attribute = %+v", v)
	}

	rt := runtimes["GPU-1f8a"]
	if rt.Env["CUDA_VISIBLE_DEVICES"] != "0" || len(rt.DeviceSpecs) != 1 {
		t.Errorf("runtime = %+v", rt)
	}

	if !p.Connected() {
		t.Error("provider should report connected")
	}
	events := em.getEvents()
	if len(events) == 0 || events[0] != "bridge_connected" {
		t.Errorf("events = %v, want bridge_connected first", events)
	}
}

func TestBridgeCollect(t *testing.T) {
	ts := newBridgeServer(`{"groups": []}`, `{
		"devices": {
			"GPU-1f8a": {
				"summary": {"kind": "string", "string": "78% busy"},
				"stats": {
					"children": {
						"memory": {"attributes": {"used": {"kind": "int", "int": 30208, "int_denominator": 40960, "unit": "MiB"}}}
					}
				}
			}
		}
	}`)
	defer ts.Close()

	p := NewBridgeProvider(bridgeConfig(ts.URL), nil)
	samples, err := p.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	s, ok := samples["GPU-1f8a"]
	if !ok {
		t.Fatal("GPU-1f8a sample missing")
	}
	if s.Summary == nil || *s.Summary.StringVal != "78% busy" {
		t.Errorf("summary = %+v", s.Summary)
	}
	v, ok := s.Stats.Lookup("memory/used")
	if !ok || !v.IsRatio() || *v.IntVal != 30208 {
		t.Errorf("memory/used = %+v", v)
	}
}

func TestBridgeDisconnectTransition(t *testing.T) {
	ts := newBridgeServer(`{"groups": []}`, `{}`)

	em := &mockEmitter{}
	p := NewBridgeProvider(bridgeConfig(ts.URL), em)

	if _, _, err := p.Enumerate(); err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	ts.Close()
	if _, _, err := p.Enumerate(); err == nil {
		t.Fatal("expected error after server close")
	}
	if p.Connected() {
		t.Error("provider should report disconnected")
	}

	events := em.getEvents()
	if len(events) != 2 || events[1] != "bridge_disconnected" {
		t.Errorf("events = %v, want [bridge_connected bridge_disconnected]", events)
	}
}

func TestBridgeRejectsOverDeepStats(t *testing.T) {
	// Nest well past the depth cap so the provider must refuse to re-serve
	// a tree its own wire types would reject.
	depth := 100
	var b strings.Builder
	b.WriteString(`{"devices": {"GPU-1f8a": {"stats": `)
	for i := 0; i < depth; i++ {
		b.WriteString(`{"children": {"n": `)
	}
	b.WriteString(`{}`)
	for i := 0; i < depth; i++ {
		b.WriteString(`}}`)
	}
	b.WriteString(`}}}`)

	ts := newBridgeServer(`{"groups": []}`, b.String())
	defer ts.Close()

	p := NewBridgeProvider(bridgeConfig(ts.URL), nil)
	_, err := p.Collect()
	if err == nil {
		t.Fatal("expected over-deep stats tree to be rejected")
	}
	if !strings.Contains(err.Error(), "max depth") {
		t.Errorf("err = %v, want max depth violation", err)
	}
}

func TestBridgeRejectsConflictingSummary(t *testing.T) {
	ts := newBridgeServer(`{"groups": []}`, `{
		"devices": {"GPU-1f8a": {"summary": {"kind": "string", "string": "ok", "int": 3}}}
	}`)
	defer ts.Close()

	p := NewBridgeProvider(bridgeConfig(ts.URL), nil)
	if _, err := p.Collect(); err == nil {
		t.Fatal("expected multi-payload summary value to be rejected")
	}
}

func TestBridgeRejectsDuplicateDeviceIDs(t *testing.T) {
	ts := newBridgeServer(`{
		"groups": [
			{"vendor": "v", "type": "gpu", "name": "a", "devices": [{"id": "GPU-1", "healthy": true}]},
			{"vendor": "v", "type": "gpu", "name": "b", "devices": [{"id": "GPU-1", "healthy": true}]}
		]
	}`, `{}`)
	defer ts.Close()

	p := NewBridgeProvider(bridgeConfig(ts.URL), nil)
	if _, _, err := p.Enumerate(); err == nil {
		t.Fatal("expected duplicate device ID across groups to be rejected")
	}
}

func TestBridgePollRateCaching(t *testing.T) {
	var devHits, statHits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/devices":
			devHits++
			fmt.Fprint(w, `{"groups": []}`)
		case "/stats":
			statHits++
			fmt.Fprint(w, `{}`)
		}
	}))
	defer ts.Close()

	cfg := &config.BridgeConfig{URL: ts.URL, PollRate: time.Hour, Enabled: true}
	p := NewBridgeProvider(cfg, nil)

	for i := 0; i < 3; i++ {
		if _, _, err := p.Enumerate(); err != nil {
			t.Fatalf("Enumerate: %v", err)
		}
		if _, err := p.Collect(); err != nil {
			t.Fatalf("Collect: %v", err)
		}
	}
	if devHits != 1 || statHits != 1 {
		t.Errorf("server hits = %d/%d, want one fetch per endpoint within the poll rate", devHits, statHits)
	}
}

func TestBridgeInBandError(t *testing.T) {
	ts := newBridgeServer(`{"groups": [], "error": "driver unavailable"}`, `{}`)
	defer ts.Close()

	p := NewBridgeProvider(bridgeConfig(ts.URL), nil)
	_, _, err := p.Enumerate()
	if err == nil {
		t.Fatal("expected in-band bridge error to surface")
	}
	// The HTTP exchange succeeded, so the bridge itself counts as connected.
	if !p.Connected() {
		t.Error("in-band error should not mark the bridge disconnected")
	}
}
