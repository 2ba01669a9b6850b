package reservation

import (
	"sync"
	"testing"

	"gantry/devices"
	"gantry/protocol"
)

// mapResolver resolves against a fixed device set.
type mapResolver map[string]devices.Runtime

func (r mapResolver) ResolveDevice(id string) (devices.Runtime, bool) {
	rt, ok := r[id]
	return rt, ok
}

// recordEmitter captures reservation events.
type recordEmitter struct {
	mu       sync.Mutex
	granted  [][]string
	released [][]string
}

func (e *recordEmitter) EmitReservationGranted(_ string, ids []string) {
	e.mu.Lock()
	e.granted = append(e.granted, ids)
	e.mu.Unlock()
}

func (e *recordEmitter) EmitReservationReleased(ids []string) {
	e.mu.Lock()
	e.released = append(e.released, ids)
	e.mu.Unlock()
}

func testResolver() mapResolver {
	return mapResolver{
		"gpu-0": {
			Env: map[string]string{"VISIBLE_DEVICES": "gpu-0"},
		},
		"gpu-1": {
			Env: map[string]string{"VISIBLE_DEVICES": "gpu-1"},
			Mounts: []protocol.Mount{
				{TaskPath: "/usr/lib/driver", HostPath: "/opt/driver", ReadOnly: true},
			},
			DeviceSpecs: []protocol.DeviceSpec{
				{TaskPath: "/dev/gpu1", HostPath: "/dev/gpu1", CgroupPerms: "rwm"},
			},
		},
	}
}

func TestReserveCompleteness(t *testing.T) {
	tbl := New(testResolver(), nil)

	res := tbl.Reserve([]string{"gpu-0", "gpu-1", "gpu-9", "gpu-0"}, "wl-1")
	// Duplicates collapse: exactly one entry per distinct requested ID.
	if len(res.Bindings) != 3 {
		t.Fatalf("bindings = %d entries, want 3: %v", len(res.Bindings), res.Bindings)
	}
	if res.Bindings["gpu-0"] != protocol.BindingOK {
		t.Errorf("gpu-0 = %q", res.Bindings["gpu-0"])
	}
	if res.Bindings["gpu-1"] != protocol.BindingOK {
		t.Errorf("gpu-1 = %q", res.Bindings["gpu-1"])
	}
	if res.Bindings["gpu-9"] != protocol.BindingUnknownDevice {
		t.Errorf("gpu-9 = %q, want %q", res.Bindings["gpu-9"], protocol.BindingUnknownDevice)
	}
}

func TestAtMostOnceAllocation(t *testing.T) {
	tbl := New(testResolver(), nil)

	first := tbl.Reserve([]string{"gpu-0"}, "wl-1")
	second := tbl.Reserve([]string{"gpu-0"}, "wl-2")

	okCount := 0
	if first.Bindings["gpu-0"] == protocol.BindingOK {
		okCount++
	}
	if second.Bindings["gpu-0"] == protocol.BindingOK {
		okCount++
	}
	if okCount != 1 {
		t.Fatalf("gpu-0 granted %d times across two calls, want exactly 1", okCount)
	}
	if second.Bindings["gpu-0"] != protocol.BindingAlreadyHeld {
		t.Errorf("second = %q, want %q", second.Bindings["gpu-0"], protocol.BindingAlreadyHeld)
	}
}

func TestBindingConsistency(t *testing.T) {
	tbl := New(testResolver(), nil)
	tbl.Reserve([]string{"gpu-1"}, "wl-1")

	// gpu-1 is held; a mixed request grants only gpu-0, so gpu-1's runtime
	// bindings must not leak into the result.
	res := tbl.Reserve([]string{"gpu-0", "gpu-1"}, "wl-2")
	if res.Bindings["gpu-0"] != protocol.BindingOK || res.Bindings["gpu-1"] != protocol.BindingAlreadyHeld {
		t.Fatalf("bindings = %v", res.Bindings)
	}
	if res.Env["VISIBLE_DEVICES"] != "gpu-0" {
		t.Errorf("env = %v, want only gpu-0's entries", res.Env)
	}
	if len(res.Mounts) != 0 {
		t.Errorf("mounts = %v, gpu-1's mounts must not appear", res.Mounts)
	}
	if len(res.DeviceSpecs) != 0 {
		t.Errorf("device specs = %v, gpu-1's specs must not appear", res.DeviceSpecs)
	}
}

func TestReleaseAndReReserve(t *testing.T) {
	em := &recordEmitter{}
	tbl := New(testResolver(), em)

	tbl.Reserve([]string{"gpu-0"}, "wl-1")
	statuses := tbl.Release([]string{"gpu-0", "gpu-1"})
	if statuses["gpu-0"] != protocol.BindingOK {
		t.Errorf("gpu-0 release = %q", statuses["gpu-0"])
	}
	if statuses["gpu-1"] != protocol.BindingNotReserved {
		t.Errorf("gpu-1 release = %q, want %q", statuses["gpu-1"], protocol.BindingNotReserved)
	}

	res := tbl.Reserve([]string{"gpu-0"}, "wl-2")
	if res.Bindings["gpu-0"] != protocol.BindingOK {
		t.Errorf("re-reserve after release = %q, want OK", res.Bindings["gpu-0"])
	}

	if len(em.granted) != 2 || len(em.released) != 1 {
		t.Errorf("events: granted=%d released=%d, want 2/1", len(em.granted), len(em.released))
	}
}

func TestReleaseHolder(t *testing.T) {
	tbl := New(testResolver(), nil)
	tbl.Reserve([]string{"gpu-0", "gpu-1"}, "wl-1")

	released := tbl.ReleaseHolder("wl-1")
	if len(released) != 2 {
		t.Fatalf("released = %v, want both devices", released)
	}
	if tbl.Count() != 0 {
		t.Errorf("count = %d after holder release, want 0", tbl.Count())
	}

	if got := tbl.ReleaseHolder("wl-unknown"); len(got) != 0 {
		t.Errorf("unknown holder released %v", got)
	}
}

func TestHoldingsSnapshot(t *testing.T) {
	tbl := New(testResolver(), nil)
	tbl.Reserve([]string{"gpu-1", "gpu-0"}, "wl-1")

	holdings := tbl.Holdings()
	if len(holdings) != 2 {
		t.Fatalf("holdings = %v", holdings)
	}
	if holdings[0].DeviceID != "gpu-0" || holdings[1].DeviceID != "gpu-1" {
		t.Errorf("holdings not sorted: %v", holdings)
	}
	if holdings[0].Holder != "wl-1" || holdings[0].GrantedAt.IsZero() {
		t.Errorf("holding = %+v", holdings[0])
	}

	if !tbl.IsHeld("gpu-0") {
		t.Error("gpu-0 should be held")
	}
	if tbl.IsHeld("gpu-9") {
		t.Error("gpu-9 should not be held")
	}
}

func TestConcurrentReserveSingleGrant(t *testing.T) {
	tbl := New(testResolver(), nil)

	const workers = 32
	results := make([]*protocol.ReservationResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tbl.Reserve([]string{"gpu-0"}, "")
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, res := range results {
		if res.Bindings["gpu-0"] == protocol.BindingOK {
			granted++
		}
	}
	if granted != 1 {
		t.Fatalf("gpu-0 granted %d times under contention, want exactly 1", granted)
	}
}

func TestGeneratedHolder(t *testing.T) {
	tbl := New(testResolver(), nil)
	tbl.Reserve([]string{"gpu-0"}, "")

	holdings := tbl.Holdings()
	if len(holdings) != 1 || holdings[0].Holder == "" {
		t.Fatalf("empty holder should be replaced with a generated one: %+v", holdings)
	}
}
