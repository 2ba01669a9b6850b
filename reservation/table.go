// Package reservation owns the process-wide device reservation table: the
// single source of truth for which device instances are bound to which
// workload. All mutations go through one mutex; the raw table is never
// exposed, only grant/release/query operations.
package reservation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gantry/devices"
	"gantry/protocol"
)

// Resolver resolves a device ID against the current catalog. Lookups are
// snapshot reads and must not block on driver I/O.
type Resolver interface {
	ResolveDevice(id string) (devices.Runtime, bool)
}

// EventEmitter receives reservation lifecycle events.
type EventEmitter interface {
	EmitReservationGranted(holder string, deviceIDs []string)
	EmitReservationReleased(deviceIDs []string)
}

// Holding describes one granted device binding.
type Holding struct {
	DeviceID  string    `json:"device_id"`
	Holder    string    `json:"holder"`
	GrantedAt time.Time `json:"granted_at"`
}

// Table is the reservation table. The zero value is not usable; use New.
type Table struct {
	mu       sync.Mutex
	held     map[string]Holding
	resolver Resolver
	emitter  EventEmitter
}

// New creates an empty reservation table. State is in-memory only: a restart
// releases everything, and callers must re-reserve before scheduling against
// this agent again.
func New(resolver Resolver, emitter EventEmitter) *Table {
	return &Table{
		held:     make(map[string]Holding),
		resolver: resolver,
		emitter:  emitter,
	}
}

// Reserve attempts to allocate every requested device ID for the holder and
// returns a result with exactly one binding entry per ID. Allocation is
// at-most-once: an ID held by an active reservation fails with
// BindingAlreadyHeld rather than double-granting. Unknown IDs fail per-ID;
// neither condition aborts the rest of the request. An empty holder is
// replaced with a generated one.
func (t *Table) Reserve(deviceIDs []string, holder string) *protocol.ReservationResult {
	if holder == "" {
		holder = uuid.New().String()
	}

	result := &protocol.ReservationResult{
		Bindings: make(map[string]string, len(deviceIDs)),
	}

	now := time.Now().UTC()
	var granted []string

	t.mu.Lock()
	for _, id := range deviceIDs {
		if _, dup := result.Bindings[id]; dup {
			continue
		}
		rt, known := t.resolver.ResolveDevice(id)
		if !known {
			result.Bindings[id] = protocol.BindingUnknownDevice
			continue
		}
		if _, taken := t.held[id]; taken {
			result.Bindings[id] = protocol.BindingAlreadyHeld
			continue
		}
		t.held[id] = Holding{DeviceID: id, Holder: holder, GrantedAt: now}
		result.Bindings[id] = protocol.BindingOK
		granted = append(granted, id)

		// Runtime bindings accumulate only from OK devices.
		for k, v := range rt.Env {
			if result.Env == nil {
				result.Env = make(map[string]string)
			}
			result.Env[k] = v
		}
		result.Mounts = append(result.Mounts, rt.Mounts...)
		result.DeviceSpecs = append(result.DeviceSpecs, rt.DeviceSpecs...)
	}
	t.mu.Unlock()

	if len(granted) > 0 && t.emitter != nil {
		t.emitter.EmitReservationGranted(holder, granted)
	}
	return result
}

// Release returns devices to the free pool, one status entry per requested
// ID: BindingOK for released devices, BindingNotReserved for IDs not held.
func (t *Table) Release(deviceIDs []string) map[string]string {
	statuses := make(map[string]string, len(deviceIDs))
	var released []string

	t.mu.Lock()
	for _, id := range deviceIDs {
		if _, dup := statuses[id]; dup {
			continue
		}
		if _, taken := t.held[id]; !taken {
			statuses[id] = protocol.BindingNotReserved
			continue
		}
		delete(t.held, id)
		statuses[id] = protocol.BindingOK
		released = append(released, id)
	}
	t.mu.Unlock()

	if len(released) > 0 && t.emitter != nil {
		t.emitter.EmitReservationReleased(released)
	}
	return statuses
}

// ReleaseHolder releases every device held by the given holder, returning the
// released IDs. Used by workload-teardown commands.
func (t *Table) ReleaseHolder(holder string) []string {
	var released []string

	t.mu.Lock()
	for id, h := range t.held {
		if h.Holder == holder {
			delete(t.held, id)
			released = append(released, id)
		}
	}
	t.mu.Unlock()

	sort.Strings(released)
	if len(released) > 0 && t.emitter != nil {
		t.emitter.EmitReservationReleased(released)
	}
	return released
}

// IsHeld reports whether a device is currently reserved.
func (t *Table) IsHeld(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, taken := t.held[deviceID]
	return taken
}

// Holdings returns a snapshot of the current table, sorted by device ID.
func (t *Table) Holdings() []Holding {
	t.mu.Lock()
	out := make([]Holding, 0, len(t.held))
	for _, h := range t.held {
		out = append(out, h)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Count returns the number of currently held devices.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}
