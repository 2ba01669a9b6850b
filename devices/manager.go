package devices

import (
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gantry/protocol"
)

// Manager merges device providers into a single catalog and stats view. It is
// the fingerprint and stats backend of the agent: every call builds a fresh
// snapshot from the providers, so the protocol's no-stale-cache rule holds by
// construction.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
	emitter   EventEmitter

	// Snapshot of the last fingerprint, used by stats assembly and by the
	// reservation resolver.
	lastGroups   map[string][]protocol.DeviceGroup // provider name -> groups
	runtimes     map[string]Runtime
	health       map[string]bool
	identity     string
	lastStamp    map[string]time.Time
	fingerprints int64
}

// NewManager creates a device manager over the given providers.
func NewManager(emitter EventEmitter, providers ...Provider) *Manager {
	return &Manager{
		providers:  providers,
		emitter:    emitter,
		lastGroups: make(map[string][]protocol.DeviceGroup),
		runtimes:   make(map[string]Runtime),
		health:     make(map[string]bool),
		lastStamp:  make(map[string]time.Time),
	}
}

// Fingerprint enumerates all providers and returns the merged catalog. Device
// IDs are globally unique in the result: a duplicate ID from a later provider
// is dropped and logged rather than double-listed, since a reservation for it
// would be ambiguous. Provider failures are reported in-band via the catalog
// Error field; groups from healthy providers are still returned.
func (m *Manager) Fingerprint() protocol.Catalog {
	type result struct {
		name     string
		groups   []protocol.DeviceGroup
		runtimes map[string]Runtime
		err      error
	}

	// Enumeration may block on driver I/O; no manager lock is held here.
	results := make([]result, 0, len(m.providers))
	for _, p := range m.providers {
		groups, runtimes, err := p.Enumerate()
		results = append(results, result{name: p.Name(), groups: groups, runtimes: runtimes, err: err})
	}

	var cat protocol.Catalog
	var errs []string
	seen := make(map[string]struct{})
	newGroups := make(map[string][]protocol.DeviceGroup)
	newRuntimes := make(map[string]Runtime)
	newHealth := make(map[string]bool)

	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err.Error())
			continue
		}
		var kept []protocol.DeviceGroup
		for _, g := range res.groups {
			merged := g
			merged.Devices = nil
			for _, d := range g.Devices {
				if _, dup := seen[d.ID]; dup {
					log.Printf("devices: provider %s duplicates device ID %q, dropping", res.name, d.ID)
					continue
				}
				seen[d.ID] = struct{}{}
				merged.Devices = append(merged.Devices, d)
				newHealth[d.ID] = d.Healthy
				if rt, ok := res.runtimes[d.ID]; ok {
					newRuntimes[d.ID] = rt
				}
			}
			if len(merged.Devices) > 0 || len(g.Devices) == 0 {
				kept = append(kept, merged)
			}
		}
		newGroups[res.name] = kept
		cat.Groups = append(cat.Groups, kept...)
	}
	if len(errs) > 0 {
		cat.Error = strings.Join(errs, "; ")
	}
	if cat.Groups == nil {
		cat.Groups = []protocol.DeviceGroup{}
	}

	identity := catalogIdentity(cat)

	m.mu.Lock()
	prevHealth := m.health
	prevIdentity := m.identity
	first := m.fingerprints == 0
	m.lastGroups = newGroups
	m.runtimes = newRuntimes
	m.health = newHealth
	m.identity = identity
	m.fingerprints++
	m.mu.Unlock()

	if m.emitter != nil {
		for id, healthy := range newHealth {
			if prev, known := prevHealth[id]; known && prev != healthy {
				desc := healthDesc(cat, id)
				m.emitter.EmitDeviceHealth(id, healthy, desc)
			}
		}
		if identity != prevIdentity && !first {
			m.emitter.EmitCatalogChanged(cat)
		}
	}
	return cat
}

// Stats collects statistics from every provider and assembles one complete
// response covering the devices of the most recent fingerprint. A provider
// that fails collection contributes its groups with empty instance maps and
// an in-band error; other providers are unaffected.
func (m *Manager) Stats() protocol.StatsResponse {
	m.mu.RLock()
	needFingerprint := m.fingerprints == 0
	m.mu.RUnlock()
	if needFingerprint {
		m.Fingerprint()
	}

	type result struct {
		name    string
		samples map[string]Sample
		err     error
	}
	results := make([]result, 0, len(m.providers))
	for _, p := range m.providers {
		samples, err := p.Collect()
		results = append(results, result{name: p.Name(), samples: samples, err: err})
	}

	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var resp protocol.StatsResponse
	var errs []string
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err.Error())
		}
		for _, g := range m.lastGroups[res.name] {
			gs := protocol.DeviceGroupStats{
				Vendor:        g.Vendor,
				Type:          g.Type,
				Name:          g.Name,
				InstanceStats: make(map[string]protocol.StatsSnapshot),
			}
			for _, d := range g.Devices {
				sample, ok := res.samples[d.ID]
				if !ok {
					// Per-device collection failure: the instance is simply
					// absent from the map this tick.
					continue
				}
				gs.InstanceStats[d.ID] = protocol.StatsSnapshot{
					Summary:   sample.Summary,
					Stats:     sample.Stats,
					Timestamp: m.stampLocked(d.ID, now),
				}
			}
			resp.Groups = append(resp.Groups, gs)
		}
	}
	if len(errs) > 0 {
		resp.Error = strings.Join(errs, "; ")
	}
	if resp.Groups == nil {
		resp.Groups = []protocol.DeviceGroupStats{}
	}
	return resp
}

// stampLocked returns an RFC 3339 timestamp for a device, clamped so that
// successive stamps for the same device never decrease even if the wall clock
// steps backwards. Caller holds m.mu.
func (m *Manager) stampLocked(deviceID string, now time.Time) string {
	if last, ok := m.lastStamp[deviceID]; ok && now.Before(last) {
		now = last
	}
	m.lastStamp[deviceID] = now
	return now.Format(protocol.TimestampFormat)
}

// ResolveDevice looks a device ID up in the most recent catalog, returning
// its runtime bindings. The second return is false for unknown IDs.
func (m *Manager) ResolveDevice(id string) (Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, known := m.health[id]; !known {
		return Runtime{}, false
	}
	return m.runtimes[id], true
}

// DeviceCount returns the number of devices in the most recent catalog.
func (m *Manager) DeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.health)
}

// catalogIdentity builds a stable string of group and device identity plus
// health, used to detect catalog changes between fingerprint ticks.
func catalogIdentity(cat protocol.Catalog) string {
	var parts []string
	for _, g := range cat.Groups {
		for _, d := range g.Devices {
			parts = append(parts, g.Vendor+"/"+g.Type+"/"+g.Name+"/"+d.ID+"/"+strconv.FormatBool(d.Healthy))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func healthDesc(cat protocol.Catalog, deviceID string) string {
	for _, g := range cat.Groups {
		for _, d := range g.Devices {
			if d.ID == deviceID {
				return d.HealthDesc
			}
		}
	}
	return ""
}
