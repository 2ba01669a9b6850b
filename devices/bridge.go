package devices

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gantry/config"
	"gantry/protocol"
)

// --- Bridge API response types ---

type bridgeDevice struct {
	ID          string                `json:"id"`
	Healthy     bool                  `json:"healthy"`
	HealthDesc  string                `json:"health_desc"`
	PCIBusID    string                `json:"pci_bus_id,omitempty"`
	Env         map[string]string     `json:"env,omitempty"`
	Mounts      []protocol.Mount      `json:"mounts,omitempty"`
	DeviceNodes []protocol.DeviceSpec `json:"device_nodes,omitempty"`
}

type bridgeGroup struct {
	Vendor     string                    `json:"vendor"`
	Type       string                    `json:"type"`
	Name       string                    `json:"name"`
	Attributes map[string]protocol.Value `json:"attributes,omitempty"`
	Devices    []bridgeDevice            `json:"devices"`
}

type bridgeDevicesResponse struct {
	Groups []bridgeGroup `json:"groups"`
	Error  string        `json:"error,omitempty"`
}

type bridgeStatsResponse struct {
	Devices map[string]struct {
		Summary *protocol.Value    `json:"summary,omitempty"`
		Stats   *protocol.StatTree `json:"stats,omitempty"`
	} `json:"devices"`
	Error string `json:"error,omitempty"`
}

// BridgeProvider talks to an external driver bridge over HTTP+JSON. The
// bridge owns the actual driver/hardware calls; this provider is a thin,
// timeout-bounded client that tracks connection state and reports outages
// in-band as enumeration errors.
type BridgeProvider struct {
	cfg     *config.BridgeConfig
	emitter EventEmitter
	client  http.Client

	mu        sync.Mutex
	connected bool

	// Fetch results are cached for cfg.PollRate so callers polling faster
	// than the bridge's configured cadence do not hammer the driver.
	cacheMu      sync.Mutex
	devGroups    []protocol.DeviceGroup
	devRuntimes  map[string]Runtime
	devFetched   time.Time
	statsSamples map[string]Sample
	statsFetched time.Time
}

// NewBridgeProvider creates a bridge provider.
func NewBridgeProvider(cfg *config.BridgeConfig, emitter EventEmitter) *BridgeProvider {
	return &BridgeProvider{
		cfg:     cfg,
		emitter: emitter,
		client:  http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Provider.
func (p *BridgeProvider) Name() string { return "bridge" }

// Enumerate implements Provider. A failed fetch flips the connection state
// and returns the error for in-band catalog reporting; it never panics the
// fingerprint path. A disabled bridge contributes nothing.
func (p *BridgeProvider) Enumerate() ([]protocol.DeviceGroup, map[string]Runtime, error) {
	if !p.cfg.Enabled {
		return nil, nil, nil
	}
	p.cacheMu.Lock()
	if p.devGroups != nil && p.fresh(p.devFetched) {
		groups, runtimes := p.devGroups, p.devRuntimes
		p.cacheMu.Unlock()
		return groups, runtimes, nil
	}
	p.cacheMu.Unlock()

	var resp bridgeDevicesResponse
	if err := p.getJSON("/devices", &resp); err != nil {
		p.setConnected(false, err)
		return nil, nil, fmt.Errorf("bridge enumerate: %w", err)
	}
	p.setConnected(true, nil)
	if resp.Error != "" {
		return nil, nil, fmt.Errorf("bridge enumerate: %s", resp.Error)
	}

	groups := make([]protocol.DeviceGroup, 0, len(resp.Groups))
	runtimes := make(map[string]Runtime)
	for _, bg := range resp.Groups {
		g := protocol.DeviceGroup{
			Vendor:     bg.Vendor,
			Type:       bg.Type,
			Name:       bg.Name,
			Attributes: bg.Attributes,
		}
		for _, bd := range bg.Devices {
			d := protocol.Device{ID: bd.ID, Healthy: bd.Healthy, HealthDesc: bd.HealthDesc}
			if bd.PCIBusID != "" {
				d.Locality = &protocol.DeviceLocality{PCIBusID: bd.PCIBusID}
			}
			g.Devices = append(g.Devices, d)
			runtimes[bd.ID] = Runtime{
				Env:         bd.Env,
				Mounts:      bd.Mounts,
				DeviceSpecs: bd.DeviceNodes,
			}
		}
		groups = append(groups, g)
	}

	// The bridge is untrusted ingress: reject payloads the protocol layer
	// would reject, and surface the violation in-band like any other
	// provider failure.
	cat := protocol.Catalog{Groups: groups}
	if err := cat.Validate(); err != nil {
		return nil, nil, fmt.Errorf("bridge enumerate: invalid catalog: %w", err)
	}

	p.cacheMu.Lock()
	p.devGroups, p.devRuntimes, p.devFetched = groups, runtimes, time.Now()
	p.cacheMu.Unlock()
	return groups, runtimes, nil
}

// Collect implements Provider.
func (p *BridgeProvider) Collect() (map[string]Sample, error) {
	if !p.cfg.Enabled {
		return nil, nil
	}
	p.cacheMu.Lock()
	if p.statsSamples != nil && p.fresh(p.statsFetched) {
		out := p.statsSamples
		p.cacheMu.Unlock()
		return out, nil
	}
	p.cacheMu.Unlock()

	var resp bridgeStatsResponse
	if err := p.getJSON("/stats", &resp); err != nil {
		p.setConnected(false, err)
		return nil, fmt.Errorf("bridge stats: %w", err)
	}
	p.setConnected(true, nil)
	if resp.Error != "" {
		return nil, fmt.Errorf("bridge stats: %s", resp.Error)
	}

	out := make(map[string]Sample, len(resp.Devices))
	for id, ds := range resp.Devices {
		if ds.Summary != nil {
			if err := ds.Summary.Validate(); err != nil {
				return nil, fmt.Errorf("bridge stats: device %s summary: %w", id, err)
			}
		}
		if ds.Stats != nil {
			if err := ds.Stats.Validate(); err != nil {
				return nil, fmt.Errorf("bridge stats: device %s: %w", id, err)
			}
		}
		out[id] = Sample{Summary: ds.Summary, Stats: ds.Stats}
	}

	p.cacheMu.Lock()
	p.statsSamples, p.statsFetched = out, time.Now()
	p.cacheMu.Unlock()
	return out, nil
}

// fresh reports whether a cached fetch is still within the configured poll
// rate. A zero PollRate disables caching entirely.
func (p *BridgeProvider) fresh(fetched time.Time) bool {
	return p.cfg.PollRate > 0 && time.Since(fetched) < p.cfg.PollRate
}

// Connected reports the last observed bridge connection state.
func (p *BridgeProvider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *BridgeProvider) getJSON(path string, out any) error {
	resp, err := p.client.Get(p.cfg.URL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *BridgeProvider) setConnected(up bool, err error) {
	p.mu.Lock()
	changed := p.connected != up
	p.connected = up
	p.mu.Unlock()

	if !changed || p.emitter == nil {
		return
	}
	if up {
		p.emitter.EmitBridgeConnected()
	} else {
		p.emitter.EmitBridgeDisconnected(err)
	}
}
