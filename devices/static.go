package devices

import (
	"sync/atomic"
	"time"

	"gantry/config"
	"gantry/protocol"
)

// StaticProvider serves device groups declared in the YAML config. It backs
// fixed, always-present hardware that needs no driver bridge, and doubles as
// the reference provider in tests.
type StaticProvider struct {
	groups   []protocol.DeviceGroup
	runtimes map[string]Runtime
	started  time.Time
	polls    atomic.Int64
}

// NewStaticProvider builds a provider from config-declared groups.
func NewStaticProvider(groups []config.StaticGroupConfig) *StaticProvider {
	p := &StaticProvider{
		runtimes: make(map[string]Runtime),
		started:  time.Now(),
	}
	for _, gc := range groups {
		g := protocol.DeviceGroup{
			Vendor: gc.Vendor,
			Type:   gc.Type,
			Name:   gc.Name,
		}
		if len(gc.Attributes) > 0 {
			g.Attributes = make(map[string]protocol.Value, len(gc.Attributes))
			for name, val := range gc.Attributes {
				g.Attributes[name] = protocol.StringValue(val)
			}
		}
		for _, dc := range gc.Devices {
			d := protocol.Device{ID: dc.ID, Healthy: true, HealthDesc: "OK"}
			if dc.PCIBusID != "" {
				d.Locality = &protocol.DeviceLocality{PCIBusID: dc.PCIBusID}
			}
			g.Devices = append(g.Devices, d)
			p.runtimes[dc.ID] = runtimeFromConfig(dc)
		}
		p.groups = append(p.groups, g)
	}
	return p
}

func runtimeFromConfig(dc config.StaticDeviceConfig) Runtime {
	rt := Runtime{}
	if len(dc.Env) > 0 {
		rt.Env = make(map[string]string, len(dc.Env))
		for k, v := range dc.Env {
			rt.Env[k] = v
		}
	}
	for _, m := range dc.Mounts {
		rt.Mounts = append(rt.Mounts, protocol.Mount{
			TaskPath: m.TaskPath,
			HostPath: m.HostPath,
			ReadOnly: m.ReadOnly,
		})
	}
	for _, n := range dc.DeviceNodes {
		rt.DeviceSpecs = append(rt.DeviceSpecs, protocol.DeviceSpec{
			TaskPath:    n.TaskPath,
			HostPath:    n.HostPath,
			CgroupPerms: n.CgroupPerms,
		})
	}
	return rt
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return "static" }

// Enumerate implements Provider. Static groups never fail enumeration.
func (p *StaticProvider) Enumerate() ([]protocol.DeviceGroup, map[string]Runtime, error) {
	return p.groups, p.runtimes, nil
}

// Collect implements Provider. Static devices have no live instrumentation,
// so the stats are agent-side observations: uptime and collection count.
func (p *StaticProvider) Collect() (map[string]Sample, error) {
	polls := p.polls.Add(1)
	uptime := int64(time.Since(p.started).Seconds())

	out := make(map[string]Sample)
	for _, g := range p.groups {
		for _, d := range g.Devices {
			summary := protocol.StringValue("OK")
			tree := protocol.NewStatTree()
			tree.Child("agent").
				Set("uptime", protocol.IntValue(uptime, "s")).
				Set("polls", protocol.IntValue(polls, ""))
			out[d.ID] = Sample{Summary: &summary, Stats: tree}
		}
	}
	return out, nil
}
