package devices

import "gantry/protocol"

// Runtime holds the concrete bindings a workload receives when a device is
// reserved: environment variables, filesystem mounts, and device-node grants.
type Runtime struct {
	Env         map[string]string
	Mounts      []protocol.Mount
	DeviceSpecs []protocol.DeviceSpec
}

// Sample is one device's statistics for one collection tick. The manager
// stamps the timestamp; providers only produce the data.
type Sample struct {
	Summary *protocol.Value
	Stats   *protocol.StatTree
}

// Provider enumerates a set of device groups and collects their statistics.
// Enumerate is a pure read of device state and may block on driver I/O; it is
// never called while the reservation lock is held.
type Provider interface {
	Name() string
	Enumerate() ([]protocol.DeviceGroup, map[string]Runtime, error)
	Collect() (map[string]Sample, error)
}

// EventEmitter receives device-subsystem events.
type EventEmitter interface {
	EmitCatalogChanged(cat protocol.Catalog)
	EmitDeviceHealth(deviceID string, healthy bool, desc string)
	EmitBridgeConnected()
	EmitBridgeDisconnected(err error)
}
