package protocol

// --- Agent -> Core payloads ---

// AgentRegister is sent by an agent on startup.
type AgentRegister struct {
	NodeID   string   `json:"node_id"`
	Cluster  string   `json:"cluster"`
	Hostname string   `json:"hostname"`
	Version  string   `json:"version"`
	Groups   []string `json:"groups"` // vendor/type/name keys currently visible
}

// AgentHeartbeat is sent periodically by an agent.
type AgentHeartbeat struct {
	NodeID   string `json:"node_id"`
	Uptime   int64  `json:"uptime_s"`
	Devices  int    `json:"devices"`
	Reserved int    `json:"reserved"`
}

// CatalogChanged announces that the agent's device catalog differs from the
// previous fingerprint tick. The embedded catalog is always a complete
// snapshot, never a delta.
type CatalogChanged struct {
	NodeID  string  `json:"node_id"`
	Catalog Catalog `json:"catalog"`
}

// DeviceHealth announces a single device's health transition.
type DeviceHealth struct {
	NodeID     string `json:"node_id"`
	DeviceID   string `json:"device_id"`
	Healthy    bool   `json:"healthy"`
	HealthDesc string `json:"health_desc,omitempty"`
}

// ReservationGranted reports device IDs newly bound to a holder.
type ReservationGranted struct {
	NodeID    string   `json:"node_id"`
	Holder    string   `json:"holder"`
	DeviceIDs []string `json:"device_ids"`
}

// ReservationReleased reports device IDs returned to the free pool.
type ReservationReleased struct {
	NodeID    string   `json:"node_id"`
	DeviceIDs []string `json:"device_ids"`
}

// --- Core -> Agent payloads ---

// AgentRegistered acknowledges agent registration.
type AgentRegistered struct {
	NodeID  string `json:"node_id"`
	Message string `json:"message,omitempty"`
}

// AgentHeartbeatAck acknowledges a heartbeat.
type AgentHeartbeatAck struct {
	NodeID   string `json:"node_id"`
	ServerTS int64  `json:"server_ts"`
}

// ReleaseCommand asks an agent to release device reservations, typically on
// workload teardown. An empty DeviceIDs with Holder set releases everything
// held by that holder.
type ReleaseCommand struct {
	NodeID    string   `json:"node_id"`
	Holder    string   `json:"holder,omitempty"`
	DeviceIDs []string `json:"device_ids,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}
