package protocol

// Message type constants for the fleet messaging protocol.
const (
	// Agent -> Core (published on the telemetry topic)
	TypeAgentRegister       = "agent.register"
	TypeAgentHeartbeat      = "agent.heartbeat"
	TypeCatalogChanged      = "catalog.changed"
	TypeDeviceHealth        = "device.health"
	TypeReservationGranted  = "reservation.granted"
	TypeReservationReleased = "reservation.released"

	// Core -> Agent (published on the command topic)
	TypeAgentRegistered   = "agent.registered"
	TypeAgentHeartbeatAck = "agent.heartbeat_ack"
	TypeReleaseCommand    = "reservation.release"
)

// Roles for Address.Role.
const (
	RoleAgent = "agent"
	RoleCore  = "core"
)

// NodeBroadcast as Address.Node targets every agent on the topic.
const NodeBroadcast = "*"

// Protocol version.
const Version = 1
