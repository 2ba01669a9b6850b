package protocol

import "time"

// Default TTLs by message category. Heartbeats go stale fast; reservation
// events are the durable record of grants and live longest on the wire.
var defaultTTLs = map[string]time.Duration{
	TypeAgentHeartbeat:    90 * time.Second,
	TypeAgentHeartbeatAck: 90 * time.Second,

	TypeAgentRegister:   5 * time.Minute,
	TypeAgentRegistered: 5 * time.Minute,

	TypeCatalogChanged: 5 * time.Minute,
	TypeDeviceHealth:   5 * time.Minute,

	TypeReleaseCommand: 10 * time.Minute,

	TypeReservationGranted:  30 * time.Minute,
	TypeReservationReleased: 30 * time.Minute,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 10 * time.Minute

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	if env.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(env.ExpiresAt)
}

// IsExpiredHeader checks expiry using only the raw header.
func IsExpiredHeader(hdr *RawHeader) bool {
	if hdr.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(hdr.ExpiresAt)
}
