package engine

import (
	"time"

	"gantry/protocol"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Catalog events
	EventCatalogSnapshot EventType = iota + 1
	EventCatalogChanged
	EventDeviceHealth

	// Bridge events
	EventBridgeConnected
	EventBridgeDisconnected

	// Reservation events
	EventReservationGranted
	EventReservationReleased

	// Stats events
	EventStatsSampled
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// CatalogSnapshotEvent carries the complete catalog produced by a fingerprint
// tick, whether or not anything changed. Streams fan this out so late joiners
// never need prior state.
type CatalogSnapshotEvent struct {
	Catalog protocol.Catalog `json:"catalog"`
}

// CatalogChangedEvent is emitted only when the catalog's identity or health
// differs from the previous tick.
type CatalogChangedEvent struct {
	Catalog protocol.Catalog `json:"catalog"`
}

// DeviceHealthEvent is emitted on a device health transition.
type DeviceHealthEvent struct {
	DeviceID   string `json:"device_id"`
	Healthy    bool   `json:"healthy"`
	HealthDesc string `json:"health_desc,omitempty"`
}

// BridgeEvent is emitted for driver-bridge connection state changes.
type BridgeEvent struct {
	Error string `json:"error,omitempty"`
}

// ReservationGrantedEvent is emitted when devices are bound to a holder.
type ReservationGrantedEvent struct {
	Holder    string   `json:"holder"`
	DeviceIDs []string `json:"device_ids"`
}

// ReservationReleasedEvent is emitted when devices return to the free pool.
type ReservationReleasedEvent struct {
	DeviceIDs []string `json:"device_ids"`
}

// StatsSampledEvent carries one complete stats response from a stats tick.
type StatsSampledEvent struct {
	Response protocol.StatsResponse `json:"response"`
}
