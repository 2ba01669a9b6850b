package messaging

import (
	"log"

	"gantry/config"
	"gantry/engine"
	"gantry/protocol"
	"gantry/store"
)

// TelemetryReporter turns engine events into protocol envelopes queued on the
// outbox. Enqueueing instead of publishing directly means a broker outage
// never loses a catalog change or reservation event; the drainer retries.
type TelemetryReporter struct {
	db      *store.DB
	nodeID  string
	cluster string
	topic   string
}

// NewTelemetryReporter creates a reporter for the given agent identity.
func NewTelemetryReporter(db *store.DB, cfg *config.Config) *TelemetryReporter {
	return &TelemetryReporter{
		db:      db,
		nodeID:  cfg.NodeID(),
		cluster: cfg.Namespace,
		topic:   cfg.Messaging.TelemetryTopic,
	}
}

// Attach subscribes the reporter to the engine's event bus.
func (r *TelemetryReporter) Attach(bus *engine.EventBus) {
	bus.SubscribeTypes(func(evt engine.Event) {
		changed := evt.Payload.(engine.CatalogChangedEvent)
		r.enqueue(protocol.TypeCatalogChanged, &protocol.CatalogChanged{
			NodeID:  r.nodeID,
			Catalog: changed.Catalog,
		})
	}, engine.EventCatalogChanged)

	bus.SubscribeTypes(func(evt engine.Event) {
		health := evt.Payload.(engine.DeviceHealthEvent)
		r.enqueue(protocol.TypeDeviceHealth, &protocol.DeviceHealth{
			NodeID:     r.nodeID,
			DeviceID:   health.DeviceID,
			Healthy:    health.Healthy,
			HealthDesc: health.HealthDesc,
		})
	}, engine.EventDeviceHealth)

	bus.SubscribeTypes(func(evt engine.Event) {
		granted := evt.Payload.(engine.ReservationGrantedEvent)
		r.enqueue(protocol.TypeReservationGranted, &protocol.ReservationGranted{
			NodeID:    r.nodeID,
			Holder:    granted.Holder,
			DeviceIDs: granted.DeviceIDs,
		})
	}, engine.EventReservationGranted)

	bus.SubscribeTypes(func(evt engine.Event) {
		released := evt.Payload.(engine.ReservationReleasedEvent)
		r.enqueue(protocol.TypeReservationReleased, &protocol.ReservationReleased{
			NodeID:    r.nodeID,
			DeviceIDs: released.DeviceIDs,
		})
	}, engine.EventReservationReleased)
}

func (r *TelemetryReporter) enqueue(msgType string, payload any) {
	env, err := protocol.NewEnvelope(
		msgType,
		protocol.Address{Role: protocol.RoleAgent, Node: r.nodeID, Cluster: r.cluster},
		protocol.Address{Role: protocol.RoleCore},
		payload,
	)
	if err != nil {
		log.Printf("telemetry_reporter: build %s: %v", msgType, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("telemetry_reporter: encode %s: %v", msgType, err)
		return
	}
	if _, err := r.db.EnqueueOutbox(r.topic, data, msgType); err != nil {
		log.Printf("telemetry_reporter: enqueue %s: %v", msgType, err)
	}
}
