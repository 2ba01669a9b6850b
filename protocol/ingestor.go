package protocol

import (
	"encoding/json"
	"log"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for all protocol message types.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	// Agent -> Core
	HandleAgentRegister(env *Envelope, p *AgentRegister)
	HandleAgentHeartbeat(env *Envelope, p *AgentHeartbeat)
	HandleCatalogChanged(env *Envelope, p *CatalogChanged)
	HandleDeviceHealth(env *Envelope, p *DeviceHealth)
	HandleReservationGranted(env *Envelope, p *ReservationGranted)
	HandleReservationReleased(env *Envelope, p *ReservationReleased)

	// Core -> Agent
	HandleAgentRegistered(env *Envelope, p *AgentRegistered)
	HandleAgentHeartbeatAck(env *Envelope, p *AgentHeartbeatAck)
	HandleReleaseCommand(env *Envelope, p *ReleaseCommand)
}

// Ingestor performs two-phase decode and dispatches to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
	filter  FilterFunc
}

// NewIngestor creates an ingestor with the given handler and filter.
func NewIngestor(handler MessageHandler, filter FilterFunc) *Ingestor {
	return &Ingestor{
		handler: handler,
		filter:  filter,
	}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: decode routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("protocol: header decode error: %v", err)
		return
	}

	if IsExpiredHeader(&hdr) {
		log.Printf("protocol: dropping expired message %s (type=%s)", hdr.ID, hdr.Type)
		return
	}

	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full envelope decode
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("protocol: envelope decode error: %v", err)
		return
	}

	switch env.Type {
	case TypeAgentRegister:
		decodeAndCall(ing.handler.HandleAgentRegister, &env)
	case TypeAgentHeartbeat:
		decodeAndCall(ing.handler.HandleAgentHeartbeat, &env)
	case TypeCatalogChanged:
		decodeAndCall(ing.handler.HandleCatalogChanged, &env)
	case TypeDeviceHealth:
		decodeAndCall(ing.handler.HandleDeviceHealth, &env)
	case TypeReservationGranted:
		decodeAndCall(ing.handler.HandleReservationGranted, &env)
	case TypeReservationReleased:
		decodeAndCall(ing.handler.HandleReservationReleased, &env)
	case TypeAgentRegistered:
		decodeAndCall(ing.handler.HandleAgentRegistered, &env)
	case TypeAgentHeartbeatAck:
		decodeAndCall(ing.handler.HandleAgentHeartbeatAck, &env)
	case TypeReleaseCommand:
		decodeAndCall(ing.handler.HandleReleaseCommand, &env)
	default:
		log.Printf("protocol: unknown message type: %s", env.Type)
	}
}

// decodeAndCall unmarshals the payload and calls the handler method.
func decodeAndCall[T any](fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Printf("protocol: payload decode error for %s: %v", env.Type, err)
		return
	}
	fn(env, &p)
}
