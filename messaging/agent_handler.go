package messaging

import (
	"log"

	"gantry/protocol"
)

// Releaser is the slice of the reservation table the handler needs.
type Releaser interface {
	Release(deviceIDs []string) map[string]string
	ReleaseHolder(holder string) []string
}

// AgentHandler handles inbound protocol messages on the command topic.
// Release commands go to the reservation table; acks are just logged.
type AgentHandler struct {
	protocol.NoOpHandler

	table Releaser
}

// NewAgentHandler creates a handler for inbound core messages.
func NewAgentHandler(table Releaser) *AgentHandler {
	return &AgentHandler{table: table}
}

func (h *AgentHandler) HandleAgentRegistered(_ *protocol.Envelope, p *protocol.AgentRegistered) {
	log.Printf("agent_handler: registration acknowledged: node=%s msg=%s", p.NodeID, p.Message)
}

func (h *AgentHandler) HandleAgentHeartbeatAck(_ *protocol.Envelope, p *protocol.AgentHeartbeatAck) {
	log.Printf("agent_handler: heartbeat ack: node=%s server_ts=%d", p.NodeID, p.ServerTS)
}

func (h *AgentHandler) HandleReleaseCommand(_ *protocol.Envelope, p *protocol.ReleaseCommand) {
	log.Printf("agent_handler: release command: holder=%s devices=%v reason=%s", p.Holder, p.DeviceIDs, p.Reason)
	if len(p.DeviceIDs) > 0 {
		results := h.table.Release(p.DeviceIDs)
		for id, status := range results {
			if status != protocol.BindingOK {
				log.Printf("agent_handler: release %s: %s", id, status)
			}
		}
		return
	}
	if p.Holder != "" {
		released := h.table.ReleaseHolder(p.Holder)
		log.Printf("agent_handler: released %d devices for holder %s", len(released), p.Holder)
	}
}
