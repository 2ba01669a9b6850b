package messaging

import (
	"gantry/config"
	"gantry/protocol"
)

// Subscriber listens on the command topic and routes inbound envelopes
// through the protocol ingestor. Messages addressed to other nodes are
// dropped at the header-decode stage.
type Subscriber struct {
	client   *Client
	cfg      *config.Config
	ingestor *protocol.Ingestor
}

// NewSubscriber creates the inbound command subscriber.
func NewSubscriber(client *Client, cfg *config.Config, handler protocol.MessageHandler) *Subscriber {
	nodeID := cfg.NodeID()
	filter := func(hdr *protocol.RawHeader) bool {
		if hdr.Dst.Role != "" && hdr.Dst.Role != protocol.RoleAgent {
			return false
		}
		switch hdr.Dst.Node {
		case "", protocol.NodeBroadcast, nodeID:
			return true
		}
		return false
	}
	return &Subscriber{
		client:   client,
		cfg:      cfg,
		ingestor: protocol.NewIngestor(handler, filter),
	}
}

// Start subscribes to the command topic and begins processing messages.
func (s *Subscriber) Start() error {
	return s.client.Subscribe(s.cfg.Messaging.CommandTopic, s.ingestor.HandleRaw)
}
