package messaging

import (
	"log"
	"os"
	"sync"
	"time"

	"gantry/protocol"
)

// Heartbeater sends agent.register on startup and agent.heartbeat
// periodically on the telemetry topic.
type Heartbeater struct {
	client   *Client
	nodeID   string
	cluster  string
	version  string
	topic    string
	interval time.Duration

	groups        func() []string
	deviceCount   func() int
	reservedCount func() int

	startTime time.Time
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewHeartbeater creates a heartbeater for the given agent identity. The
// count callbacks are read on every tick so heartbeats always report current
// state.
func NewHeartbeater(client *Client, nodeID, cluster, version, telemetryTopic string,
	groups func() []string, deviceCount, reservedCount func() int) *Heartbeater {
	return &Heartbeater{
		client:        client,
		nodeID:        nodeID,
		cluster:       cluster,
		version:       version,
		topic:         telemetryTopic,
		interval:      60 * time.Second,
		groups:        groups,
		deviceCount:   deviceCount,
		reservedCount: reservedCount,
		stopCh:        make(chan struct{}),
	}
}

// Start sends an initial registration and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendRegister()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) src() protocol.Address {
	return protocol.Address{Role: protocol.RoleAgent, Node: h.nodeID, Cluster: h.cluster}
}

func (h *Heartbeater) sendRegister() {
	hostname, _ := os.Hostname()
	env, err := protocol.NewEnvelope(
		protocol.TypeAgentRegister,
		h.src(),
		protocol.Address{Role: protocol.RoleCore},
		&protocol.AgentRegister{
			NodeID:   h.nodeID,
			Cluster:  h.cluster,
			Hostname: hostname,
			Version:  h.version,
			Groups:   h.groups(),
		},
	)
	if err != nil {
		log.Printf("heartbeater: build register: %v", err)
		return
	}
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send register: %v", err)
	} else {
		log.Printf("heartbeater: sent agent.register (node=%s)", h.nodeID)
	}
}

func (h *Heartbeater) sendHeartbeat() {
	uptime := int64(time.Since(h.startTime).Seconds())
	env, err := protocol.NewEnvelope(
		protocol.TypeAgentHeartbeat,
		h.src(),
		protocol.Address{Role: protocol.RoleCore},
		&protocol.AgentHeartbeat{
			NodeID:   h.nodeID,
			Uptime:   uptime,
			Devices:  h.deviceCount(),
			Reserved: h.reservedCount(),
		},
	)
	if err != nil {
		log.Printf("heartbeater: build heartbeat: %v", err)
		return
	}
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send heartbeat: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}
