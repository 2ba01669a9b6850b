// Package fleet mirrors this agent's state into Redis so cluster tooling can
// read catalogs and reservations without querying every agent directly. The
// mirror is write-through and best-effort: the agent is always authoritative,
// and a Redis outage only degrades fleet visibility.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"gantry/engine"
	"gantry/protocol"
	"gantry/reservation"
)

// NodeMeta is the per-node summary stored alongside the full catalog.
type NodeMeta struct {
	NodeID    string    `json:"node_id"`
	Cluster   string    `json:"cluster"`
	Devices   int       `json:"devices"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mirror writes this node's catalog and holdings into Redis.
type Mirror struct {
	client  *redis.Client
	nodeID  string
	cluster string
}

// NewMirror creates a mirror for the given node identity.
func NewMirror(client *redis.Client, nodeID, cluster string) *Mirror {
	return &Mirror{client: client, nodeID: nodeID, cluster: cluster}
}

func catalogKey(nodeID string) string {
	return fmt.Sprintf("gantry:node:%s:catalog", nodeID)
}

func holdingsKey(nodeID string) string {
	return fmt.Sprintf("gantry:node:%s:holdings", nodeID)
}

func metaKey(nodeID string) string {
	return fmt.Sprintf("gantry:node:%s:meta", nodeID)
}

const allNodesKey = "gantry:nodes"

// SetCatalog stores the node's full catalog and registers the node.
func (m *Mirror) SetCatalog(ctx context.Context, cat protocol.Catalog) error {
	data, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	pipe := m.client.Pipeline()
	pipe.Set(ctx, catalogKey(m.nodeID), data, 0)
	pipe.SAdd(ctx, allNodesKey, m.nodeID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetCatalog reads a node's catalog. Returns nil when the node is unknown.
func (m *Mirror) GetCatalog(ctx context.Context, nodeID string) (*protocol.Catalog, error) {
	data, err := m.client.Get(ctx, catalogKey(nodeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cat protocol.Catalog
	return &cat, json.Unmarshal(data, &cat)
}

// SetHoldings stores the node's current reservation holdings.
func (m *Mirror) SetHoldings(ctx context.Context, holdings []reservation.Holding) error {
	data, err := json.Marshal(holdings)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, holdingsKey(m.nodeID), data, 0).Err()
}

// GetHoldings reads a node's holdings.
func (m *Mirror) GetHoldings(ctx context.Context, nodeID string) ([]reservation.Holding, error) {
	data, err := m.client.Get(ctx, holdingsKey(nodeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var holdings []reservation.Holding
	return holdings, json.Unmarshal(data, &holdings)
}

// UpdateMeta stores the node summary.
func (m *Mirror) UpdateMeta(ctx context.Context, devices, reserved int) error {
	data, err := json.Marshal(&NodeMeta{
		NodeID:    m.nodeID,
		Cluster:   m.cluster,
		Devices:   devices,
		Reserved:  reserved,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	pipe := m.client.Pipeline()
	pipe.Set(ctx, metaKey(m.nodeID), data, 0)
	pipe.SAdd(ctx, allNodesKey, m.nodeID)
	_, err = pipe.Exec(ctx)
	return err
}

// Remove deletes this node's keys, for clean shutdown.
func (m *Mirror) Remove(ctx context.Context) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, catalogKey(m.nodeID), holdingsKey(m.nodeID), metaKey(m.nodeID))
	pipe.SRem(ctx, allNodesKey, m.nodeID)
	_, err := pipe.Exec(ctx)
	return err
}

// Attach subscribes the mirror to the engine's event bus. Catalog ticks
// refresh the catalog and meta; reservation events refresh holdings.
func (m *Mirror) Attach(bus *engine.EventBus, holdings func() []reservation.Holding, deviceCount func() int) {
	bus.SubscribeTypes(func(evt engine.Event) {
		snap := evt.Payload.(engine.CatalogSnapshotEvent)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.SetCatalog(ctx, snap.Catalog); err != nil {
			log.Printf("fleet: mirror catalog: %v", err)
			return
		}
		held := holdings()
		if err := m.UpdateMeta(ctx, deviceCount(), len(held)); err != nil {
			log.Printf("fleet: mirror meta: %v", err)
		}
	}, engine.EventCatalogSnapshot)

	bus.SubscribeTypes(func(evt engine.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.SetHoldings(ctx, holdings()); err != nil {
			log.Printf("fleet: mirror holdings: %v", err)
		}
	}, engine.EventReservationGranted, engine.EventReservationReleased)
}
