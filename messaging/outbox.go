package messaging

import (
	"log"
	"sync"
	"time"

	"gantry/config"
	"gantry/store"
)

// Publisher is the slice of the messaging client the drainer needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

const (
	drainBatchSize = 50
	// maxPublishAttempts bounds retries for a single outbox row; a message
	// the broker keeps rejecting is abandoned rather than wedging the queue.
	maxPublishAttempts = 20
)

// OutboxDrainer flushes the store-backed outbox to the broker. Events are
// written to the outbox first and sent from here, so telemetry survives
// broker outages; the drainer simply idles while the client is disconnected.
type OutboxDrainer struct {
	db       *store.DB
	pub      Publisher
	cfg      *config.MessagingConfig
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewOutboxDrainer creates a drainer over the given publisher.
func NewOutboxDrainer(db *store.DB, pub Publisher, cfg *config.MessagingConfig) *OutboxDrainer {
	return &OutboxDrainer{
		db:       db,
		pub:      pub,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start begins the drain loop.
func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.drainLoop()
}

// Stop stops the drain loop.
func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) drainLoop() {
	defer d.wg.Done()

	interval := d.cfg.OutboxDrainInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			if sent, failed := d.drain(); failed > 0 {
				log.Printf("outbox drain: sent=%d failed=%d", sent, failed)
			}
		}
	}
}

// drain sends one batch of pending messages. It is a no-op while the
// publisher is disconnected; pending rows stay queued for the next tick.
func (d *OutboxDrainer) drain() (sent, failed int) {
	if !d.pub.IsConnected() {
		return 0, 0
	}

	msgs, err := d.db.ListPendingOutbox(drainBatchSize)
	if err != nil {
		log.Printf("list pending outbox: %v", err)
		return 0, 0
	}

	for _, msg := range msgs {
		if msg.Retries >= maxPublishAttempts {
			log.Printf("outbox msg %d (%s): abandoned after %d attempts", msg.ID, msg.MsgType, msg.Retries)
			d.db.AckOutbox(msg.ID)
			continue
		}
		topic := msg.Topic
		if topic == "" {
			topic = d.cfg.TelemetryTopic
		}
		if err := d.pub.Publish(topic, msg.Payload); err != nil {
			log.Printf("publish outbox msg %d: %v", msg.ID, err)
			d.db.IncrementOutboxRetries(msg.ID)
			failed++
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("ack outbox msg %d: %v", msg.ID, err)
		}
		sent++
	}
	return sent, failed
}
