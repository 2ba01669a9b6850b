package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gantry/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// transport is the backend-specific half of the messaging client. Each
// implementation owns its broker connection; Client adds locking and the
// envelope layer on top.
type transport interface {
	connect() error
	publish(topic string, payload []byte) error
	subscribe(topic string, handler func(payload []byte)) error
	connected() bool
	close()
}

// Client publishes telemetry and receives commands over the configured
// backend. The zero value is not usable; construct with NewClient.
type Client struct {
	mu sync.RWMutex
	tr transport
}

// NewClient builds a client for the configured backend. An unrecognized
// backend is reported by Connect rather than here, so callers can construct
// unconditionally and fail at startup.
func NewClient(cfg *config.MessagingConfig) *Client {
	c := &Client{}
	switch cfg.Backend {
	case "mqtt":
		c.tr = &mqttTransport{cfg: &cfg.MQTT}
	case "kafka":
		c.tr = &kafkaTransport{cfg: &cfg.Kafka, fallbackGroup: cfg.MQTT.ClientID}
	}
	return c
}

// Connect establishes the backend connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return fmt.Errorf("unknown messaging backend")
	}
	return c.tr.connect()
}

// Publish sends a raw payload to the given topic.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tr == nil {
		return fmt.Errorf("unknown messaging backend")
	}
	return c.tr.publish(topic, payload)
}

// PublishEnvelope encodes and publishes a protocol envelope to the given topic.
func (c *Client) PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

// Subscribe registers a handler for messages on the inbound topic.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return fmt.Errorf("unknown messaging backend")
	}
	return c.tr.subscribe(topic, handler)
}

// IsConnected reports whether the backend connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tr != nil && c.tr.connected()
}

// Close shuts down the backend connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil {
		c.tr.close()
	}
}

// --- MQTT ---

type mqttTransport struct {
	cfg  *config.MQTTConfig
	conn mqtt.Client
}

func (t *mqttTransport) connect() error {
	broker := fmt.Sprintf("tcp://%s:%d", t.cfg.Broker, t.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(t.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	t.conn = conn
	return nil
}

func (t *mqttTransport) publish(topic string, payload []byte) error {
	if t.conn == nil || !t.conn.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	token := t.conn.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

func (t *mqttTransport) subscribe(topic string, handler func(payload []byte)) error {
	if t.conn == nil {
		return fmt.Errorf("mqtt not connected")
	}
	token := t.conn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (t *mqttTransport) connected() bool {
	return t.conn != nil && t.conn.IsConnected()
}

func (t *mqttTransport) close() {
	if t.conn != nil {
		t.conn.Disconnect(1000)
		t.conn = nil
	}
}

// --- Kafka ---

type kafkaTransport struct {
	cfg           *config.KafkaConfig
	fallbackGroup string
	writer        *kafkago.Writer
	reader        *kafkago.Reader
}

func (t *kafkaTransport) connect() error {
	t.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(t.cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return nil
}

func (t *kafkaTransport) publish(topic string, payload []byte) error {
	if t.writer == nil {
		return fmt.Errorf("kafka writer not initialized")
	}
	return t.writer.WriteMessages(context.Background(), kafkago.Message{
		Topic: topic,
		Value: payload,
	})
}

func (t *kafkaTransport) subscribe(topic string, handler func(payload []byte)) error {
	groupID := t.cfg.GroupID
	if groupID == "" {
		groupID = t.fallbackGroup
	}
	t.reader = kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: t.cfg.Brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	go func() {
		for {
			msg, err := t.reader.ReadMessage(context.Background())
			if err != nil {
				log.Printf("kafka read: %v", err)
				return
			}
			handler(msg.Value)
		}
	}()
	return nil
}

func (t *kafkaTransport) connected() bool {
	return t.writer != nil
}

func (t *kafkaTransport) close() {
	if t.writer != nil {
		t.writer.Close()
		t.writer = nil
	}
	if t.reader != nil {
		t.reader.Close()
		t.reader = nil
	}
}
