package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	Namespace string `yaml:"namespace"`
	NodeName  string `yaml:"node_name"`

	FingerprintPeriod time.Duration `yaml:"fingerprint_period"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
	SampleRetention   int           `yaml:"sample_retention"` // stat samples kept per device

	Database  DatabaseConfig  `yaml:"database"`
	Web       WebConfig       `yaml:"web"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Messaging MessagingConfig `yaml:"messaging"`
	Redis     RedisConfig     `yaml:"redis"`

	// StaticGroups are device groups declared directly in config, served
	// alongside anything the bridge discovers.
	StaticGroups []StaticGroupConfig `yaml:"static_groups"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig defines the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig defines the PostgreSQL connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// WebConfig defines the HTTP server settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// BridgeConfig defines the driver-bridge connection used for live device
// discovery and statistics.
type BridgeConfig struct {
	URL      string        `yaml:"url"       json:"url"`
	// PollRate bounds how often the bridge is fetched; responses are
	// cached and re-served in between. Zero fetches on every call.
	PollRate time.Duration `yaml:"poll_rate" json:"poll_rate"`
	Enabled  bool          `yaml:"enabled"   json:"enabled"`
}

// MessagingConfig defines the fleet messaging backend.
type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	TelemetryTopic      string        `yaml:"telemetry_topic"`
	CommandTopic        string        `yaml:"command_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	NodeID              string        `yaml:"node_id"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// RedisConfig defines the optional fleet state mirror.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StaticGroupConfig declares a device group in config.
type StaticGroupConfig struct {
	Vendor     string               `yaml:"vendor"`
	Type       string               `yaml:"type"`
	Name       string               `yaml:"name"`
	Attributes map[string]string    `yaml:"attributes"`
	Devices    []StaticDeviceConfig `yaml:"devices"`
}

// StaticDeviceConfig declares one device instance and its runtime bindings.
type StaticDeviceConfig struct {
	ID          string             `yaml:"id"`
	PCIBusID    string             `yaml:"pci_bus_id"`
	Env         map[string]string  `yaml:"env"`
	Mounts      []MountConfig      `yaml:"mounts"`
	DeviceNodes []DeviceNodeConfig `yaml:"device_nodes"`
}

// MountConfig declares a filesystem mount granted on reservation.
type MountConfig struct {
	TaskPath string `yaml:"task_path"`
	HostPath string `yaml:"host_path"`
	ReadOnly bool   `yaml:"read_only"`
}

// DeviceNodeConfig declares a device-node grant.
type DeviceNodeConfig struct {
	TaskPath    string `yaml:"task_path"`
	HostPath    string `yaml:"host_path"`
	CgroupPerms string `yaml:"cgroup_perms"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Namespace:         "default",
		NodeName:          "node-1",
		FingerprintPeriod: time.Minute,
		StatsInterval:     10 * time.Second,
		SampleRetention:   1000,
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "gantry.db"},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 5656,
		},
		Bridge: BridgeConfig{
			URL:      "http://localhost:9377",
			PollRate: 10 * time.Second,
			Enabled:  false,
		},
		Messaging: MessagingConfig{
			Backend:             "mqtt",
			TelemetryTopic:      "gantry/telemetry",
			CommandTopic:        "gantry/commands",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// NodeID returns the configured node ID, or derives one from namespace.node_name.
func (c *Config) NodeID() string {
	if c.Messaging.NodeID != "" {
		return c.Messaging.NodeID
	}
	return c.Namespace + "." + c.NodeName
}

// KafkaGroupID returns a consumer group unique to this node so every agent
// sees all command messages.
func (c *Config) KafkaGroupID() string {
	if c.Messaging.Kafka.GroupID != "" {
		return c.Messaging.Kafka.GroupID
	}
	return "gantry-" + c.NodeID()
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
