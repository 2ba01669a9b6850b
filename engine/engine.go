package engine

import (
	"sync"
	"time"

	"gantry/config"
	"gantry/devices"
	"gantry/protocol"
	"gantry/reservation"
	"gantry/store"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Engine centralizes all business logic and orchestrates subsystems.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	logFn      LogFunc
	debugFn    LogFunc

	devMgr   *devices.Manager
	resTable *reservation.Table
	bridge   *devices.BridgeProvider

	Events   *EventBus
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	LogFunc    LogFunc
	Debug      bool
}

// New creates a new Engine. Call Start() to initialize and wire subsystems.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		logFn:      logFn,
		debugFn:    debugFn,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
}

// Start creates all managers, wires event handlers, and starts the
// fingerprint and stats loops.
func (e *Engine) Start() {
	devEmit := &deviceEmitter{bus: e.Events}
	resEmit := &reservationEmitter{bus: e.Events}

	e.bridge = devices.NewBridgeProvider(&e.cfg.Bridge, devEmit)
	e.devMgr = devices.NewManager(devEmit,
		devices.NewStaticProvider(e.cfg.StaticGroups),
		e.bridge,
	)
	e.resTable = reservation.New(e.devMgr, resEmit)

	e.wireEventHandlers()

	// Seed the catalog before the first tick so early HTTP requests and
	// the register message see real devices.
	cat := e.devMgr.Fingerprint()
	e.Events.Publish(EventCatalogSnapshot, CatalogSnapshotEvent{Catalog: cat})

	e.wg.Add(2)
	go e.fingerprintLoop()
	go e.statsLoop()

	e.logFn("Engine started: namespace=%s node=%s devices=%d bridge_enabled=%v",
		e.cfg.Namespace, e.cfg.NodeName, e.devMgr.DeviceCount(), e.cfg.Bridge.Enabled)
}

// Stop shuts down the periodic loops and waits for them to exit.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	e.wg.Wait()
	e.logFn("Engine stopped")
}

func (e *Engine) fingerprintLoop() {
	defer e.wg.Done()
	period := e.cfg.FingerprintPeriod
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			cat := e.devMgr.Fingerprint()
			e.debugFn("fingerprint tick: devices=%d error=%q", len(cat.DeviceIDs()), cat.Error)
			e.Events.Publish(EventCatalogSnapshot, CatalogSnapshotEvent{Catalog: cat})
		}
	}
}

func (e *Engine) statsLoop() {
	defer e.wg.Done()
	interval := e.cfg.StatsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			resp := e.devMgr.Stats()
			e.Events.Publish(EventStatsSampled, StatsSampledEvent{Response: resp})
		}
	}
}

// Fingerprint enumerates all providers and returns the current catalog.
func (e *Engine) Fingerprint() protocol.Catalog {
	return e.devMgr.Fingerprint()
}

// Stats collects and returns current per-device statistics.
func (e *Engine) Stats() protocol.StatsResponse {
	return e.devMgr.Stats()
}

// Reserve attempts to bind the given device IDs to the holder.
func (e *Engine) Reserve(deviceIDs []string, holder string) *protocol.ReservationResult {
	return e.resTable.Reserve(deviceIDs, holder)
}

// Release returns the given devices to the free pool.
func (e *Engine) Release(deviceIDs []string) map[string]string {
	return e.resTable.Release(deviceIDs)
}

// ReleaseHolder releases every device held by the given holder.
func (e *Engine) ReleaseHolder(holder string) []string {
	return e.resTable.ReleaseHolder(holder)
}

// DB returns the engine's store handle.
func (e *Engine) DB() *store.DB { return e.db }

// AppConfig returns the application config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

// ConfigPath returns the path the config was loaded from.
func (e *Engine) ConfigPath() string { return e.configPath }

// Devices returns the device manager.
func (e *Engine) Devices() *devices.Manager { return e.devMgr }

// Reservations returns the reservation table.
func (e *Engine) Reservations() *reservation.Table { return e.resTable }

// BridgeConnected reports whether the driver bridge is reachable.
func (e *Engine) BridgeConnected() bool {
	return e.bridge != nil && e.bridge.Connected()
}
