package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gantry/config"
	"gantry/engine"
	"gantry/fleet"
	"gantry/messaging"
	"gantry/store"
	"gantry/www"
)

const version = "dev"

func main() {
	configPath := flag.String("config", "gantry.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *port > 0 {
		cfg.Web.Port = *port
	}

	// Open database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Reservations don't survive restarts; close any audit rows left open
	// by a previous run so history never shows phantom holds.
	if closed, err := db.CloseAllOpenReservations(); err != nil {
		log.Printf("close stale reservations: %v", err)
	} else if closed > 0 {
		log.Printf("closed %d stale reservation records from previous run", closed)
	}

	// Create and start engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		LogFunc:    log.Printf,
		Debug:      *debug,
	})
	eng.Start()
	defer eng.Stop()

	// Ensure Kafka GroupID is set (unique per agent so each sees all commands)
	if cfg.Messaging.Kafka.GroupID == "" {
		cfg.Messaging.Kafka.GroupID = cfg.KafkaGroupID()
	}

	// Telemetry events go through the outbox regardless of broker state.
	messaging.NewTelemetryReporter(db, cfg).Attach(eng.Events)

	// Set up messaging
	msgClient := messaging.NewClient(&cfg.Messaging)
	defer msgClient.Close()

	// The drainer runs regardless of connect outcome: it idles while the
	// client is disconnected and flushes the backlog once the broker is
	// reachable (MQTT auto-reconnects in the background).
	drainer := messaging.NewOutboxDrainer(db, msgClient, &cfg.Messaging)
	drainer.Start()
	defer drainer.Stop()

	if err := msgClient.Connect(); err != nil {
		log.Printf("messaging connect: %v (events queue in outbox until the broker is reachable)", err)
	} else {
		// Inbound commands from core (release on workload teardown)
		sub := messaging.NewSubscriber(msgClient, cfg, messaging.NewAgentHandler(eng.Reservations()))
		if err := sub.Start(); err != nil {
			log.Printf("command subscribe: %v", err)
		} else {
			log.Printf("command subscriber listening on %s (node=%s)", cfg.Messaging.CommandTopic, cfg.NodeID())
		}

		// Heartbeater (registration + periodic heartbeat)
		hb := messaging.NewHeartbeater(msgClient, cfg.NodeID(), cfg.Namespace, version,
			cfg.Messaging.TelemetryTopic,
			func() []string {
				cat := eng.Fingerprint()
				keys := make([]string, 0, len(cat.Groups))
				for i := range cat.Groups {
					keys = append(keys, cat.Groups[i].Key())
				}
				return keys
			},
			eng.Devices().DeviceCount,
			eng.Reservations().Count,
		)
		hb.Start()
		defer hb.Stop()
	}

	// Optional fleet state mirror
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		mirror := fleet.NewMirror(rdb, cfg.NodeID(), cfg.Namespace)
		mirror.Attach(eng.Events, eng.Reservations().Holdings, eng.Devices().DeviceCount)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mirror.Remove(ctx); err != nil {
				log.Printf("fleet mirror remove: %v", err)
			}
		}()
	}

	// Set up HTTP server
	router, stopWeb := www.NewRouter(eng)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	// Start HTTP server
	go func() {
		log.Printf("Gantry agent listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop SSE event hub first so long-lived connections close
	stopWeb()

	// Graceful HTTP shutdown with 10s deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
