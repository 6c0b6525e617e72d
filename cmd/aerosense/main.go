// AeroSense Core - Air Quality Device Relay
//
// This is the main entry point for the AeroSense relay: the always-on
// service that bridges air quality sensors on the local MQTT broker to
// the hosted document store, evaluates alert thresholds and fans live
// telemetry out to interactive clients over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/aerosense-io/aerosense-core/migrations"

	"github.com/aerosense-io/aerosense-core/internal/alert"
	"github.com/aerosense-io/aerosense-core/internal/auth"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/database"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/influxdb"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/mqtt"
	"github.com/aerosense-io/aerosense-core/internal/registry"
	"github.com/aerosense-io/aerosense-core/internal/relay"
	"github.com/aerosense-io/aerosense-core/internal/store"
	"github.com/aerosense-io/aerosense-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AeroSense relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open the local database and bring the schema current. The relay
	// keeps only notification settings and the alert log here; device
	// state lives in the hosted store.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Open the document store backend.
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store connected", "backend", cfg.Store.Backend)

	deviceRegistry := registry.New(st, log)

	// Connect to the MQTT broker.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional telemetry mirror).
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the alert engine on the local database.
	notifier, err := buildNotifier(ctx, cfg.Alerts.FCM, log)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	alertEngine := alert.NewEngine(
		cfg.Alerts,
		alert.NewSettingsRepository(db),
		alert.NewHistoryRepository(db),
		notifier,
		log,
	)
	if influxClient != nil {
		alertEngine.SetMirror(influxClient)
	}

	// Wire the telemetry bridge.
	bridge := telemetry.New(mqttClient, st, alertEngine, log)
	if influxClient != nil {
		bridge.SetMirror(influxClient)
	}

	// The relay server fans device traffic out to interactive clients
	// and accepts their commands.
	var verifier auth.Verifier
	var access relay.AccessChecker
	if cfg.Relay.RequireAuth {
		fb, authErr := auth.NewFirebase(ctx, cfg.Store.ProjectID, cfg.Store.CredentialsFile)
		if authErr != nil {
			return fmt.Errorf("creating token verifier: %w", authErr)
		}
		verifier = fb
		access = deviceRegistry
	}
	hub := relay.NewHub(log)
	relayServer := relay.NewServer(cfg.Relay, hub, bridge, verifier, access, log)
	bridge.SetForwarder(hub)

	if err := bridge.Start(); err != nil {
		return fmt.Errorf("starting telemetry bridge: %w", err)
	}
	log.Info("telemetry bridge started")

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete")

	// Blocks until the shutdown signal arrives, then the defer chain
	// unwinds: InfluxDB, MQTT, store, database.
	if err := relayServer.Start(ctx); err != nil {
		return fmt.Errorf("relay server: %w", err)
	}

	log.Info("AeroSense relay stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AEROSENSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AEROSENSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore selects the document store backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.NewFirestore(ctx, cfg.ProjectID, cfg.CredentialsFile)
	}
}

// buildNotifier returns the push notifier, or the log notifier when
// push delivery is not configured.
func buildNotifier(ctx context.Context, cfg config.FCMConfig, log *logging.Logger) (alert.Notifier, error) {
	if !cfg.Enabled {
		log.Info("push notifications disabled, alerts go to the log")
		return alert.NewLogNotifier(log), nil
	}
	return alert.NewFCMNotifier(ctx, cfg.CredentialsFile, cfg.Topic, log)
}

// healthCheck verifies the infrastructure connections.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
