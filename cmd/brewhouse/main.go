// BrewHouse Core - Brewing Appliance Telemetry Service
//
// This is the main entry point for the BrewHouse Core application.
// BrewHouse Core is the server side of a connected home-brewing setup:
//   - Registers brewing and fermentation appliances over their native
//     HTTP text protocol
//   - Drives sessions through their lifecycle state machine
//   - Captures brewing and fermentation telemetry into bucketed storage
//   - Fans events out over WebSocket, MQTT and InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/picobrewhouse/brewhouse-core/migrations"

	"github.com/picobrewhouse/brewhouse-core/internal/api"
	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/config"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/database"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/influxdb"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/logging"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/mqtt"
	"github.com/picobrewhouse/brewhouse-core/internal/session"
	"github.com/picobrewhouse/brewhouse-core/internal/timeseries"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting BrewHouse Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Wire the domain: registry, telemetry store, session manager
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), log)
	store := timeseries.NewStore(db.DB, 0)
	sessions := session.NewManager(session.NewSQLiteRepository(db.DB), registry, store, log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			mqttClient.Close()
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Event fan-out: WebSocket hub, MQTT, InfluxDB
	hub := api.NewHub(log)
	go hub.Run(ctx)

	publisher := api.NewEventPublisher(hub, mqttClient, influxClient, log)
	sessions.SetEventSink(publisher)

	// Start API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Firmware: cfg.Firmware,
		Logger:   log,
		Registry: registry,
		Sessions: sessions,
		DB:       db,
		Events:   publisher,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("BrewHouse Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BREWHOUSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BREWHOUSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
