// onewired - 1-Wire home automation daemon
//
// This is the main entry point for the daemon. It polls 1-Wire sensor
// boards (DS2413) for PIR and switch edges, drives relay boards (DS2408)
// and Yeelight bulbs through per-actuator hold timers, and exposes the
// whole thing over HTTP, WebSocket, and (optionally) MQTT and InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/mzagorski/onewired/migrations"

	"github.com/mzagorski/onewired/internal/api"
	"github.com/mzagorski/onewired/internal/automation"
	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/infrastructure/config"
	"github.com/mzagorski/onewired/internal/infrastructure/database"
	"github.com/mzagorski/onewired/internal/infrastructure/influxdb"
	"github.com/mzagorski/onewired/internal/infrastructure/logging"
	"github.com/mzagorski/onewired/internal/infrastructure/mqtt"
	"github.com/mzagorski/onewired/internal/loader"
	"github.com/mzagorski/onewired/internal/onewire"
	"github.com/mzagorski/onewired/internal/store"
	"github.com/mzagorski/onewired/internal/yeelight"
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

// Fallback queue capacities when config leaves them zero.
const (
	defaultEventQueueSize = 64
	defaultStateQueueSize = 64
)

// statsInterval is the cadence of engine-cycle statistics writes to InfluxDB.
const statsInterval = time.Minute

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting onewired",
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

	repo := store.NewRepository(db)

	// Device registries, shared between the engine, loader, and API.
	sensors := device.NewSensorDevices()
	sensors.SetLogger(log)
	relays := device.NewRelayDevices()
	relays.SetLogger(log)

	// Yeelight transport for WiFi bulbs.
	bulbs := yeelight.NewController(yeelight.WithLogger(log))
	relays.SetLightTransport(bulbs)

	// Load device definitions into the registries.
	ldr := loader.New(cfg.Daemon.DevicesFile, sensors, relays)
	ldr.SetLogger(log)
	if loadErr := ldr.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading devices: %w", loadErr)
	}
	sensorBoards, sensorCount := sensors.Counts()
	relayBoards, relayCount, lightCount := relays.Counts()
	log.Info("devices loaded",
		"path", cfg.Daemon.DevicesFile,
		"sensor_boards", sensorBoards,
		"sensors", sensorCount,
		"relay_boards", relayBoards,
		"relays", relayCount,
		"lights", lightCount,
	)

	// 1-Wire bus over the owfs-style filesystem.
	bus := onewire.NewFilesystemBus(cfg.OneWire.MountPath)
	defer func() {
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing 1-wire bus", "error", closeErr)
		}
	}()
	log.Info("1-wire bus ready", "mount", cfg.OneWire.MountPath)

	// Queues between the engine and its consumers.
	events := make(chan store.Event, queueSize(cfg.Engine.EventQueueSize, defaultEventQueueSize))
	states := make(chan automation.StateChange, queueSize(cfg.Engine.StateQueueSize, defaultStateQueueSize))

	engine := automation.New(automation.Config{
		Sensors:  sensors,
		Relays:   relays,
		Bus:      bus,
		Events:   events,
		States:   states,
		Interval: time.Duration(cfg.Engine.PollInterval) * time.Microsecond,
		Logger:   log,
	})

	// Persistence worker: counters and device reloads.
	worker := store.NewWorker(store.WorkerConfig{
		Events:   events,
		Repo:     repo,
		Reloader: ldr,
		Logger:   log,
	})
	go worker.Run(ctx)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Accept toggle commands from the broker.
		if subErr := subscribeCommands(mqttClient, engine, log); subErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
		}
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		go cycleStatsLoop(ctx, engine, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// HTTP API and WebSocket hub.
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Sensors: sensors,
		Relays:  relays,
		Engine:  engine,
		Repo:    repo,
		Events:  events,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Fan actuator state changes out to WebSocket, MQTT, and InfluxDB.
	go broadcastStates(ctx, states, apiServer.Hub(), mqttClient, influxClient, log)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start the control loop.
	go engine.Run(ctx)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. 1-Wire bus
	// 5. Database

	log.Info("onewired stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ONEWIRED_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ONEWIRED_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// queueSize returns the configured capacity, or fallback when unset.
func queueSize(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// subscribeCommands wires MQTT command topics to the engine's manual toggles.
//
// Any message on onewired/command/{relay|light}/{id} toggles that actuator;
// the payload is ignored. Debounce rejections are logged at debug level since
// a repeated command within the window is expected chatter, not a fault.
func subscribeCommands(client *mqtt.Client, engine *automation.Engine, log *logging.Logger) error {
	return client.Subscribe(mqtt.Topics{}.AllCommands(), 1, func(topic string, _ []byte) error {
		parts := strings.Split(topic, "/")
		if len(parts) != 4 {
			return fmt.Errorf("malformed command topic %q", topic)
		}
		kind := parts[2]
		id, err := strconv.Atoi(parts[3])
		if err != nil {
			return fmt.Errorf("malformed actuator id in topic %q: %w", topic, err)
		}

		switch kind {
		case mqtt.KindRelay:
			err = engine.ToggleRelay(id, "mqtt")
		case mqtt.KindLight:
			err = engine.ToggleLight(id, "mqtt")
		default:
			return fmt.Errorf("unknown actuator kind %q in topic %q", kind, topic)
		}
		if err != nil {
			if errors.Is(err, automation.ErrToggleDebounced) {
				log.Debug("MQTT toggle debounced", "topic", topic)
				return nil
			}
			return err
		}
		return nil
	})
}

// statePayload is the JSON shape broadcast to MQTT state topics.
type statePayload struct {
	Kind      string `json:"kind"`
	ID        int    `json:"id"`
	Name      string `json:"name"`
	On        bool   `json:"on"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// broadcastStates drains the engine's state-change queue and fans each change
// out to the WebSocket hub, the MQTT state topics (retained), and InfluxDB.
//
// All sinks are best-effort: a slow or broken sink never blocks the engine
// because the queue itself is fed with non-blocking sends.
func broadcastStates(
	ctx context.Context,
	states <-chan automation.StateChange,
	hub *api.Hub,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	log *logging.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case sc := <-states:
			if hub != nil {
				hub.Broadcast(api.ChannelStateChanged, sc)
			}

			if mqttClient != nil {
				payload, err := json.Marshal(statePayload{
					Kind:      sc.Kind,
					ID:        sc.ID,
					Name:      sc.Name,
					On:        sc.Energized,
					Source:    sc.Source,
					Timestamp: sc.At.UTC().Format(time.RFC3339),
				})
				if err == nil {
					topic := mqtt.Topics{}.ActuatorState(sc.Kind, sc.ID)
					if pubErr := mqttClient.PublishRetained(topic, payload); pubErr != nil {
						log.Warn("MQTT state publish failed", "topic", topic, "error", pubErr)
					}
				}
			}

			if influxClient != nil {
				influxClient.WriteActuatorState(sc.Kind, sc.ID, sc.Name, sc.Energized, sc.Source)
			}
		}
	}
}

// cycleStatsLoop periodically records engine progress to InfluxDB.
func cycleStatsLoop(ctx context.Context, engine *automation.Engine, influxClient *influxdb.Client) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influxClient.WriteCycleStats(engine.CycleCount(), engine.EventsDropped())
		}
	}
}
