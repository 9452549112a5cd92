// Seestar Core - telescope state synchronisation daemon
//
// This is the main entry point for the Seestar Core daemon. It polls a
// Seestar smart telescope, keeps one authoritative snapshot of its state,
// reconciles commands against that snapshot and fans state out to:
//   - the HTTP/WebSocket status API
//   - the MQTT relay (boundary to the hardware-protocol bridge)
//   - the SQLite command audit trail and InfluxDB operational metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/seestar-core/migrations"

	"github.com/nerrad567/seestar-core/internal/api"
	"github.com/nerrad567/seestar-core/internal/audit"
	"github.com/nerrad567/seestar-core/internal/infrastructure/config"
	"github.com/nerrad567/seestar-core/internal/infrastructure/database"
	"github.com/nerrad567/seestar-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/seestar-core/internal/infrastructure/logging"
	"github.com/nerrad567/seestar-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/seestar-core/internal/relay"
	"github.com/nerrad567/seestar-core/internal/telescope"
	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/poller"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/seestar.yaml"

// auditRetention is how long command audit entries are kept.
const auditRetention = 30 * 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("seestar", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "path to the YAML configuration file")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if *showVersion {
		fmt.Printf("seestar %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Seestar Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, explicit := getConfigPath(*configFlag)
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	deviceHost := cfg.Device.Host
	if cfg.Device.Simulate {
		deviceHost = ""
	}
	log = logging.New(cfg.Logging, version).ForDevice(deviceHost, cfg.Device.Port)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	// Open the command audit database (optional)
	var db *database.DB
	var auditRepo *audit.SQLiteRepository
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, database.Config{
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
		auditRepo = audit.NewSQLiteRepository(db.DB)
		if pruned, pruneErr := auditRepo.Prune(ctx, time.Now().Add(-auditRetention)); pruneErr != nil {
			log.Warn("pruning command audit failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("pruned command audit", "entries", pruned)
		}
		log.Info("database ready", "path", cfg.Database.Path)
	} else {
		log.Info("command audit disabled")
	}

	// The hub exists before the coordinator so command results can reach
	// WebSocket clients through the coordinator's recorder.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	core, err := telescope.New(coreOptions(cfg, log, hub, auditRepo, influxClient))
	if err != nil {
		return fmt.Errorf("building telescope core: %w", err)
	}
	defer core.Close()
	if core.Simulator != nil {
		log.Warn("using simulated device", "reason", "device.simulate is set")
	} else {
		log.Info("device configured",
			"host", cfg.Device.Host,
			"port", cfg.Device.Port,
			"device_number", cfg.Device.DeviceNumber,
		)
	}

	// Connect to MQTT and start the relay (optional)
	var mqttClient *mqtt.Client
	var mqttRelay *relay.Relay
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
		mqttClient.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttRelay = relay.New(mqttClient, core.Bus, core.Coordinator, relay.Options{
			Topics:         mqttClient.Topics(),
			QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
			HealthInterval: cfg.MQTT.HealthInterval,
			State:          core.Store,
			PollerHealthy:  core.Poller.Healthy,
			Version:        version,
			Logger:         log.Component("relay"),
		})
		if startErr := mqttRelay.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT relay: %w", startErr)
		}
		defer mqttRelay.Stop()

		// Retained topics may have been lost with the broker session.
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			mqttRelay.Republish()
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT relay disabled")
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(apiDeps(cfg, log, core, hub, db, auditRepo, mqttClient, mqttRelay, influxClient))
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if err := core.Start(ctx); err != nil {
		return err
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, relay, MQTT,
	// telescope core, hub, database, InfluxDB.

	log.Info("Seestar Core stopped")
	return nil
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly. The --config flag wins over SEESTAR_CONFIG, which wins
// over the default.
func getConfigPath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if path := os.Getenv("SEESTAR_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig reads an explicitly chosen file strictly; the default path may
// be missing, in which case built-in defaults apply.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if explicit {
		return config.Load(path)
	}
	return config.LoadOrDefault(path)
}

// coreOptions wires the telescope core's hooks to the optional sinks.
// Nil sinks contribute nothing.
func coreOptions(cfg *config.Config, log *logging.Logger, hub *api.Hub, auditRepo *audit.SQLiteRepository, influxClient *influxdb.Client) telescope.Options {
	opts := telescope.Options{
		Config:    cfg,
		Logger:    log,
		Recorders: []command.Recorder{hub.Recorder()},
	}
	if auditRepo != nil {
		opts.Recorders = append(opts.Recorders, audit.Recorder(auditRepo, log.Component("audit")))
	}
	if influxClient != nil {
		opts.OnCall = func(ci client.CallInfo) {
			influxClient.WriteRequest(influxdb.RequestMetric{
				Endpoint: ci.Endpoint,
				Outcome:  ci.Kind.String(),
				Attempts: ci.Attempts,
				Cached:   ci.Cached,
				Duration: ci.Duration,
			})
		}
		opts.OnCycle = func(ci poller.CycleInfo) {
			influxClient.WritePoll(influxdb.PollMetric{
				Outcome:             ci.Kind.String(),
				Published:           ci.Published,
				Connected:           ci.Connected,
				ConsecutiveFailures: ci.ConsecutiveFailures,
				Duration:            ci.Duration,
			})
		}
		opts.Recorders = append(opts.Recorders, func(res command.Result) {
			influxClient.WriteCommand(influxdb.CommandMetric{
				Kind:     string(res.Kind),
				Status:   string(res.Status),
				Source:   res.Source,
				Duration: res.Duration(),
			})
		})
	}
	return opts
}

// apiDeps collects the API server's dependencies. Optional components are
// only assigned when present so the server never sees a typed nil.
func apiDeps(
	cfg *config.Config,
	log *logging.Logger,
	core *telescope.Core,
	hub *api.Hub,
	db *database.DB,
	auditRepo *audit.SQLiteRepository,
	mqttClient *mqtt.Client,
	mqttRelay *relay.Relay,
	influxClient *influxdb.Client,
) api.Deps {
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Store:       core.Store,
		Coordinator: core.Coordinator,
		Bus:         core.Bus,
		Poller:      core.Poller,
		Client:      core.Client,
		ExternalHub: hub,
		Version:     version,
	}
	if db != nil {
		deps.DB = db.DB
	}
	if auditRepo != nil {
		deps.Audit = auditRepo
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if mqttRelay != nil {
		deps.Relay = mqttRelay
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}
	return deps
}

// healthCheck verifies the enabled infrastructure connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database to check (nil if disabled)
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	var errs []error
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}
