// acsauto drives the ACS Device Configuration tool from recorded macros.
//
// It locates the tool's controls on screen by template matching, runs
// operator macros against them and steps a work-list of device UIDs
// through the commissioning forms. Operators trigger runs from hotkeys,
// the browser panel, the REST API or MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/acs-auto/internal/acs"
	"github.com/nerrad567/acs-auto/internal/api"
	"github.com/nerrad567/acs-auto/internal/dataset"
	"github.com/nerrad567/acs-auto/internal/desktop"
	"github.com/nerrad567/acs-auto/internal/hotkey"
	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/infrastructure/database"
	"github.com/nerrad567/acs-auto/internal/infrastructure/influxdb"
	"github.com/nerrad567/acs-auto/internal/infrastructure/logging"
	"github.com/nerrad567/acs-auto/internal/infrastructure/mqtt"
	"github.com/nerrad567/acs-auto/internal/locator"
	"github.com/nerrad567/acs-auto/internal/macro"
	"github.com/nerrad567/acs-auto/internal/panel"
	"github.com/nerrad567/acs-auto/internal/process"
	"github.com/nerrad567/acs-auto/internal/script"
	"github.com/nerrad567/acs-auto/internal/session"
	"github.com/nerrad567/acs-auto/internal/stop"
	"github.com/nerrad567/acs-auto/internal/vision"
	"github.com/nerrad567/acs-auto/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// runDrainTimeout bounds how long shutdown waits for a stopped run to
// reach a step boundary.
const runDrainTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting acsauto",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	settings, regenerated, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if regenerated {
		log.Warn("configuration file was unreadable, defaults written", "path", configPath)
	}
	cfg := settings.Snapshot()
	log.Info("configuration loaded", "path", configPath, "station", cfg.Station.ID)

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	history := macro.NewSQLiteRepository(db.DB)
	macros := macro.NewStore(macroRepository(cfg.Macros, history))
	macros.SetLogger(log)
	regenerated, err = macros.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading macros: %w", err)
	}
	if regenerated {
		log.Warn("macro store was unreadable, default macros written", "backend", cfg.Macros.Backend)
	}

	influxClient, err := connectInfluxDB(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	// Desktop automation
	stopSignal := stop.New()
	windows := desktop.NewWindows(cfg.Target)
	locDeps := locator.Deps{
		Settings:  settings,
		Templates: vision.NewLibrary(settings, log),
		Screen:    desktop.NewScreen(),
		Input:     desktop.NewInput(),
		Stop:      stopSignal,
		Logger:    log,
	}
	if influxClient != nil {
		locDeps.Metrics = influxClient
	}
	loc, err := locator.New(locDeps)
	if err != nil {
		return fmt.Errorf("creating locator: %w", err)
	}
	workflow := acs.NewWorkflow(loc, settings, windows, log)
	cursor := dataset.NewCursor(cfg.Dataset.AutoIncrement)

	// Operator panel
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	queue := panel.NewQueue(panel.NewModel(), 0, hub, log)

	// Macro runner
	listeners := []macro.RunListener{hub}
	if mqttClient != nil {
		publisher := mqtt.NewRunPublisher(mqttClient, cfg.Station.ID, log)
		listeners = append(listeners, publisher)
		go func() {
			if runErr := publisher.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error("run event publisher stopped", "error", runErr)
			}
		}()
	}
	if influxClient != nil {
		listeners = append(listeners, influxClient)
	}
	runner, err := macro.NewRunner(macro.RunnerDeps{
		Interpreter: script.NewInterpreter(settings),
		Stop:        stopSignal,
		Handles: map[string]any{
			macro.VarACS:     workflow,
			macro.VarDataset: cursor,
		},
		Runs:      history,
		Listeners: listeners,
		Logger:    log,
	})
	if err != nil {
		queue.Close()
		return fmt.Errorf("creating runner: %w", err)
	}
	defer func() {
		queue.Close()
		runner.Close()
	}()

	controller, err := session.New(session.Deps{
		Macros:  macros,
		Runner:  runner,
		Cursor:  cursor,
		Panel:   queue,
		Stop:    stopSignal,
		Clicker: workflow,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if cfg.Dataset.ImportPath != "" {
		rows, importErr := controller.ImportFile(cfg.Dataset.ImportPath, cfg.Dataset.Sheet)
		if importErr != nil {
			log.Warn("startup dataset import failed", "path", cfg.Dataset.ImportPath, "error", importErr)
		} else {
			log.Info("dataset imported", "path", cfg.Dataset.ImportPath, "rows", rows)
		}
	}
	controller.RefreshDataset()

	// Trigger sources
	if cfg.Hotkeys.Enabled {
		binder := hotkey.New(cfg.Hotkeys, hotkey.NewGoHook(), controller, log)
		go func() {
			if runErr := binder.Run(ctx); runErr != nil {
				log.Error("hotkeys unavailable", "error", runErr)
			}
		}()
	} else {
		log.Info("hotkeys disabled")
	}

	if mqttClient != nil {
		commands := mqtt.NewCommandListener(mqttClient, cfg.Station.ID, controller, log)
		if startErr := commands.Start(); startErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", startErr)
		}
		defer func() {
			if stopErr := commands.Stop(); stopErr != nil {
				log.Error("error unsubscribing MQTT commands", "error", stopErr)
			}
		}()
	}

	if cfg.Target.Launch.Enabled {
		manager, startErr := startTarget(ctx, cfg.Target, windows, log)
		if startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("stopping target application")
			if stopErr := manager.Stop(); stopErr != nil {
				log.Error("error stopping target application", "error", stopErr)
			}
		}()
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Station:     cfg.Station,
			Logger:      log,
			Controller:  controller,
			Macros:      macros,
			Runner:      runner,
			RunHistory:  history,
			Settings:    settings,
			Panel:       queue.Model(),
			DB:          db,
			ExternalHub: hub,
			Version:     version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}
		server, newErr := api.New(deps)
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// The panel queue owns the main goroutine until shutdown.
	if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("panel queue: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	drainRun(queue, runner, stopSignal, log, runDrainTimeout)

	log.Info("acsauto stopped")
	return nil
}

// drainRun stops the run in progress and waits up to timeout for it to
// finish. The panel queue is closed first: nothing consumes it any more, and
// a finishing run posting to a full buffer would otherwise never return.
func drainRun(queue *panel.Queue, runner *macro.Runner, stopSignal *stop.Signal, log *logging.Logger, timeout time.Duration) {
	queue.Close()
	stopSignal.Set()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := runner.Wait(ctx); err != nil {
		log.Warn("run still in progress at shutdown", "error", err)
	}
}

// getConfigPath returns the configuration file path.
// Uses ACSAUTO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACSAUTO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// macroRepository picks the macro backend. Run history always lives in
// SQLite; the json backend only moves the macro document to a file.
func macroRepository(cfg config.MacrosConfig, sqlite *macro.SQLiteRepository) macro.Repository {
	if cfg.Backend == config.MacroBackendJSON {
		return macro.NewFileRepository(cfg.File)
	}
	return sqlite
}

// connectInfluxDB returns nil when InfluxDB is disabled.
func connectInfluxDB(cfg config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Station.ID)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// connectMQTT returns nil when MQTT is disabled.
func connectMQTT(cfg config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}
	client, err := mqtt.Connect(cfg.MQTT, cfg.Station.ID)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// startTarget launches the ACS tool and supervises it, restarting it when
// its window disappears.
func startTarget(ctx context.Context, target config.TargetConfig, windows *desktop.Windows, log *logging.Logger) (*process.Manager, error) {
	procCfg := process.FromLaunch("acs-tool", target.Launch)
	procCfg.HealthCheckFunc = process.WindowCheck(windows)

	manager := process.NewManager(procCfg)
	manager.SetLogger(log)
	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting target application: %w", err)
	}
	log.Info("target application started", "binary", target.Launch.Binary)
	return manager, nil
}

// healthCheck verifies the infrastructure connections. The optional
// clients may be nil.
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
