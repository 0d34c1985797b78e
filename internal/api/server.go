// Package api provides the HTTP REST API and WebSocket server for acsauto.
//
// It exposes macro management, run triggers, dataset navigation and settings
// to the operator panel and to remote tools.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/acs-auto/internal/acs"
	"github.com/nerrad567/acs-auto/internal/dataset"
	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/infrastructure/logging"
	"github.com/nerrad567/acs-auto/internal/macro"
	"github.com/nerrad567/acs-auto/internal/panel"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the operator command surface. *session.Controller implements it.
type Controller interface {
	RunCategory(category macro.Category, source string) (*macro.Run, error)
	ToggleStop() bool
	SetStop(on bool)
	Stopped() bool
	Selections() map[macro.Category]acs.Selection
	SetSelection(category macro.Category, sel acs.Selection) (acs.Selection, error)
	ImportFile(path, sheet string) (int, error)
	JumpTo(field dataset.Field, value string) bool
	SetAutoIncrement(on bool)
	Dataset() dataset.Snapshot
	ClickConfiguration(ctx context.Context, x, y int) error
}

// Macros is the macro store. *macro.Store implements it.
type Macros interface {
	List(category macro.Category) ([]macro.Macro, error)
	Get(category macro.Category, index int) (macro.Macro, error)
	SetActive(ctx context.Context, category macro.Category, index int) error
	Create(ctx context.Context, category macro.Category) (macro.Macro, error)
	Rename(ctx context.Context, category macro.Category, index int, name string) error
	Delete(ctx context.Context, category macro.Category, index int) error
	AddStep(ctx context.Context, category macro.Category, index int, name string) (int, error)
	RenameStep(ctx context.Context, category macro.Category, index, step int, name string) error
	UpdateStepCode(ctx context.Context, category macro.Category, index, step int, code string) error
	DeleteStep(ctx context.Context, category macro.Category, index, step int) error
	MoveStep(ctx context.Context, category macro.Category, index, step, delta int) error
	Export() ([]byte, error)
	Import(ctx context.Context, data []byte) error
}

// Runner exposes the run in progress. *macro.Runner implements it.
type Runner interface {
	Current() *macro.Run
}

// Settings is the live configuration. *config.Store implements it.
type Settings interface {
	Get(section, key, def string) string
	Set(section, key, value string) error
	TemplateKeys() []string
	Candidates(key string) []string
	AddTemplateKey(name string) (string, error)
	RenameTemplateKey(oldKey, newName string) (string, error)
	DeleteTemplateKey(key string) error
	SetCandidates(key string, names []string) error
}

// PanelState returns what the operator panel shows. *panel.Model implements it.
type PanelState interface {
	Snapshot() panel.State
}

// Connection reports whether an optional backend is reachable.
type Connection interface {
	IsConnected() bool
}

// DBStats exposes connection pool statistics. *database.DB implements it.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Station  config.StationConfig
	Logger   *logging.Logger

	Controller Controller
	Macros     Macros
	Runner     Runner
	RunHistory macro.RunRepository // optional: run history endpoints return 501 without it
	Settings   Settings
	Panel      PanelState

	MQTT     Connection // optional, metrics only
	InfluxDB Connection // optional, metrics only
	DB       DBStats    // optional, metrics only

	ExternalHub *Hub   // If set, the server uses this hub instead of creating its own
	PanelDir    string // optional on-disk panel assets
	UploadDir   string // where dataset uploads are staged; os.TempDir() when empty
	Version     string
}

// Server is the HTTP API server for acsauto.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	station config.StationConfig
	logger  *logging.Logger

	controller Controller
	macros     Macros
	runner     Runner
	runHistory macro.RunRepository
	settings   Settings
	panel      PanelState

	mqtt     Connection
	influxdb Connection
	db       DBStats

	panelDir    string
	uploadDir   string
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Controller == nil:
		return nil, fmt.Errorf("session controller is required")
	case deps.Macros == nil:
		return nil, fmt.Errorf("macro store is required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("runner is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings store is required")
	case deps.Panel == nil:
		return nil, fmt.Errorf("panel state is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		station:    deps.Station,
		logger:     deps.Logger,
		controller: deps.Controller,
		macros:     deps.Macros,
		runner:     deps.Runner,
		runHistory: deps.RunHistory,
		settings:   deps.Settings,
		panel:      deps.Panel,
		mqtt:       deps.MQTT,
		influxdb:   deps.InfluxDB,
		db:         deps.DB,
		panelDir:   deps.PanelDir,
		uploadDir:  deps.UploadDir,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	// The panel queue is built before the server and broadcasts through the
	// hub, so main injects it.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the websocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}
	s.hub.SetSnapshot(panel.StateChannel, func() any { return s.panel.Snapshot() })

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
