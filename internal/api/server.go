// Package api provides the HTTP command endpoint and WebSocket event feed
// for the daemon.
//
// It exposes registry snapshots, manual override toggles (routed through the
// engine so debounce and override semantics hold), trigger counters, and a
// configuration reload trigger.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mzagorski/onewired/internal/automation"
	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/infrastructure/config"
	"github.com/mzagorski/onewired/internal/infrastructure/logging"
	"github.com/mzagorski/onewired/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Sensors *device.SensorDevices
	Relays  *device.RelayDevices

	// Engine services manual toggles; nil disables the toggle routes.
	Engine *automation.Engine

	// Repo serves counter queries; nil makes /counters return empty.
	Repo *store.Repository

	// Events is the persistence queue; POST /reload enqueues here.
	Events chan<- store.Event

	Version string
}

// Server is the daemon's HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	sensors *device.SensorDevices
	relays  *device.RelayDevices
	engine  *automation.Engine
	repo    *store.Repository
	events  chan<- store.Event
	version string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sensors == nil || deps.Relays == nil {
		return nil, fmt.Errorf("device registries are required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		sensors: deps.Sensors,
		relays:  deps.Relays,
		engine:  deps.Engine,
		repo:    deps.Repo,
		events:  deps.Events,
		version: deps.Version,
	}, nil
}

// Hub returns the server's WebSocket hub, available after Start(). The
// state-change broadcaster feeds it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight requests
// before forcefully closing remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
