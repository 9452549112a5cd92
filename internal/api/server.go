// Package api provides the HTTP REST API and WebSocket server for Seestar Core.
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
	"sync"
	"time"

	"github.com/nerrad567/seestar-core/internal/audit"
	"github.com/nerrad567/seestar-core/internal/infrastructure/config"
	"github.com/nerrad567/seestar-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/seestar-core/internal/infrastructure/logging"
	"github.com/nerrad567/seestar-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/seestar-core/internal/relay"
	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/events"
	"github.com/nerrad567/seestar-core/internal/telescope/poller"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SourceAPI tags intents submitted over HTTP.
const SourceAPI = "api"

// PollerStatus is the poller view the server reports. *poller.Poller implements it.
type PollerStatus interface {
	Healthy() bool
	Stats() poller.Stats
}

// ClientStats exposes resilient client counters. *client.Client implements it.
type ClientStats interface {
	Stats() client.Stats
}

// MQTTStatus exposes broker connectivity. *mqtt.Client implements it.
type MQTTStatus interface {
	IsConnected() bool
	Stats() mqtt.Stats
}

// RelayStats exposes relay counters. *relay.Relay implements it.
type RelayStats interface {
	Stats() relay.Stats
}

// InfluxStats exposes metrics sink counters. *influxdb.Client implements it.
type InfluxStats interface {
	Stats() influxdb.Stats
}

// Deps holds the dependencies required by the API server.
//
// Store, Coordinator and Bus are required. The rest are optional; leave an
// interface field nil (not a typed nil pointer) when the component is off.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Store       *state.Store
	Coordinator *command.Coordinator
	Bus         *events.Bus
	Poller      PollerStatus
	Client      ClientStats
	Audit       audit.Repository
	DB          *sql.DB
	MQTT        MQTTStatus
	Relay       RelayStats
	Influx      InfluxStats
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Seestar Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	store       *state.Store
	coordinator *command.Coordinator
	bus         *events.Bus
	poller      PollerStatus
	client      ClientStats
	auditRepo   audit.Repository
	db          *sql.DB
	mqtt        MQTTStatus
	relay       RelayStats
	influx      InfluxStats
	version     string
	startTime   time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
	wg          sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, store, coordinator, bus)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("command coordinator is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		store:       deps.Store,
		coordinator: deps.Coordinator,
		bus:         deps.Bus,
		poller:      deps.Poller,
		client:      deps.Client,
		auditRepo:   deps.Audit,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		relay:       deps.Relay,
		influx:      deps.Influx,
		version:     deps.Version,
		startTime:   time.Now(),
	}

	// The coordinator's recorder is wired before the server exists, so the
	// hub it broadcasts results on may be created up front.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub. It is nil before Start unless an
// external hub was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to the event
// bus for real-time WebSocket broadcast, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	s.hub.SetInitial(ChannelState, s.currentState)

	sub := s.bus.Subscribe()
	s.wg.Add(1)
	go s.relayState(srvCtx, sub)

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

// relayState forwards bus events to WebSocket clients on ChannelState.
func (s *Server) relayState(ctx context.Context, sub *events.Subscription) {
	defer s.wg.Done()
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			s.hub.Broadcast(ChannelState, ev)
		}
	}
}

// currentState is the initial payload for new ChannelState subscribers.
func (s *Server) currentState() any {
	return events.Event{Snapshot: s.store.Current()}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, bus relay)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
