// Package telescope assembles the device-facing core from configuration:
// transport, resilient client, state store, poller, command coordinator
// and event bus.
//
// Both the daemon and the one-shot CLI build their core through New, so a
// config file means the same thing to each of them. The boundaries (HTTP
// API, MQTT relay, audit, metrics) attach through the hooks in Options.
package telescope

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/seestar-core/internal/infrastructure/config"
	"github.com/nerrad567/seestar-core/internal/infrastructure/logging"
	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/events"
	"github.com/nerrad567/seestar-core/internal/telescope/poller"
	"github.com/nerrad567/seestar-core/internal/telescope/simulator"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// ErrNoSnapshot is returned by AwaitSnapshot when ctx ends before the
// poller publishes anything.
var ErrNoSnapshot = errors.New("telescope: no snapshot published")

// Options configures New.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Transport overrides the one Config describes. Tests pass a simulator
	// or an httptest-backed transport here.
	Transport transport.Transport

	// OnCall observes every client call.
	OnCall client.Observer

	// OnCycle observes every poll cycle.
	OnCycle func(poller.CycleInfo)

	// Recorders receive every resolved command, in order.
	Recorders []command.Recorder
}

// Core is an assembled, not yet started, device core.
type Core struct {
	Transport   transport.Transport
	Client      *client.Client
	Store       *state.Store
	Poller      *poller.Poller
	Coordinator *command.Coordinator
	Bus         *events.Bus

	// Simulator is set when the transport is an in-process simulated device.
	Simulator *simulator.Device

	logger *logging.Logger
}

// New builds a core. Nothing talks to the device until Start.
//
// Parameters:
//   - opts: Config and Logger are required; the rest is optional
//
// Returns:
//   - *Core: Wired components
//   - error: If Config or Logger is missing
func New(opts Options) (*Core, error) {
	if opts.Config == nil {
		return nil, errors.New("telescope: config is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("telescope: logger is required")
	}
	cfg := opts.Config

	c := &Core{logger: opts.Logger}

	c.Transport = opts.Transport
	if c.Transport == nil {
		if cfg.Device.Simulate {
			c.Simulator = simulator.New(simulator.Options{FocuserMax: cfg.Capabilities.FocuserMax})
			c.Transport = c.Simulator
		} else {
			c.Transport = transport.NewHTTP(TransportOptions(cfg))
		}
	}
	if sim, ok := c.Transport.(*simulator.Device); ok {
		c.Simulator = sim
	}

	c.Client = client.New(c.Transport, client.Options{
		MaxAttempts:    cfg.Client.MaxAttempts,
		BackoffBase:    cfg.Client.BackoffBase,
		BackoffMax:     cfg.Client.BackoffMax,
		Jitter:         offIfZero(cfg.Client.BackoffJitter),
		CacheTTL:       offIfZero(cfg.Client.CacheTTL),
		AttemptTimeout: cfg.Device.RequestTimeout,
		Logger:         opts.Logger.Component("client"),
		Observer:       opts.OnCall,
	})

	c.Store = state.NewStore()

	c.Poller = poller.New(c.Client, c.Store, poller.Options{
		Interval:         cfg.Poller.Interval,
		FailureThreshold: cfg.Poller.FailureThreshold,
		CycleTimeout:     cfg.Poller.CycleTimeout,
		Logger:           opts.Logger.Component("poller"),
		OnCycle:          opts.OnCycle,
	})

	c.Coordinator = command.New(c.Client, c.Store, command.Options{
		Capabilities: Capabilities(cfg.Capabilities),
		Timeouts:     Timeouts(cfg.Commands),
		Epsilon:      cfg.Commands.GotoEpsilon,
		Logger:       opts.Logger.Component("commands"),
		Recorder:     Recorders(opts.Recorders...),
	})

	c.Bus = events.New(c.Store, cfg.Events.QueueSize)

	return c, nil
}

// Start begins polling. The first cycle runs immediately.
func (c *Core) Start(ctx context.Context) error {
	if err := c.Poller.Start(ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	return nil
}

// Close stops polling, resolves in-flight intents as cancelled and closes
// every bus subscription, in that order.
func (c *Core) Close() {
	c.Poller.Stop()
	c.Coordinator.Close()
	c.Bus.Close()
	c.logger.Info("telescope core stopped")
}

// AwaitSnapshot blocks until the store holds a polled snapshot.
//
// Returns:
//   - state.Snapshot: The first polled snapshot (possibly disconnected)
//   - error: ErrNoSnapshot wrapping ctx.Err() if ctx ends first
func (c *Core) AwaitSnapshot(ctx context.Context) (state.Snapshot, error) {
	ready := make(chan struct{}, 1)
	cancel := c.Store.Observe(func(state.Snapshot, state.Snapshot) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer cancel()

	// Checked after registering so a publish in between is not missed.
	if snap := c.Store.Current(); snap.Version > 0 {
		return snap, nil
	}

	select {
	case <-ready:
		return c.Store.Current(), nil
	case <-ctx.Done():
		return state.Snapshot{}, fmt.Errorf("%w: %w", ErrNoSnapshot, ctx.Err())
	}
}

// TransportOptions maps the device and client sections onto an HTTP transport.
func TransportOptions(cfg *config.Config) transport.Options {
	return transport.Options{
		Host:              cfg.Device.Host,
		Port:              cfg.Device.Port,
		DeviceNumber:      cfg.Device.DeviceNumber,
		ClientID:          cfg.Device.ClientID,
		Timeout:           cfg.Device.RequestTimeout,
		RequestsPerSecond: cfg.Client.RequestsPerSecond,
	}
}

// Capabilities converts the capabilities section. Exposure bounds are
// configured in seconds; the filter slot count is the number of names.
func Capabilities(cfg config.CapabilitiesConfig) command.Capabilities {
	return command.Capabilities{
		FocuserMax:  cfg.FocuserMax,
		FilterSlots: len(cfg.FilterNames),
		ExposureMin: seconds(cfg.ExposureMin),
		ExposureMax: seconds(cfg.ExposureMax),
		GainMin:     cfg.GainMin,
		GainMax:     cfg.GainMax,
	}
}

// Timeouts converts the commands section. Zero fields fall back to
// command.DefaultTimeouts inside the coordinator.
func Timeouts(cfg config.CommandsConfig) command.Timeouts {
	return command.Timeouts{
		Default:        cfg.DefaultTimeout,
		Goto:           cfg.GotoTimeout,
		Focus:          cfg.FocusTimeout,
		Filter:         cfg.FilterTimeout,
		AutoFocus:      cfg.AutoFocusTimeout,
		ExposureMargin: cfg.ExposureMargin,
	}
}

// Recorders fans one resolution out to several recorders in order.
// Nil entries are skipped; with nothing left it returns nil.
func Recorders(rs ...command.Recorder) command.Recorder {
	var live []command.Recorder
	for _, r := range rs {
		if r != nil {
			live = append(live, r)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(res command.Result) {
		for _, r := range live {
			r(res)
		}
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// offIfZero maps an explicit zero from the config file onto the client's
// "disabled" value. The client reads zero as "use the default", but config
// has already applied its defaults, so a zero left here was written on
// purpose.
func offIfZero[T time.Duration | float64](v T) T {
	if v == 0 {
		return -1
	}
	return v
}
