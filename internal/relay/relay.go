package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/seestar-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/events"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

const (
	// DefaultHealthInterval is used when Options.HealthInterval is zero.
	DefaultHealthInterval = 30 * time.Second

	// SourceMQTT tags intents submitted through the relay.
	SourceMQTT = "mqtt"
)

// ErrAlreadyStarted is returned by Start on a running relay.
var ErrAlreadyStarted = errors.New("relay: already started")

// MQTTClient is the broker connection the relay uses. *mqtt.Client
// implements it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Feed is the event source. *events.Bus implements it.
type Feed interface {
	Subscribe() *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

// Submitter accepts intents. *command.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, in command.Intent) (*command.Handle, error)
}

// StateReader exposes the current snapshot for health and republishing.
type StateReader interface {
	Current() state.Snapshot
}

// Logger is the logging interface used by the relay.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Relay.
type Options struct {
	Topics mqtt.Topics
	QoS    byte

	// HealthInterval is how often seestar/health is republished.
	HealthInterval time.Duration

	// State is read for health reports and Republish. Optional.
	State StateReader

	// PollerHealthy reports poller health for the health message. Optional.
	PollerHealthy func() bool

	Version string
	Logger  Logger

	// Now is the clock for message timestamps. Nil means time.Now.
	Now func() time.Time
}

// Stats is a snapshot of relay counters.
type Stats struct {
	StatesPublished  uint64 `json:"states_published"`
	EventsPublished  uint64 `json:"events_published"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsRefused  uint64 `json:"commands_refused"`
	ResultsPublished uint64 `json:"results_published"`
	PublishErrors    uint64 `json:"publish_errors"`
	PendingResults   int    `json:"pending_results"`
}

// Relay is the boundary to the hardware-protocol bridge over MQTT.
//
// It is one event bus subscriber, republishing every snapshot (retained)
// and its diff, and one command submitter, turning requests on
// seestar/command/{request_id} into intents and publishing each resolution
// on seestar/result/{request_id}. A health report is published on a ticker.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Relay struct {
	client    MQTTClient
	feed      Feed
	submitter Submitter
	opts      Options
	logger    Logger
	started   time.Time

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *events.Subscription
	pending map[string]struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once

	statesPublished  atomic.Uint64
	eventsPublished  atomic.Uint64
	commandsReceived atomic.Uint64
	commandsRefused  atomic.Uint64
	resultsPublished atomic.Uint64
	publishErrors    atomic.Uint64
}

// New creates a relay. Call Start to begin relaying.
func New(client MQTTClient, feed Feed, submitter Submitter, opts Options) *Relay {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Relay{
		client:    client,
		feed:      feed,
		submitter: submitter,
		opts:      opts,
		logger:    logger,
		started:   opts.Now(),
		pending:   make(map[string]struct{}),
	}
}

// Start subscribes to inbound commands and the event bus and launches the
// health reporter.
//
// Parameters:
//   - ctx: Stops relaying when cancelled; also the parent of submitted commands
//
// Returns:
//   - error: ErrAlreadyStarted, or the broker subscription failure
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	r.publishHealth(HealthStarting, "relay starting")

	if err := r.client.Subscribe(r.opts.Topics.AllCommands(), r.opts.QoS, r.handleCommand); err != nil {
		r.cancel()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	sub := r.feed.Subscribe()
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()

	r.wg.Add(2)
	go r.stateLoop(sub)
	go r.healthLoop()

	r.logger.Info("mqtt relay started",
		"commands", r.opts.Topics.AllCommands(),
		"state", r.opts.Topics.State(),
	)
	return nil
}

// Stop unsubscribes, waits for the relay's goroutines and publishes a
// final "stopping" health report. Commands still in flight are left to the
// coordinator; their results are not published. Safe to call twice.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		running := r.running
		sub := r.sub
		r.mu.Unlock()
		if !running {
			return
		}

		if err := r.client.Unsubscribe(r.opts.Topics.AllCommands()); err != nil {
			r.logger.Debug("unsubscribing from commands", "error", err)
		}
		r.mu.Lock()
		r.cancel()
		r.mu.Unlock()
		r.feed.Unsubscribe(sub)
		r.wg.Wait()

		r.publishHealth(HealthStopping, "")
		r.logger.Info("mqtt relay stopped")
	})
}

// stateLoop mirrors bus events onto the state and state_changed topics.
func (r *Relay) stateLoop(sub *events.Subscription) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			r.publishEvent(ev)
		}
	}
}

func (r *Relay) publishEvent(ev events.Event) {
	r.publishState(ev.Snapshot)

	// Catch-up events and unchanged snapshots carry no diff.
	if ev.Changed == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encoding state event", "version", ev.Snapshot.Version, "error", err)
		return
	}
	if r.publish(r.opts.Topics.StateChanged(), payload, false) {
		r.eventsPublished.Add(1)
	}
}

func (r *Relay) publishState(snap state.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("encoding snapshot", "version", snap.Version, "error", err)
		return
	}
	if r.publish(r.opts.Topics.State(), payload, true) {
		r.statesPublished.Add(1)
	}
}

// Republish sends the current snapshot and health again. Wire it to the
// broker's on-connect callback so a reconnect restores retained topics.
func (r *Relay) Republish() {
	if r.opts.State != nil {
		if snap := r.opts.State.Current(); snap.Version > 0 {
			r.publishState(snap)
		}
	}
	status, reason := r.determineStatus()
	r.publishHealth(status, reason)
}

// handleCommand is the MQTT handler for seestar/command/+.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	id := r.opts.Topics.RequestID(topic)
	if id == "" {
		return fmt.Errorf("relay: no request id in topic %q", topic)
	}
	r.commandsReceived.Add(1)

	// QoS 1 may redeliver; one request id maps to one intent while it runs.
	r.mu.Lock()
	if !r.running || r.ctx.Err() != nil {
		r.mu.Unlock()
		return nil
	}
	if _, dup := r.pending[id]; dup {
		r.mu.Unlock()
		r.logger.Debug("duplicate command ignored", "request_id", id)
		return nil
	}
	r.pending[id] = struct{}{}
	// Added under mu, so Stop's cancel cannot slip between check and Add.
	r.wg.Add(1)
	ctx := r.ctx
	r.mu.Unlock()

	req, err := command.ParseRequest(payload)
	var in command.Intent
	if err == nil {
		in, err = req.Intent(command.WithSource(SourceMQTT))
	}
	if err != nil {
		r.refuse(id, err)
		r.wg.Done()
		return err
	}

	h, err := r.submitter.Submit(ctx, in)
	if err != nil {
		r.refuse(id, err)
		r.wg.Done()
		return err
	}

	r.logger.Info("command accepted from mqtt",
		"request_id", id,
		"command_id", h.ID(),
		"kind", string(in.Kind),
	)

	go r.awaitResult(ctx, id, h)
	return nil
}

// refuse publishes a failure for a request that never became an intent.
func (r *Relay) refuse(id string, err error) {
	r.commandsRefused.Add(1)
	r.publishResult(ResultMessage{
		RequestID: id,
		Status:    command.StatusFailed,
		Rejected:  true,
		Reason:    err.Error(),
		Timestamp: r.opts.Now().UTC(),
	})
	r.done(id)
}

func (r *Relay) awaitResult(ctx context.Context, id string, h *command.Handle) {
	defer r.wg.Done()
	defer r.done(id)

	select {
	case <-h.Done():
	case <-ctx.Done():
		return
	}

	res := h.Result()
	r.publishResult(ResultMessage{
		RequestID: id,
		CommandID: res.ID,
		Status:    res.Status,
		Rejected:  res.Rejected(),
		Reason:    res.Reason,
		Result:    &res,
		Timestamp: r.opts.Now().UTC(),
	})
}

func (r *Relay) done(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func (r *Relay) publishResult(msg ResultMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encoding command result", "request_id", msg.RequestID, "error", err)
		return
	}
	if r.publish(r.opts.Topics.Result(msg.RequestID), payload, false) {
		r.resultsPublished.Add(1)
	}
}

func (r *Relay) publish(topic string, payload []byte, retained bool) bool {
	if err := r.client.Publish(topic, payload, r.opts.QoS, retained); err != nil {
		r.publishErrors.Add(1)
		r.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// Stats returns a snapshot of the relay's counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()

	return Stats{
		StatesPublished:  r.statesPublished.Load(),
		EventsPublished:  r.eventsPublished.Load(),
		CommandsReceived: r.commandsReceived.Load(),
		CommandsRefused:  r.commandsRefused.Load(),
		ResultsPublished: r.resultsPublished.Load(),
		PublishErrors:    r.publishErrors.Load(),
		PendingResults:   pending,
	}
}
