package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultInterval         = time.Second
	DefaultFailureThreshold = 3
	DefaultCycleTimeout     = 15 * time.Second
)

// ErrAlreadyRunning is returned by Start when the loop is already running.
var ErrAlreadyRunning = errors.New("poller: already running")

// Querier performs cacheable device queries. *client.Client implements it.
type Querier interface {
	Query(ctx context.Context, req transport.Request) (json.RawMessage, error)
}

// Publisher is the part of the state store the poller writes to.
type Publisher interface {
	Current() state.Snapshot
	Publish(next state.Snapshot) bool
}

// Logger is the logging interface used by the poller.
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

// CycleInfo describes one completed poll cycle for observers.
type CycleInfo struct {
	Duration            time.Duration
	Kind                client.Kind
	Published           bool
	ConsecutiveFailures int
	Connected           bool
}

// Options configures a Poller.
type Options struct {
	Interval         time.Duration
	FailureThreshold int

	// CycleTimeout bounds one cycle including client retries.
	CycleTimeout time.Duration

	Logger Logger

	// OnCycle, when set, is called after every cycle on the poll goroutine.
	OnCycle func(CycleInfo)

	// Now is the snapshot clock. Nil means time.Now.
	Now func() time.Time
}

// Stats is a snapshot of poller counters.
type Stats struct {
	Cycles              uint64    `json:"cycles"`
	Published           uint64    `json:"published"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	Running             bool      `json:"running"`
}

// Poller keeps the state store fresh by polling the device at a fixed
// interval. It is the store's only writer.
//
// Each cycle queries position, view state and device state; all three must
// succeed for a snapshot to be published. Unreachable and transient cycles
// count towards the failure threshold, at which a single disconnected
// snapshot is published. Rejected and protocol failures are logged and
// leave connectivity alone.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Poller struct {
	querier Querier
	store   Publisher
	opts    Options
	logger  Logger

	// cycleMu makes cycles strictly sequential, so versions are assigned
	// from the store without racing another cycle.
	cycleMu sync.Mutex

	mu      sync.RWMutex
	stats   Stats
	running bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Poller. Call Start to begin polling.
func New(q Querier, store Publisher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = DefaultCycleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Poller{
		querier: q,
		store:   store,
		opts:    opts,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the poll loop. The first cycle runs immediately.
//
// Parameters:
//   - ctx: Stops the loop when cancelled (in addition to Stop)
//
// Returns:
//   - error: ErrAlreadyRunning if Start was already called
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.stats.Running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("poller started",
		"interval", p.opts.Interval,
		"failure_threshold", p.opts.FailureThreshold,
	)
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
// Safe to call multiple times, and before Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()

		p.mu.Lock()
		p.running = false
		p.stats.Running = false
		p.mu.Unlock()

		p.logger.Info("poller stopped")
	})
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single cycle and reports whether a snapshot was published.
//
// The cycle's device calls run on a context detached from ctx's
// cancellation and bounded by CycleTimeout, so shutdown waits for an
// in-flight exchange rather than cutting it off.
func (p *Poller) PollOnce(ctx context.Context) bool {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := time.Now()
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CycleTimeout)
	defer cancel()

	raw, err := p.fetch(cycleCtx)
	var snap state.Snapshot
	if err == nil {
		current := p.store.Current()
		snap, err = normalize(raw, current.Version+1, p.opts.Now())
		if err != nil {
			err = &client.Error{Kind: client.KindProtocol, Endpoint: "normalize", Err: err}
		}
	}

	var published bool
	if err != nil {
		published = p.recordFailure(err)
	} else {
		published = p.store.Publish(snap)
		p.recordSuccess(published)
	}

	if p.opts.OnCycle != nil {
		p.mu.RLock()
		consecutive := p.stats.ConsecutiveFailures
		p.mu.RUnlock()
		p.opts.OnCycle(CycleInfo{
			Duration:            time.Since(start),
			Kind:                client.KindOf(err),
			Published:           published,
			ConsecutiveFailures: consecutive,
			Connected:           p.store.Current().Connected,
		})
	}
	return published
}

// fetch issues the cycle's queries in order and stops at the first failure.
func (p *Poller) fetch(ctx context.Context) (rawStatus, error) {
	var raw rawStatus
	var err error

	if raw.position, err = p.querier.Query(ctx, protocol.QueryPosition); err != nil {
		return raw, err
	}
	if raw.view, err = p.querier.Query(ctx, protocol.QueryViewState); err != nil {
		return raw, err
	}
	if raw.device, err = p.querier.Query(ctx, protocol.QueryDeviceState); err != nil {
		return raw, err
	}
	return raw, nil
}

func (p *Poller) recordSuccess(published bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stats.ConsecutiveFailures >= p.opts.FailureThreshold {
		p.logger.Info("device reconnected", "after_failures", p.stats.ConsecutiveFailures)
	}
	p.stats.Cycles++
	p.stats.ConsecutiveFailures = 0
	p.stats.LastSuccess = p.opts.Now()
	p.stats.LastError = ""
	if published {
		p.stats.Published++
	}
}

// recordFailure applies the failure policy and reports whether a
// disconnected snapshot was published.
func (p *Poller) recordFailure(err error) bool {
	kind := client.KindOf(err)

	p.mu.Lock()
	p.stats.Cycles++
	p.stats.Failures++
	p.stats.LastError = err.Error()

	if !kind.Retryable() {
		// A request we built badly or a reply we cannot read: a bug, not an outage.
		p.mu.Unlock()
		p.logger.Error("poll cycle skipped", "kind", kind.String(), "error", err)
		return false
	}

	p.stats.ConsecutiveFailures++
	consecutive := p.stats.ConsecutiveFailures
	p.mu.Unlock()

	p.logger.Warn("poll cycle failed",
		"kind", kind.String(),
		"consecutive_failures", consecutive,
		"error", err,
	)

	if consecutive != p.opts.FailureThreshold {
		return false
	}

	current := p.store.Current()
	down := current.Disconnected(current.Version+1, p.opts.Now())
	if !p.store.Publish(down) {
		return false
	}

	p.mu.Lock()
	p.stats.Published++
	p.mu.Unlock()

	p.logger.Warn("device disconnected", "consecutive_failures", consecutive)
	return true
}

// Stats returns a snapshot of the poller's counters.
func (p *Poller) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Healthy reports whether the last cycle succeeded or the failure streak is
// still below the threshold.
func (p *Poller) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats.ConsecutiveFailures < p.opts.FailureThreshold
}
