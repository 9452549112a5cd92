package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultEpsilon = 0.01
	DefaultHistory = 128
)

// Sender issues non-cacheable device commands. *client.Client implements it.
type Sender interface {
	Command(ctx context.Context, req transport.Request, invalidates ...string) (json.RawMessage, error)
}

// Snapshots is the part of the state store the coordinator reads.
// *state.Store implements it.
type Snapshots interface {
	Current() state.Snapshot
	Observe(fn state.Observer) (cancel func())
}

// Recorder receives every resolved result exactly once, in resolution
// order, on a goroutine owned by the coordinator.
type Recorder func(Result)

// Logger is the logging interface used by the coordinator.
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

// Options configures a Coordinator.
type Options struct {
	// Capabilities bounds intent parameters. The zero value means
	// DefaultCapabilities().
	Capabilities Capabilities

	// Timeouts are per-kind deadlines. Zero fields take DefaultTimeouts().
	Timeouts Timeouts

	// Epsilon is the positional tolerance for mount intents that set none.
	Epsilon float64

	// History is how many resolved handles Lookup can still find.
	History int

	Logger   Logger
	Recorder Recorder

	// Now stamps results. Nil means time.Now.
	Now func() time.Time

	// NewID generates command IDs. Nil means uuid.NewString.
	NewID func() string
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Cancelled uint64 `json:"cancelled"`
	Active    int    `json:"active"`
}

// Coordinator turns intents into device commands and reconciles them
// against published snapshots.
//
// Each accepted intent is evaluated against every snapshot published after
// it was registered, until its success predicate holds, the device reports
// a fault for it, its deadline passes, or it is cancelled. Evaluation runs
// inside the store's publish, so it is cheap and never blocks.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	sender    Sender
	snapshots Snapshots
	opts      Options
	logger    Logger

	ctx       context.Context
	stop      context.CancelFunc
	unobserve func()
	wg        sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[string]*Handle
	axes     map[Axis]*Handle // newest in-flight intent per axis
	recent   []*Handle
	recentID map[string]*Handle

	// Resolved results waiting for the recorder, oldest first.
	recMu    sync.Mutex
	recQueue []Result
	recWake  chan struct{}
	recStop  chan struct{}
	recDone  chan struct{}

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	cancelled atomic.Uint64
}

// New creates a coordinator and subscribes it to snapshots.
//
// Parameters:
//   - sender: Issues device commands (normally the resilient client)
//   - snapshots: The state store the poller publishes to
//   - opts: Limits, deadlines and hooks
func New(sender Sender, snapshots Snapshots, opts Options) *Coordinator {
	if opts.Capabilities == (Capabilities{}) {
		opts.Capabilities = DefaultCapabilities()
	}
	opts.Timeouts = withDefaults(opts.Timeouts)
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		sender:    sender,
		snapshots: snapshots,
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		stop:      stop,
		inflight:  make(map[string]*Handle),
		axes:      make(map[Axis]*Handle),
		recentID:  make(map[string]*Handle),
	}
	if opts.Recorder != nil {
		c.recWake = make(chan struct{}, 1)
		c.recStop = make(chan struct{})
		c.recDone = make(chan struct{})
		go c.recordLoop()
	}
	c.unobserve = snapshots.Observe(c.onPublish)
	return c
}

func withDefaults(t Timeouts) Timeouts {
	d := DefaultTimeouts()
	if t.Default <= 0 {
		t.Default = d.Default
	}
	if t.Goto <= 0 {
		t.Goto = d.Goto
	}
	if t.Focus <= 0 {
		t.Focus = d.Focus
	}
	if t.Filter <= 0 {
		t.Filter = d.Filter
	}
	if t.AutoFocus <= 0 {
		t.AutoFocus = d.AutoFocus
	}
	if t.ExposureMargin <= 0 {
		t.ExposureMargin = d.ExposureMargin
	}
	return t
}

// Submit starts an intent and returns its handle without waiting for the
// device.
//
// Intents whose parameters fall outside the device's capabilities are
// returned already resolved Failed, with Err matching client.ErrRejected,
// and never reach the network.
//
// Parameters:
//   - ctx: Bounds submission only; the intent lives until it resolves
//   - in: The intent, normally built with Goto, Expose, SetFocus and friends
//
// Returns:
//   - *Handle: Tracks the intent to resolution
//   - error: nil on success, or:
//   - ErrInvalidIntent if the kind is unknown
//   - ErrClosed after Close
//   - ctx.Err() if ctx has already ended
func (c *Coordinator) Submit(ctx context.Context, in Intent) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, in.Kind)
	}
	if (in.Kind == KindGoto || in.Kind == KindSync) && in.Epsilon == 0 {
		in.Epsilon = c.opts.Epsilon
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	var resolveErr error
	if in.Kind == KindMoveFocus {
		if cur := c.snapshots.Current(); cur.Stale {
			resolveErr = fmt.Errorf("%w: focuser position", ErrStateUnknown)
		} else {
			in.Position = cur.FocuserPosition + in.Steps
		}
	}

	h := newHandle(c, c.opts.NewID(), in, c.opts.Now())
	c.submitted.Add(1)
	c.logger.Info("command submitted", "id", h.ID(), "kind", in.Kind, "source", in.Source)

	if resolveErr == nil {
		resolveErr = c.opts.Capabilities.validate(in)
	}
	if resolveErr != nil {
		c.resolveLocked(h, StatusFailed, nil, resolveErr.Error(), resolveErr)
		c.mu.Unlock()
		return h, nil
	}

	// The newest submission on an axis wins, whatever order the device
	// replies arrive in.
	axis := in.Kind.Axis()
	if prev := c.axes[axis]; prev != nil {
		c.resolveLocked(prev, StatusCancelled, nil, "superseded by "+h.ID(), ErrCancelled)
	}
	c.axes[axis] = h

	req, invalidates := deviceRequest(in)
	c.inflight[h.ID()] = h

	deadline := c.opts.Timeouts.deadline(in)
	h.timer = time.AfterFunc(deadline, func() { c.expire(h, deadline) })

	c.wg.Add(1)
	c.mu.Unlock()

	// The send is bound to the coordinator, not to the intent: cancelling or
	// timing out the intent leaves a call already on the wire alone.
	go c.send(c.ctx, h, req, invalidates)
	return h, nil
}

// send issues the device command and, once accepted, arms h for
// reconciliation.
func (c *Coordinator) send(ctx context.Context, h *Handle, req transport.Request, invalidates []string) {
	defer c.wg.Done()

	h.setStatus(StatusSent)
	_, err := c.sender.Command(ctx, req, invalidates...)
	acceptedAt := c.opts.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inflight[h.ID()]; !ok {
		// Timed out, cancelled or superseded while sending.
		c.logger.Debug("late device reply discarded", "id", h.ID(), "kind", h.intent.Kind, "error", err)
		return
	}
	if err != nil {
		c.resolveLocked(h, StatusFailed, nil, reasonOf(err), err)
		return
	}

	cur := c.snapshots.Current()
	h.baseVersion = cur.Version
	h.baseFault = faultOf(h.intent.Kind, cur.Faults)
	predicate := h.intent.predicate
	if predicate == nil {
		predicate = successPredicate(h.intent, acceptedAt)
	}
	h.predicate = predicate
	h.setStatus(StatusAwaitingCompletion)
}

// onPublish evaluates every registered intent against a new snapshot.
func (c *Coordinator) onPublish(cur, _ state.Snapshot) {
	if cur.Stale {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.axes {
		if h.predicate == nil || cur.Version <= h.baseVersion {
			// Not accepted yet, or the snapshot predates acceptance.
			continue
		}
		if h.predicate(cur) {
			snap := cur
			c.resolveLocked(h, StatusSucceeded, &snap, "", nil)
			continue
		}

		fault := faultOf(h.intent.Kind, cur.Faults)
		switch {
		case fault == "":
			h.faultCleared = true
		case fault != h.baseFault || h.faultCleared:
			snap := cur
			c.resolveLocked(h, StatusFailed, &snap, "device reported: "+fault,
				fmt.Errorf("%w: %s", ErrDeviceFault, fault))
		}
	}
}

// expire resolves h TimedOut if it is still in flight.
func (c *Coordinator) expire(h *Handle, deadline time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[h.ID()]; ok {
		c.resolveLocked(h, StatusTimedOut, nil,
			fmt.Sprintf("not completed within %s", deadline), ErrTimedOut)
	}
}

// resolveLocked settles h and detaches it from reconciliation. c.mu must be held.
func (c *Coordinator) resolveLocked(h *Handle, status Status, snap *state.Snapshot, reason string, err error) {
	if !h.settle(status, snap, reason, err, c.opts.Now()) {
		return
	}

	delete(c.inflight, h.ID())
	if axis := h.intent.Kind.Axis(); c.axes[axis] == h {
		delete(c.axes, axis)
	}
	c.remember(h)

	res := h.Result()
	switch status {
	case StatusSucceeded:
		c.succeeded.Add(1)
	case StatusFailed:
		c.failed.Add(1)
	case StatusTimedOut:
		c.timedOut.Add(1)
	case StatusCancelled:
		c.cancelled.Add(1)
	}

	if status == StatusSucceeded {
		c.logger.Info("command succeeded", "id", res.ID, "kind", res.Kind, "duration", res.Duration())
	} else {
		c.logger.Warn("command unsuccessful", "id", res.ID, "kind", res.Kind, "status", status, "reason", reason)
	}

	if c.opts.Recorder != nil {
		c.recMu.Lock()
		c.recQueue = append(c.recQueue, res)
		c.recMu.Unlock()
		select {
		case c.recWake <- struct{}{}:
		default:
		}
	}
}

// recordLoop hands resolved results to the recorder one at a time. It
// drains the queue once more when stopped.
func (c *Coordinator) recordLoop() {
	defer close(c.recDone)
	for {
		select {
		case <-c.recWake:
			c.drainRecords()
		case <-c.recStop:
			c.drainRecords()
			return
		}
	}
}

func (c *Coordinator) drainRecords() {
	for {
		c.recMu.Lock()
		batch := c.recQueue
		c.recQueue = nil
		c.recMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, res := range batch {
			c.opts.Recorder(res)
		}
	}
}

// remember keeps h findable by Lookup after resolution. c.mu must be held.
func (c *Coordinator) remember(h *Handle) {
	c.recent = append(c.recent, h)
	c.recentID[h.ID()] = h
	if len(c.recent) > c.opts.History {
		delete(c.recentID, c.recent[0].ID())
		c.recent[0] = nil
		c.recent = c.recent[1:]
	}
}

// Cancel resolves an in-flight intent Cancelled. Cancelling an intent that
// has already resolved is a no-op.
//
// Returns:
//   - error: nil on success, or ErrNotFound if the ID is unknown
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.inflight[id]; ok {
		c.resolveLocked(h, StatusCancelled, nil, "cancelled", ErrCancelled)
		return nil
	}
	if _, ok := c.recentID[id]; ok {
		return nil
	}
	return ErrNotFound
}

// Lookup finds an in-flight or recently resolved intent.
func (c *Coordinator) Lookup(id string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.inflight[id]; ok {
		return h, true
	}
	h, ok := c.recentID[id]
	return h, ok
}

// Active returns in-flight intents, oldest first.
func (c *Coordinator) Active() []*Handle {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.inflight))
	for _, h := range c.inflight {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	slices.SortFunc(handles, func(a, b *Handle) int {
		return a.Result().SubmittedAt.Compare(b.Result().SubmittedAt)
	})
	return handles
}

// Recent returns up to n resolved intents, newest first. n <= 0 returns all
// that are retained.
func (c *Coordinator) Recent(n int) []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.recent) {
		n = len(c.recent)
	}
	out := make([]*Handle, 0, n)
	for i := len(c.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, c.recent[i])
	}
	return out
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	active := len(c.inflight)
	c.mu.Unlock()

	return Stats{
		Submitted: c.submitted.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		TimedOut:  c.timedOut.Load(),
		Cancelled: c.cancelled.Load(),
		Active:    active,
	}
}

// Close cancels every in-flight intent, aborts device calls still on the
// wire, stops watching snapshots and waits for pending sends and recorder
// calls. Safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stop()
	for _, h := range c.inflight {
		c.resolveLocked(h, StatusCancelled, nil, "coordinator closed", ErrCancelled)
	}
	c.mu.Unlock()

	c.unobserve()
	c.wg.Wait()

	// No resolution can happen past this point.
	if c.recStop != nil {
		close(c.recStop)
		<-c.recDone
	}
}

func reasonOf(err error) string {
	var cerr *client.Error
	if errors.As(err, &cerr) {
		return cerr.Reason()
	}
	return err.Error()
}
