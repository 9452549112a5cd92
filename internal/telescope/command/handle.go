package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// Result is the outcome of an intent. Before resolution only ID, Kind,
// Status, Request and SubmittedAt are set.
type Result struct {
	ID      string  `json:"id"`
	Kind    Kind    `json:"kind"`
	Status  Status  `json:"status"`
	Request Request `json:"request"`
	Source  string  `json:"source,omitempty"`

	// Snapshot is the snapshot that satisfied the intent, for StatusSucceeded.
	Snapshot *state.Snapshot `json:"snapshot,omitempty"`

	// Reason is a human-readable explanation for any non-success outcome.
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`

	SubmittedAt time.Time `json:"submitted_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitzero"`
}

// Rejected reports whether the intent was refused, by the core's
// capability checks or by the device itself.
func (r Result) Rejected() bool {
	return errors.Is(r.Err, client.ErrRejected)
}

// Resolved reports whether r is final.
func (r Result) Resolved() bool {
	return r.Status.Terminal()
}

// Duration is the time from submission to resolution, or zero if unresolved.
func (r Result) Duration() time.Duration {
	if r.ResolvedAt.IsZero() {
		return 0
	}
	return r.ResolvedAt.Sub(r.SubmittedAt)
}

// Handle tracks one submitted intent.
//
// Thread Safety: All methods are safe for concurrent use.
type Handle struct {
	coord  *Coordinator
	intent Intent
	done   chan struct{}

	mu     sync.Mutex
	result Result

	// Reconciliation state. Guarded by coord.mu.
	baseVersion  uint64
	baseFault    string
	faultCleared bool
	predicate    Predicate
	timer        *time.Timer
}

func newHandle(c *Coordinator, id string, in Intent, now time.Time) *Handle {
	return &Handle{
		coord:  c,
		intent: in,
		done:   make(chan struct{}),
		result: Result{
			ID:          id,
			Kind:        in.Kind,
			Status:      StatusPending,
			Request:     in.Request(),
			Source:      in.Source,
			SubmittedAt: now,
		},
	}
}

// ID returns the command ID.
func (h *Handle) ID() string { return h.result.ID }

// Kind returns the intent's kind.
func (h *Handle) Kind() Kind { return h.intent.Kind }

// Intent returns the intent as submitted, with MoveFocus resolved to an
// absolute Position.
func (h *Handle) Intent() Intent { return h.intent }

// Done is closed once the intent resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status returns the current lifecycle status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result.Status
}

// Result returns the current result. It is final once Done is closed.
func (h *Handle) Result() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Wait blocks until the intent resolves or ctx ends. Giving up on the wait
// does not cancel the intent.
//
// Returns:
//   - Result: The final result
//   - error: ctx.Err() if ctx ended first; command failures are in Result.Err
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.Result(), nil
	case <-ctx.Done():
		return h.Result(), ctx.Err()
	}
}

// Cancel stops reconciling the intent and resolves it Cancelled. A device
// call already on the wire runs to completion and its reply is discarded; a
// command the device already accepted is not retracted.
func (h *Handle) Cancel() {
	_ = h.coord.Cancel(h.ID())
}

// setStatus moves an unresolved handle to a non-terminal status.
func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.result.Status.Terminal() {
		h.result.Status = s
	}
}

// settle records the final outcome. It returns false if h was already resolved.
func (h *Handle) settle(status Status, snap *state.Snapshot, reason string, err error, at time.Time) bool {
	h.mu.Lock()
	if h.result.Status.Terminal() {
		h.mu.Unlock()
		return false
	}
	h.result.Status = status
	h.result.Snapshot = snap
	h.result.Reason = reason
	h.result.Err = err
	h.result.ResolvedAt = at
	h.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	close(h.done)
	return true
}
