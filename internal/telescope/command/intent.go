package command

import (
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// Predicate reports whether a snapshot shows an intent as complete.
type Predicate func(state.Snapshot) bool

// Intent is a request for the device to reach some target state.
//
// Build intents with the constructors (Goto, Expose, SetFocus, ...) rather
// than by hand; the zero value of a field means "not applicable" or "use
// the coordinator default".
type Intent struct {
	Kind Kind

	// RA in hours and Dec in degrees, for KindGoto and KindSync.
	RA  float64
	Dec float64

	// Epsilon is the positional tolerance for KindGoto and KindSync, in
	// snapshot units. Zero uses the coordinator default.
	Epsilon float64

	// Duration and Gain, for KindExpose.
	Duration time.Duration
	Gain     int

	// Position is the filter slot or absolute focuser step.
	Position int

	// Steps is the relative focuser move for KindMoveFocus.
	Steps int

	// Timeout overrides the per-kind deadline, measured from submission.
	Timeout time.Duration

	// Target is the display name sent with a goto.
	Target string

	// Source names who submitted the intent ("api", "mqtt", "cli").
	Source string

	predicate Predicate
}

// Option customises an intent.
type Option func(*Intent)

// WithEpsilon sets the positional tolerance for mount intents.
func WithEpsilon(epsilon float64) Option {
	return func(in *Intent) { in.Epsilon = epsilon }
}

// WithDeadline sets how long after submission the intent may take before
// resolving TimedOut.
func WithDeadline(d time.Duration) Option {
	return func(in *Intent) { in.Timeout = d }
}

// WithPredicate replaces the kind's built-in success predicate. Device
// fault detection still applies.
func WithPredicate(p Predicate) Option {
	return func(in *Intent) { in.predicate = p }
}

// WithTarget names a goto target.
func WithTarget(name string) Option {
	return func(in *Intent) { in.Target = name }
}

// WithSource records who submitted the intent.
func WithSource(source string) Option {
	return func(in *Intent) { in.Source = source }
}

func build(in Intent, opts []Option) Intent {
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

// Goto slews to ra (hours) and dec (degrees). It succeeds once the mount
// reports a position within epsilon of the target and is no longer slewing.
func Goto(ra, dec float64, opts ...Option) Intent {
	return build(Intent{Kind: KindGoto, RA: ra, Dec: dec}, opts)
}

// Sync declares the mount to be pointing at ra, dec.
func Sync(ra, dec float64, opts ...Option) Intent {
	return build(Intent{Kind: KindSync, RA: ra, Dec: dec}, opts)
}

// StopSlew aborts a goto. It succeeds once the mount stops slewing.
func StopSlew(opts ...Option) Intent {
	return build(Intent{Kind: KindStopSlew}, opts)
}

// Expose takes a single exposure.
func Expose(d time.Duration, gain int, opts ...Option) Intent {
	return build(Intent{Kind: KindExpose, Duration: d, Gain: gain}, opts)
}

// AbortExposure stops the current exposure.
func AbortExposure(opts ...Option) Intent {
	return build(Intent{Kind: KindAbortExposure}, opts)
}

// SetFilter selects a filter slot.
func SetFilter(position int, opts ...Option) Intent {
	return build(Intent{Kind: KindSetFilter, Position: position}, opts)
}

// SetFocus moves the focuser to an absolute step.
func SetFocus(position int, opts ...Option) Intent {
	return build(Intent{Kind: KindSetFocus, Position: position}, opts)
}

// MoveFocus moves the focuser by steps relative to its last reported
// position. The target is fixed at submission time.
func MoveFocus(steps int, opts ...Option) Intent {
	return build(Intent{Kind: KindMoveFocus, Steps: steps}, opts)
}

// AutoFocus runs the device's auto-focus routine.
func AutoFocus(opts ...Option) Intent {
	return build(Intent{Kind: KindAutoFocus}, opts)
}

// Request converts the intent back to its wire form.
func (in Intent) Request() Request {
	r := Request{
		Kind:    in.Kind,
		Epsilon: in.Epsilon,
		Timeout: in.Timeout.Seconds(),
		Target:  in.Target,
	}
	switch in.Kind {
	case KindGoto, KindSync:
		ra, dec := protocol.Angle(in.RA), protocol.Angle(in.Dec)
		r.RA, r.Dec = &ra, &dec
	case KindExpose:
		r.Duration = in.Duration.Seconds()
		r.Gain = in.Gain
	case KindSetFilter, KindSetFocus:
		pos := in.Position
		r.Position = &pos
	case KindMoveFocus:
		r.Steps = in.Steps
	}
	return r
}
