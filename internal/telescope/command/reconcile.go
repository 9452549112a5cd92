package command

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// autoFocusSettle is the shortest auto-focus run the device performs.
const autoFocusSettle = 30 * time.Second

// Capabilities bounds the parameters the attached hardware accepts.
type Capabilities struct {
	FocuserMax  int
	FilterSlots int
	ExposureMin time.Duration
	ExposureMax time.Duration
	GainMin     int
	GainMax     int
}

// DefaultCapabilities matches a stock Seestar S50.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		FocuserMax:  100000,
		FilterSlots: 2,
		ExposureMin: time.Millisecond,
		ExposureMax: time.Hour,
		GainMin:     0,
		GainMax:     100,
	}
}

// Timeouts are the per-kind deadlines applied when an intent sets none.
type Timeouts struct {
	Default   time.Duration
	Goto      time.Duration
	Focus     time.Duration
	Filter    time.Duration
	AutoFocus time.Duration

	// ExposureMargin is added to an exposure's duration.
	ExposureMargin time.Duration
}

// DefaultTimeouts returns the stock deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Default:        30 * time.Second,
		Goto:           3 * time.Minute,
		Focus:          time.Minute,
		Filter:         30 * time.Second,
		AutoFocus:      5 * time.Minute,
		ExposureMargin: 30 * time.Second,
	}
}

// deadline returns the intent's timeout, falling back to the kind default.
func (t Timeouts) deadline(in Intent) time.Duration {
	if in.Timeout > 0 {
		return in.Timeout
	}
	switch in.Kind {
	case KindGoto:
		return t.Goto
	case KindExpose:
		return in.Duration + t.ExposureMargin
	case KindSetFilter:
		return t.Filter
	case KindSetFocus, KindMoveFocus:
		return t.Focus
	case KindAutoFocus:
		return t.AutoFocus
	default:
		return t.Default
	}
}

// validate checks an intent against the hardware's bounds. MoveFocus must
// already be resolved to an absolute Position.
func (c Capabilities) validate(in Intent) error {
	if in.Timeout < 0 {
		return fmt.Errorf("%w: negative deadline %s", ErrOutOfRange, in.Timeout)
	}

	switch in.Kind {
	case KindGoto, KindSync:
		if !finite(in.RA) || in.RA < 0 || in.RA >= 24 {
			return fmt.Errorf("%w: ra %.6f not in [0, 24) hours", ErrOutOfRange, in.RA)
		}
		if !finite(in.Dec) || in.Dec < -90 || in.Dec > 90 {
			return fmt.Errorf("%w: dec %.6f not in [-90, 90] degrees", ErrOutOfRange, in.Dec)
		}
		if !finite(in.Epsilon) || in.Epsilon <= 0 {
			return fmt.Errorf("%w: epsilon must be positive", ErrOutOfRange)
		}
	case KindExpose:
		if in.Duration < c.ExposureMin || in.Duration > c.ExposureMax {
			return fmt.Errorf("%w: exposure %s not in [%s, %s]", ErrOutOfRange, in.Duration, c.ExposureMin, c.ExposureMax)
		}
		if in.Gain < c.GainMin || in.Gain > c.GainMax {
			return fmt.Errorf("%w: gain %d not in [%d, %d]", ErrOutOfRange, in.Gain, c.GainMin, c.GainMax)
		}
	case KindSetFilter:
		if in.Position < 0 || in.Position >= c.FilterSlots {
			return fmt.Errorf("%w: filter slot %d not in [0, %d)", ErrOutOfRange, in.Position, c.FilterSlots)
		}
	case KindSetFocus, KindMoveFocus:
		if in.Position < 0 || in.Position > c.FocuserMax {
			return fmt.Errorf("%w: focuser position %d not in [0, %d]", ErrOutOfRange, in.Position, c.FocuserMax)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// deviceRequest maps an intent onto the device call that starts it, and
// the cached query endpoints the call makes stale.
func deviceRequest(in Intent) (transport.Request, []string) {
	mount := []string{protocol.EndpointPosition, protocol.EndpointViewState}
	view := []string{protocol.EndpointViewState}
	device := []string{protocol.EndpointDeviceState}

	switch in.Kind {
	case KindGoto:
		return protocol.Goto(in.RA, in.Dec, in.Target), mount
	case KindSync:
		return protocol.Sync(in.RA, in.Dec), mount
	case KindStopSlew:
		return protocol.StopSlew(), mount
	case KindExpose:
		return protocol.StartExposure(in.Duration, in.Gain), view
	case KindAbortExposure:
		return protocol.StopExposure(), view
	case KindSetFilter:
		return protocol.SetFilter(in.Position), device
	case KindSetFocus, KindMoveFocus:
		return protocol.SetFocuser(in.Position), device
	case KindAutoFocus:
		return protocol.StartAutoFocus(), append(view, device...)
	default:
		return transport.Request{}, nil
	}
}

// successPredicate returns the built-in completion test for in. acceptedAt
// is when the device accepted the command.
//
// Returned predicates may keep state between calls; the coordinator calls
// each one from a single goroutine at a time.
func successPredicate(in Intent, acceptedAt time.Time) Predicate {
	switch in.Kind {
	case KindGoto:
		return func(s state.Snapshot) bool {
			return near(s, in.RA, in.Dec, in.Epsilon) && !s.Slewing
		}
	case KindSync:
		return func(s state.Snapshot) bool {
			return near(s, in.RA, in.Dec, in.Epsilon)
		}
	case KindStopSlew:
		return func(s state.Snapshot) bool { return !s.Slewing }
	case KindExpose:
		// A short exposure can start and finish between two polls, so
		// elapsed time counts as completion once the camera is idle.
		end := acceptedAt.Add(in.Duration)
		seen := false
		return func(s state.Snapshot) bool {
			if s.Exposing {
				seen = true
				return false
			}
			return seen || !s.CapturedAt.Before(end)
		}
	case KindAbortExposure:
		return func(s state.Snapshot) bool { return !s.Exposing }
	case KindSetFilter:
		return func(s state.Snapshot) bool { return s.FilterPosition == in.Position }
	case KindSetFocus, KindMoveFocus:
		return func(s state.Snapshot) bool {
			return s.FocuserPosition == in.Position && !s.FocuserMoving
		}
	case KindAutoFocus:
		// A run can also start and finish between two polls. Once
		// autoFocusSettle has passed, an idle focuser with no focus fault
		// counts as done.
		settled := acceptedAt.Add(autoFocusSettle)
		seen := false
		return func(s state.Snapshot) bool {
			if s.AutoFocusing {
				seen = true
				return false
			}
			if seen {
				return true
			}
			return !s.CapturedAt.Before(settled) && !s.FocuserMoving && s.Faults.Focus == ""
		}
	default:
		return nil
	}
}

// near reports whether the snapshot's position is within epsilon of ra/dec.
// RA wraps at 24h.
func near(s state.Snapshot, ra, dec, epsilon float64) bool {
	dra := math.Abs(s.RA - ra)
	if dra > 12 {
		dra = 24 - dra
	}
	return dra < epsilon && math.Abs(s.Dec-dec) < epsilon
}

// faultOf selects the fault field that applies to kind. The device reports
// no failure for the light-pollution switch, so filter changes have none.
func faultOf(kind Kind, f state.Faults) string {
	switch kind {
	case KindGoto:
		return f.Goto
	case KindExpose:
		return f.Exposure
	case KindSetFocus, KindMoveFocus, KindAutoFocus:
		return f.Focus
	default:
		return ""
	}
}
