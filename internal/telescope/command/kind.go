package command

// Kind identifies what an intent asks the device to do.
type Kind string

// Command kinds.
const (
	KindGoto          Kind = "goto"
	KindSync          Kind = "sync"
	KindStopSlew      Kind = "stop_slew"
	KindExpose        Kind = "expose"
	KindAbortExposure Kind = "abort_exposure"
	KindSetFilter     Kind = "set_filter"
	KindSetFocus      Kind = "set_focus"
	KindMoveFocus     Kind = "move_focus"
	KindAutoFocus     Kind = "autofocus"
)

// AllKinds returns every supported kind.
func AllKinds() []Kind {
	return []Kind{
		KindGoto, KindSync, KindStopSlew,
		KindExpose, KindAbortExposure,
		KindSetFilter,
		KindSetFocus, KindMoveFocus, KindAutoFocus,
	}
}

// Axis is the physical subsystem a kind drives. The device pursues one
// target per axis, so intents on the same axis supersede each other.
type Axis string

// Axes.
const (
	AxisNone    Axis = ""
	AxisMount   Axis = "mount"
	AxisCamera  Axis = "camera"
	AxisFilter  Axis = "filter"
	AxisFocuser Axis = "focuser"
)

// Axis returns the subsystem k drives, or AxisNone for unknown kinds.
func (k Kind) Axis() Axis {
	switch k {
	case KindGoto, KindSync, KindStopSlew:
		return AxisMount
	case KindExpose, KindAbortExposure:
		return AxisCamera
	case KindSetFilter:
		return AxisFilter
	case KindSetFocus, KindMoveFocus, KindAutoFocus:
		return AxisFocuser
	default:
		return AxisNone
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k.Axis() != AxisNone
}

// Status is the lifecycle position of an intent.
type Status string

// Statuses. The last four are terminal.
const (
	StatusPending            Status = "pending"
	StatusSent               Status = "sent"
	StatusAwaitingCompletion Status = "awaiting_completion"
	StatusSucceeded          Status = "succeeded"
	StatusFailed             Status = "failed"
	StatusTimedOut           Status = "timed_out"
	StatusCancelled          Status = "cancelled"
)

// Terminal reports whether s is a resolved status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}
