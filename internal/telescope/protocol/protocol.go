// Package protocol holds the Seestar device vocabulary: method names, request
// builders for each operation, and the typed shapes of query results.
//
// It has no behaviour of its own. The poller decodes query results with it,
// the command coordinator builds requests with it, and the simulator serves
// the same shapes back.
package protocol

import (
	"math"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// Device methods and actions.
const (
	ActionGotoTarget = "goto_target"

	MethodGetEquCoord    = "scope_get_equ_coord"
	MethodGetViewState   = "get_view_state"
	MethodGetDeviceState = "get_device_state"
	MethodScopeSync      = "scope_sync"
	MethodStopView       = "iscope_stop_view"
	MethodStartExposure  = "start_exposure"
	MethodStopExposure   = "stop_exposure"
	MethodStartAutoFocus = "start_auto_focuse" // sic, device spelling
	MethodSetSetting     = "set_setting"
	MethodSetFocuser     = "set_focus_position"
)

// View stages reported by get_view_state.
const (
	StageIdle               = "Idle"
	StageAutoGoto           = "AutoGoto"
	StageAutoFocus          = "AutoFocus"
	StageExposure           = "Exposure"
	StageContinuousExposure = "ContinuousExposure"
	StageStack              = "Stack"
)

// Stage states reported by get_view_state.
const (
	StateWorking  = "working"
	StateStart    = "start"
	StateComplete = "complete"
	StateFail     = "fail"
	StateCancel   = "cancel"
	StateIdle     = "idle"
)

// Query requests polled every cycle.
var (
	QueryPosition    = transport.Sync(MethodGetEquCoord, nil)
	QueryViewState   = transport.Sync(MethodGetViewState, nil)
	QueryDeviceState = transport.Sync(MethodGetDeviceState, nil)
)

// Endpoint identities of the polled queries, for cache invalidation.
const (
	EndpointPosition    = transport.ActionMethodSync + "/" + MethodGetEquCoord
	EndpointViewState   = transport.ActionMethodSync + "/" + MethodGetViewState
	EndpointDeviceState = transport.ActionMethodSync + "/" + MethodGetDeviceState
)

// Goto slews to ra (hours) and dec (degrees). The device takes
// sexagesimal strings in JNow.
func Goto(ra, dec float64, targetName string) transport.Request {
	if targetName == "" {
		targetName = "Target"
	}
	return transport.Request{
		Action: ActionGotoTarget,
		Params: map[string]any{
			"target_name": targetName,
			"ra":          FormatHours(ra),
			"dec":         FormatDegrees(dec),
			"is_j2000":    false,
		},
	}
}

// Sync tells the mount it is pointing at ra (hours), dec (degrees).
func Sync(ra, dec float64) transport.Request {
	return transport.Sync(MethodScopeSync, []float64{ra, dec})
}

// StopSlew aborts an in-progress goto.
func StopSlew() transport.Request {
	return transport.Sync(MethodStopView, map[string]any{"stage": StageAutoGoto})
}

// StartExposure begins a single exposure.
func StartExposure(d time.Duration, gain int) transport.Request {
	return transport.Sync(MethodStartExposure, map[string]any{
		"exposure_ms": d.Milliseconds(),
		"gain":        gain,
	})
}

// StopExposure aborts the current exposure.
func StopExposure() transport.Request {
	return transport.Sync(MethodStopExposure, nil)
}

// StartAutoFocus runs the device's auto-focus routine.
func StartAutoFocus() transport.Request {
	return transport.Sync(MethodStartAutoFocus, nil)
}

// SetFilter selects a filter slot. The Seestar has a single switchable
// light-pollution filter, so any non-zero slot enables it.
func SetFilter(position int) transport.Request {
	return transport.Sync(MethodSetSetting, map[string]any{"stack_lenhance": position != 0})
}

// SetFocuser moves the focuser to an absolute position.
func SetFocuser(position int) transport.Request {
	return transport.Sync(MethodSetFocuser, map[string]any{"position": position})
}

// NormalizeHours wraps an hour angle into [0, 24).
func NormalizeHours(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}
