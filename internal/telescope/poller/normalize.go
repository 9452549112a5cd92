package poller

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// rawStatus is one cycle's worth of undecoded query results.
type rawStatus struct {
	position json.RawMessage
	view     json.RawMessage
	device   json.RawMessage
}

// exposingStages are the view stages in which the camera is integrating.
var exposingStages = map[string]bool{
	protocol.StageExposure:           true,
	protocol.StageContinuousExposure: true,
	protocol.StageStack:              true,
}

// normalize decodes a cycle's results into a fully populated snapshot.
// Any decode failure fails the whole cycle.
func normalize(raw rawStatus, version uint64, at time.Time) (state.Snapshot, error) {
	var coord protocol.EquCoord
	if err := json.Unmarshal(raw.position, &coord); err != nil {
		return state.Snapshot{}, fmt.Errorf("decoding %s: %w", protocol.MethodGetEquCoord, err)
	}
	var vs protocol.ViewState
	if err := json.Unmarshal(raw.view, &vs); err != nil {
		return state.Snapshot{}, fmt.Errorf("decoding %s: %w", protocol.MethodGetViewState, err)
	}
	var dev protocol.DeviceState
	if err := json.Unmarshal(raw.device, &dev); err != nil {
		return state.Snapshot{}, fmt.Errorf("decoding %s: %w", protocol.MethodGetDeviceState, err)
	}

	dec := float64(coord.Dec)
	if dec < -90 || dec > 90 {
		return state.Snapshot{}, fmt.Errorf("declination %.4f out of range", dec)
	}

	view := vs.View
	stage := view.Stage
	if stage == "" {
		stage = protocol.StageIdle
	}

	return state.Snapshot{
		Version:    version,
		CapturedAt: at,
		Connected:  true,

		RA:       protocol.NormalizeHours(float64(coord.RA)),
		Dec:      dec,
		Slewing:  slewing(view),
		Tracking: dev.Mount.Tracking,

		Exposing: exposing(view),
		Stage:    stage,

		FilterPosition: dev.FilterPosition(),

		FocuserPosition:    dev.Focuser.Step,
		FocuserMoving:      dev.Focuser.Moving(),
		FocuserTemperature: dev.Temp(),
		AutoFocusing:       autoFocusing(view),

		Faults: state.Faults{
			Goto:     view.AutoGoto.Failure(),
			Exposure: firstNonEmpty(view.Exposure.Failure(), view.Stack.Failure()),
			Focus:    view.AutoFocus.Failure(),
		},
	}, nil
}

// slewing is true while an AutoGoto stage is running.
func slewing(v protocol.View) bool {
	if v.Stage != protocol.StageAutoGoto {
		return false
	}
	if v.AutoGoto != nil {
		return v.AutoGoto.Active()
	}
	return protocol.IsActive(v.State) || v.State == ""
}

func exposing(v protocol.View) bool {
	if !exposingStages[v.Stage] {
		return false
	}
	if v.Stage == protocol.StageExposure && v.Exposure != nil {
		return v.Exposure.Active()
	}
	return protocol.IsActive(v.State)
}

func autoFocusing(v protocol.View) bool {
	if v.Stage != protocol.StageAutoFocus {
		return false
	}
	if v.AutoFocus != nil {
		return v.AutoFocus.Active()
	}
	return protocol.IsActive(v.State)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
