package simulator

import (
	"math"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
)

func (d *Device) startGoto(params any) (any, int, string) {
	var p struct {
		TargetName string `json:"target_name"`
		RA         string `json:"ra"`
		Dec        string `json:"dec"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, CodeBadParameter, "bad goto parameters: " + err.Error()
	}
	ra, err := protocol.ParseSexagesimal(p.RA)
	if err != nil {
		return nil, CodeBadParameter, "bad ra: " + err.Error()
	}
	dec, err := protocol.ParseSexagesimal(p.Dec)
	if err != nil || dec < -90 || dec > 90 {
		return nil, CodeBadParameter, "bad dec: " + p.Dec
	}
	if d.autoFocusLeft > 0 {
		return nil, CodeBusy, "goto not ready, auto focus in progress"
	}

	d.slew = &slew{
		fromRA: d.ra, fromDec: d.dec,
		toRA: protocol.NormalizeHours(ra), toDec: dec,
		remaining: d.opts.GotoCycles,
		total:     d.opts.GotoCycles,
		fail:      d.failGoto,
	}
	d.failGoto = ""
	d.target = p.TargetName
	d.stage = protocol.StageAutoGoto
	d.gotoStat = &protocol.StageState{State: protocol.StateWorking}
	return 0, 0, ""
}

// advanceSlew moves an in-progress goto one step. Called per position query.
func (d *Device) advanceSlew() {
	s := d.slew
	if s == nil {
		return
	}
	s.remaining--

	if s.fail != "" {
		d.slew = nil
		d.stage = protocol.StageIdle
		d.gotoStat = &protocol.StageState{State: protocol.StateFail, Error: s.fail, Code: CodeBadParameter}
		return
	}
	if s.remaining <= 0 {
		d.ra, d.dec = s.toRA, s.toDec
		d.slew = nil
		d.stage = protocol.StageIdle
		d.gotoStat = &protocol.StageState{State: protocol.StateComplete}
		return
	}

	frac := float64(s.total-s.remaining) / float64(s.total)
	dra := s.toRA - s.fromRA
	if dra > 12 {
		dra -= 24
	} else if dra < -12 {
		dra += 24
	}
	d.ra = protocol.NormalizeHours(s.fromRA + dra*frac)
	d.dec = s.fromDec + (s.toDec-s.fromDec)*frac
}

// advanceView settles time-based and staged operations. Called per view query.
func (d *Device) advanceView() {
	if d.exposureStat != nil && d.exposureStat.Active() && !d.opts.Now().Before(d.exposureEnd) {
		d.exposureStat = &protocol.StageState{State: protocol.StateComplete}
		d.stage = protocol.StageIdle
	}

	if d.autoFocusLeft > 0 {
		d.autoFocusLeft--
		if d.autoFocusLeft == 0 {
			d.autoFocusStat = &protocol.StageState{State: protocol.StateComplete}
			d.stage = protocol.StageIdle
			d.focuser = d.opts.FocuserMax / 2
			d.focusTarget = d.focuser
		}
	}
}

func (d *Device) view() protocol.View {
	v := protocol.View{
		Stage:      d.stage,
		Mode:       "star",
		TargetName: d.target,
		AutoGoto:   d.gotoStat,
		AutoFocus:  d.autoFocusStat,
		Exposure:   d.exposureStat,
	}
	switch d.stage {
	case protocol.StageAutoGoto:
		v.State = stateOf(d.gotoStat)
	case protocol.StageAutoFocus:
		v.State = stateOf(d.autoFocusStat)
	case protocol.StageExposure:
		v.State = stateOf(d.exposureStat)
	}
	return v
}

func stateOf(s *protocol.StageState) string {
	if s == nil {
		return ""
	}
	return s.State
}

func (d *Device) deviceState() protocol.DeviceState {
	temp := d.opts.Temperature
	focuserState := protocol.StateIdle
	if d.focusMoving {
		focuserState = protocol.StateWorking
	}
	return protocol.DeviceState{
		Temperature: &temp,
		Mount:       protocol.MountState{Tracking: d.tracking},
		Focuser: protocol.FocuserState{
			State:   focuserState,
			Step:    d.focuser,
			MaxStep: d.opts.FocuserMax,
		},
		Setting:  protocol.SettingState{StackLenhance: d.lightPollution},
		PiStatus: protocol.PiStatus{Temp: &temp},
	}
}

// advanceFocuser completes a focus move. Called after each device-state
// query, so one cycle reports the move in progress.
func (d *Device) advanceFocuser() {
	if d.focusMoving {
		d.focuser = d.focusTarget
		d.focusMoving = false
	}
}

func (d *Device) sync(params any) (any, int, string) {
	var coords []float64
	if err := decodeParams(params, &coords); err != nil || len(coords) != 2 {
		return nil, CodeBadParameter, "scope_sync needs [ra, dec]"
	}
	if coords[1] < -90 || coords[1] > 90 || math.IsNaN(coords[0]) {
		return nil, CodeBadParameter, "scope_sync coordinates out of range"
	}
	d.ra, d.dec = protocol.NormalizeHours(coords[0]), coords[1]
	return 0, 0, ""
}

func (d *Device) stopView(params any) (any, int, string) {
	var p struct {
		Stage string `json:"stage"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, CodeBadParameter, "bad stop parameters"
	}
	if p.Stage == protocol.StageAutoGoto && d.slew != nil {
		d.slew = nil
		d.stage = protocol.StageIdle
		d.gotoStat = &protocol.StageState{State: protocol.StateCancel}
	}
	return 0, 0, ""
}

func (d *Device) startExposure(params any) (any, int, string) {
	var p struct {
		ExposureMS int64 `json:"exposure_ms"`
		Gain       int   `json:"gain"`
	}
	if err := decodeParams(params, &p); err != nil || p.ExposureMS <= 0 {
		return nil, CodeBadParameter, "exposure_ms must be positive"
	}
	if d.slew != nil {
		return nil, CodeBusy, "camera busy while slewing"
	}
	d.exposureEnd = d.opts.Now().Add(time.Duration(p.ExposureMS) * time.Millisecond)
	d.exposureStat = &protocol.StageState{State: protocol.StateWorking}
	d.stage = protocol.StageExposure
	return 0, 0, ""
}

func (d *Device) setSetting(params any) (any, int, string) {
	var p map[string]any
	if err := decodeParams(params, &p); err != nil {
		return nil, CodeBadParameter, "bad settings"
	}
	if v, ok := p["stack_lenhance"].(bool); ok {
		d.lightPollution = v
	}
	return 0, 0, ""
}

func (d *Device) setFocuser(params any) (any, int, string) {
	var p struct {
		Position *int `json:"position"`
	}
	if err := decodeParams(params, &p); err != nil || p.Position == nil {
		return nil, CodeBadParameter, "position required"
	}
	if *p.Position < 0 || *p.Position > d.opts.FocuserMax {
		return nil, CodeBadParameter, "focuser position out of range"
	}
	if d.autoFocusLeft > 0 {
		return nil, CodeBusy, "focuser busy, auto focus in progress"
	}
	d.focusTarget = *p.Position
	d.focusMoving = d.focusTarget != d.focuser
	return 0, 0, ""
}
