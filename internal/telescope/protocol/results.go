package protocol

// EquCoord is the result of scope_get_equ_coord: RA in hours, Dec in degrees.
type EquCoord struct {
	RA  Angle `json:"ra"`
	Dec Angle `json:"dec"`
}

// StageState is one stage's progress inside get_view_state.
type StageState struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Active reports whether the stage is still running.
func (s *StageState) Active() bool {
	if s == nil {
		return false
	}
	return IsActive(s.State)
}

// Failure returns the error text when the stage ended in failure.
func (s *StageState) Failure() string {
	if s == nil || s.State != StateFail {
		return ""
	}
	if s.Error != "" {
		return s.Error
	}
	return "failed"
}

// View is the "View" object of get_view_state.
type View struct {
	Stage      string      `json:"stage"`
	State      string      `json:"state"`
	Mode       string      `json:"mode,omitempty"`
	TargetName string      `json:"target_name,omitempty"`
	AutoGoto   *StageState `json:"AutoGoto,omitempty"`
	AutoFocus  *StageState `json:"AutoFocus,omitempty"`
	Exposure   *StageState `json:"Exposure,omitempty"`
	Stack      *StageState `json:"Stack,omitempty"`
}

// ViewState is the result of get_view_state.
type ViewState struct {
	View View `json:"View"`
}

// MountState is the "mount" object of get_device_state.
type MountState struct {
	Tracking bool   `json:"tracking"`
	MoveType string `json:"move_type,omitempty"`
}

// FocuserState is the "focuser" object of get_device_state.
type FocuserState struct {
	State   string `json:"state"`
	Step    int    `json:"step"`
	MaxStep int    `json:"max_step,omitempty"`
}

// Moving reports whether the focuser motor is running.
func (f FocuserState) Moving() bool {
	return f.State != "" && f.State != StateIdle
}

// SettingState is the "setting" object of get_device_state.
type SettingState struct {
	StackLenhance bool `json:"stack_lenhance"`
}

// PiStatus is the "pi_status" object of get_device_state.
type PiStatus struct {
	Temp *float64 `json:"temp,omitempty"`
}

// DeviceState is the result of get_device_state.
type DeviceState struct {
	Temperature *float64     `json:"temperature,omitempty"`
	Mount       MountState   `json:"mount"`
	Focuser     FocuserState `json:"focuser"`
	Setting     SettingState `json:"setting"`
	PiStatus    PiStatus     `json:"pi_status"`
}

// FilterPosition maps the light-pollution switch onto a slot index.
func (d DeviceState) FilterPosition() int {
	if d.Setting.StackLenhance {
		return 1
	}
	return 0
}

// Temp returns the best available temperature reading.
func (d DeviceState) Temp() float64 {
	switch {
	case d.Temperature != nil:
		return *d.Temperature
	case d.PiStatus.Temp != nil:
		return *d.PiStatus.Temp
	default:
		return 0
	}
}

// IsActive reports whether a stage state means "still running".
func IsActive(state string) bool {
	switch state {
	case StateWorking, StateStart:
		return true
	}
	return false
}
