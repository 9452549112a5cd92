package state

import "time"

// Faults holds device-reported failures per operation. Empty means none.
type Faults struct {
	Goto     string `json:"goto,omitempty"`
	Exposure string `json:"exposure,omitempty"`
	Focus    string `json:"focus,omitempty"`
}

// Snapshot is one consistent view of the telescope at an instant.
//
// Snapshots are values. They are produced by the poller from a single
// successful poll cycle, or marked Stale as a whole when no such cycle is
// available; a Snapshot never mixes fields from different cycles.
type Snapshot struct {
	Version    uint64    `json:"version"`
	CapturedAt time.Time `json:"captured_at"`
	Stale      bool      `json:"stale"`
	Connected  bool      `json:"connected"`

	// Mount. RA is in hours [0,24), Dec in degrees.
	RA       float64 `json:"ra"`
	Dec      float64 `json:"dec"`
	Slewing  bool    `json:"slewing"`
	Tracking bool    `json:"tracking"`

	// Camera.
	Exposing bool   `json:"exposing"`
	Stage    string `json:"stage"`

	// Filter wheel.
	FilterPosition int `json:"filter_position"`

	// Focuser.
	FocuserPosition    int     `json:"focuser_position"`
	FocuserMoving      bool    `json:"focuser_moving"`
	FocuserTemperature float64 `json:"focuser_temperature"`
	AutoFocusing       bool    `json:"auto_focusing"`

	Faults Faults `json:"faults"`
}

// Initial is the snapshot a store holds before the first poll completes.
func Initial() Snapshot {
	return Snapshot{Stale: true}
}

// Field names reported by Diff.
const (
	FieldStale              = "stale"
	FieldConnected          = "connected"
	FieldRA                 = "ra"
	FieldDec                = "dec"
	FieldSlewing            = "slewing"
	FieldTracking           = "tracking"
	FieldExposing           = "exposing"
	FieldStage              = "stage"
	FieldFilterPosition     = "filter_position"
	FieldFocuserPosition    = "focuser_position"
	FieldFocuserMoving      = "focuser_moving"
	FieldFocuserTemperature = "focuser_temperature"
	FieldAutoFocusing       = "auto_focusing"
	FieldFaults             = "faults"
)

// Diff lists the fields of s that differ from prev, ignoring Version and
// CapturedAt. The order is stable.
func (s Snapshot) Diff(prev Snapshot) []string {
	var changed []string
	add := func(differs bool, name string) {
		if differs {
			changed = append(changed, name)
		}
	}

	add(s.Stale != prev.Stale, FieldStale)
	add(s.Connected != prev.Connected, FieldConnected)
	add(s.RA != prev.RA, FieldRA)
	add(s.Dec != prev.Dec, FieldDec)
	add(s.Slewing != prev.Slewing, FieldSlewing)
	add(s.Tracking != prev.Tracking, FieldTracking)
	add(s.Exposing != prev.Exposing, FieldExposing)
	add(s.Stage != prev.Stage, FieldStage)
	add(s.FilterPosition != prev.FilterPosition, FieldFilterPosition)
	add(s.FocuserPosition != prev.FocuserPosition, FieldFocuserPosition)
	add(s.FocuserMoving != prev.FocuserMoving, FieldFocuserMoving)
	add(s.FocuserTemperature != prev.FocuserTemperature, FieldFocuserTemperature)
	add(s.AutoFocusing != prev.AutoFocusing, FieldAutoFocusing)
	add(s.Faults != prev.Faults, FieldFaults)
	return changed
}

// Disconnected returns a copy of s marked stale and disconnected, keeping
// the last known values for display.
func (s Snapshot) Disconnected(version uint64, at time.Time) Snapshot {
	s.Version = version
	s.CapturedAt = at
	s.Stale = true
	s.Connected = false
	return s
}
