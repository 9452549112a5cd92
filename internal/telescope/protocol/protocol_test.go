package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseSexagesimal(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "05:30:00", want: 5.5},
		{in: "-05:30:00", want: -5.5},
		{in: "+45 40 40.8", want: 45.678},
		{in: "12h30m00s", want: 12.5},
		{in: "12.25", want: 12.25},
		{in: "", wantErr: true},
		{in: "12:61:00", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSexagesimal(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadAngle) {
					t.Errorf("ParseSexagesimal(%q) error = %v, want ErrBadAngle", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSexagesimal(%q) error = %v", tt.in, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseSexagesimal(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, h := range []float64{0, 5.5, 12.345, 23.99} {
		back, err := ParseSexagesimal(FormatHours(h))
		if err != nil {
			t.Fatalf("parse %q: %v", FormatHours(h), err)
		}
		// Formatting keeps a tenth of a second, i.e. ~3e-5 hours.
		if math.Abs(back-h) > 1e-4 {
			t.Errorf("FormatHours(%v) round trip = %v", h, back)
		}
	}

	if got := FormatDegrees(-5.3911); got != "-05:23:28.0" {
		t.Errorf("FormatDegrees(-5.3911) = %q, want -05:23:28.0", got)
	}
	if got := FormatDegrees(45.5); got != "+45:30:00.0" {
		t.Errorf("FormatDegrees(45.5) = %q, want +45:30:00.0", got)
	}
	if got := FormatHours(-1); got != "23:00:00.0" {
		t.Errorf("FormatHours(-1) = %q, want 23:00:00.0", got)
	}
}

func TestAngle_UnmarshalJSON(t *testing.T) {
	var c EquCoord
	if err := json.Unmarshal([]byte(`{"ra":"05:30:00","dec":-12.5}`), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if float64(c.RA) != 5.5 || float64(c.Dec) != -12.5 {
		t.Errorf("EquCoord = %+v, want {5.5 -12.5}", c)
	}

	if err := json.Unmarshal([]byte(`{"ra":true}`), &c); err == nil {
		t.Error("Unmarshal() expected error for boolean angle, got nil")
	}
}

func TestNormalizeHours(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0}, {24, 0}, {25.5, 1.5}, {-0.5, 23.5},
	}
	for _, tt := range tests {
		if got := NormalizeHours(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("NormalizeHours(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRequestBuilders(t *testing.T) {
	tests := []struct {
		name     string
		params   func() (string, error)
		endpoint string
		want     string
	}{
		{
			name:     "goto",
			params:   Goto(5.5, -12.5, "M42").Parameters,
			endpoint: Goto(0, 0, "").Endpoint(),
			want:     `{"dec":"-12:30:00.0","is_j2000":false,"ra":"05:30:00.0","target_name":"M42"}`,
		},
		{
			name:     "exposure",
			params:   StartExposure(1500*time.Millisecond, 80).Parameters,
			endpoint: StartExposure(0, 0).Endpoint(),
			want:     `{"method":"start_exposure","params":{"exposure_ms":1500,"gain":80}}`,
		},
		{
			name:     "filter",
			params:   SetFilter(1).Parameters,
			endpoint: SetFilter(0).Endpoint(),
			want:     `{"method":"set_setting","params":{"stack_lenhance":true}}`,
		},
		{
			name:     "focuser",
			params:   SetFocuser(1580).Parameters,
			endpoint: SetFocuser(0).Endpoint(),
			want:     `{"method":"set_focus_position","params":{"position":1580}}`,
		},
		{
			name:     "autofocus",
			params:   StartAutoFocus().Parameters,
			endpoint: StartAutoFocus().Endpoint(),
			want:     `{"method":"start_auto_focuse"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.params()
			if err != nil {
				t.Fatalf("Parameters() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parameters() = %s, want %s", got, tt.want)
			}
			if tt.endpoint == "" {
				t.Error("Endpoint() is empty")
			}
		})
	}
}

func TestEndpointConstantsMatchQueries(t *testing.T) {
	if QueryPosition.Endpoint() != EndpointPosition {
		t.Errorf("QueryPosition.Endpoint() = %q, want %q", QueryPosition.Endpoint(), EndpointPosition)
	}
	if QueryViewState.Endpoint() != EndpointViewState {
		t.Errorf("QueryViewState.Endpoint() = %q, want %q", QueryViewState.Endpoint(), EndpointViewState)
	}
	if QueryDeviceState.Endpoint() != EndpointDeviceState {
		t.Errorf("QueryDeviceState.Endpoint() = %q, want %q", QueryDeviceState.Endpoint(), EndpointDeviceState)
	}
}

func TestDeviceState_Derived(t *testing.T) {
	raw := `{"mount":{"tracking":true},"focuser":{"state":"moving","step":1200},"setting":{"stack_lenhance":true},"pi_status":{"temp":31.5}}`
	var d DeviceState
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.FilterPosition() != 1 {
		t.Errorf("FilterPosition() = %d, want 1", d.FilterPosition())
	}
	if d.Temp() != 31.5 {
		t.Errorf("Temp() = %v, want 31.5", d.Temp())
	}
	if !d.Focuser.Moving() {
		t.Error("Focuser.Moving() = false, want true")
	}

	var stage *StageState
	if stage.Active() || stage.Failure() != "" {
		t.Error("nil stage should be inactive without failure")
	}
	failed := &StageState{State: StateFail}
	if failed.Failure() != "failed" {
		t.Errorf("Failure() = %q, want %q", failed.Failure(), "failed")
	}
}
