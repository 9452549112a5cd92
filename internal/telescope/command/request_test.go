package command

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, in Intent)
		wantErr bool
	}{
		{
			name: "goto with decimal coordinates",
			body: `{"kind":"goto","ra":12.345,"dec":45.678,"epsilon":0.001,"timeout":30}`,
			check: func(t *testing.T, in Intent) {
				if in.Kind != KindGoto || in.RA != 12.345 || in.Dec != 45.678 {
					t.Errorf("intent = %+v", in)
				}
				if in.Epsilon != 0.001 {
					t.Errorf("Epsilon = %v, want 0.001", in.Epsilon)
				}
				if in.Timeout != 30*time.Second {
					t.Errorf("Timeout = %v, want 30s", in.Timeout)
				}
			},
		},
		{
			name: "goto with sexagesimal coordinates",
			body: `{"kind":"goto","ra":"05:35:17.3","dec":"-05:23:28","target":"M42"}`,
			check: func(t *testing.T, in Intent) {
				if math.Abs(in.RA-5.58814) > 1e-4 || math.Abs(in.Dec+5.39111) > 1e-4 {
					t.Errorf("RA, Dec = %v, %v", in.RA, in.Dec)
				}
				if in.Target != "M42" {
					t.Errorf("Target = %q, want M42", in.Target)
				}
			},
		},
		{
			name: "expose",
			body: `{"kind":"expose","duration":2.5,"gain":80}`,
			check: func(t *testing.T, in Intent) {
				if in.Duration != 2500*time.Millisecond || in.Gain != 80 {
					t.Errorf("Duration, Gain = %v, %d", in.Duration, in.Gain)
				}
			},
		},
		{
			name: "filter slot zero",
			body: `{"kind":"set_filter","position":0}`,
			check: func(t *testing.T, in Intent) {
				if in.Kind != KindSetFilter || in.Position != 0 {
					t.Errorf("intent = %+v", in)
				}
			},
		},
		{
			name: "relative focus",
			body: `{"kind":"move_focus","steps":-25}`,
			check: func(t *testing.T, in Intent) {
				if in.Steps != -25 {
					t.Errorf("Steps = %d, want -25", in.Steps)
				}
			},
		},
		{
			name: "autofocus needs no parameters",
			body: `{"kind":"autofocus"}`,
			check: func(t *testing.T, in Intent) {
				if in.Kind != KindAutoFocus {
					t.Errorf("Kind = %s", in.Kind)
				}
			},
		},
		{name: "malformed json", body: `{"kind":`, wantErr: true},
		{name: "unknown kind", body: `{"kind":"park"}`, wantErr: true},
		{name: "goto without dec", body: `{"kind":"goto","ra":1}`, wantErr: true},
		{name: "bad sexagesimal", body: `{"kind":"goto","ra":"xx:yy","dec":1}`, wantErr: true},
		{name: "expose without duration", body: `{"kind":"expose"}`, wantErr: true},
		{name: "filter without position", body: `{"kind":"set_filter"}`, wantErr: true},
		{name: "zero relative focus", body: `{"kind":"move_focus"}`, wantErr: true},
		{name: "negative timeout", body: `{"kind":"stop_slew","timeout":-1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.body))
			var in Intent
			if err == nil {
				in, err = req.Intent()
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("error = %v, want ErrInvalidRequest", err)
				}
				return
			}
			tt.check(t, in)
		})
	}
}

func TestRequest_IntentAppliesOptions(t *testing.T) {
	req, err := ParseRequest([]byte(`{"kind":"stop_slew"}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	in, err := req.Intent(WithSource("mqtt"))
	if err != nil {
		t.Fatalf("Intent() error = %v", err)
	}
	if in.Source != "mqtt" {
		t.Errorf("Source = %q, want mqtt", in.Source)
	}
}

func TestIntent_Request(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
	}{
		{"goto", Goto(1.5, -20, WithEpsilon(0.002), WithTarget("NGC 7000"))},
		{"expose", Expose(3*time.Second, 50, WithDeadline(time.Minute))},
		{"filter", SetFilter(1)},
		{"focus", SetFocus(4000)},
		{"move focus", MoveFocus(30)},
		{"autofocus", AutoFocus()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			back, err := tt.intent.Request().Intent()
			if err != nil {
				t.Fatalf("Intent() error = %v", err)
			}
			if !sameIntent(back, tt.intent) {
				t.Errorf("round trip = %+v, want %+v", back, tt.intent)
			}
		})
	}
}

func sameIntent(a, b Intent) bool {
	return a.Kind == b.Kind &&
		a.RA == b.RA && a.Dec == b.Dec && a.Epsilon == b.Epsilon &&
		a.Duration == b.Duration && a.Gain == b.Gain &&
		a.Position == b.Position && a.Steps == b.Steps &&
		a.Timeout == b.Timeout && a.Target == b.Target
}
