package command

import (
	"testing"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

func TestNear(t *testing.T) {
	tests := []struct {
		name    string
		ra, dec float64
		want    bool
	}{
		{"exact", 12, 45, true},
		{"inside tolerance", 12.0005, 44.9995, true},
		{"ra outside", 12.002, 45, false},
		{"dec outside", 12, 45.002, false},
		{"across midnight", 23.9995, 45, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := 12.0
			if tt.name == "across midnight" {
				target = 0.0003
			}
			s := state.Snapshot{RA: tt.ra, Dec: tt.dec}
			if got := near(s, target, 45, 0.001); got != tt.want {
				t.Errorf("near() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuccessPredicate_ShortExposure(t *testing.T) {
	accepted := time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)
	pred := successPredicate(Expose(100*time.Millisecond, 0), accepted)

	if pred(state.Snapshot{CapturedAt: accepted.Add(50 * time.Millisecond)}) {
		t.Error("complete before the exposure could have finished")
	}
	if !pred(state.Snapshot{CapturedAt: accepted.Add(time.Second)}) {
		t.Error("not complete after the exposure time elapsed with the camera idle")
	}
}

func TestSuccessPredicate_AutoFocusNeedsToStart(t *testing.T) {
	pred := successPredicate(AutoFocus(), time.Now())

	if pred(state.Snapshot{}) {
		t.Error("complete before auto-focus was ever seen running")
	}
	if pred(state.Snapshot{AutoFocusing: true}) {
		t.Error("complete while running")
	}
	if !pred(state.Snapshot{}) {
		t.Error("not complete after the run ended")
	}
}

func TestSuccessPredicate_AutoFocusBetweenPolls(t *testing.T) {
	accepted := time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)
	after := accepted.Add(autoFocusSettle)

	tests := []struct {
		name string
		snap state.Snapshot
		want bool
	}{
		{"too early", state.Snapshot{CapturedAt: accepted.Add(time.Second)}, false},
		{"settled and idle", state.Snapshot{CapturedAt: after}, true},
		{"settled but focuser moving", state.Snapshot{CapturedAt: after, FocuserMoving: true}, false},
		{"settled with focus fault", state.Snapshot{CapturedAt: after, Faults: state.Faults{Focus: "star not found"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := successPredicate(AutoFocus(), accepted)
			if got := pred(tt.snap); got != tt.want {
				t.Errorf("predicate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFaultOf(t *testing.T) {
	f := state.Faults{Goto: "below horizon", Exposure: "dark frame", Focus: "star not found"}

	tests := []struct {
		kind Kind
		want string
	}{
		{KindGoto, "below horizon"},
		{KindExpose, "dark frame"},
		{KindSetFocus, "star not found"},
		{KindMoveFocus, "star not found"},
		{KindAutoFocus, "star not found"},
		{KindSetFilter, ""},
		{KindStopSlew, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := faultOf(tt.kind, f); got != tt.want {
				t.Errorf("faultOf(%s) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestTimeouts_Deadline(t *testing.T) {
	to := DefaultTimeouts()

	tests := []struct {
		name   string
		intent Intent
		want   time.Duration
	}{
		{"goto", Goto(1, 1), to.Goto},
		{"sync", Sync(1, 1), to.Default},
		{"exposure adds margin", Expose(10*time.Second, 0), 10*time.Second + to.ExposureMargin},
		{"filter", SetFilter(0), to.Filter},
		{"relative focus", MoveFocus(5), to.Focus},
		{"autofocus", AutoFocus(), to.AutoFocus},
		{"explicit deadline wins", Goto(1, 1, WithDeadline(5*time.Second)), 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := to.deadline(tt.intent); got != tt.want {
				t.Errorf("deadline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceRequest(t *testing.T) {
	tests := []struct {
		intent       Intent
		wantEndpoint string
		wantStale    string
	}{
		{Goto(1, 1), protocol.ActionGotoTarget, protocol.EndpointPosition},
		{StopSlew(), "method_sync/" + protocol.MethodStopView, protocol.EndpointViewState},
		{Expose(time.Second, 1), "method_sync/" + protocol.MethodStartExposure, protocol.EndpointViewState},
		{SetFilter(1), "method_sync/" + protocol.MethodSetSetting, protocol.EndpointDeviceState},
		{SetFocus(1), "method_sync/" + protocol.MethodSetFocuser, protocol.EndpointDeviceState},
		{AutoFocus(), "method_sync/" + protocol.MethodStartAutoFocus, protocol.EndpointDeviceState},
	}

	for _, tt := range tests {
		t.Run(string(tt.intent.Kind), func(t *testing.T) {
			req, stale := deviceRequest(tt.intent)
			if got := req.Endpoint(); got != tt.wantEndpoint {
				t.Errorf("Endpoint() = %q, want %q", got, tt.wantEndpoint)
			}
			found := false
			for _, ep := range stale {
				found = found || ep == tt.wantStale
			}
			if !found {
				t.Errorf("invalidated %v, want to include %s", stale, tt.wantStale)
			}
		})
	}
}

func TestKind_Axis(t *testing.T) {
	for _, k := range AllKinds() {
		if !k.Valid() {
			t.Errorf("%s.Valid() = false", k)
		}
		if _, stale := deviceRequest(Intent{Kind: k}); len(stale) == 0 {
			t.Errorf("%s has no device request", k)
		}
	}
	if Kind("park").Valid() {
		t.Error(`Kind("park").Valid() = true`)
	}
	if KindGoto.Axis() != KindStopSlew.Axis() {
		t.Error("goto and stop_slew should share the mount axis")
	}
	if KindSetFocus.Axis() == KindSetFilter.Axis() {
		t.Error("focuser and filter should be independent axes")
	}
}
