package simulator_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/poller"
	"github.com/nerrad567/seestar-core/internal/telescope/simulator"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// stack wires the real client, store, poller and coordinator to a
// simulated device, with polling driven by hand.
type stack struct {
	t      *testing.T
	dev    *simulator.Device
	client *client.Client
	store  *state.Store
	poller *poller.Poller
	coord  *command.Coordinator
}

func newStack(t *testing.T, opts simulator.Options) *stack {
	t.Helper()
	s := &stack{t: t, dev: simulator.New(opts), store: state.NewStore()}
	s.client = client.New(s.dev, client.Options{
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
		Jitter:      -1,
		CacheTTL:    -1,
	})
	s.poller = poller.New(s.client, s.store, poller.Options{FailureThreshold: 3})
	s.coord = command.New(s.client, s.store, command.Options{})
	t.Cleanup(s.coord.Close)
	return s
}

func (s *stack) cycle() {
	s.t.Helper()
	s.poller.PollOnce(context.Background())
}

func (s *stack) accepted(in command.Intent) *command.Handle {
	s.t.Helper()
	h, err := s.coord.Submit(context.Background(), in)
	if err != nil {
		s.t.Fatalf("Submit() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Status() != command.StatusAwaitingCompletion {
		if h.Status().Terminal() {
			s.t.Fatalf("resolved before acceptance: %+v", h.Result())
		}
		if time.Now().After(deadline) {
			s.t.Fatal("device never accepted the command")
		}
		time.Sleep(time.Millisecond)
	}
	return h
}

func done(h *command.Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

func TestScenario_GotoReconcilesAfterThreeCycles(t *testing.T) {
	s := newStack(t, simulator.Options{GotoCycles: 3, RA: 2, Dec: 10})
	s.cycle()

	h := s.accepted(command.Goto(12.345, 45.678,
		command.WithEpsilon(0.001),
		command.WithDeadline(30*time.Second)))

	s.cycle()
	s.cycle()
	if done(h) {
		t.Fatalf("resolved before the mount arrived: %+v", h.Result())
	}
	s.cycle()

	res := h.Result()
	if res.Status != command.StatusSucceeded {
		t.Fatalf("Status = %s, want succeeded (reason %q)", res.Status, res.Reason)
	}
	snap := res.Snapshot
	if snap == nil {
		t.Fatal("Snapshot = nil")
	}
	if math.Abs(snap.RA-12.345) >= 0.001 || math.Abs(snap.Dec-45.678) >= 0.001 || snap.Slewing {
		t.Errorf("final snapshot = ra %v dec %v slewing %v", snap.RA, snap.Dec, snap.Slewing)
	}
	if snap.Version != s.store.Current().Version {
		t.Errorf("Snapshot.Version = %d, want current %d", snap.Version, s.store.Current().Version)
	}
}

func TestScenario_ConnectivityFollowsFailureThreshold(t *testing.T) {
	s := newStack(t, simulator.Options{})
	s.cycle()

	s.dev.BusyNext(1)
	s.cycle()
	if !s.store.Current().Connected {
		t.Fatal("a single transient failure marked the device disconnected")
	}
	s.cycle()

	s.dev.SetOffline(true)
	for i := 1; i <= 3; i++ {
		s.cycle()
		connected := s.store.Current().Connected
		if i < 3 && !connected {
			t.Fatalf("disconnected after %d failures, want 3", i)
		}
		if i == 3 && connected {
			t.Fatal("still connected after 3 consecutive failures")
		}
	}

	s.dev.SetOffline(false)
	s.cycle()
	if cur := s.store.Current(); !cur.Connected || cur.Stale {
		t.Errorf("after recovery connected=%v stale=%v, want fresh and connected", cur.Connected, cur.Stale)
	}
}

func TestScenario_GotoFault(t *testing.T) {
	s := newStack(t, simulator.Options{})
	s.cycle()

	s.dev.FailNextGoto("target below horizon")
	h := s.accepted(command.Goto(6, -85))
	s.cycle()

	res := h.Result()
	if res.Status != command.StatusFailed || !errors.Is(res.Err, command.ErrDeviceFault) {
		t.Errorf("Result = %s %v, want failed with ErrDeviceFault", res.Status, res.Err)
	}
}

func TestScenario_DeviceRejectsFocusMove(t *testing.T) {
	s := newStack(t, simulator.Options{FocuserMax: 1000})
	s.cycle()

	// The core allows up to its own limit; the device's is lower.
	h, err := s.coord.Submit(context.Background(), command.SetFocus(5000))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Status != command.StatusFailed || !res.Rejected() {
		t.Errorf("Result = %s rejected=%v, want failed and rejected", res.Status, res.Rejected())
	}
}

func TestScenario_FocusAndAutoFocus(t *testing.T) {
	s := newStack(t, simulator.Options{FocuserStart: 1000})
	s.cycle()

	move := s.accepted(command.MoveFocus(250))
	s.cycle()
	if done(move) {
		t.Fatal("focus move resolved while the focuser was still moving")
	}
	s.cycle()
	if res := move.Result(); res.Status != command.StatusSucceeded || res.Snapshot.FocuserPosition != 1250 {
		t.Fatalf("move Result = %s at %v", res.Status, res.Snapshot)
	}

	af := s.accepted(command.AutoFocus())
	for i := 0; i < 3; i++ {
		s.cycle()
	}
	if res := af.Result(); res.Status != command.StatusSucceeded {
		t.Errorf("autofocus Status = %s (reason %q), want succeeded", res.Status, res.Reason)
	}
}

func TestScenario_Exposure(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	s := newStack(t, simulator.Options{Now: func() time.Time { return now }})
	s.cycle()

	h := s.accepted(command.Expose(5*time.Second, 60))
	s.cycle()
	if !s.store.Current().Exposing {
		t.Fatal("snapshot not exposing after start")
	}

	now = now.Add(5 * time.Second)
	s.cycle()
	if res := h.Result(); res.Status != command.StatusSucceeded {
		t.Errorf("Status = %s (reason %q), want succeeded", res.Status, res.Reason)
	}
}
