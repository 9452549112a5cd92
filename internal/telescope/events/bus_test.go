package events

import (
	"testing"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

func publish(t *testing.T, store *state.Store, version uint64, mutate func(*state.Snapshot)) {
	t.Helper()
	s := store.Current()
	s.Version = version
	s.Stale = false
	s.Connected = true
	if mutate != nil {
		mutate(&s)
	}
	if !store.Publish(s) {
		t.Fatalf("Publish(v%d) rejected", version)
	}
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBus_DeliversSnapshotAndDiff(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 4)
	defer bus.Close()

	sub := bus.Subscribe()
	publish(t, store, 1, nil)
	publish(t, store, 2, func(s *state.Snapshot) { s.RA = 3.5; s.Slewing = true })

	first := receive(t, sub)
	if first.Snapshot.Version != 1 {
		t.Errorf("first event version = %d, want 1", first.Snapshot.Version)
	}

	second := receive(t, sub)
	if second.Snapshot.Version != 2 || second.Snapshot.RA != 3.5 {
		t.Errorf("second event = %+v", second.Snapshot)
	}
	want := map[string]bool{state.FieldRA: true, state.FieldSlewing: true}
	if len(second.Changed) != len(want) {
		t.Fatalf("Changed = %v, want ra and slewing", second.Changed)
	}
	for _, f := range second.Changed {
		if !want[f] {
			t.Errorf("unexpected changed field %q", f)
		}
	}
	if sub.LastVersion() != 2 {
		t.Errorf("LastVersion() = %d, want 2", sub.LastVersion())
	}
}

func TestBus_SlowSubscriberCoalescesToLatest(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 4)
	defer bus.Close()

	slow := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := uint64(1); v <= 100; v++ {
			publish(t, store, v, nil)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a subscriber that never drains")
	}

	if got := len(slow.C()); got != 4 {
		t.Errorf("queued events = %d, want bounded at 4", got)
	}
	if slow.Dropped() != 96 {
		t.Errorf("Dropped() = %d, want 96", slow.Dropped())
	}

	var last Event
	for i := 0; i < 4; i++ {
		last = receive(t, slow)
	}
	if last.Snapshot.Version != 100 {
		t.Errorf("latest queued version = %d, want 100", last.Snapshot.Version)
	}
}

func TestBus_SlowSubscriberDoesNotAffectOthers(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 2)
	defer bus.Close()

	_ = bus.Subscribe() // never drained
	fast := bus.Subscribe()

	for v := uint64(1); v <= 10; v++ {
		publish(t, store, v, nil)
		ev := receive(t, fast)
		if ev.Snapshot.Version != v {
			t.Fatalf("fast subscriber got v%d, want v%d", ev.Snapshot.Version, v)
		}
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast subscriber Dropped() = %d, want 0", fast.Dropped())
	}
}

func TestBus_SubscribeReceivesCurrentSnapshot(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 4)
	defer bus.Close()

	// Nothing polled yet: no catch-up event.
	early := bus.Subscribe()
	if len(early.C()) != 0 {
		t.Error("subscriber received an event before any snapshot was published")
	}

	publish(t, store, 7, func(s *state.Snapshot) { s.FilterPosition = 1 })

	late := bus.Subscribe()
	ev := receive(t, late)
	if ev.Snapshot.Version != 7 || ev.Snapshot.FilterPosition != 1 {
		t.Errorf("catch-up event = %+v", ev.Snapshot)
	}
	if ev.Changed != nil {
		t.Errorf("catch-up Changed = %v, want nil", ev.Changed)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 4)
	defer bus.Close()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)

	publish(t, store, 1, nil)

	if _, ok := <-sub.C(); ok {
		t.Error("received on an unsubscribed channel")
	}
	if got := bus.Stats().Subscribers; got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}
}

func TestBus_Close(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 4)

	a := bus.Subscribe()
	b := bus.Subscribe()
	bus.Close()
	bus.Close()

	for _, sub := range []*Subscription{a, b} {
		if _, ok := <-sub.C(); ok {
			t.Error("subscription still open after Close")
		}
	}

	// Publishing after close reaches no one and does not panic.
	publish(t, store, 1, nil)
	if got := bus.Stats().Published; got != 0 {
		t.Errorf("Published = %d after Close, want 0", got)
	}

	late := bus.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("Subscribe after Close returned an open subscription")
	}
}

func TestBus_Stats(t *testing.T) {
	store := state.NewStore()
	bus := New(store, 1)
	defer bus.Close()

	sub := bus.Subscribe()
	publish(t, store, 1, nil)
	publish(t, store, 2, nil)
	publish(t, store, 3, nil)

	s := bus.Stats()
	if s.Subscribers != 1 || s.Published != 3 || s.Dropped != 2 {
		t.Errorf("Stats() = %+v, want 1 subscriber, 3 published, 2 dropped", s)
	}

	bus.Unsubscribe(sub)
	if got := bus.Stats().Dropped; got != 2 {
		t.Errorf("Dropped after unsubscribe = %d, want 2 retained", got)
	}
}
