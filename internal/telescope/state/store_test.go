package state

import (
	"sync"
	"testing"
	"time"
)

func snap(version uint64) Snapshot {
	return Snapshot{Version: version, Connected: true, CapturedAt: time.Unix(int64(version), 0)}
}

func TestStore_InitialSnapshot(t *testing.T) {
	s := NewStore()

	cur := s.Current()
	if cur.Version != 0 || !cur.Stale || cur.Connected {
		t.Errorf("Current() = %+v, want stale disconnected version 0", cur)
	}
	if _, ok := s.Previous(); ok {
		t.Error("Previous() ok = true before any publish")
	}
}

func TestStore_PublishRequiresHigherVersion(t *testing.T) {
	s := NewStore()

	if !s.Publish(snap(1)) {
		t.Fatal("Publish(v1) = false, want true")
	}
	if !s.Publish(snap(3)) {
		t.Fatal("Publish(v3) = false, want true")
	}

	tests := []struct {
		name    string
		version uint64
	}{
		{name: "equal version", version: 3},
		{name: "older version", version: 2},
		{name: "zero version", version: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale := snap(tt.version)
			stale.RA = 99
			if s.Publish(stale) {
				t.Errorf("Publish(v%d) = true, want false", tt.version)
			}
			if got := s.Current(); got.Version != 3 || got.RA == 99 {
				t.Errorf("Current() = %+v, want v3 unchanged", got)
			}
		})
	}

	prev, ok := s.Previous()
	if !ok || prev.Version != 1 {
		t.Errorf("Previous() = (%d, %v), want (1, true)", prev.Version, ok)
	}

	published, rejected := s.Stats()
	if published != 2 || rejected != 3 {
		t.Errorf("Stats() = (%d, %d), want (2, 3)", published, rejected)
	}
}

func TestStore_ObserversSeeOrderedPublishes(t *testing.T) {
	s := NewStore()

	var got [][2]uint64
	cancel := s.Observe(func(cur, prev Snapshot) {
		got = append(got, [2]uint64{cur.Version, prev.Version})
		if s.Current().Version != cur.Version {
			t.Errorf("observer ran before v%d was visible", cur.Version)
		}
	})

	s.Publish(snap(1))
	s.Publish(snap(1)) // rejected, not observed
	s.Publish(snap(2))
	cancel()
	s.Publish(snap(3))

	want := [][2]uint64{{1, 0}, {2, 1}}
	if len(got) != len(want) {
		t.Fatalf("observer calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStore_ObserverCanCancelItself(t *testing.T) {
	s := NewStore()

	calls := 0
	var cancel func()
	cancel = s.Observe(func(cur, prev Snapshot) {
		calls++
		cancel()
	})

	s.Publish(snap(1))
	s.Publish(snap(2))
	cancel()

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStore_ConcurrentPublishersStayMonotonic(t *testing.T) {
	s := NewStore()

	var mu sync.Mutex
	var seen []uint64
	s.Observe(func(cur, prev Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cur.Version)
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for v := uint64(1); v <= 200; v++ {
				s.Publish(snap(v*8 + uint64(w)))
			}
		}(w)
	}

	var readers sync.WaitGroup
	stop := make(chan struct{})
	readers.Add(1)
	go func() {
		defer readers.Done()
		var last uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := s.Current().Version
			if v < last {
				t.Errorf("reader saw version go backwards: %d after %d", v, last)
				return
			}
			last = v
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("observed versions not strictly increasing at %d: %d then %d", i, seen[i-1], seen[i])
		}
	}
	if s.Current().Version != 200*8+7 {
		t.Errorf("final version = %d, want %d", s.Current().Version, 200*8+7)
	}
}

func TestSnapshot_Diff(t *testing.T) {
	base := Snapshot{Version: 1, Connected: true, RA: 1, Dec: 2, FilterPosition: 0}

	next := base
	next.Version = 2
	next.CapturedAt = time.Now()
	if d := next.Diff(base); len(d) != 0 {
		t.Errorf("Diff() = %v, want none for version/time-only change", d)
	}

	next.RA = 1.5
	next.Slewing = true
	next.Faults.Goto = "below horizon"
	got := next.Diff(base)
	want := []string{FieldRA, FieldSlewing, FieldFaults}
	if len(got) != len(want) {
		t.Fatalf("Diff() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Diff()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSnapshot_Disconnected(t *testing.T) {
	s := Snapshot{Version: 4, Connected: true, RA: 3, FocuserPosition: 1200}
	at := time.Unix(100, 0)

	d := s.Disconnected(5, at)
	if d.Version != 5 || !d.Stale || d.Connected || !d.CapturedAt.Equal(at) {
		t.Errorf("Disconnected() = %+v", d)
	}
	if d.RA != 3 || d.FocuserPosition != 1200 {
		t.Error("Disconnected() should keep last known values")
	}
	if !s.Connected {
		t.Error("Disconnected() mutated the receiver")
	}
}
