package state

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Observer is called after each accepted publish with the new current
// snapshot and the one it replaced.
type Observer func(current, previous Snapshot)

// pair is what readers load atomically, so current and previous are always
// seen together.
type pair struct {
	current  Snapshot
	previous *Snapshot
}

// Store holds the one authoritative device snapshot.
//
// Readers never block: Current and Previous load an immutable pair through
// an atomic pointer. Writers are serialised internally, and a publish is
// accepted only if its version is strictly greater than the current one.
//
// Observers run synchronously inside Publish, after the new snapshot is
// visible and in version order. They must not block; anything slow belongs
// on the observer's own goroutine.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	state atomic.Pointer[pair]

	// writeMu serialises Publish, including observer dispatch.
	writeMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObs   uint64

	published atomic.Uint64
	rejected  atomic.Uint64
}

// NewStore creates a store holding Initial().
func NewStore() *Store {
	s := &Store{observers: make(map[uint64]Observer)}
	s.state.Store(&pair{current: Initial()})
	return s
}

// Current returns the latest snapshot.
func (s *Store) Current() Snapshot {
	return s.state.Load().current
}

// Previous returns the snapshot replaced by the latest publish, if any.
func (s *Store) Previous() (Snapshot, bool) {
	p := s.state.Load()
	if p.previous == nil {
		return Snapshot{}, false
	}
	return *p.previous, true
}

// Publish installs next if next.Version > Current().Version and reports
// whether it did. Rejected publishes leave the store untouched and notify
// no one.
func (s *Store) Publish(next Snapshot) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := s.state.Load()
	if next.Version <= old.current.Version {
		s.rejected.Add(1)
		return false
	}

	prev := old.current
	s.state.Store(&pair{current: next, previous: &prev})
	s.published.Add(1)

	for _, fn := range s.snapshotObservers() {
		fn(next, prev)
	}
	return true
}

// Observe registers fn for every future accepted publish and returns a
// function that removes it. The cancel function is safe to call more than
// once, and safe to call from inside fn.
func (s *Store) Observe(fn Observer) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// snapshotObservers copies the registry in registration order.
func (s *Store) snapshotObservers() []Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()

	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}

// Stats reports accepted and rejected publish counts.
func (s *Store) Stats() (published, rejected uint64) {
	return s.published.Load(), s.rejected.Load()
}
