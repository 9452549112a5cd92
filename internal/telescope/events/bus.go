package events

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// DefaultQueueSize is the per-subscription bound used when none is given.
const DefaultQueueSize = 4

// Event is one published snapshot plus the fields that changed since the
// snapshot it replaced. Changed is nil for the catch-up event a new
// subscriber receives.
type Event struct {
	Snapshot state.Snapshot `json:"snapshot"`
	Changed  []string       `json:"changed,omitempty"`
}

// Source is the part of the state store the bus listens to.
type Source interface {
	Current() state.Snapshot
	Observe(fn state.Observer) (cancel func())
}

// Subscription is one consumer's registration.
//
// The bus writes into a bounded queue; when it is full the oldest queued
// event is dropped to make room, so a slow consumer always ends up holding
// the latest state rather than an unbounded backlog.
type Subscription struct {
	ch chan Event

	mu          sync.Mutex
	closed      bool
	lastVersion uint64

	dropped atomic.Uint64
}

// C returns the delivery channel. It is closed on Unsubscribe or Bus.Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// LastVersion is the version of the most recent event queued for delivery.
func (s *Subscription) LastVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVersion
}

// Dropped counts events discarded by coalescing.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// offer enqueues ev without ever blocking. Events not newer than the last
// queued one are ignored.
func (s *Subscription) offer(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || ev.Snapshot.Version <= s.lastVersion {
		return
	}
	s.lastVersion = ev.Snapshot.Version

	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		// Full: discard the oldest and try again. The consumer may have
		// drained it first, in which case the retry simply succeeds.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Bus fans out state store publishes to independent subscribers.
//
// Publishing never blocks: the bus runs as a store observer on the
// publisher's goroutine and only performs non-blocking queue operations.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Bus struct {
	source    Source
	queueSize int
	stop      func()

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
	// dropped accumulates drops from subscriptions that have gone away.
	dropped atomic.Uint64
}

// New creates a bus attached to source. queueSize <= 0 means DefaultQueueSize.
func New(source Source, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		source:    source,
		queueSize: queueSize,
		subs:      make(map[*Subscription]struct{}),
	}
	b.stop = source.Observe(b.onPublish)
	return b
}

func (b *Bus) onPublish(current, previous state.Snapshot) {
	b.published.Add(1)
	ev := Event{Snapshot: current, Changed: current.Diff(previous)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.offer(ev)
	}
}

// Subscribe registers a new consumer. If the store already holds a polled
// snapshot it is queued immediately, so the consumer starts from current
// state rather than waiting for the next change.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Event, b.queueSize)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}

	// Holding b.mu orders this against onPublish: a publish either lands
	// before and is read here, or after and is deduplicated by version.
	if cur := b.source.Current(); cur.Version > 0 {
		sub.offer(Event{Snapshot: cur})
	}
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		b.dropped.Add(sub.Dropped())
	}
	b.mu.Unlock()

	sub.close()
}

// Close detaches the bus from the store and closes every subscription.
func (b *Bus) Close() {
	b.stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		b.dropped.Add(sub.Dropped())
		sub.close()
		delete(b.subs, sub)
	}
}

// Stats returns subscriber and delivery counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := b.dropped.Load()
	for sub := range b.subs {
		dropped += sub.Dropped()
	}
	return Stats{
		Subscribers: len(b.subs),
		Published:   b.published.Load(),
		Dropped:     dropped,
	}
}
