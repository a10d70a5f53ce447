// Package events is the change feed: the service layer publishes an event
// after every successful document write, and UI-side consumers subscribe
// with explicit lifetimes instead of framework-managed reactive queries.
package events

import "sync"

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type Event struct {
	Collection string
	Action     string
	ID         string
}

// Bus fans events out to all open subscriptions. Publish never blocks: a
// subscriber that stops draining its channel loses events past its buffer,
// tracked by Subscription.Dropped.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

type Subscription struct {
	bus     *Bus
	ch      chan Event
	mu      sync.Mutex
	closed  bool
	dropped int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe opens a subscription with the given channel buffer. The caller
// owns the subscription and must Close it when done.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 16
	}
	sub := &Subscription{bus: b, ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
}

// C is the event channel. It is closed when the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the channel
// buffer was full.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		s.dropped++
	}
}
