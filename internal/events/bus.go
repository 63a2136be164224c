// Package events is the in-process fan-out between the engine and its
// observers. Delivery is best-effort: each subscriber owns a bounded
// queue, overflow drops the oldest undelivered event, and the gap is
// reported with a synthesized overflow event. The persisted log, not the
// bus, is the durable record.
package events

import (
	"sync"

	"github.com/randalmurphal/tc/internal/core"
)

// DefaultBufferSize is the per-subscriber queue depth.
const DefaultBufferSize = 256

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(event core.Event)
}

// Filter selects which events a subscription receives. Zero value
// matches everything.
type Filter struct {
	// Kinds limits delivery to the listed kinds; empty means all.
	Kinds []core.EventKind
	// Subject limits delivery to one subject; empty means all.
	Subject string
}

// Match reports whether the filter admits the event.
func (f Filter) Match(e core.Event) bool {
	if f.Subject != "" && f.Subject != e.Subject {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

// Bus fans events out to any number of subscriptions.
type Bus struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	bufSize int
	closed  bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber queue depth.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[*Subscription]struct{}),
		bufSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish offers the event to every matching subscription. It never
// blocks on a slow consumer.
func (b *Bus) Publish(event core.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.filter.Match(event) {
			s.push(event)
		}
	}
}

// Subscribe registers a new subscription. The caller must drain C() and
// call Close when done.
func (b *Bus) Subscribe(f Filter) *Subscription {
	s := &Subscription{
		bus:    b,
		filter: f,
		out:    make(chan core.Event),
		done:   make(chan struct{}),
		cap:    b.bufSize,
	}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.Close()
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Close shuts the bus down and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one subscriber's bounded view of the stream.
type Subscription struct {
	bus    *Bus
	filter Filter
	out    chan core.Event
	done   chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []core.Event
	cap       int
	dropped   int
	closed    bool
	closeOnce sync.Once
}

// C returns the delivery channel. It is closed when the subscription is.
func (s *Subscription) C() <-chan core.Event { return s.out }

// Close detaches the subscription from the bus. Safe to call twice.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Signal()
		s.mu.Unlock()
		close(s.done)
		if s.bus != nil {
			s.bus.remove(s)
		}
	})
}

// push enqueues an event, displacing the oldest one when full.
func (s *Subscription) push(e core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= s.cap {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
}

// pump moves events from the queue to the delivery channel. When drops
// occurred since the last delivery, one overflow event precedes the next
// retained event so the consumer can see the gap.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		var e core.Event
		if s.dropped > 0 {
			payload := core.MarshalPayload(core.OverflowPayload{Dropped: s.dropped})
			e = core.NewEvent(core.EventOverflow, s.filter.Subject, payload)
			s.dropped = 0
		} else {
			e = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			close(s.out)
			return
		}
	}
}
