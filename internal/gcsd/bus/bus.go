// Package bus fans mission events out to registered subscribers.
//
// Each subscriber gets its own goroutine and bounded queue, so a stalled
// consumer can never delay the ingest path or another consumer. When a
// queue overflows the oldest queued event is dropped; losing the oldest
// position update or alert is preferable to losing the newest.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/pkg/log"
)

// FilterFunc selects which events a subscriber receives. A nil filter
// receives everything.
type FilterFunc func(event.Event) bool

// HandlerFunc consumes one event. Handlers run on the subscriber's own
// goroutine and must not retain the event past the call.
type HandlerFunc func(event.Event)

// FaultFunc is invoked when a subscriber's handler panics.
type FaultFunc func(subscriber string, reason error)

// DropFunc is invoked each time a subscriber's queue overflows and the
// oldest event is discarded.
type DropFunc func(subscriber string, dropped event.Event)

const defaultQueueSize = 256

type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool

	onFault FaultFunc
	onDrop  DropFunc
}

type subscriber struct {
	name    string
	filter  FilterFunc
	handler HandlerFunc
	queue   chan event.Event
	done    chan struct{}
	dropped atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithFaultHandler installs the panic callback.
func WithFaultHandler(f FaultFunc) Option {
	return func(b *Bus) { b.onFault = f }
}

// WithDropHandler installs the overflow callback.
func WithDropHandler(f DropFunc) Option {
	return func(b *Bus) { b.onDrop = f }
}

func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[string]*subscriber)}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers a named consumer. buffer <= 0 takes the default
// queue size. Names must be unique while subscribed.
func (b *Bus) Subscribe(name string, buffer int, filter FilterFunc, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("subscriber %q: nil handler", name)
	}
	if buffer <= 0 {
		buffer = defaultQueueSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("subscriber %q: bus closed", name)
	}
	if _, ok := b.subs[name]; ok {
		return fmt.Errorf("subscriber %q: already registered", name)
	}

	s := &subscriber{
		name:    name,
		filter:  filter,
		handler: handler,
		queue:   make(chan event.Event, buffer),
		done:    make(chan struct{}),
	}
	b.subs[name] = s
	go b.run(s)
	return nil
}

// Unsubscribe removes the consumer and waits for its queued events to be
// delivered.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	s, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()
	if ok {
		close(s.queue)
		<-s.done
	}
}

// Publish enqueues the event for every matching subscriber and returns
// without waiting for delivery. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		b.enqueue(s, ev)
	}
}

func (b *Bus) enqueue(s *subscriber, ev event.Event) {
	for {
		select {
		case s.queue <- ev:
			return
		default:
		}
		// Queue full: shed the oldest event to make room for the newest.
		select {
		case old := <-s.queue:
			s.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(s.name, old)
			}
		default:
		}
	}
}

// Dropped reports how many events the named subscriber has lost to
// overflow. Unknown names report zero.
func (b *Bus) Dropped(name string) uint64 {
	b.mu.RLock()
	s, ok := b.subs[name]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return s.dropped.Load()
}

// Close stops accepting events, delivers everything already queued, and
// waits for all subscriber goroutines to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		close(s.queue)
	}
	for _, s := range subs {
		<-s.done
	}
}

func (b *Bus) run(s *subscriber) {
	defer close(s.done)
	for ev := range s.queue {
		b.deliver(s, ev)
	}
}

// deliver isolates a single handler call so a panic poisons neither the
// queue loop nor the events behind it.
func (b *Bus) deliver(s *subscriber, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("subscriber panic: %v", r)
			log.Error(err, "Event handler panicked", "subscriber", s.name, "kind", ev.Kind)
			if b.onFault != nil {
				b.onFault(s.name, err)
			}
		}
	}()
	s.handler(ev)
}
