// Package bus implements the Event Bus (spec.md §4.A): a process-wide,
// multi-producer/multi-subscriber, publish-only fan-out surface. Publish
// never blocks the caller; each subscriber drains its own unbounded queue
// through a dedicated goroutine so one slow subscriber cannot stall
// delivery to another, and per-subscriber delivery is FIFO per kind.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/logging"
)

// Subscription is a live handle returned by Subscribe; Events delivers
// published events in per-kind FIFO order. Cancel stops delivery and
// releases the subscriber's queue.
type Subscription struct {
	ID     string
	Events <-chan core.Event
	cancel func()
}

// Cancel unsubscribes; safe to call multiple times.
func (s *Subscription) Cancel() { s.cancel() }

type subscriber struct {
	id     string
	out    chan core.Event
	mu     sync.Mutex
	queue  []core.Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscriber(id string, bufferHint int) *subscriber {
	s := &subscriber{
		id:     id,
		out:    make(chan core.Event, bufferHint),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// enqueue appends to the subscriber's unbounded internal queue and wakes
// the drain goroutine; never blocks the publisher.
func (s *subscriber) enqueue(e core.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Bus is the process-wide event bus. Construct with New; safe for
// concurrent use by any number of publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferHint  int
	logger      logging.Logger
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithLogger installs a logger on the Bus. Subscriber queues are unbounded
// and Publish never drops an event, so the bus itself writes no log entries.
func WithLogger(l logging.Logger) Option { return func(b *Bus) { b.logger = l } }

// WithBufferHint sets the channel buffer size hint for new subscribers'
// delivery channel (the internal queue itself is unbounded).
func WithBufferHint(n int) Option { return func(b *Bus) { b.bufferHint = n } }

// New constructs an empty Bus.
func New(optFns ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		bufferHint:  256,
		logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(b)
	}
	return b
}

// Subscribe registers a new subscriber and returns its live handle.
func (b *Bus) Subscribe() *Subscription {
	id := uuid.NewString()
	sub := newSubscriber(id, b.bufferHint)
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return &Subscription{
		ID:     id,
		Events: sub.out,
		cancel: func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			sub.close()
		},
	}
}

// Publish fans out an event to every current subscriber. Never blocks:
// each subscriber has its own unbounded queue drained independently.
func (b *Bus) Publish(kind core.EventKind, payload interface{}) {
	evt := core.Event{ID: uuid.NewString(), Kind: kind, Payload: payload, Timestamp: time.Now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		sub.enqueue(evt)
	}
}

// SubscriberCount reports the current number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
