package app

import (
	"sync"

	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/tracking/domain"

	"github.com/google/uuid"
)

// defaultSubscriberBuffer is how many undelivered events a subscriber may
// accumulate before the oldest are dropped.
const defaultSubscriberBuffer = 64

// Fanout delivers position samples and lifecycle events to independent
// subscribers. Each subscriber drains its own bounded buffer on its own
// goroutine, so a slow sink never blocks the producer or its peers;
// when the buffer fills, the oldest event is dropped.
type Fanout struct {
	logger *logger.Logger
	buffer int

	mu   sync.RWMutex
	subs map[string]map[uuid.UUID]*subscriber // keyed by orderID; "" watches every session
}

type subscriber struct {
	ch   chan domain.Event
	done chan struct{}
	once sync.Once
}

func NewFanout(log *logger.Logger) *Fanout {
	return &Fanout{
		logger: log,
		buffer: defaultSubscriberBuffer,
		subs:   make(map[string]map[uuid.UUID]*subscriber),
	}
}

// Subscribe attaches a sink to one order's event stream (or every
// session's when orderID is empty) and returns its unsubscribe func.
// Registration does not affect session lifecycle.
func (f *Fanout) Subscribe(orderID string, sink domain.Sink) func() {
	id := uuid.New()
	sub := &subscriber{
		ch:   make(chan domain.Event, f.buffer),
		done: make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case ev := <-sub.ch:
				sink.Deliver(ev)
			}
		}
	}()

	f.mu.Lock()
	if f.subs[orderID] == nil {
		f.subs[orderID] = make(map[uuid.UUID]*subscriber)
	}
	f.subs[orderID][id] = sub
	f.mu.Unlock()

	return func() {
		sub.once.Do(func() {
			f.mu.Lock()
			delete(f.subs[orderID], id)
			if len(f.subs[orderID]) == 0 {
				delete(f.subs, orderID)
			}
			f.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers an event to the order's subscribers and to the
// catch-all subscribers.
func (f *Fanout) Publish(ev domain.Event) {
	f.mu.RLock()
	targets := make([]*subscriber, 0, 4)
	for _, sub := range f.subs[ev.OrderID] {
		targets = append(targets, sub)
	}
	if ev.OrderID != "" {
		for _, sub := range f.subs[""] {
			targets = append(targets, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range targets {
		sub.offer(ev)
	}
}

// Broadcast delivers an event to every subscriber regardless of order,
// used for connection state changes.
func (f *Fanout) Broadcast(ev domain.Event) {
	f.mu.RLock()
	targets := make([]*subscriber, 0, 8)
	for _, bucket := range f.subs {
		for _, sub := range bucket {
			targets = append(targets, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range targets {
		sub.offer(ev)
	}
}

// SubscriberCount reports how many sinks watch the given order.
func (f *Fanout) SubscriberCount(orderID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[orderID])
}

// offer enqueues without blocking: when the buffer is full, the oldest
// event is evicted to make room for the newest.
func (sub *subscriber) offer(ev domain.Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}
	select {
	case <-sub.ch: // drop oldest
	default:
	}
	select {
	case sub.ch <- ev:
	default:
	}
}
