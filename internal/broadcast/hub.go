// Package broadcast provides the hot multicast stream an engine publishes
// its results on.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber buffer used when none is given.
const DefaultBufferSize = 64

// Subscriber is one attached consumer.
type Subscriber[T any] struct {
	hub     *Hub[T]
	ch      chan T
	dropped atomic.Uint64
	closed  bool // guarded by hub.mu
}

// C delivers published values. It is closed on Unsubscribe or Hub.Close.
func (s *Subscriber[T]) C() <-chan T { return s.ch }

// Dropped counts values discarded because the subscriber fell behind.
func (s *Subscriber[T]) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe detaches the subscriber and closes its channel. It is safe to
// call more than once.
func (s *Subscriber[T]) Unsubscribe() {
	s.hub.remove(s)
}

// Hub fans values out to every current subscriber.
//
// Publish never blocks: a full subscriber buffer loses its oldest value to
// make room for the newest. Publishes are serialized, so every subscriber
// sees values in publish order.
type Hub[T any] struct {
	mu          sync.Mutex
	subscribers map[*Subscriber[T]]struct{}
	bufferSize  int
	closed      bool
}

// New creates a hub whose subscribers buffer up to bufferSize values.
// bufferSize <= 0 selects DefaultBufferSize.
func New[T any](bufferSize int) *Hub[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub[T]{
		subscribers: make(map[*Subscriber[T]]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe attaches a new subscriber. It only receives values published
// after this call. Subscribing to a closed hub returns a subscriber whose
// channel is already closed.
func (h *Hub[T]) Subscribe() *Subscriber[T] {
	s := &Subscriber[T]{hub: h, ch: make(chan T, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	h.subscribers[s] = struct{}{}
	return s
}

// Publish delivers v to every subscriber. It is a no-op after Close.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subscribers {
		for !s.offer(v) {
			// Slow subscriber, make room by dropping the oldest value.
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
		}
	}
}

func (s *Subscriber[T]) offer(v T) bool {
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close detaches and closes every subscriber.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subscribers {
		s.closed = true
		close(s.ch)
		delete(h.subscribers, s)
	}
}

func (h *Hub[T]) remove(s *Subscriber[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subscribers, s)
	close(s.ch)
}
