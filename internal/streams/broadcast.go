// Package streams provides the two channel primitives every actor is wired
// with: a bounded fan-out Broadcast bus and a bounded point-to-point Queue.
package streams

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when the other side of a bus or queue is gone: a
// send with no live receivers, or a receive after every sender closed and the
// buffer drained.
var ErrClosed = errors.New("streams: closed")

// hub is the shared state behind every Sender and Receiver of one bus.
type hub[T any] struct {
	// sendMu serializes publishes so that every receiver observes the same
	// order, and so the last sender cannot close receiver buffers while a
	// publish is in flight.
	sendMu sync.Mutex

	mu        sync.Mutex
	capacity  int
	receivers map[*Receiver[T]]struct{}
	senders   int
	closed    bool
}

// Sender publishes onto a Broadcast bus. Clone it for every publisher.
type Sender[T any] struct {
	hub  *hub[T]
	mu   sync.Mutex
	done bool
}

// Receiver is one independent cursor over a Broadcast bus. Every receiver
// sees every message published after it was created.
type Receiver[T any] struct {
	hub  *hub[T]
	ch   chan T
	done chan struct{}
	once sync.Once
}

// NewBroadcast creates a bus where each receiver buffers at most capacity
// messages. It returns the first sender and the first receiver.
func NewBroadcast[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	h := &hub[T]{
		capacity:  capacity,
		receivers: make(map[*Receiver[T]]struct{}),
		senders:   1,
	}
	return &Sender[T]{hub: h}, h.subscribe()
}

func (h *hub[T]) subscribe() *Receiver[T] {
	r := &Receiver[T]{
		hub:  h,
		ch:   make(chan T, h.capacity),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(r.ch)
		return r
	}
	h.receivers[r] = struct{}{}
	return r
}

func (h *hub[T]) snapshot() []*Receiver[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs := make([]*Receiver[T], 0, len(h.receivers))
	for r := range h.receivers {
		rs = append(rs, r)
	}
	return rs
}

// Clone returns a new sender on the same bus. The bus stays open until every
// sender has been closed.
func (s *Sender[T]) Clone() *Sender[T] {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.closed {
		return &Sender[T]{hub: s.hub, done: true}
	}
	s.hub.senders++
	return &Sender[T]{hub: s.hub}
}

// Subscribe returns a new independent receiver on the same bus.
func (s *Sender[T]) Subscribe() *Receiver[T] {
	return s.hub.subscribe()
}

// Send enqueues msg for every live receiver. It suspends while any receiver
// has a full buffer; nothing is dropped while a receiver is behind. If ctx is
// cancelled mid-publish, receivers already served keep the message.
func (s *Sender[T]) Send(ctx context.Context, msg T) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return ErrClosed
	}

	s.hub.sendMu.Lock()
	defer s.hub.sendMu.Unlock()

	rs := s.hub.snapshot()
	if len(rs) == 0 {
		return ErrClosed
	}
	delivered := 0
	for _, r := range rs {
		select {
		case r.ch <- msg:
			delivered++
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delivered == 0 {
		return ErrClosed
	}
	return nil
}

// Close releases this sender. Closing the last sender tears the bus down:
// receivers drain what is buffered and then get ErrClosed.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()

	h := s.hub
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders--
	if h.senders > 0 || h.closed {
		return
	}
	h.closed = true
	for r := range h.receivers {
		close(r.ch)
	}
}

// Subscribe returns a new independent receiver on the same bus. The new
// receiver does not inherit this receiver's buffered messages.
func (r *Receiver[T]) Subscribe() *Receiver[T] {
	return r.hub.subscribe()
}

// Recv waits for the next message on this receiver's cursor.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-r.done:
		return zero, ErrClosed
	default:
	}
	select {
	case msg, ok := <-r.ch:
		if !ok {
			return zero, ErrClosed
		}
		return msg, nil
	case <-r.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// C exposes the receive side for use in a select. The channel is closed when
// the bus is torn down.
func (r *Receiver[T]) C() <-chan T {
	return r.ch
}

// Len reports how many messages are buffered for this receiver.
func (r *Receiver[T]) Len() int {
	return len(r.ch)
}

// Close detaches this receiver. Senders blocked on its full buffer are
// released.
func (r *Receiver[T]) Close() {
	r.once.Do(func() {
		close(r.done)
		r.hub.mu.Lock()
		delete(r.hub.receivers, r)
		r.hub.mu.Unlock()
	})
}
