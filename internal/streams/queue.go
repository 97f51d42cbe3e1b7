package streams

import (
	"context"
	"sync"
)

// Queue is a bounded work queue: each message is delivered to exactly one
// receiver. The same *Queue may be shared by any number of producers and
// consumers.
type Queue[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue holding at most capacity undelivered messages.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues v, suspending while the queue is full.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v only if there is room. It reports whether v was queued.
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Recv takes the next message, suspending while the queue is empty. After
// Close, buffered messages are still handed out before ErrClosed.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// C exposes the receive side for use in a select. It is never closed; watch
// Done for teardown.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Done is closed once the queue has been closed.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Len reports the number of buffered messages.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close stops accepting new messages.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}
