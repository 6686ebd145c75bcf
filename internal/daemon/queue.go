package daemon

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO safe for many producers and one consumer.
//
// Push never blocks. A consumer either blocks in Pop or selects on Ready and
// then calls TryPop, which lets it wait on other channels at the same time.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// ready holds a token whenever items may be available or the queue
	// has been closed. Capacity 1 so producers never block.
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Push appends v to the tail of the queue.
// Returns false, dropping v, if the queue has been closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.signal()
	return true
}

// Ready returns a channel that receives when the queue may have become
// non-empty or has been closed. Spurious wake-ups are possible; always
// follow with TryPop.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// TryPop removes and returns the head of the queue without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop removes and returns the head of the queue, waiting for one to arrive.
//
// Returns ErrQueueClosed once the queue is closed and drained, or the
// context error if ctx ends first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if v, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return zero, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue accepting new items. Items already queued can still
// be popped. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.signal()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// popLocked pops the head. Caller must hold q.mu.
func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	q.items[0] = zero // release for GC
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}

	// Keep the consumer awake while work remains.
	if len(q.items) > 0 || q.closed {
		q.signal()
	}
	return v, true
}

// signal posts a wake-up token without blocking. Caller must hold q.mu.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
