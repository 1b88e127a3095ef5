package queue

import (
	"sync"
)

// Queue is a thread-safe unbounded FIFO queue. Push never blocks; consumers
// wait on Ready and then drain.
type Queue[T any] struct {
	items []T
	ready chan struct{}
	mu    sync.Mutex
}

// New creates an empty queue
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		ready: make(chan struct{}, 1),
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Push appends a value and signals Ready
func (q *Queue[T]) Push(value T) {
	q.mu.Lock()
	q.items = append(q.items, value)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest item
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	item := q.items[0]
	var zero T
	q.items[0] = zero // avoid memory leak
	q.items = q.items[1:]
	return item, true
}

// PopAll removes and returns every queued item in FIFO order
func (q *Queue[T]) PopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = make([]T, 0)
	return items
}

// Ready is signalled at least once after any Push. A receive does not
// guarantee items remain; always check Pop.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}
