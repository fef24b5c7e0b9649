package queue

import (
	"sync"
)

// Queue is a bounded thread-safe FIFO. When full, the oldest items are
// dropped to make room for new ones.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// New creates an empty queue holding at most limit items. A limit <= 0 means
// unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		limit: limit,
	}
}

// Push appends items and returns how many old items were dropped.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return q.trim()
}

// Requeue puts items back in front of anything pushed since they were
// drained, e.g. after a failed write. Returns how many items were dropped.
func (q *Queue[T]) Requeue(items []T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
	return q.trim()
}

func (q *Queue[T]) trim() int {
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	n := len(q.items) - q.limit
	q.items = q.items[n:]
	q.dropped += uint64(n)
	return n
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of items dropped for capacity.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Drain returns all items and clears the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
