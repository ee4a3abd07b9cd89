package base

import "sync"

// WriteQueue is an ordered in-memory queue of pending write operations.
// Drain hands the whole content to the caller and leaves an empty queue
// behind in one step, so an operation appended concurrently lands either in
// the drained batch or in the next one, never in both and never nowhere.
type WriteQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewWriteQueue creates an empty queue
func NewWriteQueue[T any]() *WriteQueue[T] {
	return &WriteQueue[T]{}
}

// Append adds items at the tail and returns the new length
func (q *WriteQueue[T]) Append(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return len(q.items)
}

// Drain removes and returns every queued item
func (q *WriteQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.items
	q.items = nil
	return batch
}

// Requeue puts items back at the head, ahead of anything appended since
// they were drained
func (q *WriteQueue[T]) Requeue(items []T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(items) == 0 {
		return len(q.items)
	}
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
	return len(q.items)
}

// Len returns the number of queued items
func (q *WriteQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
