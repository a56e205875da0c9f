// ABOUTME: Thread-safe FIFO with blocking get, flush, selective purge and abort
// ABOUTME: Every queued item is either handed to a getter or passed to cleanup exactly once
package queue

import "sync"

// Queue is a FIFO shared between producer and consumer goroutines.
//
// Items removed by Flush, Purge or Reset are handed to the cleanup function.
// Items returned by Get belong to the caller. Cleanup runs without the queue
// lock held, but it must not block waiting on the same queue.
type Queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	aborted bool
	cleanup func(T)
}

// New creates an empty queue. cleanup may be nil.
func New[T any](cleanup func(T)) *Queue[T] {
	q := &Queue[T]{cleanup: cleanup}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends an item and wakes one blocked getter
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Get removes the head of the queue. If the queue is empty and block is true
// it waits until an item arrives or the queue is aborted. ok is false when the
// queue is aborted or, for a non-blocking call, empty.
func (q *Queue[T]) Get(block bool) (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.aborted {
			return item, false
		}
		if len(q.items) > 0 {
			item = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			return item, true
		}
		if !block {
			return item, false
		}
		q.cond.Wait()
	}
}

// Flush removes every pending item and passes each to cleanup
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	dropped := q.items
	q.items = nil
	q.mu.Unlock()

	q.release(dropped)
}

// Purge removes the items for which match returns true, preserving the order of the rest
func (q *Queue[T]) Purge(match func(T) bool) {
	q.mu.Lock()
	var dropped []T
	kept := q.items[:0]
	for _, item := range q.items {
		if match(item) {
			dropped = append(dropped, item)
		} else {
			kept = append(kept, item)
		}
	}
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = kept
	q.mu.Unlock()

	q.release(dropped)
}

// Abort wakes every blocked getter; Get returns false until Reset
func (q *Queue[T]) Abort() {
	q.mu.Lock()
	q.aborted = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Reset clears the abort flag and drops any leftover items
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	dropped := q.items
	q.items = nil
	q.aborted = false
	q.mu.Unlock()

	q.release(dropped)
}

// Aborted reports whether Abort was called since the last Reset
func (q *Queue[T]) Aborted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted
}

// Len returns the number of pending items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) release(items []T) {
	if q.cleanup == nil {
		return
	}
	for _, item := range items {
		q.cleanup(item)
	}
}
