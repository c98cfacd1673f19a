// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements a bounded, thread-safe FIFO with drop-oldest
// overflow and a stop-once-drained terminal signal, used as the
// ingestion queue between record producers and the sender worker.
package queue

import "sync"

// Queue is a bounded multi-producer, multi-consumer FIFO. A zero Limit
// means unbounded. The zero value is not usable; construct with New.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []T
	limit    int
	stopped  bool
}

// New constructs a queue with the given maximum length. A limit of zero
// means unbounded: Push never discards.
func New[T any](limit int) *Queue[T] {
	q := &Queue[T]{limit: limit}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. If the queue is at its limit, the oldest item
// is discarded to admit the newest.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
}

// WaitAndPop blocks until an item is available or the queue has been
// stopped and drained. The second return value is false only in the
// drained case; ok is true for every successfully popped item.
func (q *Queue[T]) WaitAndPop() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.stopped {
			var zero T
			return zero, false
		}
		q.notEmpty.Wait()
	}
	value = q.items[0]
	q.items = q.items[1:]
	return value, true
}

// TryPop is the non-blocking variant of WaitAndPop. It returns
// (zero, false) immediately if the queue is empty, regardless of the
// stopped flag.
func (q *Queue[T]) TryPop() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	value = q.items[0]
	q.items = q.items[1:]
	return value, true
}

// StopOnceDrained marks the queue terminal: once it becomes empty, all
// blocked and future WaitAndPop calls return (zero, false) rather than
// blocking. No element already in the queue is discarded by this call.
func (q *Queue[T]) StopOnceDrained() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue currently holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}
