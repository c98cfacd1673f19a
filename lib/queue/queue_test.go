// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"sync"
	"testing"
	"time"
)

func TestQueuePushPopOrder(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.WaitAndPop()
		if !ok {
			t.Fatalf("WaitAndPop() ok = false, want true")
		}
		if got != want {
			t.Fatalf("WaitAndPop() = %d, want %d", got, want)
		}
	}
}

func TestQueueDropOldest(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Push(4)
	q.Push(5)

	first, ok := q.WaitAndPop()
	if !ok || first != 4 {
		t.Fatalf("first pop = (%d, %v), want (4, true)", first, ok)
	}
	second, ok := q.WaitAndPop()
	if !ok || second != 5 {
		t.Fatalf("second pop = (%d, %v), want (5, true)", second, ok)
	}
}

func TestQueueTryPopEmpty(t *testing.T) {
	q := New[int](0)
	value, ok := q.TryPop()
	if ok {
		t.Fatalf("TryPop() on empty queue ok = true, value = %d", value)
	}
	if value != 0 {
		t.Fatalf("TryPop() on empty queue value = %d, want zero value", value)
	}
}

func TestQueueTryPopSuccess(t *testing.T) {
	q := New[int](0)
	q.Push(42)
	value, ok := q.TryPop()
	if !ok || value != 42 {
		t.Fatalf("TryPop() = (%d, %v), want (42, true)", value, ok)
	}
}

func TestQueueWaitAndPopBlocksUntilPush(t *testing.T) {
	q := New[int](0)
	result := make(chan int, 1)
	go func() {
		value, ok := q.WaitAndPop()
		if !ok {
			return
		}
		result <- value
	}()

	select {
	case <-result:
		t.Fatal("WaitAndPop returned before a push occurred")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(7)

	select {
	case got := <-result:
		if got != 7 {
			t.Fatalf("WaitAndPop() = %d, want 7", got)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAndPop did not unblock after push")
	}
}

func TestQueueStopOnceDrainedWithPendingItems(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.StopOnceDrained()

	value, ok := q.WaitAndPop()
	if !ok || value != 1 {
		t.Fatalf("WaitAndPop() after stop with pending item = (%d, %v), want (1, true)", value, ok)
	}

	_, ok = q.WaitAndPop()
	if ok {
		t.Fatal("WaitAndPop() after drain should return ok = false")
	}
}

func TestQueueStopOnceDrainedUnblocksWaiters(t *testing.T) {
	q := New[int](0)
	done := make(chan struct{})
	go func() {
		_, ok := q.WaitAndPop()
		if ok {
			t.Error("WaitAndPop() should return ok = false after stop-once-drained on empty queue")
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.StopOnceDrained()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("blocked WaitAndPop did not unblock after StopOnceDrained")
	}
}

func TestQueueLenAndEmpty(t *testing.T) {
	q := New[int](0)
	if !q.Empty() {
		t.Fatal("new queue should be empty")
	}
	q.Push(1)
	q.Push(2)
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	if q.Empty() {
		t.Fatal("queue with items should not be empty")
	}
}

func TestQueueConcurrentPushPop(t *testing.T) {
	q := New[int](0)
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	received := 0
	for received < n {
		if _, ok := q.WaitAndPop(); ok {
			received++
		}
	}
	wg.Wait()
	if received != n {
		t.Fatalf("received %d items, want %d", received, n)
	}
}
