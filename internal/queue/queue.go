// Package queue implements the unbounded, multi-producer/single-consumer
// FIFO that carries EventMessage values from VM event threads to the single
// writer thread. Messages are passed by value with full ownership transfer;
// Send never blocks and never drops — backpressure is explicitly out of
// scope (see spec §5/§9).
//
// The implementation is a mutex-protected container/list with a condition
// variable, so the single consumer can block instead of busy-polling.
package queue

import (
	"container/list"
	"sync"
)

// Queue is an unbounded MPSC FIFO of interface{} elements.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

// New creates an empty, open queue.
func New() *Queue {
	q := &Queue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends v to the tail of the queue. It never blocks and always
// succeeds, even after Close (this matches the agent's detach contract: a
// message enqueued just before Shutdown must still be delivered, see spec
// §8 scenario 6 — only the consumer, not the producer, observes closed
// state).
func (q *Queue) Send(v interface{}) {
	q.mu.Lock()
	q.items.PushBack(v)
	q.mu.Unlock()
	q.cond.Signal()
}

// Recv blocks until an element is available or the queue has been closed
// and drained. ok is false only once the queue is both closed and empty.
func (q *Queue) Recv() (v interface{}, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value, true
}

// Close marks the queue closed. Already-enqueued elements are still
// delivered by Recv; once drained, Recv returns ok == false. Close does not
// prevent further Send calls (the producer side has no way to know the
// consumer is shutting down mid-call), but the writer stops consuming once
// it observes the Shutdown sentinel value sent as the final message, per the
// agent's own shutdown protocol (see agent.Lifecycle.Detach).
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len reports the current number of buffered elements; used only for
// diagnostics/tests, never for control flow (the queue has no capacity
// limit to report against).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
