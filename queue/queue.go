// Package queue is the bounded FIFO between one segment reader and its
// dispatcher.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maxpert/commitlog-cdc/event"
)

// ErrClosed is returned once a queue has been closed (and, for consumers,
// fully drained)
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of events. Enqueue blocks while the queue is full,
// Drain blocks while it is empty. Safe for one producer and one consumer, and
// for any number of readers of its size.
type Queue struct {
	mu       sync.Mutex
	items    []event.Event
	capacity int
	maxBatch int
	closed   bool
	changed  chan struct{} // Closed and replaced on every state change
}

// New creates a queue holding at most capacity events. Drain and Poll return
// at most maxBatch events per call, or everything available when maxBatch <= 0.
func New(capacity, maxBatch int) *Queue {
	if capacity < 1 {
		panic("queue: capacity must be positive")
	}
	return &Queue{
		items:    make([]event.Event, 0, capacity),
		capacity: capacity,
		maxBatch: maxBatch,
		changed:  make(chan struct{}),
	}
}

// broadcast wakes every waiter. Must hold mu.
func (q *Queue) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Enqueue appends e, waiting for space while the queue is full.
// Returns ErrClosed if the queue is closed, or the context error.
func (q *Queue) Enqueue(ctx context.Context, e event.Event) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if len(q.items) < q.capacity {
			q.items = append(q.items, e)
			q.broadcast()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain waits until at least one event is queued and removes the available
// events in FIFO order. After Close it keeps returning queued events until
// none remain, then ErrClosed.
func (q *Queue) Drain(ctx context.Context) ([]event.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			out := q.take()
			q.mu.Unlock()
			return out, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Poll is Drain bounded by timeout. It returns an empty batch when nothing
// arrives in time; a zero timeout never blocks.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) ([]event.Event, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			out := q.take()
			q.mu.Unlock()
			return out, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if expired == nil {
			q.mu.Unlock()
			return nil, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// take removes up to maxBatch events from the head. Must hold mu.
func (q *Queue) take() []event.Event {
	n := len(q.items)
	if q.maxBatch > 0 && n > q.maxBatch {
		n = q.maxBatch
	}

	out := make([]event.Event, n)
	copy(out, q.items)
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]

	q.broadcast()
	return out
}

// Close rejects further events and wakes every blocked producer and consumer.
// Events already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcast()
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// RemainingCapacity returns how many events can be enqueued without blocking
func (q *Queue) RemainingCapacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - len(q.items)
}

// TotalCapacity returns the configured capacity
func (q *Queue) TotalCapacity() int {
	return q.capacity
}
