package pipeline

import (
	"context"
	"sync"
	"time"
)

// Handoff is a bounded FIFO between a producer and a consumer goroutine.
//
// Push never blocks: when the queue is full the oldest entry is evicted
// and counted. Pop waits for at most the given timeout. A capacity of 1
// gives latest-only mailbox semantics.
type Handoff[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	notify   chan struct{}
	dropped  uint64
	closed   bool
}

// NewHandoff creates a queue holding at most capacity entries.
func NewHandoff[T any](capacity int) *Handoff[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Handoff[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends v. If the queue was full, the evicted entry is returned with ok=true.
// Pushing to a closed queue discards v and reports it as evicted.
func (h *Handoff[T]) Push(v T) (evicted T, ok bool) {
	h.mu.Lock()
	if h.closed {
		h.dropped++
		h.mu.Unlock()
		return v, true
	}
	if len(h.items) == h.capacity {
		evicted, ok = h.items[0], true
		var zero T
		h.items[0] = zero
		h.items = h.items[1:]
		h.dropped++
	}
	h.items = append(h.items, v)
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
	return evicted, ok
}

// TryPop removes the oldest entry without waiting.
func (h *Handoff[T]) TryPop() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.popLocked()
}

func (h *Handoff[T]) popLocked() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	v := h.items[0]
	h.items[0] = zero
	h.items = h.items[1:]
	return v, true
}

// Pop removes the oldest entry, waiting up to timeout for one to arrive.
// It returns ErrTimeout when the wait elapses, ErrClosed once the queue
// is closed and empty, or the context error.
func (h *Handoff[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		h.mu.Lock()
		if v, ok := h.popLocked(); ok {
			h.mu.Unlock()
			return v, nil
		}
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-h.notify:
		case <-timer.C:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Drain removes and returns every queued entry.
func (h *Handoff[T]) Drain() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, len(h.items))
	copy(out, h.items)
	h.items = h.items[:0]
	return out
}

// Close stops accepting entries and wakes a waiting consumer.
// Entries already queued can still be popped.
func (h *Handoff[T]) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued entries.
func (h *Handoff[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Cap returns the queue capacity.
func (h *Handoff[T]) Cap() int {
	return h.capacity
}

// Dropped returns how many entries were evicted or rejected.
func (h *Handoff[T]) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
