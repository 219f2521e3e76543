// Package queue provides a generic, thread-safe FIFO used to buffer decoded
// events between the engine's read loop (producer) and application threads
// (consumers). The queue is unbounded by default; a capacity with an
// overflow policy can be configured for memory-sensitive deployments.
// Statistics are always collected for observability.
package queue

import (
	"sync"

	"github.com/joshuaskelly/twitch-observer/errors"
)

// OverflowPolicy defines behavior when a bounded queue reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items while the queue is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped due to the overflow policy.
type DropCallback[T any] func(item T)

// Queue is a thread-safe FIFO. The zero value is not usable; construct with
// New.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int // 0 means unbounded
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	closed   bool
	stats    Statistics
}

// Option configures a Queue.
type Option[T any] func(*Queue[T]) error

// WithCapacity bounds the queue. Zero or negative means unbounded.
func WithCapacity[T any](capacity int) Option[T] {
	return func(q *Queue[T]) error {
		if capacity < 0 {
			capacity = 0
		}
		q.capacity = capacity
		return nil
	}
}

// WithOverflowPolicy sets the behavior when a bounded queue is full.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(q *Queue[T]) error {
		if policy != DropOldest && policy != DropNewest {
			return errors.WrapInvalid(
				errors.New("unknown overflow policy"),
				"Queue", "WithOverflowPolicy", "validate policy")
		}
		q.policy = policy
		return nil
	}
}

// WithDropCallback registers a callback invoked for each dropped item.
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(q *Queue[T]) error {
		q.onDrop = fn
		return nil
	}
}

// New creates a queue with the given options.
func New[T any](opts ...Option[T]) (*Queue[T], error) {
	q := &Queue[T]{}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Push appends an item. On a full bounded queue the overflow policy decides
// whether the oldest item is evicted or the new item is dropped. Push on a
// closed queue is a silent drop.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		switch q.policy {
		case DropNewest:
			q.stats.Dropped++
			if q.onDrop != nil {
				q.onDrop(item)
			}
			return
		case DropOldest:
			dropped := q.items[0]
			q.items = q.items[1:]
			q.stats.Dropped++
			if q.onDrop != nil {
				q.onDrop(dropped)
			}
		}
	}

	q.items = append(q.items, item)
	q.stats.Pushed++
	if len(q.items) > q.stats.HighWater {
		q.stats.HighWater = len(q.items)
	}
}

// Drain removes and returns all queued items in arrival order. It never
// blocks; with nothing queued it returns an empty (nil) slice. Repeated
// calls return only items pushed since the previous drain.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	items := q.items
	q.items = nil
	q.stats.Drained += int64(len(items))
	return items
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all queued items without counting them as drained.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Stats returns a snapshot of the queue statistics.
func (q *Queue[T]) Stats() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close discards queued items and makes further pushes silent no-ops.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
}

// Statistics tracks queue activity since construction.
type Statistics struct {
	Pushed    int64 // items accepted
	Drained   int64 // items handed to consumers
	Dropped   int64 // items discarded by the overflow policy
	HighWater int   // maximum observed depth
}
