package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/joshuaskelly/twitch-observer/event"
)

// Callback is an application-supplied function invoked once per received
// event, on the read-loop goroutine, in registration order.
type Callback func(event.Event)

// Subscription identifies one registered callback. Go functions have no
// usable identity, so Subscribe hands out an opaque handle instead.
type Subscription string

// subscriberRegistry is a copy-on-write set of callbacks. Dispatch reads an
// immutable snapshot, so Subscribe/Unsubscribe from application threads
// never block the read loop and never mutate a slice mid-dispatch.
type subscriberRegistry struct {
	mu   sync.Mutex   // serializes writers
	subs atomic.Value // stores []registration snapshots
}

type registration struct {
	id Subscription
	fn Callback
}

func newSubscriberRegistry() *subscriberRegistry {
	r := &subscriberRegistry{}
	r.subs.Store([]registration{})
	return r
}

// add registers fn and returns its handle.
func (r *subscriberRegistry) add(fn Callback) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := Subscription(uuid.NewString())
	current := r.subs.Load().([]registration)
	next := make([]registration, len(current), len(current)+1)
	copy(next, current)
	next = append(next, registration{id: id, fn: fn})
	r.subs.Store(next)
	return id
}

// remove deregisters the callback behind id. Removing an unknown handle is
// a no-op.
func (r *subscriberRegistry) remove(id Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.subs.Load().([]registration)
	next := make([]registration, 0, len(current))
	for _, reg := range current {
		if reg.id != id {
			next = append(next, reg)
		}
	}
	r.subs.Store(next)
}

// snapshot returns the current registrations in registration order.
func (r *subscriberRegistry) snapshot() []registration {
	return r.subs.Load().([]registration)
}

// len returns the number of registered callbacks.
func (r *subscriberRegistry) len() int {
	return len(r.snapshot())
}
