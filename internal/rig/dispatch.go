package rig

import (
	"log/slog"
	"sync"
)

// Listener receives accepted input events.
type Listener func(InputEvent)

type listenerEntry struct {
	id int
	fn Listener
}

// Registry holds the gameplay consumers interested in accepted events and
// fans each event out to all of them. A panicking listener is contained and
// logged; the remaining listeners still receive the event.
type Registry struct {
	mu        sync.Mutex
	nextID    int
	listeners []listenerEntry
}

// NewRegistry creates an empty listener registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddListener registers fn and returns its removal function. Both are safe
// to call at any time, including from inside a listener callback.
func (r *Registry) AddListener(fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.listeners {
			if e.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// Len reports the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Dispatch delivers ev to every listener registered at the time of the
// call. Iteration runs over a snapshot, so listeners may register or remove
// themselves mid-dispatch without corrupting the walk. Delivery is
// at-most-once per listener set, not a transactional multicast: a listener
// that panics does not un-dispatch the event for the others.
func (r *Registry) Dispatch(ev InputEvent) {
	r.mu.Lock()
	snapshot := append([]listenerEntry(nil), r.listeners...)
	r.mu.Unlock()

	for _, e := range snapshot {
		deliver(e.fn, ev)
	}
}

func deliver(fn Listener, ev InputEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("pad event listener panicked",
				slog.Any("panic", rec),
				slog.Int("pad", ev.Pad))
		}
	}()
	fn(ev)
}
