// Package pubsub provides an in-process observer registry whose subscriptions
// are released through idempotent disposers.
package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Registry fans values out to registered callbacks.
// It is safe for concurrent use.
type Registry[T any] struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]*listener[T]
	order     []uuid.UUID
}

type listener[T any] struct {
	fn     func(T)
	closed atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{listeners: make(map[uuid.UUID]*listener[T])}
}

// Subscribe registers fn and returns its disposer. Calling the disposer more
// than once is safe, including from inside fn. Once it returns no new
// invocation of fn starts; a delivery already running is allowed to finish.
func (r *Registry[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	id := uuid.New()
	l := &listener[T]{fn: fn}

	r.mu.Lock()
	r.listeners[id] = l
	r.order = append(r.order, id)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.closed.Store(true)
			r.remove(id)
		})
	}
}

// Publish delivers v to every live listener in subscription order. No lock
// is held while a callback runs, so callbacks may publish, subscribe or
// dispose re-entrantly.
func (r *Registry[T]) Publish(v T) {
	for _, l := range r.snapshot() {
		if l.closed.Load() {
			continue
		}
		l.fn(v)
	}
}

// Len returns the number of live listeners.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *Registry[T]) snapshot() []*listener[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*listener[T], 0, len(r.order))
	for _, id := range r.order {
		if l, ok := r.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (r *Registry[T]) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
