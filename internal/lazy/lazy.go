// Package lazy holds process-wide handles (model sessions, store clients)
// that are built on first use and shared afterwards.
package lazy

import (
	"context"
	"sync/atomic"
)

// Handle builds its value at most once per successful initialization.
// Concurrent first callers wait on the same init call, each for no longer
// than its own ctx allows. A failed init is not remembered, so the next Get
// tries again.
type Handle[T any] struct {
	// sem is a one-slot lock that waiters can abandon.
	sem   chan struct{}
	init  func(ctx context.Context) (T, error)
	val   T
	ready atomic.Bool
}

func New[T any](init func(ctx context.Context) (T, error)) *Handle[T] {
	return &Handle[T]{sem: make(chan struct{}, 1), init: init}
}

// Get returns the value, initializing it if needed.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	if h.ready.Load() {
		return h.val, nil
	}

	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	defer func() { <-h.sem }()

	if h.ready.Load() {
		return h.val, nil
	}

	v, err := h.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	h.val = v
	h.ready.Store(true)
	return v, nil
}

// Peek returns the value only if it has already been built.
func (h *Handle[T]) Peek() (T, bool) {
	if h.ready.Load() {
		return h.val, true
	}
	var zero T
	return zero, false
}

func (h *Handle[T]) Ready() bool {
	return h.ready.Load()
}
