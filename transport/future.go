// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result before the future resolves.
var ErrPending = errors.New("transport: future not resolved")

// Future is the eventual result of a request. It resolves on the
// inbox goroutine when the response arrives, or with ErrClosed when
// the connection drops first. There is no timeout: a request the peer
// never answers never resolves.
//
// Disarming abandons interest in the result. The server-side work is
// not cancelled.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	disarmed  bool
	value     T
	err       error
	callbacks []func(T, error)
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already resolved.
func Resolved[T any](value T, err error) *Future[T] {
	future := NewFuture[T]()
	future.Resolve(value, err)
	return future
}

// Resolve sets the result and runs Then callbacks unless the future
// was disarmed. Only the first call has an effect; it reports whether
// this call resolved the future.
func (f *Future[T]) Resolve(value T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.value, f.err = value, err
	callbacks := f.callbacks
	f.callbacks = nil
	disarmed := f.disarmed
	close(f.done)
	f.mu.Unlock()

	if !disarmed {
		for _, callback := range callbacks {
			callback(value, err)
		}
	}
	return true
}

// Done is closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the resolved value, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolved {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Wait blocks until the future resolves or ctx ends. Something must be
// pumping the inbox the response arrives on.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then runs fn with the result, immediately if already resolved.
// Callbacks registered after Disarm are dropped.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if f.disarmed {
		f.mu.Unlock()
		return
	}
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
}

// Disarm drops pending and future Then callbacks. Done, Result, and
// Wait keep working.
func (f *Future[T]) Disarm() {
	f.mu.Lock()
	f.disarmed = true
	f.callbacks = nil
	f.mu.Unlock()
}
