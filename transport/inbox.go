// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// Inbox is the hand-off between connection goroutines and the
// goroutine that owns session state. Any goroutine may Post; only the
// owner calls Pump.
type Inbox struct {
	mu      sync.Mutex
	pending []func()
	ready   chan struct{}
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{ready: make(chan struct{}, 1)}
}

// Post queues fn to run on the next Pump.
func (i *Inbox) Post(fn func()) {
	i.mu.Lock()
	i.pending = append(i.pending, fn)
	i.mu.Unlock()
	select {
	case i.ready <- struct{}{}:
	default:
	}
}

// Ready receives a value after Post. One value may stand for many
// posts, and a spurious wake-up is possible after a Pump already ran
// them.
func (i *Inbox) Ready() <-chan struct{} { return i.ready }

// Len returns the number of queued functions.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

// Pump runs queued functions in post order until the inbox is empty,
// including functions posted while pumping, and returns how many ran.
func (i *Inbox) Pump() int {
	ran := 0
	for {
		i.mu.Lock()
		batch := i.pending
		i.pending = nil
		i.mu.Unlock()
		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
		}
		ran += len(batch)
	}
}
