// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncqueue delivers per-endpoint command streams under a
// per-tick time budget.
//
// Each endpoint has a FIFO of commands and a processing method.
// [ProcessAll] queues are drained completely on every call to
// [Queue.ProcessQueue]; they carry steady-state traffic that must not
// lag. [ProcessTimeSliced] queues are served round-robin, one command
// per endpoint per pass, until they are all empty or the budget is
// spent. A syncing endpoint with a long history replay therefore makes
// progress on every tick without starving the others or stalling the
// server.
//
// A Queue is not safe for concurrent use.
package syncqueue

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/clock"
)

// Method selects how an endpoint's queue is drained.
type Method uint8

const (
	// ProcessAll drains the queue to completion on every call.
	ProcessAll Method = iota

	// ProcessTimeSliced serves one command per pass, sharing the time
	// budget with the other time-sliced endpoints.
	ProcessTimeSliced
)

func (m Method) String() string {
	if m == ProcessTimeSliced {
		return "time-sliced"
	}
	return "all"
}

// Command is one unit of work for an endpoint. It receives the
// endpoint it was queued for.
type Command func(endpoint uuid.UUID)

type endpointQueue struct {
	method   Method
	commands []Command
}

// Queue holds the pending commands of every endpoint.
type Queue struct {
	clock  clock.Clock
	queues map[uuid.UUID]*endpointQueue

	// order is the round-robin order: endpoints in the order they were
	// first seen.
	order []uuid.UUID
}

// New returns an empty queue that measures budgets with c.
func New(c clock.Clock) *Queue {
	return &Queue{clock: c, queues: make(map[uuid.UUID]*endpointQueue)}
}

func (q *Queue) queue(endpoint uuid.UUID) *endpointQueue {
	existing, ok := q.queues[endpoint]
	if !ok {
		existing = &endpointQueue{}
		q.queues[endpoint] = existing
		q.order = append(q.order, endpoint)
	}
	return existing
}

// SetCommandProcessingMethod sets the method for endpoint. Pending
// commands keep their order.
func (q *Queue) SetCommandProcessingMethod(endpoint uuid.UUID, method Method) {
	q.queue(endpoint).method = method
}

// CommandProcessingMethod returns the method for endpoint. Endpoints
// the queue has never seen use ProcessAll.
func (q *Queue) CommandProcessingMethod(endpoint uuid.UUID) Method {
	if existing, ok := q.queues[endpoint]; ok {
		return existing.method
	}
	return ProcessAll
}

// QueueCommand appends command to the queue of every endpoint.
func (q *Queue) QueueCommand(endpoints []uuid.UUID, command Command) {
	for _, endpoint := range endpoints {
		existing := q.queue(endpoint)
		existing.commands = append(existing.commands, command)
	}
}

// IsQueueEmpty reports whether endpoint has no pending commands.
func (q *Queue) IsQueueEmpty(endpoint uuid.UUID) bool {
	existing, ok := q.queues[endpoint]
	return !ok || len(existing.commands) == 0
}

// Len returns the number of pending commands for endpoint.
func (q *Queue) Len(endpoint uuid.UUID) int {
	if existing, ok := q.queues[endpoint]; ok {
		return len(existing.commands)
	}
	return 0
}

// ClearQueue drops endpoint's pending commands and forgets its method.
// It is safe to call from inside a running command.
func (q *Queue) ClearQueue(endpoint uuid.UUID) {
	if _, ok := q.queues[endpoint]; !ok {
		return
	}
	delete(q.queues, endpoint)
	q.order = slices.DeleteFunc(q.order, func(candidate uuid.UUID) bool { return candidate == endpoint })
}

// pop removes and returns the next command for endpoint.
func (q *Queue) pop(endpoint uuid.UUID) (Command, bool) {
	existing, ok := q.queues[endpoint]
	if !ok || len(existing.commands) == 0 {
		return nil, false
	}
	command := existing.commands[0]
	existing.commands[0] = nil
	existing.commands = existing.commands[1:]
	return command, true
}

// ProcessQueue runs pending commands and returns how many ran.
//
// Every ProcessAll queue is drained first, including commands queued
// while draining. Time-sliced queues are then served in passes of one
// command per non-empty endpoint, and the budget is checked after each
// pass. The first pass always runs, so a zero budget still moves every
// syncing endpoint forward by one command.
func (q *Queue) ProcessQueue(budget time.Duration) int {
	start := q.clock.Now()
	processed := 0

	for _, endpoint := range slices.Clone(q.order) {
		for {
			existing, ok := q.queues[endpoint]
			if !ok || existing.method != ProcessAll {
				break
			}
			command, ok := q.pop(endpoint)
			if !ok {
				break
			}
			command(endpoint)
			processed++
		}
	}

	for {
		ran := 0
		for _, endpoint := range slices.Clone(q.order) {
			existing, ok := q.queues[endpoint]
			if !ok || existing.method != ProcessTimeSliced {
				continue
			}
			command, ok := q.pop(endpoint)
			if !ok {
				continue
			}
			command(endpoint)
			ran++
		}
		processed += ran
		if ran == 0 || q.clock.Since(start) >= budget {
			break
		}
	}
	return processed
}
