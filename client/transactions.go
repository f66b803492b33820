// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/clock"
	"github.com/bureau-foundation/concord/lib/schema"
)

// ClassFilter selects the objects a client replicates by class path.
// Patterns use path.Match syntax.
type ClassFilter struct {
	// Include, when non-empty, limits transactions to objects whose
	// class matches one of these patterns.
	Include []string

	// Exclude drops any transaction that touches an object whose class
	// matches one of these patterns.
	Exclude []string
}

func matchesAny(patterns []string, class string) bool {
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, class); matched {
			return true
		}
	}
	return false
}

// filter returns the objects to send, or false when the transaction
// must not be sent at all.
func (f ClassFilter) filter(objects []schema.ExportedObject) ([]schema.ExportedObject, bool) {
	for _, object := range objects {
		if matchesAny(f.Exclude, object.ObjectID.ClassPath) {
			return nil, false
		}
	}
	if len(f.Include) == 0 {
		return objects, true
	}
	var kept []schema.ExportedObject
	for _, object := range objects {
		if matchesAny(f.Include, object.ObjectID.ClassPath) {
			kept = append(kept, object)
		}
	}
	return kept, true
}

type openTransaction struct {
	id        uuid.UUID
	operation uuid.UUID
	title     string
	primary   schema.ObjectID

	// objects holds the latest state of each object, in first-touch
	// order.
	objects  []schema.ExportedObject
	packages []string

	updateIndex   uint8
	snapshotsSent int
	lastSnapshot  time.Time
	dirty         bool

	finalized bool
	canceled  bool
}

func (t *openTransaction) base(endpoint uuid.UUID, objects []schema.ExportedObject) schema.TransactionEventBase {
	base := schema.TransactionEventBase{
		TransactionID:          t.id,
		OperationID:            t.operation,
		TransactionEndpointID:  endpoint,
		TransactionUpdateIndex: t.updateIndex,
		ModifiedPackages:       slices.Clone(t.packages),
		PrimaryObject:          t.primary,
		ExportedObjects:        objects,
	}
	t.updateIndex++
	return base
}

// sender delivers an outgoing transaction event.
type sender func(kind schema.MessageKind, payload any) error

// TransactionManager collects local edits and decides when they are
// sent: snapshots of an open transaction at most SnapshotRate times a
// second, and one finalized event when it completes.
type TransactionManager struct {
	clock    clock.Clock
	logger   *slog.Logger
	endpoint uuid.UUID
	interval time.Duration
	filter   ClassFilter
	send     sender

	open  map[uuid.UUID]*openTransaction
	order []uuid.UUID
}

func newTransactionManager(c clock.Clock, logger *slog.Logger, endpoint uuid.UUID, snapshotRate float64, filter ClassFilter, send sender) *TransactionManager {
	var interval time.Duration
	if snapshotRate > 0 {
		interval = time.Duration(float64(time.Second) / snapshotRate)
	}
	return &TransactionManager{
		clock:    c,
		logger:   logger,
		endpoint: endpoint,
		interval: interval,
		filter:   filter,
		send:     send,
		open:     make(map[uuid.UUID]*openTransaction),
	}
}

// Begin opens a transaction and returns its identifier.
func (m *TransactionManager) Begin(title string) uuid.UUID {
	transaction := &openTransaction{id: uuid.New(), operation: uuid.New(), title: title}
	m.open[transaction.id] = transaction
	m.order = append(m.order, transaction.id)
	return transaction.id
}

// RecordObjectUpdate records the latest state of one object in package
// pkg. The first object recorded becomes the transaction's primary
// object. It reports false for an unknown or completed transaction.
func (m *TransactionManager) RecordObjectUpdate(id uuid.UUID, pkg string, object schema.ExportedObject) bool {
	transaction, ok := m.open[id]
	if !ok || transaction.finalized || transaction.canceled {
		return false
	}
	if transaction.primary.IsZero() {
		transaction.primary = object.ObjectID
	}
	objectPath := object.ObjectID.Path()
	position := slices.IndexFunc(transaction.objects, func(existing schema.ExportedObject) bool {
		return existing.ObjectID.Path() == objectPath
	})
	if position >= 0 {
		transaction.objects[position] = object
	} else {
		transaction.objects = append(transaction.objects, object)
	}
	if pkg != "" && !slices.Contains(transaction.packages, pkg) {
		transaction.packages = append(transaction.packages, pkg)
	}
	transaction.dirty = true
	return true
}

// Finalize marks a transaction complete. It is sent on the next
// flush.
func (m *TransactionManager) Finalize(id uuid.UUID) bool {
	transaction, ok := m.open[id]
	if !ok || transaction.canceled {
		return false
	}
	transaction.finalized = true
	return true
}

// Cancel abandons a transaction. One that already had snapshots sent
// is finalized instead, so peers that saw the snapshots converge on
// the state the host reverted to.
func (m *TransactionManager) Cancel(id uuid.UUID) bool {
	transaction, ok := m.open[id]
	if !ok || transaction.finalized {
		return false
	}
	transaction.canceled = true
	return true
}

// Pending returns the number of transactions not yet completed and
// sent.
func (m *TransactionManager) Pending() int { return len(m.order) }

// Flush sends what is due, in the order transactions were begun, and
// returns the number of events sent.
func (m *TransactionManager) Flush() int {
	now := m.clock.Now()
	sent := 0
	remaining := m.order[:0]
	for _, id := range m.order {
		transaction := m.open[id]
		switch {
		case transaction.canceled && transaction.snapshotsSent == 0:
			m.logger.Debug("dropping canceled transaction", "transaction", id)
			delete(m.open, id)
			continue
		case transaction.finalized || transaction.canceled:
			if m.sendFinalized(transaction) {
				sent++
			}
			delete(m.open, id)
			continue
		case transaction.dirty && m.interval > 0 && now.Sub(transaction.lastSnapshot) >= m.interval:
			if m.sendSnapshot(transaction) {
				sent++
			}
			transaction.lastSnapshot = now
			transaction.dirty = false
		}
		remaining = append(remaining, id)
	}
	clear(m.order[len(remaining):])
	m.order = remaining
	return sent
}

func (m *TransactionManager) sendFinalized(transaction *openTransaction) bool {
	objects, ok := m.filter.filter(transaction.objects)
	if !ok || len(objects) == 0 {
		m.logger.Debug("not sending filtered transaction", "transaction", transaction.id)
		return false
	}
	event := schema.TransactionFinalizedEvent{
		TransactionEventBase: transaction.base(m.endpoint, objects),
		Title:                transaction.title,
	}
	if err := m.send(schema.KindTransactionFinalized, event); err != nil {
		m.logger.Warn("sending transaction failed", "transaction", transaction.id, "error", err)
		return false
	}
	return true
}

func (m *TransactionManager) sendSnapshot(transaction *openTransaction) bool {
	objects, ok := m.filter.filter(transaction.objects)
	if !ok || len(objects) == 0 {
		return false
	}
	event := schema.TransactionSnapshotEvent{TransactionEventBase: transaction.base(m.endpoint, objects)}
	if err := m.send(schema.KindTransactionSnapshot, event); err != nil {
		m.logger.Warn("sending transaction snapshot failed", "transaction", transaction.id, "error", err)
		return false
	}
	transaction.snapshotsSent++
	return true
}
