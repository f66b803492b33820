// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"path/filepath"
	"slices"
	"sort"

	"github.com/bureau-foundation/concord/lib/schema"
)

// On-disk names of the transaction ledger.
const (
	TransactionsDirectory = "Transactions"
	transactionExtension  = "utrans"
	transactionTag        = "concord.transaction_finalized"
)

// TransactionLedger is the ledger of finalized transactions. It tracks,
// for every resource, the transactions whose effects are not yet part
// of a saved revision of that resource.
type TransactionLedger struct {
	entries *Ledger[schema.TransactionFinalizedEvent]

	// live maps a resource name to its live transaction indices in
	// ascending order.
	live map[string][]uint64

	addedHandlers   []func(index uint64, transaction schema.TransactionFinalizedEvent)
	trimmedHandlers []func(resource string, upTo uint64)
}

// OpenTransactionLedger opens the transaction ledger under root.
func OpenTransactionLedger(root string, options Options) (*TransactionLedger, error) {
	entries, err := New[schema.TransactionFinalizedEvent](
		filepath.Join(root, TransactionsDirectory), transactionExtension, transactionTag, options)
	if err != nil {
		return nil, err
	}
	return &TransactionLedger{
		entries: entries,
		live:    make(map[string][]uint64),
	}, nil
}

// OnTransactionAdded registers fn to run after every add, including
// adds whose write failed. The index is consumed either way.
func (l *TransactionLedger) OnTransactionAdded(fn func(index uint64, transaction schema.TransactionFinalizedEvent)) {
	l.addedHandlers = append(l.addedHandlers, fn)
}

// OnLiveTransactionsTrimmed registers fn to run whenever a trim removes
// at least one live index.
func (l *TransactionLedger) OnLiveTransactionsTrimmed(fn func(resource string, upTo uint64)) {
	l.trimmedHandlers = append(l.trimmedHandlers, fn)
}

// AddTransaction appends transaction at the next index and marks it
// live for every resource it modified.
func (l *TransactionLedger) AddTransaction(transaction schema.TransactionFinalizedEvent) (uint64, error) {
	index, err := l.entries.Append(transaction)
	l.track(index, transaction)
	return index, err
}

// AddTransactionAt stores transaction at an index assigned by the
// server.
func (l *TransactionLedger) AddTransactionAt(index uint64, transaction schema.TransactionFinalizedEvent) error {
	err := l.entries.AppendAt(index, transaction)
	l.track(index, transaction)
	return err
}

func (l *TransactionLedger) track(index uint64, transaction schema.TransactionFinalizedEvent) {
	for _, resource := range transaction.ModifiedPackages {
		l.live[resource] = insertSorted(l.live[resource], index)
	}
	for _, handler := range l.addedHandlers {
		handler(index, transaction)
	}
}

// FindTransaction returns the transaction at index.
func (l *TransactionLedger) FindTransaction(index uint64) (schema.TransactionFinalizedEvent, error) {
	return l.entries.Find(index)
}

// NextTransactionIndex returns the index the next AddTransaction will
// assign. A package saved now has this as its save point.
func (l *TransactionLedger) NextTransactionIndex() uint64 {
	return l.entries.Count()
}

// Each visits every readable transaction in index order.
func (l *TransactionLedger) Each(fn func(index uint64, transaction schema.TransactionFinalizedEvent) bool) {
	l.entries.Each(fn)
}

// LiveTransactions returns the live indices of resource in ascending
// order.
func (l *TransactionLedger) LiveTransactions(resource string) []uint64 {
	return slices.Clone(l.live[resource])
}

// HasLiveTransactions reports whether resource has any live index.
func (l *TransactionLedger) HasLiveTransactions(resource string) bool {
	return len(l.live[resource]) > 0
}

// AllLiveTransactions returns every live index across all resources,
// ascending and without duplicates. This is the client's replay order.
func (l *TransactionLedger) AllLiveTransactions() []uint64 {
	var all []uint64
	for _, indices := range l.live {
		for _, index := range indices {
			all = insertSorted(all, index)
		}
	}
	return all
}

// LiveResources returns every resource with at least one live index,
// sorted.
func (l *TransactionLedger) LiveResources() []string {
	resources := make([]string, 0, len(l.live))
	for resource := range l.live {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	return resources
}

// TrimLiveTransactions removes the live indices of resource that are
// below upTo. A resource whose set becomes empty is forgotten. Trimming
// below the smallest live index does nothing.
func (l *TransactionLedger) TrimLiveTransactions(resource string, upTo uint64) {
	indices, ok := l.live[resource]
	if !ok {
		return
	}
	keep, _ := slices.BinarySearch(indices, upTo)
	if keep == 0 {
		return
	}
	if keep == len(indices) {
		delete(l.live, resource)
	} else {
		l.live[resource] = slices.Clone(indices[keep:])
	}
	for _, handler := range l.trimmedHandlers {
		handler(resource, upTo)
	}
}

// Load recovers the append counter and rebuilds live sets from every
// readable entry. The caller re-applies save points from the package
// ledger afterwards.
func (l *TransactionLedger) Load() error {
	if err := l.entries.Load(); err != nil {
		return err
	}
	l.live = make(map[string][]uint64)
	l.entries.Each(func(index uint64, transaction schema.TransactionFinalizedEvent) bool {
		for _, resource := range transaction.ModifiedPackages {
			l.live[resource] = insertSorted(l.live[resource], index)
		}
		return true
	})
	return nil
}

// Clear deletes every entry and forgets all live sets.
func (l *TransactionLedger) Clear() error {
	l.live = make(map[string][]uint64)
	return l.entries.Clear()
}

// insertSorted inserts index into an ascending slice unless present.
func insertSorted(indices []uint64, index uint64) []uint64 {
	position, found := slices.BinarySearch(indices, index)
	if found {
		return indices
	}
	return slices.Insert(indices, position, index)
}
