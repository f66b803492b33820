// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/concord/lib/ledger"
	"github.com/bureau-foundation/concord/lib/schema"
)

// ErrUnattributedTransactions is returned by author queries when the
// activity feed ran out before every live transaction of the resource
// was attributed.
var ErrUnattributedTransactions = errors.New("client: live transactions without a known author")

// liveAuthors attributes live transaction indices to the client that
// made them.
type liveAuthors struct {
	transactions *ledger.TransactionLedger
	logger       *slog.Logger

	byIndex  map[uint64]schema.ClientInfo
	resolved bool
}

func newLiveAuthors(transactions *ledger.TransactionLedger, logger *slog.Logger) *liveAuthors {
	return &liveAuthors{
		transactions: transactions,
		logger:       logger,
		byIndex:      make(map[uint64]schema.ClientInfo),
	}
}

// resolve walks the activity feed from the newest entry back until
// every live index has an author.
func (a *liveAuthors) resolve(activities *ledger.ActivityLedger) {
	missing := make(map[uint64]struct{})
	for _, index := range a.transactions.AllLiveTransactions() {
		if _, ok := a.byIndex[index]; !ok {
			missing[index] = struct{}{}
		}
	}
	if len(missing) > 0 {
		activities.EachReverse(func(_ uint64, activity schema.Activity) bool {
			if activity.Transaction == nil {
				return true
			}
			index := activity.Transaction.TransactionIndex
			if _, ok := missing[index]; ok {
				a.byIndex[index] = activity.Client
				delete(missing, index)
			}
			return len(missing) > 0
		})
	}
	if len(missing) > 0 {
		indices := make([]uint64, 0, len(missing))
		for index := range missing {
			indices = append(indices, index)
		}
		slices.Sort(indices)
		a.logger.Error("activity history ends before every live transaction is attributed",
			"unattributed", len(indices), "first", indices[0])
	}
	a.resolved = true
}

// add attributes a transaction that arrived after resolution.
func (a *liveAuthors) add(index uint64, author schema.ClientInfo) {
	if a.resolved {
		a.byIndex[index] = author
	}
}

// prune forgets indices that are no longer live anywhere.
func (a *liveAuthors) prune() {
	live := make(map[uint64]struct{})
	for _, index := range a.transactions.AllLiveTransactions() {
		live[index] = struct{}{}
	}
	for index := range a.byIndex {
		if _, ok := live[index]; !ok {
			delete(a.byIndex, index)
		}
	}
}

// authors returns the distinct authors of resource's live
// transactions in index order.
func (a *liveAuthors) authors(resource string) ([]schema.ClientInfo, error) {
	var authors []schema.ClientInfo
	var err error
	for _, index := range a.transactions.LiveTransactions(resource) {
		author, ok := a.byIndex[index]
		if !ok {
			err = ErrUnattributedTransactions
			continue
		}
		if !slices.Contains(authors, author) {
			authors = append(authors, author)
		}
	}
	return authors, err
}

func (a *liveAuthors) reset() {
	clear(a.byIndex)
	a.resolved = false
}
