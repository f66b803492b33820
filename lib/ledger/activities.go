// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/concord/lib/clock"
	"github.com/bureau-foundation/concord/lib/schema"
)

// On-disk names of the activity ledger.
const (
	ActivitiesDirectory = "Activities"
	activityExtension   = "uacti"
	activityTag         = "concord.activity"
)

// ActivityLedger is the human-readable feed derived from connections,
// transactions, and package revisions.
type ActivityLedger struct {
	entries       *Ledger[schema.Activity]
	clock         clock.Clock
	addedHandlers []func(index uint64, activity schema.Activity)
}

// OpenActivityLedger opens the activity ledger under root.
func OpenActivityLedger(root string, options Options) (*ActivityLedger, error) {
	entries, err := New[schema.Activity](
		filepath.Join(root, ActivitiesDirectory), activityExtension, activityTag, options)
	if err != nil {
		return nil, err
	}
	return &ActivityLedger{entries: entries, clock: options.clock()}, nil
}

// OnActivityAdded registers fn to run after every recorded activity.
func (l *ActivityLedger) OnActivityAdded(fn func(index uint64, activity schema.Activity)) {
	l.addedHandlers = append(l.addedHandlers, fn)
}

// AddActivity appends activity and returns its index. A zero timestamp
// is replaced with the ledger clock's current time.
func (l *ActivityLedger) AddActivity(activity schema.Activity) (uint64, error) {
	if activity.Timestamp.IsZero() {
		activity.Timestamp = l.clock.Now()
	}
	index, err := l.entries.Append(activity)
	for _, handler := range l.addedHandlers {
		handler(index, activity)
	}
	return index, err
}

// AddActivityAt stores an activity at the index its originator
// assigned. Client mirrors use it for server-broadcast activities.
func (l *ActivityLedger) AddActivityAt(index uint64, activity schema.Activity) error {
	err := l.entries.AppendAt(index, activity)
	for _, handler := range l.addedHandlers {
		handler(index, activity)
	}
	return err
}

// RecordConnection records a client joining or leaving.
func (l *ActivityLedger) RecordConnection(kind schema.ActivityKind, client schema.ClientInfo) (uint64, error) {
	return l.AddActivity(schema.Activity{Kind: kind, Client: client})
}

// RecordFinalizedTransaction records one activity per distinct
// top-level object the transaction touched, and returns the indices
// in order. A transaction with no exported objects records one
// generic activity for its primary object.
func (l *ActivityLedger) RecordFinalizedTransaction(transaction schema.TransactionFinalizedEvent, index uint64, client schema.ClientInfo) ([]uint64, error) {
	now := l.clock.Now()
	var indices []uint64
	var firstErr error
	for _, detail := range deriveTransactionActivities(transaction, index) {
		activityIndex, err := l.AddActivity(schema.Activity{
			Kind:        detail.kind,
			Timestamp:   now,
			Client:      client,
			Transaction: detail.activity,
		})
		indices = append(indices, activityIndex)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return indices, firstErr
}

// RecordPackageUpdate records a package revision. Dummy revisions are
// bookkeeping and record nothing; ok is false for them.
func (l *ActivityLedger) RecordPackageUpdate(revision uint32, info schema.PackageInfo, client schema.ClientInfo) (index uint64, ok bool, err error) {
	var kind schema.ActivityKind
	switch info.UpdateType {
	case schema.PackageAdded:
		kind = schema.ActivityPackageAdded
	case schema.PackageSaved:
		kind = schema.ActivityPackageSaved
	case schema.PackageRenamed:
		kind = schema.ActivityPackageRenamed
	case schema.PackageDeleted:
		kind = schema.ActivityPackageDeleted
	default:
		return 0, false, nil
	}
	index, err = l.AddActivity(schema.Activity{
		Kind:   kind,
		Client: client,
		Package: &schema.PackageActivity{
			PackageName:    info.PackageName,
			Revision:       revision,
			NewPackageName: info.NewPackageName,
		},
	})
	return index, true, err
}

// FindActivity returns the activity at index.
func (l *ActivityLedger) FindActivity(index uint64) (schema.Activity, error) {
	return l.entries.Find(index)
}

// ActivityCount returns the number of assigned activity indices.
func (l *ActivityLedger) ActivityCount() uint64 {
	return l.entries.Count()
}

// GetActivities returns up to limit readable activities starting at
// offset, in index order. Holes are skipped without consuming the
// limit.
func (l *ActivityLedger) GetActivities(offset uint64, limit int) []schema.ActivityEvent {
	var events []schema.ActivityEvent
	for index := offset; index < l.entries.Count() && len(events) < limit; index++ {
		activity, err := l.entries.Find(index)
		if err != nil {
			continue
		}
		events = append(events, schema.ActivityEvent{Index: index, Activity: activity})
	}
	return events
}

// GetLastActivities returns the newest limit indices' readable
// activities in index order.
func (l *ActivityLedger) GetLastActivities(limit int) []schema.ActivityEvent {
	count := l.entries.Count()
	offset := uint64(0)
	if limit < 0 {
		limit = 0
	}
	if uint64(limit) < count {
		offset = count - uint64(limit)
	}
	return l.GetActivities(offset, limit)
}

// EachReverse visits readable activities from newest to oldest until
// fn returns false.
func (l *ActivityLedger) EachReverse(fn func(index uint64, activity schema.Activity) bool) {
	for index := l.entries.Count(); index > 0; index-- {
		activity, err := l.entries.Find(index - 1)
		if err != nil {
			continue
		}
		if !fn(index-1, activity) {
			return
		}
	}
}

// Load recovers the append counter.
func (l *ActivityLedger) Load() error {
	return l.entries.Load()
}

// Clear deletes every activity.
func (l *ActivityLedger) Clear() error {
	return l.entries.Clear()
}

type transactionActivityDetail struct {
	kind     schema.ActivityKind
	activity *schema.TransactionActivity
}

// deriveTransactionActivities computes the activities a finalized
// transaction produces without recording them. Each distinct top-level
// object name yields exactly one activity: an exported object nested
// inside another exported object of the same transaction is attributed
// to its outer.
func deriveTransactionActivities(transaction schema.TransactionFinalizedEvent, index uint64) []transactionActivityDetail {
	objects := transaction.ExportedObjects
	paths := make([]string, len(objects))
	for i, object := range objects {
		paths[i] = object.ObjectID.Path()
	}

	var details []transactionActivityDetail
	seen := make(map[string]struct{})
	for i, object := range objects {
		if isNested(object, i, paths) {
			continue
		}
		name := object.ObjectID.Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		detail := &schema.TransactionActivity{
			TransactionIndex: index,
			TransactionTitle: transaction.Title,
			ObjectName:       name,
			PackageName:      packageFor(transaction, paths[i]),
		}
		kind := schema.ActivityTransactionFinalized
		switch {
		case object.PendingKill:
			kind = schema.ActivityObjectDeleted
		case object.AllowCreate:
			kind = schema.ActivityObjectCreated
		case object.NewName != "" && object.NewName != name:
			kind = schema.ActivityObjectRenamed
			detail.NewObjectName = object.NewName
		}
		details = append(details, transactionActivityDetail{kind: kind, activity: detail})
	}

	if len(details) == 0 {
		details = append(details, transactionActivityDetail{
			kind: schema.ActivityTransactionFinalized,
			activity: &schema.TransactionActivity{
				TransactionIndex: index,
				TransactionTitle: transaction.Title,
				ObjectName:       transaction.PrimaryObject.Name,
				PackageName:      packageFor(transaction, transaction.PrimaryObject.Path()),
			},
		})
	}
	return details
}

// isNested reports whether objects[self] lives inside any other
// exported object of the transaction.
func isNested(object schema.ExportedObject, self int, paths []string) bool {
	for i, path := range paths {
		if i != self && path != paths[self] && object.IsWithin(path) {
			return true
		}
	}
	return false
}

// packageFor picks the modified package that contains path: the part
// of the path before the first ".", when the transaction lists it.
// Otherwise it falls back to the first modified package.
func packageFor(transaction schema.TransactionFinalizedEvent, path string) string {
	candidate, _, _ := strings.Cut(path, ".")
	if transaction.ModifiesPackage(candidate) {
		return candidate
	}
	if len(transaction.ModifiedPackages) > 0 {
		return transaction.ModifiedPackages[0]
	}
	return ""
}
