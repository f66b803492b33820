// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/datastore"
	"github.com/bureau-foundation/concord/lib/ledger"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// On-disk names of the data store's change ledger.
const (
	DataStoreDirectory = "DataStore"
	dataStoreExtension = "udata"
	dataStoreTag       = "concord.datastore"
)

// sessionDataStore is the authoritative data store of one session.
// Every added or exchanged value is appended to a ledger, and load
// replays the ledger in order, so the last change of each key wins.
type sessionDataStore struct {
	values  *datastore.Store
	changes *ledger.Ledger[schema.DataStoreValueUpdatedEvent]
	logger  *slog.Logger
}

func openSessionDataStore(directory string, options ledger.Options, logger *slog.Logger) (*sessionDataStore, error) {
	changes, err := ledger.New[schema.DataStoreValueUpdatedEvent](
		filepath.Join(directory, DataStoreDirectory), dataStoreExtension, dataStoreTag, options)
	if err != nil {
		return nil, err
	}
	return &sessionDataStore{
		values:  datastore.New(),
		changes: changes,
		logger:  logger,
	}, nil
}

func (d *sessionDataStore) load() error {
	if err := d.changes.Load(); err != nil {
		return err
	}
	d.changes.Each(func(_ uint64, change schema.DataStoreValueUpdatedEvent) bool {
		d.values.Put(change.Key, change.Value)
		return true
	})
	return nil
}

// record persists a change. A failed write is logged; the change
// stands in memory and is still replicated.
func (d *sessionDataStore) record(key string, value schema.DataStoreValue) {
	if _, err := d.changes.Append(schema.DataStoreValueUpdatedEvent{Key: key, Value: value}); err != nil {
		d.logger.Error("persisting data store change failed", "key", key, "version", value.Version, "error", err)
	}
}

// DataStore returns the session's data store. Callers must not modify
// it; changes go through the data store requests so they are persisted
// and replicated.
func (w *Workspace) DataStore() *datastore.Store { return w.dataStore.values }

// queueDataStoreReplay queues one event per key with the value held
// now. Later changes reach the endpoint as live updates behind it.
func (w *Workspace) queueDataStoreReplay(target []uuid.UUID) {
	for _, key := range w.dataStore.values.Keys() {
		value, _ := w.dataStore.values.Lookup(key)
		w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
			w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindSyncDataStore, schema.WorkspaceSyncDataStoreEvent{
				RemainingWork: w.remaining(endpoint),
				Key:           key,
				Value:         value,
			})
		})
	}
}

func (w *Workspace) checkDataStoreRequest(ctx transport.MessageContext, key, typeName string) error {
	if _, ok := w.endpoints[ctx.Sender]; !ok {
		return transport.Failed("endpoint %s is not connected", ctx.Sender)
	}
	if key == "" || typeName == "" {
		return transport.InvalidRequest("data store request needs a key and a type name")
	}
	return nil
}

func (w *Workspace) handleDataStoreFetchOrAdd(ctx transport.MessageContext, request schema.DataStoreFetchOrAddRequest) (schema.DataStoreResult, error) {
	if err := w.checkDataStoreRequest(ctx, request.Key, request.TypeName); err != nil {
		return schema.DataStoreResult{}, err
	}
	result := w.dataStore.values.FetchOrAdd(request.Key, request.TypeName, request.Data)
	w.dataStoreChanged(ctx.Sender, request.Key, result)
	return result, nil
}

func (w *Workspace) handleDataStoreFetch(ctx transport.MessageContext, request schema.DataStoreFetchRequest) (schema.DataStoreResult, error) {
	if err := w.checkDataStoreRequest(ctx, request.Key, request.TypeName); err != nil {
		return schema.DataStoreResult{}, err
	}
	return w.dataStore.values.Fetch(request.Key, request.TypeName), nil
}

func (w *Workspace) handleDataStoreCompareExchange(ctx transport.MessageContext, request schema.DataStoreCompareExchangeRequest) (schema.DataStoreResult, error) {
	if err := w.checkDataStoreRequest(ctx, request.Key, request.TypeName); err != nil {
		return schema.DataStoreResult{}, err
	}
	var result schema.DataStoreResult
	if request.ByVersion {
		result = w.dataStore.values.CompareExchangeVersion(request.Key, request.TypeName, request.ExpectedVersion, request.Desired)
	} else {
		result = w.dataStore.values.CompareExchange(request.Key, request.TypeName, request.Expected, request.Desired)
	}
	w.dataStoreChanged(ctx.Sender, request.Key, result)
	return result, nil
}

// dataStoreChanged persists an added or exchanged value and pushes it
// to every endpoint but the one whose request changed it; that one
// learns the value from its response.
func (w *Workspace) dataStoreChanged(sender uuid.UUID, key string, result schema.DataStoreResult) {
	if result.Code != schema.DataStoreAdded && result.Code != schema.DataStoreExchanged {
		return
	}
	value := *result.Value
	w.dataStore.record(key, value)
	w.deliverEvent(w.others(sender), schema.KindDataStoreValueUpdated, schema.DataStoreValueUpdatedEvent{Key: key, Value: value})
	w.logger.Debug("data store value changed",
		"sender", sender, "key", key, "type", value.TypeName, "version", value.Version, "result", result.Code)
}
