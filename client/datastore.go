// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"

	"github.com/bureau-foundation/concord/lib/datastore"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// compareByVersionThreshold is the expected-value size above which a
// compare-exchange whose expectation matches the cache sends the
// cached version instead of the value.
const compareByVersionThreshold = 64

// DataStoreChangeOptions selects when a change handler runs besides
// on every change another member makes.
type DataStoreChangeOptions uint8

const (
	// NotifyOnInitialValue runs the handler at registration if the key
	// is already cached.
	NotifyOnInitialValue DataStoreChangeOptions = 1 << iota

	// NotifyOnTypeMismatch runs the handler, with ok false, when the
	// key holds a value of another type.
	NotifyOnTypeMismatch

	DefaultDataStoreChangeOptions = NotifyOnInitialValue | NotifyOnTypeMismatch
)

// DataStoreResult is a data store answer decoded as T. Value and
// Version are set when Code.HasValue.
type DataStoreResult[T any] struct {
	Code    schema.DataStoreResultCode
	Version uint32
	Value   T
}

// OK reports whether the result carries a value.
func (r DataStoreResult[T]) OK() bool { return r.Code.HasValue() }

// DataStore returns the cache of the session data store: every value
// the server replayed, pushed, or answered. It is read-only to
// callers.
func (w *Workspace) DataStore() *datastore.Store { return w.dataStore }

// FetchOrAdd stores value under key unless the key exists, and answers
// the value the session holds. A cached key is answered locally.
func FetchOrAdd[T any](w *Workspace, key string, value T) *transport.Future[DataStoreResult[T]] {
	typeName := datastore.TypeName[T]()
	if cached := w.dataStore.Fetch(key, typeName); cached.Code != schema.DataStoreNotFound {
		return transport.Resolved[DataStoreResult[T]](decodeDataStoreResult[T](cached))
	}
	data, err := datastore.Encode(value)
	if err != nil {
		return transport.Resolved(DataStoreResult[T]{}, err)
	}
	return dataStoreRequest[T](w, key, schema.KindDataStoreFetchOrAdd, schema.DataStoreFetchOrAddRequest{
		Key: key, TypeName: typeName, Data: data,
	})
}

// FetchAs reads key as T, from the cache if it can.
func FetchAs[T any](w *Workspace, key string) *transport.Future[DataStoreResult[T]] {
	typeName := datastore.TypeName[T]()
	if cached := w.dataStore.Fetch(key, typeName); cached.Code != schema.DataStoreNotFound {
		return transport.Resolved[DataStoreResult[T]](decodeDataStoreResult[T](cached))
	}
	return dataStoreRequest[T](w, key, schema.KindDataStoreFetch, schema.DataStoreFetchRequest{
		Key: key, TypeName: typeName,
	})
}

// CompareExchange replaces the value of key with desired if the
// session still holds expected. Otherwise the answer is Fetched with
// the value actually held.
func CompareExchange[T any](w *Workspace, key string, expected, desired T) *transport.Future[DataStoreResult[T]] {
	typeName := datastore.TypeName[T]()
	cached, isCached := w.dataStore.Lookup(key)
	if isCached && cached.TypeName != typeName {
		return transport.Resolved(DataStoreResult[T]{Code: schema.DataStoreTypeMismatch}, nil)
	}
	expectedData, err := datastore.Encode(expected)
	if err != nil {
		return transport.Resolved(DataStoreResult[T]{}, err)
	}
	desiredData, err := datastore.Encode(desired)
	if err != nil {
		return transport.Resolved(DataStoreResult[T]{}, err)
	}

	request := schema.DataStoreCompareExchangeRequest{Key: key, TypeName: typeName, Desired: desiredData}
	if isCached && len(expectedData) > compareByVersionThreshold && bytes.Equal(cached.Data, expectedData) {
		request.ByVersion = true
		request.ExpectedVersion = cached.Version
	} else {
		request.Expected = expectedData
	}
	return dataStoreRequest[T](w, key, schema.KindDataStoreCompareExchange, request)
}

// dataStoreRequest sends request and caches whatever value the answer
// carries. The requester's own change handlers do not run.
func dataStoreRequest[T any](w *Workspace, key string, kind schema.MessageKind, request any) *transport.Future[DataStoreResult[T]] {
	future := transport.NewFuture[DataStoreResult[T]]()
	transport.Call[schema.DataStoreResult](w.session, kind, request).Then(func(result schema.DataStoreResult, err error) {
		if err != nil {
			future.Resolve(DataStoreResult[T]{}, err)
			return
		}
		if result.Code.HasValue() && result.Value != nil {
			w.dataStore.Put(key, *result.Value)
		}
		future.Resolve(decodeDataStoreResult[T](result))
	})
	return future
}

func decodeDataStoreResult[T any](result schema.DataStoreResult) (DataStoreResult[T], error) {
	decoded := DataStoreResult[T]{Code: result.Code}
	if !result.Code.HasValue() || result.Value == nil {
		return decoded, nil
	}
	value, err := datastore.Decode[T](*result.Value)
	if err != nil {
		return DataStoreResult[T]{}, err
	}
	decoded.Version = result.Value.Version
	decoded.Value = value
	return decoded, nil
}

// OnDataStoreChange registers fn to run when another member adds or
// changes key, replacing any handler key already had. ok is false when
// the value is not a T; with NotifyOnTypeMismatch unset such changes
// are not reported at all.
func OnDataStoreChange[T any](w *Workspace, key string, options DataStoreChangeOptions, fn func(key string, value T, ok bool)) {
	typeName := datastore.TypeName[T]()
	handler := func(value schema.DataStoreValue) {
		if value.TypeName == typeName {
			decoded, err := datastore.Decode[T](value)
			if err == nil {
				fn(key, decoded, true)
				return
			}
			w.logger.Warn("data store value does not decode as its type", "key", key, "type", typeName, "error", err)
		}
		if options&NotifyOnTypeMismatch != 0 {
			var zero T
			fn(key, zero, false)
		}
	}
	w.dataStoreHandlers[key] = handler
	if options&NotifyOnInitialValue != 0 {
		if value, ok := w.dataStore.Lookup(key); ok {
			handler(value)
		}
	}
}

// RemoveDataStoreHandler drops the change handler of key.
func (w *Workspace) RemoveDataStoreHandler(key string) {
	delete(w.dataStoreHandlers, key)
}

func (w *Workspace) handleSyncDataStore(_ transport.MessageContext, event schema.WorkspaceSyncDataStoreEvent) {
	w.remainingWork = event.RemainingWork
	w.applyDataStoreValue(event.Key, event.Value)
}

func (w *Workspace) handleDataStoreValueUpdated(_ transport.MessageContext, event schema.DataStoreValueUpdatedEvent) {
	w.applyDataStoreValue(event.Key, event.Value)
}

func (w *Workspace) applyDataStoreValue(key string, value schema.DataStoreValue) {
	if key == "" {
		w.logger.Warn("dropping data store value without a key", "type", value.TypeName)
		return
	}
	w.dataStore.Put(key, value)
	if handler, ok := w.dataStoreHandlers[key]; ok {
		handler(value)
	}
}
