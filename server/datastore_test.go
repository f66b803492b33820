// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/datastore"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

func (h *workspaceHarness) dataStore(sender uuid.UUID, kind schema.MessageKind, payload any) schema.DataStoreResult {
	h.t.Helper()
	body, code, reason := h.request(sender, kind, payload)
	if code != schema.ResponseSuccess {
		h.t.Fatalf("%s request: %s %s", kind, code, reason)
	}
	result, err := transport.DecodePayload[schema.DataStoreResult](body)
	if err != nil {
		h.t.Fatalf("decoding %s result: %v", kind, err)
	}
	return result
}

func (h *workspaceHarness) fetchOrAdd(sender uuid.UUID, key string, value int64) schema.DataStoreResult {
	h.t.Helper()
	return h.dataStore(sender, schema.KindDataStoreFetchOrAdd, schema.DataStoreFetchOrAddRequest{
		Key: key, TypeName: datastore.TypeName[int64](), Data: encodeInt(h.t, value),
	})
}

func encodeInt(t *testing.T, value int64) []byte {
	t.Helper()
	data, err := datastore.Encode(value)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func decodeInt(t *testing.T, value *schema.DataStoreValue) int64 {
	t.Helper()
	if value == nil {
		t.Fatal("result carries no value")
	}
	decoded, err := datastore.Decode[int64](*value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return decoded
}

// dataStoreUpdates returns the value-updated events among events.
func dataStoreUpdates(events []sentEvent) []schema.DataStoreValueUpdatedEvent {
	var updates []schema.DataStoreValueUpdatedEvent
	for _, event := range events {
		if update, ok := event.payload.(schema.DataStoreValueUpdatedEvent); ok {
			updates = append(updates, update)
		}
	}
	return updates
}

func TestDataStoreOperationsReplicate(t *testing.T) {
	h := newWorkspaceHarness(t)
	h.connect(endpointA, "alice")
	h.connect(endpointB, "bob")
	h.session.reset()

	added := h.fetchOrAdd(endpointA, "CameraId", 44)
	if added.Code != schema.DataStoreAdded || added.Value.Version != 1 || decodeInt(t, added.Value) != 44 {
		t.Fatalf("first FetchOrAdd = %s %+v", added.Code, added.Value)
	}
	if updates := dataStoreUpdates(h.session.take(endpointA)); len(updates) != 0 {
		t.Errorf("requester was sent its own change: %+v", updates)
	}
	updates := dataStoreUpdates(h.session.take(endpointB))
	if len(updates) != 1 || updates[0].Key != "CameraId" || updates[0].Value.Version != 1 {
		t.Fatalf("peer updates = %+v, want CameraId version 1", updates)
	}

	fetched := h.fetchOrAdd(endpointB, "CameraId", 99)
	if fetched.Code != schema.DataStoreFetched || decodeInt(t, fetched.Value) != 44 {
		t.Errorf("second FetchOrAdd = %s %d, want fetched 44", fetched.Code, decodeInt(t, fetched.Value))
	}
	if len(h.session.sent) != 0 {
		t.Errorf("a fetch sent %v", kinds(h.session.sent))
	}

	typeMismatch := h.dataStore(endpointB, schema.KindDataStoreFetch, schema.DataStoreFetchRequest{
		Key: "CameraId", TypeName: datastore.TypeName[float32](),
	})
	if typeMismatch.Code != schema.DataStoreTypeMismatch || typeMismatch.Value != nil {
		t.Errorf("fetch as float32 = %s %+v", typeMismatch.Code, typeMismatch.Value)
	}
	notFound := h.dataStore(endpointB, schema.KindDataStoreFetch, schema.DataStoreFetchRequest{
		Key: "Missing", TypeName: datastore.TypeName[int64](),
	})
	if notFound.Code != schema.DataStoreNotFound {
		t.Errorf("fetch of missing key = %s", notFound.Code)
	}

	stale := h.dataStore(endpointB, schema.KindDataStoreCompareExchange, schema.DataStoreCompareExchangeRequest{
		Key: "CameraId", TypeName: datastore.TypeName[int64](),
		Expected: encodeInt(t, 7), Desired: encodeInt(t, 8),
	})
	if stale.Code != schema.DataStoreFetched || decodeInt(t, stale.Value) != 44 {
		t.Errorf("stale compare-exchange = %s %d, want fetched 44", stale.Code, decodeInt(t, stale.Value))
	}
	exchanged := h.dataStore(endpointB, schema.KindDataStoreCompareExchange, schema.DataStoreCompareExchangeRequest{
		Key: "CameraId", TypeName: datastore.TypeName[int64](),
		Expected: encodeInt(t, 44), Desired: encodeInt(t, 45),
	})
	if exchanged.Code != schema.DataStoreExchanged || exchanged.Value.Version != 2 || decodeInt(t, exchanged.Value) != 45 {
		t.Errorf("compare-exchange = %s %+v", exchanged.Code, exchanged.Value)
	}
	byVersion := h.dataStore(endpointA, schema.KindDataStoreCompareExchange, schema.DataStoreCompareExchangeRequest{
		Key: "CameraId", TypeName: datastore.TypeName[int64](),
		ByVersion: true, ExpectedVersion: 2, Desired: encodeInt(t, 46),
	})
	if byVersion.Code != schema.DataStoreExchanged || byVersion.Value.Version != 3 {
		t.Errorf("compare-exchange by version = %s %+v", byVersion.Code, byVersion.Value)
	}

	alice := dataStoreUpdates(h.session.take(endpointA))
	if len(alice) != 1 || alice[0].Value.Version != 2 {
		t.Errorf("alice updates = %+v, want bob's exchange to version 2 only", alice)
	}
	bob := dataStoreUpdates(h.session.take(endpointB))
	if len(bob) != 1 || bob[0].Value.Version != 3 {
		t.Errorf("bob updates = %+v, want alice's exchange to version 3 only", bob)
	}
}

func TestDataStoreRequestErrors(t *testing.T) {
	h := newWorkspaceHarness(t)
	h.connect(endpointA, "alice")

	_, code, _ := h.request(endpointA, schema.KindDataStoreFetchOrAdd, schema.DataStoreFetchOrAddRequest{
		TypeName: datastore.TypeName[int64](), Data: encodeInt(t, 1),
	})
	if code != schema.ResponseInvalidRequest {
		t.Errorf("request without a key answered %s", code)
	}
	_, code, _ = h.request(endpointA, schema.KindDataStoreFetch, schema.DataStoreFetchRequest{Key: "CameraId"})
	if code != schema.ResponseInvalidRequest {
		t.Errorf("request without a type name answered %s", code)
	}
	_, code, _ = h.request(endpointB, schema.KindDataStoreFetch, schema.DataStoreFetchRequest{
		Key: "CameraId", TypeName: datastore.TypeName[int64](),
	})
	if code != schema.ResponseFailed {
		t.Errorf("request from an endpoint that is not connected answered %s", code)
	}
	if h.workspace.DataStore().Len() != 0 {
		t.Errorf("failed requests stored %d keys", h.workspace.DataStore().Len())
	}
}

func TestDataStoreReplayedAfterReopen(t *testing.T) {
	h := newWorkspaceHarness(t)
	h.connect(endpointA, "alice")
	h.fetchOrAdd(endpointA, "Key2", 2)
	h.fetchOrAdd(endpointA, "Key1", 1)
	h.dataStore(endpointA, schema.KindDataStoreCompareExchange, schema.DataStoreCompareExchangeRequest{
		Key: "Key2", TypeName: datastore.TypeName[int64](),
		Expected: encodeInt(t, 2), Desired: encodeInt(t, 20),
	})

	h.reopen()
	if got := h.workspace.DataStore().Keys(); !slices.Equal(got, []string{"Key1", "Key2"}) {
		t.Fatalf("keys after reopen = %v", got)
	}

	events := h.connect(endpointC, "carol")
	lock := slices.IndexFunc(events, func(event sentEvent) bool { return event.kind == schema.KindSyncLock })
	if lock < 0 || len(events) < lock+3 {
		t.Fatalf("replay = %v", kinds(events))
	}
	var replayed []schema.WorkspaceSyncDataStoreEvent
	for _, event := range events[lock+1 : lock+3] {
		entry, ok := event.payload.(schema.WorkspaceSyncDataStoreEvent)
		if !ok {
			t.Fatalf("replay after the lock snapshot = %v", kinds(events[lock+1:]))
		}
		replayed = append(replayed, entry)
	}
	if replayed[0].Key != "Key1" || replayed[0].Value.Version != 1 || decodeInt(t, &replayed[0].Value) != 1 {
		t.Errorf("first replayed entry = %+v", replayed[0])
	}
	if replayed[1].Key != "Key2" || replayed[1].Value.Version != 2 || decodeInt(t, &replayed[1].Value) != 20 {
		t.Errorf("second replayed entry = %+v", replayed[1])
	}
	if replayed[0].RemainingWork <= replayed[1].RemainingWork {
		t.Errorf("remaining work did not count down: %d then %d", replayed[0].RemainingWork, replayed[1].RemainingWork)
	}
}
