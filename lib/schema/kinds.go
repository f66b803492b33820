// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// MessageKind is the wire-level type tag of a message. Handlers are
// registered per kind; the tag never changes once published.
type MessageKind string

// Admin-scoped kinds. These are valid before a client has joined a
// session.
const (
	KindHello                MessageKind = "hello"
	KindCreateSession        MessageKind = "create_session"
	KindFindSession          MessageKind = "find_session"
	KindDeleteSession        MessageKind = "delete_session"
	KindGetSessions          MessageKind = "get_sessions"
	KindGetSessionClients    MessageKind = "get_session_clients"
	KindGetSavedSessionNames MessageKind = "get_saved_session_names"
)

// Session membership kinds.
const (
	KindJoinSession    MessageKind = "join_session"
	KindLeaveSession   MessageKind = "leave_session"
	KindSessionClients MessageKind = "session_clients"
)

// Workspace kinds.
const (
	KindPackageUpdate        MessageKind = "package_update"
	KindTransactionFinalized MessageKind = "transaction_finalized"
	KindTransactionSnapshot  MessageKind = "transaction_snapshot"
	KindTransactionRejected  MessageKind = "transaction_rejected"
	KindPlaySession          MessageKind = "play_session"
	KindResourceLock         MessageKind = "resource_lock"
	KindResourceLockEvent    MessageKind = "resource_lock_event"

	KindSyncTransaction      MessageKind = "sync_transaction"
	KindSyncPackage          MessageKind = "sync_package"
	KindSyncLock             MessageKind = "sync_lock"
	KindInitialSyncCompleted MessageKind = "initial_sync_completed"

	KindDataStoreFetchOrAdd      MessageKind = "data_store_fetch_or_add"
	KindDataStoreFetch           MessageKind = "data_store_fetch"
	KindDataStoreCompareExchange MessageKind = "data_store_compare_exchange"
	KindDataStoreValueUpdated    MessageKind = "data_store_value_updated"
	KindSyncDataStore            MessageKind = "sync_data_store"

	KindActivitiesSynced    MessageKind = "activities_synced"
	KindConnectionActivity  MessageKind = "activity.connection"
	KindTransactionActivity MessageKind = "activity.transaction"
	KindPackageActivity     MessageKind = "activity.package"
)

// ResponseCode is the outcome of a request.
type ResponseCode uint8

const (
	// ResponseSuccess means the handler ran and produced a response
	// body. A lock request that could not be granted still succeeds;
	// the conflicts are in the body.
	ResponseSuccess ResponseCode = iota

	// ResponseFailed means the handler ran and could not complete.
	ResponseFailed

	// ResponseInvalidRequest means the request could not be decoded or
	// violated the protocol. The connection stays up.
	ResponseInvalidRequest

	// ResponseUnknownRequest means no handler is registered for the
	// request kind.
	ResponseUnknownRequest

	// ResponseTimedOut is reserved for outer retry policies. The core
	// never produces it.
	ResponseTimedOut
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseSuccess:
		return "success"
	case ResponseFailed:
		return "failed"
	case ResponseInvalidRequest:
		return "invalid_request"
	case ResponseUnknownRequest:
		return "unknown_request"
	case ResponseTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("response_code(%d)", uint8(c))
	}
}
