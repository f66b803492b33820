// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the records and wire messages of the Concord
// session protocol.
//
// Every message has a stable [MessageKind] tag. The transport routes on
// the tag and decodes the CBOR payload into the struct registered for
// it. The same structs are the ledger record types: a ledgered
// transaction is exactly the [TransactionFinalizedEvent] the client
// sent, and a ledgered package revision is exactly the [Package] from a
// [PackageUpdateEvent].
//
// Groups:
//
//   - identity: [ClientInfo], [SessionClientInfo], [SessionInfo]
//   - transactions: [TransactionFinalizedEvent], [TransactionSnapshotEvent],
//     [TransactionRejectedEvent]
//   - packages: [Package], [PackageInfo], [PackageUpdateEvent]
//   - locks: [ResourceLockRequest], [ResourceLockResponse], [ResourceLockEvent]
//   - replay: [WorkspaceSyncTransactionEvent], [WorkspaceSyncPackageEvent],
//     [WorkspaceSyncLockEvent], [WorkspaceInitialSyncCompletedEvent]
//   - activity feed: [Activity], [ActivityEvent], [ActivitiesSyncedEvent]
//   - admin: session create/find/join/delete/list requests
//
// This package depends on no other Concord packages except lib/codec
// conventions for struct tags.
package schema
