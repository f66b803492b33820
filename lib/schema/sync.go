// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/google/uuid"

// Replay events carry RemainingWork: the number of replay commands
// still queued for the receiving endpoint after this one. Clients use
// it for progress reporting only.

// WorkspaceSyncTransactionEvent delivers one ledgered transaction at
// its server index.
type WorkspaceSyncTransactionEvent struct {
	RemainingWork    uint32                    `cbor:"remaining_work"`
	TransactionIndex uint64                    `cbor:"transaction_index"`
	Transaction      TransactionFinalizedEvent `cbor:"transaction"`
}

// WorkspaceSyncPackageEvent delivers one package revision. Non-head
// revisions arrive without bytes.
type WorkspaceSyncPackageEvent struct {
	RemainingWork   uint32  `cbor:"remaining_work"`
	PackageRevision uint32  `cbor:"package_revision"`
	Package         Package `cbor:"package"`
}

// WorkspaceSyncLockEvent delivers the complete lock table.
type WorkspaceSyncLockEvent struct {
	RemainingWork   uint32               `cbor:"remaining_work"`
	LockedResources map[string]uuid.UUID `cbor:"locked_resources,omitempty"`
}

// WorkspaceInitialSyncCompletedEvent is sent once the endpoint's
// replay queue has drained.
type WorkspaceInitialSyncCompletedEvent struct{}

// PlaySessionEventType distinguishes play session transitions.
type PlaySessionEventType uint8

const (
	PlaySessionBegin PlaySessionEventType = iota + 1
	PlaySessionSwitch
	PlaySessionEnd
)

func (t PlaySessionEventType) String() string {
	switch t {
	case PlaySessionBegin:
		return "begin"
	case PlaySessionSwitch:
		return "switch"
	case PlaySessionEnd:
		return "end"
	default:
		return "invalid"
	}
}

// PlaySessionEvent announces that an endpoint started, toggled, or
// stopped a play session. Edits made inside a play session target
// PlayPackageName and are discarded when the last participant leaves.
type PlaySessionEvent struct {
	EventType       PlaySessionEventType `cbor:"event_type"`
	PlayEndpointID  uuid.UUID            `cbor:"play_endpoint_id"`
	PlayPackageName string               `cbor:"play_package_name"`
	IsSimulating    bool                 `cbor:"is_simulating,omitempty"`
}
