// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/google/uuid"

// ResourceLockType selects whether a lock request takes or releases
// locks.
type ResourceLockType uint8

const (
	ResourceLock ResourceLockType = iota + 1
	ResourceUnlock
)

func (t ResourceLockType) String() string {
	switch t {
	case ResourceLock:
		return "lock"
	case ResourceUnlock:
		return "unlock"
	default:
		return "invalid"
	}
}

// ResourceLockRequest asks the server to take or release explicit
// locks on behalf of ClientID, which must be the sending endpoint.
type ResourceLockRequest struct {
	ClientID      uuid.UUID        `cbor:"client_id"`
	ResourceNames []string         `cbor:"resource_names"`
	LockType      ResourceLockType `cbor:"lock_type"`
}

// ResourceLockResponse reports the resources that could not be locked
// or released, mapped to their current owner. An empty map means the
// whole request succeeded.
type ResourceLockResponse struct {
	FailedResources map[string]uuid.UUID `cbor:"failed_resources,omitempty"`
	LockType        ResourceLockType     `cbor:"lock_type"`
}

// ResourceLockEvent is broadcast whenever locks change hands.
type ResourceLockEvent struct {
	ClientID      uuid.UUID        `cbor:"client_id"`
	ResourceNames []string         `cbor:"resource_names"`
	LockType      ResourceLockType `cbor:"lock_type"`
}
