// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// DataStoreResultCode is the outcome of a data store operation.
type DataStoreResultCode uint8

const (
	// DataStoreAdded means the key was absent and the offered value
	// was stored.
	DataStoreAdded DataStoreResultCode = iota + 1

	// DataStoreFetched means the current value was returned unchanged.
	// A compare-exchange whose expectation did not hold answers this,
	// with the value that is actually stored.
	DataStoreFetched

	// DataStoreExchanged means the value was replaced.
	DataStoreExchanged

	// DataStoreNotFound means the key is absent.
	DataStoreNotFound

	// DataStoreTypeMismatch means the key holds a value of another
	// type. No value is returned.
	DataStoreTypeMismatch
)

func (c DataStoreResultCode) String() string {
	switch c {
	case DataStoreAdded:
		return "added"
	case DataStoreFetched:
		return "fetched"
	case DataStoreExchanged:
		return "exchanged"
	case DataStoreNotFound:
		return "not_found"
	case DataStoreTypeMismatch:
		return "type_mismatch"
	default:
		return fmt.Sprintf("data_store_result(%d)", uint8(c))
	}
}

// HasValue reports whether a result with this code carries a value.
func (c DataStoreResultCode) HasValue() bool {
	return c == DataStoreAdded || c == DataStoreFetched || c == DataStoreExchanged
}

// DataStoreValue is one versioned entry of a session's data store.
// Data is the CBOR encoding of a value of TypeName. Version starts at
// one and increases by one, wrapping, on every replacement.
type DataStoreValue struct {
	TypeName string `cbor:"type_name"`
	Version  uint32 `cbor:"version"`
	Data     []byte `cbor:"data,omitempty"`
}

// DataStoreResult answers every data store request.
type DataStoreResult struct {
	Code  DataStoreResultCode `cbor:"code"`
	Value *DataStoreValue     `cbor:"value,omitempty"`
}

// DataStoreFetchOrAddRequest stores Data under Key unless the key is
// already present.
type DataStoreFetchOrAddRequest struct {
	Key      string `cbor:"key"`
	TypeName string `cbor:"type_name"`
	Data     []byte `cbor:"data,omitempty"`
}

// DataStoreFetchRequest reads Key as TypeName.
type DataStoreFetchRequest struct {
	Key      string `cbor:"key"`
	TypeName string `cbor:"type_name"`
}

// DataStoreCompareExchangeRequest replaces the value of Key with
// Desired if the stored value still equals Expected. With ByVersion
// set the check compares ExpectedVersion with the stored version
// instead, which spares sending a large expected value the client
// already holds.
type DataStoreCompareExchangeRequest struct {
	Key             string `cbor:"key"`
	TypeName        string `cbor:"type_name"`
	Expected        []byte `cbor:"expected,omitempty"`
	ExpectedVersion uint32 `cbor:"expected_version,omitempty"`
	ByVersion       bool   `cbor:"by_version,omitempty"`
	Desired         []byte `cbor:"desired,omitempty"`
}

// DataStoreValueUpdatedEvent tells the other members that a key was
// added or exchanged.
type DataStoreValueUpdatedEvent struct {
	Key   string         `cbor:"key"`
	Value DataStoreValue `cbor:"value"`
}

// WorkspaceSyncDataStoreEvent replays one data store entry to a
// joining member.
type WorkspaceSyncDataStoreEvent struct {
	RemainingWork uint32         `cbor:"remaining_work"`
	Key           string         `cbor:"key"`
	Value         DataStoreValue `cbor:"value"`
}
