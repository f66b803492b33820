// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datastore

import (
	"bytes"
	"reflect"
	"slices"
	"sort"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
)

// Store is an in-memory versioned key/value map. Results never alias
// the stored bytes.
//
// Construct with [New]. Not safe for concurrent use.
type Store struct {
	values map[string]schema.DataStoreValue
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string]schema.DataStoreValue)}
}

// Len returns the number of keys.
func (s *Store) Len() int { return len(s.values) }

// Keys returns every key in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the value of key whatever its type.
func (s *Store) Lookup(key string) (schema.DataStoreValue, bool) {
	value, ok := s.values[key]
	if !ok {
		return schema.DataStoreValue{}, false
	}
	return clone(value), true
}

// Version returns the version of key.
func (s *Store) Version(key string) (uint32, bool) {
	value, ok := s.values[key]
	return value.Version, ok
}

// Put sets key to value exactly as given, version included. It is how
// a cache mirrors the server and how a persisted store is restored.
// It answers Added or Exchanged.
func (s *Store) Put(key string, value schema.DataStoreValue) schema.DataStoreResult {
	code := schema.DataStoreExchanged
	if _, ok := s.values[key]; !ok {
		code = schema.DataStoreAdded
	}
	s.values[key] = clone(value)
	return result(code, value)
}

// Remove deletes key. No-op if it is absent.
func (s *Store) Remove(key string) {
	delete(s.values, key)
}

// Store sets key to data. A new key starts at version one; replacing a
// value of the same type bumps the version, wrapping at the top of the
// range. A key holding another type is left alone.
func (s *Store) Store(key, typeName string, data []byte) schema.DataStoreResult {
	current, ok := s.values[key]
	if !ok {
		return s.Put(key, schema.DataStoreValue{TypeName: typeName, Version: 1, Data: data})
	}
	if current.TypeName != typeName {
		return schema.DataStoreResult{Code: schema.DataStoreTypeMismatch}
	}
	return s.Put(key, schema.DataStoreValue{TypeName: typeName, Version: current.Version + 1, Data: data})
}

// Fetch reads key as typeName.
func (s *Store) Fetch(key, typeName string) schema.DataStoreResult {
	current, ok := s.values[key]
	switch {
	case !ok:
		return schema.DataStoreResult{Code: schema.DataStoreNotFound}
	case current.TypeName != typeName:
		return schema.DataStoreResult{Code: schema.DataStoreTypeMismatch}
	}
	return result(schema.DataStoreFetched, current)
}

// FetchOrAdd stores data under key at version one if key is absent,
// and otherwise reads it as Fetch does.
func (s *Store) FetchOrAdd(key, typeName string, data []byte) schema.DataStoreResult {
	if _, ok := s.values[key]; !ok {
		return s.Put(key, schema.DataStoreValue{TypeName: typeName, Version: 1, Data: data})
	}
	return s.Fetch(key, typeName)
}

// CompareExchange replaces the value of key with desired if its bytes
// equal expected, and bumps the version. Otherwise the current value
// comes back as Fetched.
func (s *Store) CompareExchange(key, typeName string, expected, desired []byte) schema.DataStoreResult {
	return s.exchange(key, typeName, desired, func(current schema.DataStoreValue) bool {
		return bytes.Equal(current.Data, expected)
	})
}

// CompareExchangeVersion is CompareExchange with the check made on the
// version instead of the bytes.
func (s *Store) CompareExchangeVersion(key, typeName string, expectedVersion uint32, desired []byte) schema.DataStoreResult {
	return s.exchange(key, typeName, desired, func(current schema.DataStoreValue) bool {
		return current.Version == expectedVersion
	})
}

func (s *Store) exchange(key, typeName string, desired []byte, matches func(schema.DataStoreValue) bool) schema.DataStoreResult {
	current, ok := s.values[key]
	switch {
	case !ok:
		return schema.DataStoreResult{Code: schema.DataStoreNotFound}
	case current.TypeName != typeName:
		return schema.DataStoreResult{Code: schema.DataStoreTypeMismatch}
	case !matches(current):
		return result(schema.DataStoreFetched, current)
	}
	return s.Put(key, schema.DataStoreValue{TypeName: typeName, Version: current.Version + 1, Data: desired})
}

func result(code schema.DataStoreResultCode, value schema.DataStoreValue) schema.DataStoreResult {
	copied := clone(value)
	return schema.DataStoreResult{Code: code, Value: &copied}
}

func clone(value schema.DataStoreValue) schema.DataStoreValue {
	value.Data = slices.Clone(value.Data)
	return value
}

// TypeName names T for the store: the Go type as reflect prints it,
// such as "int32" or "client.CameraRig". Peers that share a value must
// agree on the name, so T should be a named or builtin type.
func TypeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// Encode encodes value as a store payload.
func Encode[T any](value T) ([]byte, error) {
	return codec.Marshal(value)
}

// Decode decodes a stored value as T. It does not check the type name.
func Decode[T any](value schema.DataStoreValue) (T, error) {
	var decoded T
	err := codec.Unmarshal(value.Data, &decoded)
	return decoded, err
}
