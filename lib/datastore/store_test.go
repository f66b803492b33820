// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datastore

import (
	"math"
	"slices"
	"testing"

	"github.com/bureau-foundation/concord/lib/schema"
)

func encode[T any](t *testing.T, value T) []byte {
	t.Helper()
	data, err := Encode(value)
	if err != nil {
		t.Fatalf("Encode(%v): %v", value, err)
	}
	return data
}

func decode[T any](t *testing.T, result schema.DataStoreResult) T {
	t.Helper()
	if result.Value == nil {
		t.Fatalf("%s result carries no value", result.Code)
	}
	value, err := Decode[T](*result.Value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return value
}

// checkOperations runs the common sequence on one key: add, fetch,
// refuse to re-add, exchange, and refuse an exchange whose expected
// value is stale.
func checkOperations[T comparable](t *testing.T, key string, stored, exchanged, unexpected T) {
	t.Helper()
	store := New()
	typeName := TypeName[T]()

	expect := func(operation string, result schema.DataStoreResult, code schema.DataStoreResultCode, want T) {
		t.Helper()
		if result.Code != code {
			t.Fatalf("%s %s: code %s, want %s", key, operation, result.Code, code)
		}
		if got := decode[T](t, result); got != want {
			t.Fatalf("%s %s: value %v, want %v", key, operation, got, want)
		}
	}

	expect("add", store.FetchOrAdd(key, typeName, encode(t, stored)), schema.DataStoreAdded, stored)
	expect("fetch", store.Fetch(key, typeName), schema.DataStoreFetched, stored)
	expect("re-add", store.FetchOrAdd(key, typeName, encode(t, exchanged)), schema.DataStoreFetched, stored)
	expect("exchange", store.CompareExchange(key, typeName, encode(t, stored), encode(t, exchanged)), schema.DataStoreExchanged, exchanged)
	expect("fetch after exchange", store.Fetch(key, typeName), schema.DataStoreFetched, exchanged)
	expect("stale exchange", store.CompareExchange(key, typeName, encode(t, unexpected), encode(t, stored)), schema.DataStoreFetched, exchanged)
	expect("fetch after stale exchange", store.Fetch(key, typeName), schema.DataStoreFetched, exchanged)
}

type cameraRig struct {
	ID    int32   `cbor:"id"`
	Lens  uint8   `cbor:"lens"`
	Speed float32 `cbor:"speed"`
}

func TestCommonOperations(t *testing.T) {
	checkOperations(t, "Key_i8", int8(33), int8(-20), int8(77))
	checkOperations(t, "Key_u16", uint16(10), uint16(80), uint16(0))
	checkOperations(t, "Key_i32", int32(33), int32(-20), int32(77))
	checkOperations(t, "Key_u64", uint64(10), uint64(80), uint64(0))
	checkOperations(t, "Key_dbl", 10.0, 80.0, 0.0)
	checkOperations(t, "Key_bool", true, false, true)
	checkOperations(t, "Key_str", "foo", "bar", "Hello")
	checkOperations(t, "Key_custom", cameraRig{1, 2, 0.5}, cameraRig{127, 8, 2.5}, cameraRig{})
}

func TestTypeMismatch(t *testing.T) {
	store := New()
	store.FetchOrAdd("CameraId", TypeName[int64](), encode(t, int64(7)))

	floatName := TypeName[float32]()
	for operation, result := range map[string]schema.DataStoreResult{
		"fetch":            store.Fetch("CameraId", floatName),
		"fetch or add":     store.FetchOrAdd("CameraId", floatName, encode(t, float32(1))),
		"compare exchange": store.CompareExchange("CameraId", floatName, encode(t, float32(1)), encode(t, float32(2))),
		"store":            store.Store("CameraId", floatName, encode(t, float32(3))),
	} {
		if result.Code != schema.DataStoreTypeMismatch || result.Value != nil {
			t.Errorf("%s as float32 = %s %v, want type_mismatch without a value", operation, result.Code, result.Value)
		}
	}
	if got := decode[int64](t, store.Fetch("CameraId", TypeName[int64]())); got != 7 {
		t.Errorf("value after mismatches = %d, want 7", got)
	}
}

func TestNotFound(t *testing.T) {
	store := New()
	for operation, result := range map[string]schema.DataStoreResult{
		"fetch":            store.Fetch("Missing", TypeName[int64]()),
		"compare exchange": store.CompareExchange("Missing", TypeName[uint64](), encode(t, uint64(10)), encode(t, uint64(1))),
		"by version":       store.CompareExchangeVersion("Missing", TypeName[float64](), 1, encode(t, 1.0)),
	} {
		if result.Code != schema.DataStoreNotFound || result.Value != nil {
			t.Errorf("%s = %s %v, want not_found", operation, result.Code, result.Value)
		}
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d after misses, want 0", store.Len())
	}
}

func TestVersioning(t *testing.T) {
	typeName := TypeName[int32]()
	data := encode(t, int32(10))

	store := New()
	store.FetchOrAdd("Added", typeName, data)
	if version, _ := store.Version("Added"); version != 1 {
		t.Errorf("FetchOrAdd version = %d, want 1", version)
	}

	if result := store.Store("Stored", typeName, data); result.Code != schema.DataStoreAdded || result.Value.Version != 1 {
		t.Errorf("first Store = %s version %d, want added version 1", result.Code, result.Value.Version)
	}

	store.Put("Pinned", schema.DataStoreValue{TypeName: typeName, Version: 55, Data: data})
	if result := store.Put("Pinned", schema.DataStoreValue{TypeName: typeName, Version: 75, Data: data}); result.Code != schema.DataStoreExchanged {
		t.Errorf("second Put = %s, want exchanged", result.Code)
	}
	if result := store.Store("Pinned", typeName, data); result.Value.Version != 76 {
		t.Errorf("Store after Put version = %d, want 76", result.Value.Version)
	}

	store.Put("Wrapping", schema.DataStoreValue{TypeName: typeName, Version: math.MaxUint32, Data: data})
	if result := store.Store("Wrapping", typeName, data); result.Code != schema.DataStoreExchanged || result.Value.Version != 0 {
		t.Errorf("Store past the top = %s version %d, want exchanged version 0", result.Code, result.Value.Version)
	}

	store.Put("Read", schema.DataStoreValue{TypeName: typeName, Version: 32, Data: data})
	if result := store.Fetch("Read", typeName); result.Value.Version != 32 {
		t.Errorf("Fetch version = %d, want 32", result.Value.Version)
	}
	if result := store.FetchOrAdd("Read", typeName, data); result.Value.Version != 32 {
		t.Errorf("FetchOrAdd of existing key version = %d, want 32", result.Value.Version)
	}
}

func TestResultsDoNotAliasStore(t *testing.T) {
	typeName := TypeName[string]()
	store := New()
	store.Put("Key", schema.DataStoreValue{TypeName: typeName, Version: 32, Data: encode(t, "first")})
	before := store.Fetch("Key", typeName)

	store.Put("Key", schema.DataStoreValue{TypeName: typeName, Version: 42, Data: encode(t, "second")})
	after := store.Fetch("Key", typeName)

	if before.Value.Version != 32 || decode[string](t, before) != "first" {
		t.Errorf("earlier result changed to version %d %q", before.Value.Version, decode[string](t, before))
	}
	if after.Value.Version != 42 || decode[string](t, after) != "second" {
		t.Errorf("later result = version %d %q", after.Value.Version, decode[string](t, after))
	}

	after.Value.Data[0] ^= 0xff
	if got := decode[string](t, store.Fetch("Key", typeName)); got != "second" {
		t.Errorf("mutating a result changed the store to %q", got)
	}
}

func TestCompareExchangeVersion(t *testing.T) {
	typeName := TypeName[[]int32]()
	store := New()
	store.FetchOrAdd("Lens", typeName, encode(t, []int32{1, 2, 3}))

	stale := store.CompareExchangeVersion("Lens", typeName, 7, encode(t, []int32{9}))
	if stale.Code != schema.DataStoreFetched || stale.Value.Version != 1 {
		t.Errorf("stale version exchange = %s version %d, want fetched version 1", stale.Code, stale.Value.Version)
	}
	exchanged := store.CompareExchangeVersion("Lens", typeName, 1, encode(t, []int32{4, 5}))
	if exchanged.Code != schema.DataStoreExchanged || exchanged.Value.Version != 2 {
		t.Errorf("version exchange = %s version %d, want exchanged version 2", exchanged.Code, exchanged.Value.Version)
	}
	if got := decode[[]int32](t, exchanged); !slices.Equal(got, []int32{4, 5}) {
		t.Errorf("exchanged value = %v", got)
	}
}

func TestKeysSorted(t *testing.T) {
	store := New()
	typeName := TypeName[bool]()
	for _, key := range []string{"Key3", "Key1", "Key2"} {
		store.FetchOrAdd(key, typeName, encode(t, true))
	}
	if got := store.Keys(); !slices.Equal(got, []string{"Key1", "Key2", "Key3"}) {
		t.Errorf("Keys = %v", got)
	}
	store.Remove("Key2")
	if _, ok := store.Lookup("Key2"); ok || store.Len() != 2 {
		t.Errorf("after Remove: Len %d, Key2 present %v", store.Len(), ok)
	}
}
