// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datastore is the versioned key/value map a session shares
// between its members.
//
// Each key holds one value of a named type, encoded as CBOR, and a
// version that starts at one and is bumped on every replacement. The
// server keeps the authoritative [Store]; clients keep a [Store] of the
// values they have seen as a cache and answer reads from it.
//
// The operations mirror what a client can ask the server: FetchOrAdd
// creates a key if it is absent, Fetch reads it, and CompareExchange
// replaces it only if it still holds what the caller last saw. Every
// operation checks the type name first, and a key holding another type
// answers [schema.DataStoreTypeMismatch] without revealing its value.
package datastore
