// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Concord's standard CBOR encoding configuration.
//
// Everything Concord serializes is CBOR: transport envelopes and their
// payloads, and the record payloads stored inside ledger entries. Every
// package goes through this one configuration so that the server and
// all of its clients encode identically.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// Wire and ledger types carry `cbor` tags with short snake_case keys.
// Optional fields use omitempty. Renaming a key is a wire-format break:
// ledgers written before the rename stop decoding that field.
package codec
