// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements Concord's append-only, disk-backed logs.
//
// [Ledger] is the generic indexed log. Each record is CBOR-encoded,
// zlib-compressed, framed with its type tag, and written to its own
// file with a magic-and-checksum footer. Reads go through a
// byte-budgeted LRU cache. A torn or corrupt entry reads as
// [ErrNotFound] and never panics. [Ledger.Load] recovers the append
// counter from the file names after a restart.
//
// Three specializations sit on top:
//
//   - [TransactionLedger] tracks the live transactions of every
//     resource, meaning the ones not yet covered by a saved revision.
//   - [PackageLedger] tracks the head revision of every package and
//     keeps bytes only for heads unless configured otherwise.
//   - [ActivityLedger] derives the human-readable feed.
//
// Session directory layout:
//
//	Transactions/<index>.utrans
//	Packages/<escaped package name>_<revision>.upackage
//	Activities/<index>.uacti
//
// Indices are never reused. If a write fails, its index stays assigned
// and reads back as ErrNotFound, so client mirrors that copy server
// indices stay aligned with the server.
//
// None of the types here lock internally. Each is owned by one
// workspace and used only from that workspace's tick goroutine.
package ledger
