// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The sync command queue measures its per-tick budget against a Clock,
// the client transaction manager rate-limits snapshots against one, and
// activity records are stamped from one. Tests drive all three with a
// FakeClock and advance it explicitly.
package clock
