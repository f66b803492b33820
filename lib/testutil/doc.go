// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Concord packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls.
// [RequireEventually] polls a step function for tests that pump an
// inbox across real connections. These are the only places in the
// test suite where real wall-clock timeouts are used; everything else
// runs on the fake clock.
//
// [Logger] routes slog output into the test log so it appears only
// for failing tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Concord-internal dependencies.
package testutil
