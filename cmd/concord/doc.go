// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Concord is the command-line client for a Concord server.
//
// It manages sessions (list, create, delete, and inspect members),
// mirrors a session's packages into a local directory, and inspects a
// session's ledgers on disk without a running server.
package main
