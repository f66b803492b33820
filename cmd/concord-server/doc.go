// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Concord-server hosts collaborative editing sessions.
//
// It listens on the configured TCP address or Unix socket, records the
// sessions it hosts in a SQLite registry under its working directory,
// and keeps each session's ledgers in a subdirectory of it. Sessions
// survive restarts: creating a session with a saved name restores it.
//
// Configuration comes from the file named by --config or
// CONCORD_CONFIG, falling back to built-in defaults. CONCORD_LISTEN
// and CONCORD_WORKING_DIR override the listen address and working
// directory.
package main
