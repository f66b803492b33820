// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// Concord session registry.
//
// It wraps zombiezen.com/go/sqlite with fixed pragmas and a small
// migration runner. Callers [Pool.Take] a connection, perform work,
// and [Pool.Put] it back. Connections are not safe for concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=NORMAL: commits survive a process crash. The
//     registry only records which sessions exist; the session ledgers
//     are the durable state.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock.
//   - foreign_keys=ON
//   - temp_store=MEMORY
//
// # Migrations
//
// [Config].Migrations is an append-only list of schema scripts. Open
// runs the scripts the database has not seen, inside one IMMEDIATE
// transaction, and records the count in PRAGMA user_version. A
// database whose version exceeds the list length was written by a
// newer binary and is refused.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       filepath.Join(workingDir, "sessions.db"),
//	    Logger:     logger,
//	    Migrations: []string{createSessionsTable},
//	})
package sqlitepool
