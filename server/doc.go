// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server hosts Concord sessions.
//
// A [Workspace] owns one session's persistent ledgers, lock table, and
// sync queue, and arbitrates every edit its members send. A new member
// is first brought up to date by a time-sliced replay of the ledgers;
// once its queue drains it is told the initial sync is complete and
// from then on receives live traffic directly. Live traffic for a
// member that is still replaying is queued behind the replay, so every
// member observes transactions, packages, and lock changes in the
// order the server appended them.
//
// A [Server] wraps a [transport.Server]: it answers the admin requests
// (create, find, and delete sessions, list sessions, clients, and
// saved sessions), records hosted sessions in a SQLite [Registry] so
// they can be restored after a restart, and holds an exclusive lock on
// each hosted session's working directory.
//
// Everything here runs on the tick goroutine that pumps the
// transport's inbox. Nothing locks.
package server
