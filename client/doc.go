// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the editor side of a Concord session.
//
// A [Workspace] mirrors the server's ledgers and lock table into
// transient local ledgers as the replay arrives, and hands the results
// to a [Host]: package files are written as they arrive, and once the
// server reports the initial sync complete every live transaction made
// by other clients is applied in index order. After that, remote edits
// are applied on each [Workspace.Tick] and local edits collected by the
// [TransactionManager] are sent.
//
// [Admin] wraps the session management requests.
//
// A workspace is driven from the goroutine that pumps the client's
// inbox and is not safe for concurrent use.
package client
