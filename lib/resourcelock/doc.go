// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resourcelock arbitrates exclusive ownership of named
// resources among the endpoints of one session.
//
// A resource is any string the session agrees on: a package name for
// explicit user locks, or an object path for the implicit locks a
// finalized transaction takes while the server arbitrates it. Each
// resource has at most one owner. Ownership carries an explicit flag
// that separates user-held locks from transaction-scoped ones, and a
// release must match that flag unless it is forced.
//
// The [Table] is not safe for concurrent use. The session workspace
// owns it and calls it from its tick goroutine.
package resourcelock
