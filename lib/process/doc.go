// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for Concord binaries:
// the pre-logger fatal error path and construction of the JSON
// structured logger every daemon writes to stderr.
package process
