// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the concord binary: a
// tree of [Command] values with pflag flag sets, typo suggestions for
// unknown commands and flags, and output helpers that style tables
// with lipgloss when stdout is a terminal.
//
// It also holds the connection helpers commands share: [Dial] opens a
// server connection from the resolved configuration, and [Await]
// pumps that connection's inbox on the calling goroutine until a
// future resolves.
package cli
