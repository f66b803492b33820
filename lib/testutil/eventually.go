// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "time"

// pollInterval is the pause between RequireEventually attempts.
const pollInterval = time.Millisecond

// RequireEventually calls step until it returns true, or fails the
// test after timeout. step typically pumps an inbox and ticks the
// nodes under test before checking a condition, so it runs on the
// test goroutine.
//
//	testutil.RequireEventually(t, func() bool {
//		inbox.Pump()
//		return workspace.IsSynced()
//	}, 5*time.Second, "waiting for initial sync")
func RequireEventually(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, step func() bool, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if step() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
			return
		}
		time.Sleep(pollInterval)
	}
}
