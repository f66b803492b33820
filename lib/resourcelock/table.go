// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resourcelock

import (
	"slices"

	"github.com/google/uuid"
)

// Flags modify a lock or unlock request.
type Flags uint8

const (
	// Explicit marks a lock the user holds until they release it or
	// disconnect. Without it the lock is implicit: held only while the
	// server arbitrates one transaction.
	Explicit Flags = 1 << iota

	// Force grants or releases regardless of the current owner.
	Force
)

// Has reports whether every bit of flag is set.
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Notifier observes ownership changes. The server workspace broadcasts
// each batch to every connected endpoint.
type Notifier interface {
	ResourcesLocked(owner uuid.UUID, names []string)
	ResourcesUnlocked(owner uuid.UUID, names []string)
}

type lock struct {
	owner    uuid.UUID
	explicit bool
}

// Table holds the current owner of every locked resource.
type Table struct {
	locks    map[string]lock
	notifier Notifier
}

// New returns an empty table. A nil notifier is allowed.
func New(notifier Notifier) *Table {
	return &Table{locks: make(map[string]lock), notifier: notifier}
}

// Lock grants every name in the batch to requester, or none of them.
// A resource can be granted when it is unowned, already owned by the
// requester, or the request carries Force. When the batch fails,
// failed maps each conflicting resource to its current owner and the
// table is unchanged.
//
// An explicit request on the requester's own implicit lock upgrades
// it. An implicit request never downgrades an explicit lock. Newly
// granted and force-transferred resources are reported to the
// notifier.
func (t *Table) Lock(names []string, requester uuid.UUID, flags Flags) (failed map[string]uuid.UUID, ok bool) {
	names = unique(names)
	if !flags.Has(Force) {
		for _, name := range names {
			if current, held := t.locks[name]; held && current.owner != requester {
				if failed == nil {
					failed = make(map[string]uuid.UUID)
				}
				failed[name] = current.owner
			}
		}
		if len(failed) > 0 {
			return failed, false
		}
	}

	explicit := flags.Has(Explicit)
	var granted []string
	for _, name := range names {
		current, held := t.locks[name]
		switch {
		case !held || current.owner != requester:
			t.locks[name] = lock{owner: requester, explicit: explicit}
			granted = append(granted, name)
		case explicit && !current.explicit:
			t.locks[name] = lock{owner: requester, explicit: true}
		}
	}
	if len(granted) > 0 && t.notifier != nil {
		t.notifier.ResourcesLocked(requester, granted)
	}
	return nil, true
}

// Unlock releases each name owned by requester whose explicit flag
// matches the request. Force releases regardless of owner and flag.
// Unlock is per-resource: names it could not release are reported in
// failed with their owner, and the rest are still released. Names that
// are not locked at all are ignored.
func (t *Table) Unlock(names []string, requester uuid.UUID, flags Flags) (failed map[string]uuid.UUID, ok bool) {
	explicit := flags.Has(Explicit)
	var released []string
	for _, name := range unique(names) {
		current, held := t.locks[name]
		if !held {
			continue
		}
		if !flags.Has(Force) && (current.owner != requester || current.explicit != explicit) {
			if failed == nil {
				failed = make(map[string]uuid.UUID)
			}
			failed[name] = current.owner
			continue
		}
		delete(t.locks, name)
		released = append(released, name)
	}
	if len(released) > 0 && t.notifier != nil {
		t.notifier.ResourcesUnlocked(requester, released)
	}
	return failed, len(failed) == 0
}

// UnlockAll releases every lock held by endpoint and returns the
// released names in sorted order.
func (t *Table) UnlockAll(endpoint uuid.UUID) []string {
	var released []string
	for name, current := range t.locks {
		if current.owner == endpoint {
			released = append(released, name)
		}
	}
	if len(released) == 0 {
		return nil
	}
	slices.Sort(released)
	for _, name := range released {
		delete(t.locks, name)
	}
	if t.notifier != nil {
		t.notifier.ResourcesUnlocked(endpoint, released)
	}
	return released
}

// Owner returns the endpoint holding name.
func (t *Table) Owner(name string) (uuid.UUID, bool) {
	current, ok := t.locks[name]
	return current.owner, ok
}

// IsExplicit reports whether name is held by an explicit lock.
func (t *Table) IsExplicit(name string) bool {
	return t.locks[name].explicit
}

// IsLockedBy reports whether endpoint owns name.
func (t *Table) IsLockedBy(name string, endpoint uuid.UUID) bool {
	current, ok := t.locks[name]
	return ok && current.owner == endpoint
}

// Len returns the number of locked resources.
func (t *Table) Len() int { return len(t.locks) }

// Snapshot returns a copy of the resource-to-owner map.
func (t *Table) Snapshot() map[string]uuid.UUID {
	snapshot := make(map[string]uuid.UUID, len(t.locks))
	for name, current := range t.locks {
		snapshot[name] = current.owner
	}
	return snapshot
}

// Replace discards the current state and installs owners as explicit
// locks. Client mirrors use it to apply a server lock snapshot. The
// notifier is not called.
func (t *Table) Replace(owners map[string]uuid.UUID) {
	clear(t.locks)
	for name, owner := range owners {
		t.locks[name] = lock{owner: owner, explicit: true}
	}
}

func unique(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
