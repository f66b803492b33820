// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

// Package dirlock takes an exclusive advisory lock on a directory so
// that two server processes never host the same session working
// directory at once.
//
// The lock is a flock(2) on a ".lock" file inside the directory. The
// kernel releases it when the process exits, so a crashed server never
// leaves a stale lock behind.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileName is the lock file created inside a locked directory.
const FileName = ".lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("directory is locked by another process")

// Lock is a held directory lock.
type Lock struct {
	directory string
	fd        int
}

// Acquire creates directory if needed and locks it without blocking.
// It returns an error wrapping ErrLocked when the lock is held
// elsewhere, including by another Lock in this process.
func Acquire(directory string) (*Lock, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", directory, err)
	}
	path := filepath.Join(directory, FileName)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("locking %s: %w", directory, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", directory, err)
	}
	return &Lock{directory: directory, fd: fd}, nil
}

// Directory returns the locked directory.
func (l *Lock) Directory() string { return l.directory }

// Release unlocks the directory. The lock file stays in place. Calling
// Release more than once is a no-op.
func (l *Lock) Release() error {
	if l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("unlocking %s: %w", l.directory, err)
	}
	return unix.Close(fd)
}
