// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// temporarySuffix marks a write in progress. Load ignores such files.
const temporarySuffix = ".tmp"

// fileStore keeps one encoded entry per file in a single directory,
// fronted by a byte cache.
type fileStore struct {
	directory string
	extension string
	cache     *byteCache
}

func newFileStore(directory, extension string, cacheBytes int64) *fileStore {
	return &fileStore{
		directory: directory,
		extension: extension,
		cache:     newByteCache(cacheBytes),
	}
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.directory, name+"."+s.extension)
}

// write atomically replaces the entry called name: the bytes go to a
// temporary file in the same directory, are fsynced, and are renamed
// into place. A reader never observes a partial entry written by a
// crashed process, and a torn temporary file is never read.
func (s *fileStore) write(name string, entry []byte) error {
	if err := os.MkdirAll(s.directory, 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	path := s.path(name)
	temporaryPath := path + temporarySuffix

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary ledger entry: %w", err)
	}
	if _, err := file.Write(entry); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary ledger entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary ledger entry: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary ledger entry: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming ledger entry into place: %w", err)
	}

	if directory, err := os.Open(s.directory); err == nil {
		directory.Sync()
		directory.Close()
	}

	s.cache.add(name, entry)
	return nil
}

// read returns the entry called name from the cache or disk. A missing
// file is reported with an error wrapping fs.ErrNotExist.
func (s *fileStore) read(name string) ([]byte, error) {
	if entry, ok := s.cache.get(name); ok {
		return entry, nil
	}
	entry, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, err
	}
	s.cache.add(name, entry)
	return entry, nil
}

// forget drops one entry from the cache. The file stays on disk; it is
// used when a read found the entry corrupt.
func (s *fileStore) forget(name string) {
	s.cache.remove(name)
}

// names lists the entry names present on disk. A missing directory is
// an empty store.
func (s *fileStore) names() ([]string, error) {
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing ledger directory: %w", err)
	}
	suffix := "." + s.extension
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), suffix)
		if !ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// clear deletes the whole directory and empties the cache.
func (s *fileStore) clear() error {
	s.cache.purge()
	if err := os.RemoveAll(s.directory); err != nil {
		return fmt.Errorf("removing ledger directory: %w", err)
	}
	return nil
}
