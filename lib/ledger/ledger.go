// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/concord/lib/clock"
	"github.com/bureau-foundation/concord/lib/codec"
)

// ErrNotFound is returned when an entry is absent, torn, or fails
// validation.
var ErrNotFound = errors.New("ledger entry not found")

// markSuffix is appended to a ledger directory's path to name its
// high-water mark file.
const markSuffix = ".next"

// Kind selects a ledger's lifetime.
type Kind uint8

const (
	// Persistent ledgers survive restarts. The server opens them and
	// calls Load to resume where it stopped.
	Persistent Kind = iota

	// Transient ledgers are client-side mirrors. They are cleared when
	// opened and when the owner calls Clear on shutdown.
	Transient
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "persistent"
}

// Options configures a ledger.
type Options struct {
	Kind Kind

	// CacheBytes bounds the in-memory cache of encoded entries. Zero
	// selects DefaultCacheBytes; negative disables the cache.
	CacheBytes int64

	// RetainHistory keeps the bytes of superseded package revisions.
	// Only the package ledger reads it.
	RetainHistory bool

	// Clock stamps activities. Only the activity ledger reads it. Nil
	// selects the real clock.
	Clock clock.Clock

	// Logger receives I/O failures. Nil discards.
	Logger *slog.Logger
}

func (o Options) cacheBytes() int64 {
	if o.CacheBytes == 0 {
		return DefaultCacheBytes
	}
	return o.CacheBytes
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o Options) clock() clock.Clock {
	if o.Clock == nil {
		return clock.Real()
	}
	return o.Clock
}

// Ledger is an append-only, disk-backed log of T records addressed by
// append ordinal. Each record lives in its own file named
// "<index>.<extension>".
//
// A Ledger is not safe for concurrent use. The workspace that owns it
// calls it from its tick goroutine only.
type Ledger[T any] struct {
	store  *fileStore
	tag    string
	kind   Kind
	count  uint64
	logger *slog.Logger
}

// New returns a ledger over directory. Records are tagged with tag,
// and a read of an entry with any other tag is ErrNotFound. A
// transient ledger deletes whatever the directory held from a previous
// run; a persistent one leaves it for Load.
func New[T any](directory, extension, tag string, options Options) (*Ledger[T], error) {
	ledger := &Ledger[T]{
		store:  newFileStore(directory, extension, options.cacheBytes()),
		tag:    tag,
		kind:   options.Kind,
		logger: options.logger().With("ledger", tag),
	}
	if options.Kind == Transient {
		if err := ledger.Clear(); err != nil {
			return nil, fmt.Errorf("clearing transient ledger %s: %w", directory, err)
		}
	}
	return ledger, nil
}

// Directory returns the backing directory.
func (l *Ledger[T]) Directory() string { return l.store.directory }

// Count returns the next index Append will assign. It includes holes
// left by failed appends.
func (l *Ledger[T]) Count() uint64 { return l.count }

// Append writes record at index Count() and returns that index. The
// index is consumed even when the write fails: the error is returned,
// the entry reads as ErrNotFound, and the next Append uses the next
// index. Indices are shared with peers, so they are never reused.
func (l *Ledger[T]) Append(record T) (uint64, error) {
	index := l.count
	l.count++
	if err := l.write(index, record); err != nil {
		l.logger.Error("ledger append failed", "index", index, "error", err)
		if err := l.saveMark(); err != nil {
			l.logger.Error("saving ledger high-water mark failed", "count", l.count, "error", err)
		}
		return index, fmt.Errorf("appending %s entry %d: %w", l.tag, index, err)
	}
	return index, nil
}

// AppendAt writes record at an index chosen by the caller, replacing
// any entry already there. Clients use it to mirror the server's
// indices. Count becomes at least index+1.
func (l *Ledger[T]) AppendAt(index uint64, record T) error {
	if index >= l.count {
		l.count = index + 1
	}
	if err := l.write(index, record); err != nil {
		l.logger.Error("ledger write failed", "index", index, "error", err)
		return fmt.Errorf("writing %s entry %d: %w", l.tag, index, err)
	}
	return nil
}

func (l *Ledger[T]) write(index uint64, record T) error {
	entry, err := encodeRecord(l.tag, record)
	if err != nil {
		return err
	}
	return l.store.write(entryName(index), entry)
}

// Find returns the record at index. A missing, torn, corrupt, or
// mistagged entry yields an error wrapping ErrNotFound.
func (l *Ledger[T]) Find(index uint64) (T, error) {
	var record T
	if index >= l.count {
		return record, fmt.Errorf("%s entry %d: %w", l.tag, index, ErrNotFound)
	}
	name := entryName(index)
	data, err := l.store.read(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("ledger read failed", "index", index, "error", err)
		}
		return record, fmt.Errorf("%s entry %d: %w", l.tag, index, ErrNotFound)
	}
	if err := decodeRecord(l.tag, data, &record); err != nil {
		l.store.forget(name)
		l.logger.Warn("ledger entry unreadable", "index", index, "error", err)
		return record, fmt.Errorf("%s entry %d: %w", l.tag, index, ErrNotFound)
	}
	return record, nil
}

// Each calls fn for every readable entry in index order until fn
// returns false. Holes and corrupt entries are skipped.
func (l *Ledger[T]) Each(fn func(index uint64, record T) bool) {
	for index := uint64(0); index < l.count; index++ {
		record, err := l.Find(index)
		if err != nil {
			continue
		}
		if !fn(index, record) {
			return
		}
	}
}

// Load recomputes Count from the entry names on disk: one more than
// the largest index present, or the high-water mark a failed append
// left behind if that is larger. Files that do not parse as an index
// are ignored.
func (l *Ledger[T]) Load() error {
	names, err := l.store.names()
	if err != nil {
		return err
	}
	count, err := l.loadMark()
	if err != nil {
		return err
	}
	for _, name := range names {
		index, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		if index+1 > count {
			count = index + 1
		}
	}
	l.count = count
	return nil
}

// Clear deletes the backing directory and the high-water mark, and
// resets Count to zero.
func (l *Ledger[T]) Clear() error {
	l.count = 0
	if err := os.Remove(l.markPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s high-water mark: %w", l.tag, err)
	}
	return l.store.clear()
}

// markPath names the file beside the ledger directory that records
// Count after a failed append. Without it a restart would hand the
// failed tail index out again, and peers already saw it.
func (l *Ledger[T]) markPath() string {
	return filepath.Clean(l.store.directory) + markSuffix
}

func (l *Ledger[T]) saveMark() error {
	path := l.markPath()
	temporaryPath := path + temporarySuffix
	if err := os.WriteFile(temporaryPath, []byte(strconv.FormatUint(l.count, 10)), 0o644); err != nil {
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	return nil
}

// loadMark returns the persisted high-water mark, or zero when none
// was written.
func (l *Ledger[T]) loadMark() (uint64, error) {
	data, err := os.ReadFile(l.markPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s high-water mark: %w", l.tag, err)
	}
	mark, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		l.logger.Warn("ignoring unparseable ledger high-water mark", "path", l.markPath(), "error", err)
		return 0, nil
	}
	return mark, nil
}

func entryName(index uint64) string {
	return strconv.FormatUint(index, 10)
}

// decodeRecord decodes one entry into record, checking its type tag.
func decodeRecord(tag string, data []byte, record any) error {
	entryTag, payload, err := decodeEntry(data)
	if err != nil {
		return err
	}
	if entryTag != tag {
		return fmt.Errorf("%w: type tag %q, want %q", errCorruptEntry, entryTag, tag)
	}
	if err := codec.Unmarshal(payload, record); err != nil {
		return fmt.Errorf("%w: decoding record: %v", errCorruptEntry, err)
	}
	return nil
}

// encodeRecord encodes record as a complete entry.
func encodeRecord(tag string, record any) ([]byte, error) {
	payload, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return encodeEntry(tag, payload)
}
