// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bureau-foundation/concord/lib/contenthash"
	"github.com/bureau-foundation/concord/lib/schema"
)

// On-disk names of the package ledger.
const (
	PackagesDirectory = "Packages"
	packageExtension  = "upackage"
	packageTag        = "concord.package"
)

// PackageLedger stores every revision of every package. Revisions of
// one package are numbered from zero without gaps in assignment; a
// failed write leaves a hole that reads as ErrNotFound.
type PackageLedger struct {
	store         *fileStore
	heads         map[string]uint32
	retainHistory bool
	logger        *slog.Logger
}

// OpenPackageLedger opens the package ledger under root.
func OpenPackageLedger(root string, options Options) (*PackageLedger, error) {
	ledger := &PackageLedger{
		store:         newFileStore(filepath.Join(root, PackagesDirectory), packageExtension, options.cacheBytes()),
		heads:         make(map[string]uint32),
		retainHistory: options.RetainHistory,
		logger:        options.logger().With("ledger", packageTag),
	}
	if options.Kind == Transient {
		if err := ledger.store.clear(); err != nil {
			return nil, fmt.Errorf("clearing transient package ledger: %w", err)
		}
	}
	return ledger, nil
}

// AddPackage stores pkg as the next revision of its package and
// returns the revision: zero for a new package, head+1 otherwise.
func (l *PackageLedger) AddPackage(pkg schema.Package) (uint32, error) {
	revision := uint32(0)
	if head, ok := l.heads[pkg.Info.PackageName]; ok {
		revision = head + 1
	}
	return revision, l.AddPackageAt(revision, pkg)
}

// AddPackageAt stores pkg at an explicit revision, replacing whatever
// was there. It is used to apply server-dictated revisions on a client
// and to restore persisted state.
func (l *PackageLedger) AddPackageAt(revision uint32, pkg schema.Package) error {
	name := pkg.Info.PackageName
	if name == "" {
		return fmt.Errorf("adding package revision %d: empty package name", revision)
	}
	if len(pkg.Data) > 0 {
		pkg.Info.ContentHash = contenthash.Package(pkg.Data).String()
	}

	previousHead, hadHead := l.heads[name]
	if !hadHead || revision > previousHead {
		l.heads[name] = revision
	}

	if err := l.write(name, revision, pkg); err != nil {
		l.logger.Error("package write failed", "package", name, "revision", revision, "error", err)
		return fmt.Errorf("adding package %s revision %d: %w", name, revision, err)
	}

	if hadHead && revision > previousHead && !l.retainHistory {
		l.stripData(name, previousHead)
	}
	return nil
}

// stripData rewrites a superseded revision without its bytes.
func (l *PackageLedger) stripData(name string, revision uint32) {
	previous, err := l.read(name, revision)
	if err != nil || len(previous.Data) == 0 {
		return
	}
	previous.Data = nil
	if err := l.write(name, revision, previous); err != nil {
		l.logger.Warn("stripping superseded package bytes failed",
			"package", name, "revision", revision, "error", err)
	}
}

func (l *PackageLedger) write(name string, revision uint32, pkg schema.Package) error {
	entry, err := encodeRecord(packageTag, pkg)
	if err != nil {
		return err
	}
	return l.store.write(packageEntryName(name, revision), entry)
}

func (l *PackageLedger) read(name string, revision uint32) (schema.Package, error) {
	var pkg schema.Package
	entryName := packageEntryName(name, revision)
	data, err := l.store.read(entryName)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("package read failed", "package", name, "revision", revision, "error", err)
		}
		return pkg, fmt.Errorf("package %s revision %d: %w", name, revision, ErrNotFound)
	}
	if err := decodeRecord(packageTag, data, &pkg); err != nil {
		l.store.forget(entryName)
		l.logger.Warn("package entry unreadable", "package", name, "revision", revision, "error", err)
		return pkg, fmt.Errorf("package %s revision %d: %w", name, revision, ErrNotFound)
	}
	return pkg, nil
}

// FindPackage returns one revision of a package. With withData false
// the bytes are dropped from the result.
func (l *PackageLedger) FindPackage(name string, revision uint32, withData bool) (schema.Package, error) {
	head, ok := l.heads[name]
	if !ok || revision > head {
		return schema.Package{}, fmt.Errorf("package %s revision %d: %w", name, revision, ErrNotFound)
	}
	pkg, err := l.read(name, revision)
	if err != nil {
		return pkg, err
	}
	if !withData {
		pkg.Data = nil
	}
	return pkg, nil
}

// FindHeadPackage returns the head revision of a package.
func (l *PackageLedger) FindHeadPackage(name string, withData bool) (schema.Package, uint32, error) {
	head, ok := l.heads[name]
	if !ok {
		return schema.Package{}, 0, fmt.Errorf("package %s: %w", name, ErrNotFound)
	}
	pkg, err := l.FindPackage(name, head, withData)
	return pkg, head, err
}

// HeadRevision returns the head revision of a package.
func (l *PackageLedger) HeadRevision(name string) (uint32, bool) {
	head, ok := l.heads[name]
	return head, ok
}

// PackageNames returns every package with at least one revision,
// sorted.
func (l *PackageLedger) PackageNames() []string {
	names := make([]string, 0, len(l.heads))
	for name := range l.heads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load rebuilds head revisions from the entry names on disk.
func (l *PackageLedger) Load() error {
	names, err := l.store.names()
	if err != nil {
		return err
	}
	l.heads = make(map[string]uint32)
	for _, entryName := range names {
		name, revision, ok := parsePackageEntryName(entryName)
		if !ok {
			continue
		}
		if head, exists := l.heads[name]; !exists || revision > head {
			l.heads[name] = revision
		}
	}
	return nil
}

// Clear deletes every revision.
func (l *PackageLedger) Clear() error {
	l.heads = make(map[string]uint32)
	return l.store.clear()
}

// packageEntryName escapes the package name so that path separators
// and other reserved characters cannot leave the ledger directory. The
// revision follows the last "_", which escaping never removes.
func packageEntryName(name string, revision uint32) string {
	return url.PathEscape(name) + "_" + strconv.FormatUint(uint64(revision), 10)
}

func parsePackageEntryName(entryName string) (string, uint32, bool) {
	separator := strings.LastIndexByte(entryName, '_')
	if separator <= 0 {
		return "", 0, false
	}
	revision, err := strconv.ParseUint(entryName[separator+1:], 10, 32)
	if err != nil {
		return "", 0, false
	}
	name, err := url.PathUnescape(entryName[:separator])
	if err != nil || name == "" {
		return "", 0, false
	}
	return name, uint32(revision), true
}
