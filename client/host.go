// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/schema"
)

// Host is the application a client workspace replicates into. The
// workspace calls it from its tick goroutine only.
type Host interface {
	// WritePackage stores the bytes of a package revision.
	WritePackage(info schema.PackageInfo, data []byte) error

	// RemovePackage deletes a package's file. Removing a package that
	// does not exist is not an error.
	RemovePackage(name, extension string) error

	// ReloadPackages is called once package files have changed on
	// disk: changed packages should be hot-reloaded and purged ones
	// unloaded.
	ReloadPackages(changed, purged []string)

	// ApplyTransaction applies another client's edit. Snapshot is true
	// for an in-progress update that a later event supersedes.
	ApplyTransaction(transaction schema.TransactionEventBase, snapshot bool) error

	// UndoTransaction reverts a local edit the server rejected.
	UndoTransaction(transactionID uuid.UUID)
}

// DirectoryHost mirrors packages into a directory tree and keeps the
// transactions it was asked to apply. Package "/Game/Maps/Harbor" with
// extension ".umap" is stored at "<Root>/Game/Maps/Harbor.umap".
type DirectoryHost struct {
	Root string

	applied  []AppliedTransaction
	undone   []uuid.UUID
	reloaded []string
	purged   []string
}

// AppliedTransaction is one ApplyTransaction call.
type AppliedTransaction struct {
	Transaction schema.TransactionEventBase
	Snapshot    bool
}

// NewDirectoryHost returns a host rooted at root.
func NewDirectoryHost(root string) *DirectoryHost {
	return &DirectoryHost{Root: root}
}

// PackagePath returns the file a package is stored in.
func (h *DirectoryHost) PackagePath(name, extension string) (string, error) {
	relative := filepath.FromSlash(strings.TrimPrefix(name, "/")) + extension
	if !filepath.IsLocal(relative) {
		return "", fmt.Errorf("package name %q escapes the content root", name)
	}
	return filepath.Join(h.Root, relative), nil
}

func (h *DirectoryHost) WritePackage(info schema.PackageInfo, data []byte) error {
	name := info.PackageName
	if info.UpdateType == schema.PackageRenamed && info.NewPackageName != "" {
		name = info.NewPackageName
	}
	path, err := h.PackagePath(name, info.FileExtension)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating package directory: %w", err)
	}
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, data, 0o644); err != nil {
		return fmt.Errorf("writing package %s: %w", name, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("writing package %s: %w", name, err)
	}
	return nil
}

func (h *DirectoryHost) RemovePackage(name, extension string) error {
	path, err := h.PackagePath(name, extension)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing package %s: %w", name, err)
	}
	return nil
}

func (h *DirectoryHost) ReloadPackages(changed, purged []string) {
	h.reloaded = append(h.reloaded, changed...)
	h.purged = append(h.purged, purged...)
}

func (h *DirectoryHost) ApplyTransaction(transaction schema.TransactionEventBase, snapshot bool) error {
	h.applied = append(h.applied, AppliedTransaction{Transaction: transaction, Snapshot: snapshot})
	return nil
}

func (h *DirectoryHost) UndoTransaction(transactionID uuid.UUID) {
	h.undone = append(h.undone, transactionID)
}

// Applied returns every applied transaction in order.
func (h *DirectoryHost) Applied() []AppliedTransaction { return h.applied }

// Undone returns the rejected transaction identifiers in order.
func (h *DirectoryHost) Undone() []uuid.UUID { return h.undone }

// Reloaded returns every package name passed to ReloadPackages as
// changed, in call order.
func (h *DirectoryHost) Reloaded() []string { return h.reloaded }

// Purged returns every package name passed to ReloadPackages as
// purged, in call order.
func (h *DirectoryHost) Purged() []string { return h.purged }
