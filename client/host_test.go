// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/concord/lib/schema"
)

func TestDirectoryHostWritesAndRemovesPackages(t *testing.T) {
	root := t.TempDir()
	host := NewDirectoryHost(root)

	info := schema.PackageInfo{PackageName: "/Game/Maps/Harbor", FileExtension: ".umap", UpdateType: schema.PackageSaved}
	if err := host.WritePackage(info, []byte("harbor v1")); err != nil {
		t.Fatalf("WritePackage: %v", err)
	}
	path := filepath.Join(root, "Game", "Maps", "Harbor.umap")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading package file: %v", err)
	}
	if string(data) != "harbor v1" {
		t.Errorf("package file = %q, want %q", data, "harbor v1")
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}

	if err := host.RemovePackage("/Game/Maps/Harbor", ".umap"); err != nil {
		t.Fatalf("RemovePackage: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("package file still present after remove: %v", err)
	}
	if err := host.RemovePackage("/Game/Maps/Harbor", ".umap"); err != nil {
		t.Errorf("removing a missing package: %v", err)
	}
}

func TestDirectoryHostWritesRenameUnderNewName(t *testing.T) {
	root := t.TempDir()
	host := NewDirectoryHost(root)

	info := schema.PackageInfo{
		PackageName:    "/Game/Maps/Harbor",
		NewPackageName: "/Game/Maps/Port",
		FileExtension:  ".umap",
		UpdateType:     schema.PackageRenamed,
	}
	if err := host.WritePackage(info, []byte("port")); err != nil {
		t.Fatalf("WritePackage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Game", "Maps", "Port.umap")); err != nil {
		t.Errorf("renamed package not written under its new name: %v", err)
	}
}

func TestDirectoryHostRejectsEscapingNames(t *testing.T) {
	host := NewDirectoryHost(t.TempDir())
	for _, name := range []string{"/../outside", "../../etc/passwd", "/Game/../../outside"} {
		if _, err := host.PackagePath(name, ".umap"); err == nil {
			t.Errorf("PackagePath(%q) succeeded, want an error", name)
		}
	}
}
