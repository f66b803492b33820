// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/concord/lib/contenthash"
	"github.com/bureau-foundation/concord/lib/schema"
)

func openPackages(t *testing.T, root string, options Options) *PackageLedger {
	t.Helper()
	packages, err := OpenPackageLedger(root, options)
	if err != nil {
		t.Fatalf("OpenPackageLedger: %v", err)
	}
	return packages
}

func savedPackage(name string, data string, savePoint uint64) schema.Package {
	return schema.Package{
		Info: schema.PackageInfo{
			PackageName:                   name,
			FileExtension:                 ".umap",
			UpdateType:                    schema.PackageSaved,
			NextTransactionIndexWhenSaved: savePoint,
		},
		Data: []byte(data),
	}
}

func TestAddPackageAssignsRevisions(t *testing.T) {
	packages := openPackages(t, t.TempDir(), Options{})

	for want := uint32(0); want < 3; want++ {
		revision, err := packages.AddPackage(savedPackage("/Game/Maps/Harbor", "v", uint64(want)))
		if err != nil {
			t.Fatalf("AddPackage: %v", err)
		}
		if revision != want {
			t.Errorf("AddPackage revision = %d, want %d", revision, want)
		}
	}
	revision, err := packages.AddPackage(savedPackage("/Game/Maps/Dock", "d", 0))
	if err != nil || revision != 0 {
		t.Errorf("new package revision = %d, %v; want 0", revision, err)
	}

	head, ok := packages.HeadRevision("/Game/Maps/Harbor")
	if !ok || head != 2 {
		t.Errorf("HeadRevision = %d, %v; want 2", head, ok)
	}
	if got := packages.PackageNames(); !slices.Equal(got, []string{"/Game/Maps/Dock", "/Game/Maps/Harbor"}) {
		t.Errorf("PackageNames = %v", got)
	}
}

func TestHeadKeepsBytesAndHistoryIsStripped(t *testing.T) {
	packages := openPackages(t, t.TempDir(), Options{})
	packages.AddPackage(savedPackage("Pkg1", "first", 0))
	packages.AddPackage(savedPackage("Pkg1", "second", 1))

	old, err := packages.FindPackage("Pkg1", 0, true)
	if err != nil {
		t.Fatalf("FindPackage(0): %v", err)
	}
	if len(old.Data) != 0 {
		t.Errorf("superseded revision kept %d bytes", len(old.Data))
	}
	if old.Info.ContentHash == "" {
		t.Error("superseded revision lost its content hash")
	}

	head, revision, err := packages.FindHeadPackage("Pkg1", true)
	if err != nil {
		t.Fatalf("FindHeadPackage: %v", err)
	}
	if revision != 1 || string(head.Data) != "second" {
		t.Errorf("head = revision %d %q", revision, head.Data)
	}
	if head.Info.ContentHash != contenthash.Package([]byte("second")).String() {
		t.Errorf("ContentHash = %s", head.Info.ContentHash)
	}

	withoutData, err := packages.FindPackage("Pkg1", 1, false)
	if err != nil || withoutData.Data != nil {
		t.Errorf("FindPackage withData=false returned %d bytes, %v", len(withoutData.Data), err)
	}
}

func TestRetainHistoryKeepsBytes(t *testing.T) {
	packages := openPackages(t, t.TempDir(), Options{RetainHistory: true})
	packages.AddPackage(savedPackage("Pkg1", "first", 0))
	packages.AddPackage(savedPackage("Pkg1", "second", 1))

	old, err := packages.FindPackage("Pkg1", 0, true)
	if err != nil {
		t.Fatalf("FindPackage: %v", err)
	}
	if string(old.Data) != "first" {
		t.Errorf("retained revision data = %q, want %q", old.Data, "first")
	}
}

func TestAddPackageAtOverwritesAndAdvancesHead(t *testing.T) {
	packages := openPackages(t, t.TempDir(), Options{})
	if err := packages.AddPackageAt(4, savedPackage("Pkg1", "four", 0)); err != nil {
		t.Fatalf("AddPackageAt: %v", err)
	}
	head, _ := packages.HeadRevision("Pkg1")
	if head != 4 {
		t.Errorf("head = %d, want 4", head)
	}

	if err := packages.AddPackageAt(4, savedPackage("Pkg1", "four again", 0)); err != nil {
		t.Fatalf("AddPackageAt overwrite: %v", err)
	}
	pkg, _, err := packages.FindHeadPackage("Pkg1", true)
	if err != nil || string(pkg.Data) != "four again" {
		t.Errorf("overwritten head = %q, %v", pkg.Data, err)
	}

	if _, err := packages.FindPackage("Pkg1", 2, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("never-written revision = %v, want ErrNotFound", err)
	}
	if _, err := packages.FindPackage("Pkg1", 5, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("revision past head = %v, want ErrNotFound", err)
	}

	revision, err := packages.AddPackage(savedPackage("Pkg1", "five", 0))
	if err != nil || revision != 5 {
		t.Errorf("AddPackage after explicit revision = %d, %v; want 5", revision, err)
	}
}

func TestPackageLedgerLoad(t *testing.T) {
	root := t.TempDir()
	packages := openPackages(t, root, Options{})
	names := []string{"/Game/My_Map", "/Game/Weird Name%", "Plain"}
	for _, name := range names {
		packages.AddPackage(savedPackage(name, "a", 0))
		packages.AddPackage(savedPackage(name, "b", 1))
	}

	reopened := openPackages(t, root, Options{})
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reopened.PackageNames(); !slices.Equal(got, []string{"/Game/My_Map", "/Game/Weird Name%", "Plain"}) {
		t.Fatalf("PackageNames after Load = %v", got)
	}
	for _, name := range names {
		pkg, revision, err := reopened.FindHeadPackage(name, true)
		if err != nil {
			t.Fatalf("FindHeadPackage(%q): %v", name, err)
		}
		if revision != 1 || !bytes.Equal(pkg.Data, []byte("b")) {
			t.Errorf("%q head = revision %d %q", name, revision, pkg.Data)
		}
	}
}

func TestPackageEntryNameRoundtrip(t *testing.T) {
	for _, name := range []string{"/Game/Maps/Harbor", "a_b_c", "Café/..", "x"} {
		entryName := packageEntryName(name, 12)
		parsed, revision, ok := parsePackageEntryName(entryName)
		if !ok || parsed != name || revision != 12 {
			t.Errorf("parse(%q) = %q, %d, %v", entryName, parsed, revision, ok)
		}
	}
	for _, bad := range []string{"noseparator", "_3", "name_x", "name_99999999999"} {
		if _, _, ok := parsePackageEntryName(bad); ok {
			t.Errorf("parsePackageEntryName(%q) accepted", bad)
		}
	}
}

func TestAddPackageRejectsEmptyName(t *testing.T) {
	packages := openPackages(t, t.TempDir(), Options{})
	if _, err := packages.AddPackage(schema.Package{}); err == nil {
		t.Error("AddPackage accepted an empty package name")
	}
}
