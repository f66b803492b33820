// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/ledger"
	"github.com/bureau-foundation/concord/lib/schema"
)

func TestLoadSessionLedgers(t *testing.T) {
	directory := t.TempDir()
	options := ledger.Options{Kind: ledger.Persistent}

	packages, err := ledger.OpenPackageLedger(directory, options)
	if err != nil {
		t.Fatalf("OpenPackageLedger: %v", err)
	}
	if _, err := packages.AddPackage(schema.Package{
		Info: schema.PackageInfo{PackageName: "/Game/Maps/Harbor", FileExtension: ".umap", UpdateType: schema.PackageAdded},
		Data: []byte("harbor"),
	}); err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	activities, err := ledger.OpenActivityLedger(directory, options)
	if err != nil {
		t.Fatalf("OpenActivityLedger: %v", err)
	}
	if _, err := activities.RecordConnection(schema.ActivityConnected, schema.ClientInfo{DisplayName: "alice"}); err != nil {
		t.Fatalf("RecordConnection: %v", err)
	}

	ledgers, err := loadSessionLedgers(directory)
	if err != nil {
		t.Fatalf("loadSessionLedgers: %v", err)
	}
	if got := ledgers.packages.PackageNames(); !slices.Equal(got, []string{"/Game/Maps/Harbor"}) {
		t.Errorf("PackageNames = %v", got)
	}
	if got := ledgers.activities.ActivityCount(); got != 1 {
		t.Errorf("ActivityCount = %d, want 1", got)
	}
	if got := ledgers.transactions.NextTransactionIndex(); got != 0 {
		t.Errorf("NextTransactionIndex = %d, want 0", got)
	}
}

func TestLoadSessionLedgersMissingDirectory(t *testing.T) {
	if _, err := loadSessionLedgers(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("loadSessionLedgers succeeded on a missing directory")
	}
}

func TestSessionDirectory(t *testing.T) {
	t.Run("path", func(t *testing.T) {
		got, err := sessionDirectory("/srv/concord/sessions/harbor", "")
		if err != nil || got != "/srv/concord/sessions/harbor" {
			t.Errorf("sessionDirectory = %q, %v", got, err)
		}
	})
	t.Run("identifier", func(t *testing.T) {
		t.Setenv("CONCORD_CONFIG", "")
		id := uuid.MustParse("6f1c2a1e-58e4-4bd5-a0b4-7d1f19e0c3aa")
		got, err := sessionDirectory(id.String(), "")
		if err != nil {
			t.Fatalf("sessionDirectory: %v", err)
		}
		if want := filepath.Join("sessions", id.String()); !strings.HasSuffix(got, want) {
			t.Errorf("sessionDirectory = %q, want suffix %q", got, want)
		}
	})
}
