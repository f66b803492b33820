// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// PackageUpdateType is what happened to a package.
type PackageUpdateType uint8

const (
	PackageAdded PackageUpdateType = iota + 1
	PackageSaved
	PackageRenamed
	PackageDeleted

	// PackageDummy is a server-generated revision with no content. Its
	// only effect is trimming the live transactions of the package up
	// to its save point.
	PackageDummy
)

func (t PackageUpdateType) String() string {
	switch t {
	case PackageAdded:
		return "added"
	case PackageSaved:
		return "saved"
	case PackageRenamed:
		return "renamed"
	case PackageDeleted:
		return "deleted"
	case PackageDummy:
		return "dummy"
	default:
		return fmt.Sprintf("package_update_type(%d)", uint8(t))
	}
}

// IsValid reports whether t is one of the defined update types.
func (t PackageUpdateType) IsValid() bool {
	return t >= PackageAdded && t <= PackageDummy
}

// PackageInfo is the metadata of one package revision.
type PackageInfo struct {
	PackageName   string            `cbor:"package_name"`
	FileExtension string            `cbor:"file_extension,omitempty"`
	UpdateType    PackageUpdateType `cbor:"update_type"`

	// NewPackageName is the destination name of a rename.
	NewPackageName string `cbor:"new_package_name,omitempty"`

	// NextTransactionIndexWhenSaved is the save point: every
	// transaction with a lower ledger index is already reflected in
	// this revision's bytes.
	NextTransactionIndexWhenSaved uint64 `cbor:"next_transaction_index_when_saved"`

	// ContentHash is the BLAKE3 digest of the revision's bytes, filled
	// in by the package ledger. Empty for revisions without bytes.
	ContentHash string `cbor:"content_hash,omitempty"`
}

// Package is a package revision: its metadata and, for the head
// revision, its bytes.
type Package struct {
	Info PackageInfo `cbor:"info"`
	Data []byte      `cbor:"data,omitempty"`
}

// PackageUpdateEvent is sent by a client that saved, added, renamed,
// or deleted a package.
type PackageUpdateEvent struct {
	Package Package `cbor:"package"`
}
