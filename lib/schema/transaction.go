// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"

	"github.com/google/uuid"
)

// ObjectID is a stable, opaque reference to an object in shared state.
// The core compares and prints these; resolving one to a live object
// is the host's job.
type ObjectID struct {
	// ClassPath names the object's type, e.g. "/Script/Engine.StaticMeshActor".
	ClassPath string `cbor:"class_path,omitempty"`

	// OuterPath is the full path of the containing object, e.g.
	// "/Game/Maps/Harbor.Harbor:PersistentLevel". Empty for a package.
	OuterPath string `cbor:"outer_path,omitempty"`

	// Name is the object's name within its outer.
	Name string `cbor:"name"`
}

// Path returns the object's full path: the outer path joined to the
// name with ".".
func (id ObjectID) Path() string {
	if id.OuterPath == "" {
		return id.Name
	}
	return id.OuterPath + "." + id.Name
}

// IsZero reports whether the identifier is unset.
func (id ObjectID) IsZero() bool {
	return id.Name == "" && id.OuterPath == "" && id.ClassPath == ""
}

// ExportedObject is one object's state change inside a transaction.
type ExportedObject struct {
	ObjectID ObjectID `cbor:"object_id"`

	// PathDepth is the number of outers above the object. Hosts apply
	// updates shallowest first so outers exist before their children.
	PathDepth int `cbor:"path_depth"`

	// NewName and NewOuterPath are set when the transaction renamed or
	// moved the object.
	NewName      string `cbor:"new_name,omitempty"`
	NewOuterPath string `cbor:"new_outer_path,omitempty"`

	// AllowCreate means a receiver that cannot find the object should
	// create it.
	AllowCreate bool `cbor:"allow_create,omitempty"`

	// PendingKill means the transaction deleted the object.
	PendingKill bool `cbor:"pending_kill,omitempty"`

	// Properties lists the changed property names. Empty means the
	// whole object was exported.
	Properties []string `cbor:"properties,omitempty"`

	// Data is the host's serialized object state.
	Data []byte `cbor:"data,omitempty"`
}

// IsWithin reports whether this object lives inside the object at
// path, at any depth.
func (o ExportedObject) IsWithin(path string) bool {
	outer := o.ObjectID.OuterPath
	if outer == path {
		return true
	}
	return strings.HasPrefix(outer, path+".") || strings.HasPrefix(outer, path+":")
}

// TransactionEventBase holds the fields shared by finalized and
// snapshot transaction events.
type TransactionEventBase struct {
	TransactionID uuid.UUID `cbor:"transaction_id"`
	OperationID   uuid.UUID `cbor:"operation_id"`

	// TransactionEndpointID is the endpoint that produced the
	// transaction. Receivers use it to drop echoes of their own edits.
	TransactionEndpointID uuid.UUID `cbor:"transaction_endpoint_id"`

	// TransactionUpdateIndex increments with every event the producer
	// sends for one transaction, wrapping at 256. Receivers drop
	// snapshots that arrive behind a newer update.
	TransactionUpdateIndex uint8 `cbor:"transaction_update_index"`

	// ModifiedPackages lists the resources the transaction touched.
	// These are the keys of the live-transaction sets.
	ModifiedPackages []string `cbor:"modified_packages,omitempty"`

	PrimaryObject   ObjectID         `cbor:"primary_object"`
	ExportedObjects []ExportedObject `cbor:"exported_objects,omitempty"`
}

// ObjectPaths returns the full path of every exported object in
// order, without duplicates. These are the resources a transaction
// implicitly locks.
func (e TransactionEventBase) ObjectPaths() []string {
	seen := make(map[string]struct{}, len(e.ExportedObjects))
	paths := make([]string, 0, len(e.ExportedObjects))
	for _, object := range e.ExportedObjects {
		path := object.ObjectID.Path()
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}

// ModifiesPackage reports whether name is one of the transaction's
// modified packages.
func (e TransactionEventBase) ModifiesPackage(name string) bool {
	for _, modified := range e.ModifiedPackages {
		if modified == name {
			return true
		}
	}
	return false
}

// TransactionFinalizedEvent is a completed transaction. It is the
// transaction ledger's record type.
type TransactionFinalizedEvent struct {
	TransactionEventBase `cbor:"base"`

	// Title is the human-readable undo description, e.g. "Move Actor".
	Title string `cbor:"title,omitempty"`
}

// TransactionSnapshotEvent is an in-progress transaction update, such
// as an object being dragged. Snapshots are never ledgered.
type TransactionSnapshotEvent struct {
	TransactionEventBase `cbor:"base"`
}

// TransactionRejectedEvent tells the producer that the server refused
// a finalized transaction. The producer must undo it locally.
type TransactionRejectedEvent struct {
	TransactionID uuid.UUID `cbor:"transaction_id"`
}
