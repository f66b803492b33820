// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"time"
)

// ActivityKind tags an Activity. The prefix before the first "." is
// the activity's category, which selects the wire message kind.
type ActivityKind string

const (
	ActivityConnected    ActivityKind = "connection.connected"
	ActivityDisconnected ActivityKind = "connection.disconnected"

	ActivityTransactionFinalized ActivityKind = "transaction.finalized"
	ActivityObjectCreated        ActivityKind = "transaction.created"
	ActivityObjectDeleted        ActivityKind = "transaction.deleted"
	ActivityObjectRenamed        ActivityKind = "transaction.renamed"

	ActivityPackageAdded   ActivityKind = "package.added"
	ActivityPackageSaved   ActivityKind = "package.saved"
	ActivityPackageRenamed ActivityKind = "package.renamed"
	ActivityPackageDeleted ActivityKind = "package.deleted"
)

// Category returns the part of the kind before the first ".".
func (k ActivityKind) Category() string {
	category, _, _ := strings.Cut(string(k), ".")
	return category
}

// MessageKind returns the wire kind that carries activities of this
// kind, or "" for an unknown category.
func (k ActivityKind) MessageKind() MessageKind {
	switch k.Category() {
	case "connection":
		return KindConnectionActivity
	case "transaction":
		return KindTransactionActivity
	case "package":
		return KindPackageActivity
	default:
		return ""
	}
}

// Activity is one entry of the human-readable activity feed. It is the
// activity ledger's record type. Kind-specific detail lives in exactly
// one of the optional fields, selected by the kind's category;
// connection activities carry no detail.
type Activity struct {
	Kind      ActivityKind `cbor:"kind"`
	Timestamp time.Time    `cbor:"timestamp"`
	Client    ClientInfo   `cbor:"client"`

	Transaction *TransactionActivity `cbor:"transaction,omitempty"`
	Package     *PackageActivity     `cbor:"package,omitempty"`
}

// TransactionActivity describes one top-level object a transaction
// touched.
type TransactionActivity struct {
	TransactionIndex uint64 `cbor:"transaction_index"`
	TransactionTitle string `cbor:"transaction_title,omitempty"`
	ObjectName       string `cbor:"object_name,omitempty"`
	NewObjectName    string `cbor:"new_object_name,omitempty"`
	PackageName      string `cbor:"package_name,omitempty"`
}

// PackageActivity describes one package revision.
type PackageActivity struct {
	PackageName    string `cbor:"package_name"`
	Revision       uint32 `cbor:"revision"`
	NewPackageName string `cbor:"new_package_name,omitempty"`
}

// Summary renders a one-line description for logs and the CLI.
func (a Activity) Summary() string {
	var builder strings.Builder
	builder.WriteString(a.Client.DisplayName)
	switch a.Kind {
	case ActivityConnected:
		builder.WriteString(" joined the session")
	case ActivityDisconnected:
		builder.WriteString(" left the session")
	case ActivityTransactionFinalized, ActivityObjectCreated, ActivityObjectDeleted, ActivityObjectRenamed:
		detail := a.Transaction
		if detail == nil {
			break
		}
		switch a.Kind {
		case ActivityObjectCreated:
			builder.WriteString(" created " + detail.ObjectName)
		case ActivityObjectDeleted:
			builder.WriteString(" deleted " + detail.ObjectName)
		case ActivityObjectRenamed:
			builder.WriteString(" renamed " + detail.ObjectName + " to " + detail.NewObjectName)
		default:
			builder.WriteString(" edited " + detail.ObjectName)
			if detail.TransactionTitle != "" {
				builder.WriteString(" (" + detail.TransactionTitle + ")")
			}
		}
		if detail.PackageName != "" {
			builder.WriteString(" in " + detail.PackageName)
		}
	case ActivityPackageAdded, ActivityPackageSaved, ActivityPackageRenamed, ActivityPackageDeleted:
		detail := a.Package
		if detail == nil {
			break
		}
		switch a.Kind {
		case ActivityPackageAdded:
			builder.WriteString(" added " + detail.PackageName)
		case ActivityPackageSaved:
			builder.WriteString(" saved " + detail.PackageName)
		case ActivityPackageRenamed:
			builder.WriteString(" renamed " + detail.PackageName + " to " + detail.NewPackageName)
		case ActivityPackageDeleted:
			builder.WriteString(" deleted " + detail.PackageName)
		}
	default:
		builder.WriteString(" " + string(a.Kind))
	}
	return builder.String()
}

// ActivityEvent delivers one activity at its server ledger index.
type ActivityEvent struct {
	Index    uint64   `cbor:"index"`
	Activity Activity `cbor:"activity"`
}

// ActivitiesSyncedEvent marks the end of the activity replay.
type ActivitiesSyncedEvent struct{}
