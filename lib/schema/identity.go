// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/google/uuid"
)

// ClientInfo identifies the person and machine behind an endpoint. It
// is supplied by the client at hello time and trusted as-is.
type ClientInfo struct {
	DisplayName string `cbor:"display_name"`
	UserName    string `cbor:"user_name"`
	DeviceName  string `cbor:"device_name"`
	Platform    string `cbor:"platform,omitempty"`
	AvatarColor string `cbor:"avatar_color,omitempty"`
}

// SessionClientInfo pairs a connected endpoint with its identity.
type SessionClientInfo struct {
	EndpointID uuid.UUID  `cbor:"endpoint_id"`
	Info       ClientInfo `cbor:"info"`
}

// SessionInfo describes a hosted session.
type SessionInfo struct {
	SessionID        uuid.UUID `cbor:"session_id"`
	SessionName      string    `cbor:"session_name"`
	OwnerUserName    string    `cbor:"owner_user_name"`
	OwnerDeviceName  string    `cbor:"owner_device_name"`
	ServerEndpointID uuid.UUID `cbor:"server_endpoint_id"`
	CreatedAt        time.Time `cbor:"created_at"`
}

// IsOwnedBy reports whether client matches the session's recorded
// owner. Only the owner may delete a session.
func (s SessionInfo) IsOwnedBy(client ClientInfo) bool {
	return s.OwnerUserName == client.UserName && s.OwnerDeviceName == client.DeviceName
}
