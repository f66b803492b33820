// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/google/uuid"

// HelloRequest is the first message on every connection. The client
// chooses its own endpoint identifier. A server refuses a hello whose
// Protocol differs from its own.
type HelloRequest struct {
	EndpointID uuid.UUID  `cbor:"endpoint_id"`
	Client     ClientInfo `cbor:"client"`
	Protocol   int        `cbor:"protocol"`
	Version    string     `cbor:"version,omitempty"`
}

// HelloResponse acknowledges a hello.
type HelloResponse struct {
	ServerEndpointID uuid.UUID `cbor:"server_endpoint_id"`
	ServerName       string    `cbor:"server_name"`
	Protocol         int       `cbor:"protocol"`
	Version          string    `cbor:"version,omitempty"`
}

// CreateSessionRequest asks the server to host a session. If a saved
// session with the same name exists it is restored with its ledgers.
type CreateSessionRequest struct {
	SessionName string     `cbor:"session_name"`
	Owner       ClientInfo `cbor:"owner"`
}

// FindSessionRequest looks up one hosted session.
type FindSessionRequest struct {
	SessionID uuid.UUID `cbor:"session_id"`
}

// DeleteSessionRequest stops hosting a session and deletes its
// working directory. Only the owner may delete.
type DeleteSessionRequest struct {
	SessionID uuid.UUID  `cbor:"session_id"`
	Requester ClientInfo `cbor:"requester"`
}

// SessionInfoResponse answers create, find, and delete.
type SessionInfoResponse struct {
	Session SessionInfo `cbor:"session"`
}

// GetSessionsRequest lists hosted sessions.
type GetSessionsRequest struct{}

// GetSessionsResponse lists hosted sessions.
type GetSessionsResponse struct {
	Sessions []SessionInfo `cbor:"sessions"`
}

// GetSessionClientsRequest lists the endpoints joined to a session.
type GetSessionClientsRequest struct {
	SessionID uuid.UUID `cbor:"session_id"`
}

// GetSessionClientsResponse lists the endpoints joined to a session.
type GetSessionClientsResponse struct {
	Clients []SessionClientInfo `cbor:"clients"`
}

// GetSavedSessionNamesRequest lists sessions that are registered but
// not currently hosted.
type GetSavedSessionNamesRequest struct{}

// GetSavedSessionNamesResponse lists saved session names.
type GetSavedSessionNamesResponse struct {
	Names []string `cbor:"names"`
}

// JoinSessionRequest adds the sending endpoint to a hosted session.
type JoinSessionRequest struct {
	SessionID uuid.UUID `cbor:"session_id"`
}

// JoinSessionResponse confirms a join.
type JoinSessionResponse struct {
	Session SessionInfo         `cbor:"session"`
	Clients []SessionClientInfo `cbor:"clients"`
}

// LeaveSessionEvent removes the sending endpoint from a session. A
// dropped connection has the same effect.
type LeaveSessionEvent struct{}

// SessionClientsEvent is broadcast to every member when membership
// changes.
type SessionClientsEvent struct {
	Clients []SessionClientInfo `cbor:"clients"`
}
