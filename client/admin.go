// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// Admin issues session management requests. Every method returns a
// future that resolves on the inbox goroutine.
type Admin struct {
	requester transport.Requester
	identity  schema.ClientInfo
}

// NewAdmin returns an Admin that sends through requester, usually a
// [transport.Client], and names identity as the owner of the sessions
// it creates.
func NewAdmin(requester transport.Requester, identity schema.ClientInfo) *Admin {
	return &Admin{requester: requester, identity: identity}
}

// CreateSession hosts a new session, or restores the saved one with
// the same name.
func (a *Admin) CreateSession(name string) *transport.Future[schema.SessionInfo] {
	return sessionInfo(transport.Call[schema.SessionInfoResponse](a.requester, schema.KindCreateSession,
		schema.CreateSessionRequest{SessionName: name, Owner: a.identity}))
}

// FindSession looks up a hosted session.
func (a *Admin) FindSession(id uuid.UUID) *transport.Future[schema.SessionInfo] {
	return sessionInfo(transport.Call[schema.SessionInfoResponse](a.requester, schema.KindFindSession,
		schema.FindSessionRequest{SessionID: id}))
}

// DeleteSession deletes a session and its ledgers. The server refuses
// unless the identity owns the session.
func (a *Admin) DeleteSession(id uuid.UUID) *transport.Future[schema.SessionInfo] {
	return sessionInfo(transport.Call[schema.SessionInfoResponse](a.requester, schema.KindDeleteSession,
		schema.DeleteSessionRequest{SessionID: id, Requester: a.identity}))
}

// Sessions lists the hosted sessions.
func (a *Admin) Sessions() *transport.Future[[]schema.SessionInfo] {
	return mapFuture(transport.Call[schema.GetSessionsResponse](a.requester, schema.KindGetSessions, schema.GetSessionsRequest{}),
		func(response schema.GetSessionsResponse) []schema.SessionInfo { return response.Sessions })
}

// SessionClients lists the endpoints joined to a session.
func (a *Admin) SessionClients(id uuid.UUID) *transport.Future[[]schema.SessionClientInfo] {
	return mapFuture(transport.Call[schema.GetSessionClientsResponse](a.requester, schema.KindGetSessionClients,
		schema.GetSessionClientsRequest{SessionID: id}),
		func(response schema.GetSessionClientsResponse) []schema.SessionClientInfo { return response.Clients })
}

// SavedSessionNames lists sessions that are registered but not hosted.
func (a *Admin) SavedSessionNames() *transport.Future[[]string] {
	return mapFuture(transport.Call[schema.GetSavedSessionNamesResponse](a.requester, schema.KindGetSavedSessionNames,
		schema.GetSavedSessionNamesRequest{}),
		func(response schema.GetSavedSessionNamesResponse) []string { return response.Names })
}

func sessionInfo(future *transport.Future[schema.SessionInfoResponse]) *transport.Future[schema.SessionInfo] {
	return mapFuture(future, func(response schema.SessionInfoResponse) schema.SessionInfo { return response.Session })
}

func mapFuture[T, R any](future *transport.Future[T], fn func(T) R) *transport.Future[R] {
	mapped := transport.NewFuture[R]()
	future.Then(func(value T, err error) {
		if err != nil {
			var zero R
			mapped.Resolve(zero, err)
			return
		}
		mapped.Resolve(fn(value), nil)
	})
	return mapped
}
