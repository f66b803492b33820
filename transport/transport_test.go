// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/lib/testutil"
	"github.com/bureau-foundation/concord/lib/version"
)

const testTimeout = 5 * time.Second

// harness runs one server and any number of clients on a shared inbox
// that the test goroutine pumps.
type harness struct {
	t       *testing.T
	network *MemoryNetwork
	inbox   *Inbox
	server  *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	network := NewMemoryNetwork()
	listener, err := network.Listen("concord")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	inbox := NewInbox()
	server := NewServer(ServerConfig{Name: "test-server", Inbox: inbox, Logger: testutil.Logger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		server.Close()
		if err := testutil.RequireReceive(t, served, testTimeout, "waiting for Serve to return"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return &harness{t: t, network: network, inbox: inbox, server: server}
}

func (h *harness) dial(name string) *Client {
	h.t.Helper()
	client, err := h.dialWith(ClientConfig{Info: schema.ClientInfo{DisplayName: name, UserName: name, DeviceName: "workstation"}})
	if err != nil {
		h.t.Fatalf("Dial(%s): %v", name, err)
	}
	return client
}

func (h *harness) dialWith(config ClientConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	config.Inbox = h.inbox
	config.Logger = testutil.Logger(h.t)
	if config.Info.UserName == "" {
		config.Info = schema.ClientInfo{DisplayName: "tester", UserName: "tester", DeviceName: "workstation"}
	}
	client, err := Dial(ctx, h.network, "concord", config)
	if err != nil {
		return nil, err
	}
	h.t.Cleanup(func() { client.Close() })
	return client, nil
}

// pumpUntil pumps the shared inbox until condition holds.
func (h *harness) pumpUntil(condition func() bool, msgAndArgs ...any) {
	h.t.Helper()
	testutil.RequireEventually(h.t, func() bool {
		h.inbox.Pump()
		return condition()
	}, testTimeout, msgAndArgs...)
}

func await[T any](h *harness, future *Future[T]) (T, error) {
	h.t.Helper()
	h.pumpUntil(func() bool {
		select {
		case <-future.Done():
			return true
		default:
			return false
		}
	}, "waiting for future")
	return future.Result()
}

func (h *harness) host(name string) *ServerSession {
	return h.server.HostSession(schema.SessionInfo{SessionID: uuid.New(), SessionName: name, CreatedAt: time.Now()})
}

func (h *harness) join(client *Client, session *ServerSession) *ClientSession {
	h.t.Helper()
	joined, err := await(h, client.JoinSession(session.ID()))
	if err != nil {
		h.t.Fatalf("JoinSession: %v", err)
	}
	return joined
}

func TestAdminRequest(t *testing.T) {
	h := newHarness(t)
	var senders []uuid.UUID
	OnRequest(h.server.Admin(), schema.KindGetSavedSessionNames, func(ctx MessageContext, _ schema.GetSavedSessionNamesRequest) (schema.GetSavedSessionNamesResponse, error) {
		senders = append(senders, ctx.Sender)
		return schema.GetSavedSessionNamesResponse{Names: []string{"harbor", "lighthouse"}}, nil
	})

	client := h.dial("alice")
	if client.ServerName() != "test-server" {
		t.Errorf("ServerName = %q", client.ServerName())
	}
	if client.ServerEndpointID() != h.server.EndpointID() {
		t.Errorf("ServerEndpointID = %v, want %v", client.ServerEndpointID(), h.server.EndpointID())
	}
	info, ok := h.server.ClientInfo(client.EndpointID())
	if !ok || info.UserName != "alice" {
		t.Errorf("server ClientInfo = %+v, %v", info, ok)
	}

	response, err := await(h, Call[schema.GetSavedSessionNamesResponse](client, schema.KindGetSavedSessionNames, schema.GetSavedSessionNamesRequest{}))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(response.Names) != 2 || response.Names[0] != "harbor" {
		t.Errorf("names = %v", response.Names)
	}
	if len(senders) != 1 || senders[0] != client.EndpointID() {
		t.Errorf("handler saw senders %v, want [%v]", senders, client.EndpointID())
	}

	_, err = await(h, Call[schema.GetSessionsResponse](client, schema.KindGetSessions, schema.GetSessionsRequest{}))
	if !IsCode(err, schema.ResponseUnknownRequest) {
		t.Errorf("unhandled request: err = %v, want UnknownRequest", err)
	}
}

func TestLargePayloadCrossesCompressed(t *testing.T) {
	h := newHarness(t)
	names := make([]string, 2000)
	for i := range names {
		names[i] = "/Game/Maps/Harbor/Dock"
	}
	OnRequest(h.server.Admin(), schema.KindGetSavedSessionNames, func(MessageContext, schema.GetSavedSessionNamesRequest) (schema.GetSavedSessionNamesResponse, error) {
		return schema.GetSavedSessionNamesResponse{Names: names}, nil
	})
	client := h.dial("alice")
	response, err := await(h, Call[schema.GetSavedSessionNamesResponse](client, schema.KindGetSavedSessionNames, nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(response.Names) != len(names) {
		t.Errorf("received %d names, want %d", len(response.Names), len(names))
	}
}

func TestDuplicateEndpointRefused(t *testing.T) {
	h := newHarness(t)
	endpoint := uuid.New()
	if _, err := h.dialWith(ClientConfig{EndpointID: endpoint}); err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	_, err := h.dialWith(ClientConfig{EndpointID: endpoint})
	if !IsCode(err, schema.ResponseFailed) {
		t.Errorf("second Dial: err = %v, want Failed response", err)
	}
}

func TestProtocolMismatchRefused(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	conn, err := h.network.DialContext(ctx, "concord")
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	defer conn.Close()

	payload := mustEncode(t, schema.HelloRequest{EndpointID: uuid.New(), Protocol: version.Protocol + 1})
	if err := writeEnvelope(conn, Envelope{Kind: schema.KindHello, RequestID: 1, Payload: payload}); err != nil {
		t.Fatalf("writing hello: %v", err)
	}
	reply, err := readEnvelope(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.Code != schema.ResponseInvalidRequest {
		t.Errorf("reply code = %v, want InvalidRequest", reply.Code)
	}
}

func TestSessionMembership(t *testing.T) {
	h := newHarness(t)
	session := h.host("harbor")

	var connected, disconnected []uuid.UUID
	session.OnClientConnected(func(endpoint uuid.UUID, _ schema.ClientInfo) { connected = append(connected, endpoint) })
	session.OnClientDisconnected(func(endpoint uuid.UUID, _ schema.ClientInfo) { disconnected = append(disconnected, endpoint) })

	alice := h.dial("alice")
	bob := h.dial("bob")

	aliceSession := h.join(alice, session)
	if aliceSession.Info().ServerEndpointID != h.server.EndpointID() {
		t.Errorf("session server endpoint = %v", aliceSession.Info().ServerEndpointID)
	}
	if len(aliceSession.Clients()) != 1 {
		t.Errorf("alice sees %d clients after joining alone", len(aliceSession.Clients()))
	}

	var membership [][]schema.SessionClientInfo
	aliceSession.OnClientsChanged(func(clients []schema.SessionClientInfo) { membership = append(membership, clients) })

	bobSession := h.join(bob, session)
	h.pumpUntil(func() bool { return len(aliceSession.Clients()) == 2 }, "alice sees bob")
	if _, ok := aliceSession.FindSessionClient(bob.EndpointID()); !ok {
		t.Error("alice cannot find bob")
	}
	if len(connected) != 2 || connected[0] != alice.EndpointID() || connected[1] != bob.EndpointID() {
		t.Errorf("connected = %v", connected)
	}
	if endpoints := session.Endpoints(); len(endpoints) != 2 || endpoints[0] != alice.EndpointID() {
		t.Errorf("Endpoints = %v, want join order", endpoints)
	}

	if err := bobSession.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if bobSession.IsConnected() {
		t.Error("bob's session still connected after Leave")
	}
	h.pumpUntil(func() bool { return len(disconnected) == 1 }, "server sees bob leave")
	if disconnected[0] != bob.EndpointID() {
		t.Errorf("disconnected = %v", disconnected)
	}
	h.pumpUntil(func() bool { return len(aliceSession.Clients()) == 1 }, "alice sees bob leave")
	if len(membership) < 2 {
		t.Errorf("alice saw %d membership changes, want at least 2", len(membership))
	}

	_, err := await(h, bob.JoinSession(uuid.New()))
	if !IsCode(err, schema.ResponseFailed) {
		t.Errorf("joining an unknown session: err = %v, want Failed", err)
	}
}

func TestSessionMessages(t *testing.T) {
	h := newHarness(t)
	session := h.host("harbor")

	var updates []MessageContext
	OnEvent(session.Router(), schema.KindPackageUpdate, func(ctx MessageContext, event schema.PackageUpdateEvent) {
		updates = append(updates, ctx)
	})
	OnRequest(session.Router(), schema.KindResourceLock, func(ctx MessageContext, request schema.ResourceLockRequest) (schema.ResourceLockResponse, error) {
		return schema.ResourceLockResponse{LockType: request.LockType}, nil
	})

	alice := h.dial("alice")
	aliceSession := h.join(alice, session)

	var plays []schema.PlaySessionEvent
	OnEvent(aliceSession.Router(), schema.KindPlaySession, func(_ MessageContext, event schema.PlaySessionEvent) {
		plays = append(plays, event)
	})

	if err := aliceSession.SendEvent(schema.KindPackageUpdate, schema.PackageUpdateEvent{}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	h.pumpUntil(func() bool { return len(updates) == 1 }, "server receives package update")
	if updates[0].Sender != alice.EndpointID() || updates[0].Session != session.ID() {
		t.Errorf("update context = %+v", updates[0])
	}

	response, err := await(h, Call[schema.ResourceLockResponse](aliceSession, schema.KindResourceLock, schema.ResourceLockRequest{LockType: schema.ResourceUnlock}))
	if err != nil {
		t.Fatalf("lock request: %v", err)
	}
	if response.LockType != schema.ResourceUnlock {
		t.Errorf("lock type = %v", response.LockType)
	}

	session.SendEvent([]uuid.UUID{alice.EndpointID(), uuid.New()}, schema.KindPlaySession, schema.PlaySessionEvent{EventType: schema.PlaySessionEnd})
	h.pumpUntil(func() bool { return len(plays) == 1 }, "alice receives play event")
	if plays[0].EventType != schema.PlaySessionEnd {
		t.Errorf("play event = %+v", plays[0])
	}
}

func TestNonMemberRejected(t *testing.T) {
	h := newHarness(t)
	session := h.host("harbor")
	alice := h.dial("alice")

	done := make(chan error, 1)
	alice.conn.request(session.ID(), schema.KindResourceLock, schema.ResourceLockRequest{}, func(_ codec.RawMessage, err error) {
		done <- err
	})
	var err error
	h.pumpUntil(func() bool {
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, "waiting for rejection")
	if !IsCode(err, schema.ResponseInvalidRequest) {
		t.Errorf("err = %v, want InvalidRequest", err)
	}
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	session := h.host("harbor")
	var disconnected []uuid.UUID
	session.OnClientDisconnected(func(endpoint uuid.UUID, _ schema.ClientInfo) { disconnected = append(disconnected, endpoint) })

	alice := h.dial("alice")
	aliceSession := h.join(alice, session)
	var changes []bool
	aliceSession.OnConnectionChanged(func(connected bool) { changes = append(changes, connected) })
	clientGone := false
	alice.OnDisconnected(func() { clientGone = true })

	alice.Close()
	h.pumpUntil(func() bool { return len(disconnected) == 1 && clientGone }, "both sides see the disconnect")
	testutil.RequireClosed(t, alice.Done(), testTimeout, "client done")

	if aliceSession.IsConnected() || len(changes) != 1 || changes[0] {
		t.Errorf("session connected = %v, changes = %v", aliceSession.IsConnected(), changes)
	}
	if session.IsMember(alice.EndpointID()) {
		t.Error("alice is still a member")
	}
	if _, ok := h.server.ClientInfo(alice.EndpointID()); ok {
		t.Error("server still knows alice")
	}

	var requestErr error
	alice.Request(schema.KindGetSessions, nil, func(_ codec.RawMessage, err error) { requestErr = err })
	if !errors.Is(requestErr, ErrClosed) {
		t.Errorf("request after close: err = %v, want ErrClosed", requestErr)
	}
	if err := aliceSession.SendEvent(schema.KindPackageUpdate, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("SendEvent after close: err = %v, want ErrClosed", err)
	}
}

func TestCloseSessionRemovesMembers(t *testing.T) {
	h := newHarness(t)
	session := h.host("harbor")
	alice := h.dial("alice")
	aliceSession := h.join(alice, session)

	session.Close()
	if _, ok := h.server.Session(session.ID()); ok {
		t.Error("closed session is still hosted")
	}
	h.pumpUntil(func() bool { return !aliceSession.IsConnected() }, "alice told the session ended")
}

func TestSessionsOrdered(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.server.HostSession(schema.SessionInfo{SessionID: uuid.New(), SessionName: "b", CreatedAt: now})
	h.server.HostSession(schema.SessionInfo{SessionID: uuid.New(), SessionName: "a", CreatedAt: now})
	h.server.HostSession(schema.SessionInfo{SessionID: uuid.New(), SessionName: "c", CreatedAt: now.Add(-time.Hour)})

	var names []string
	for _, session := range h.server.Sessions() {
		names = append(names, session.Info().SessionName)
	}
	if len(names) != 3 || names[0] != "c" || names[1] != "a" || names[2] != "b" {
		t.Errorf("Sessions order = %v, want [c a b]", names)
	}
}
