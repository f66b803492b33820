// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/lib/version"
)

// DefaultHandshakeTimeout bounds the hello exchange on a new
// connection.
const DefaultHandshakeTimeout = 10 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	// EndpointID identifies the server. Zero selects a random one.
	EndpointID uuid.UUID

	// Name is reported to clients in the hello response.
	Name string

	// Inbox receives every handler invocation. Nil creates one.
	Inbox *Inbox

	// HandshakeTimeout bounds the hello exchange. Zero selects
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

type peer struct {
	conn *Conn
	info schema.ClientInfo

	// sessions is touched on the inbox goroutine only.
	sessions map[uuid.UUID]struct{}
}

// Server accepts client connections and hosts sessions.
type Server struct {
	endpointID       uuid.UUID
	name             string
	inbox            *Inbox
	handshakeTimeout time.Duration
	logger           *slog.Logger
	admin            *Router

	// mu guards peers and listeners, which the accept goroutines
	// touch.
	mu        sync.Mutex
	peers     map[uuid.UUID]*peer
	listeners []net.Listener
	closed    bool

	// sessions is touched on the inbox goroutine only.
	sessions map[uuid.UUID]*ServerSession
}

// NewServer returns a server that is not yet listening.
func NewServer(config ServerConfig) *Server {
	endpointID := config.EndpointID
	if endpointID == uuid.Nil {
		endpointID = uuid.New()
	}
	inbox := config.Inbox
	if inbox == nil {
		inbox = NewInbox()
	}
	timeout := config.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		endpointID:       endpointID,
		name:             config.Name,
		inbox:            inbox,
		handshakeTimeout: timeout,
		logger:           logger,
		admin:            NewRouter(logger),
		peers:            make(map[uuid.UUID]*peer),
		sessions:         make(map[uuid.UUID]*ServerSession),
	}
}

// EndpointID returns the server's endpoint identifier.
func (s *Server) EndpointID() uuid.UUID { return s.endpointID }

// Inbox returns the inbox the server's handlers run on.
func (s *Server) Inbox() *Inbox { return s.inbox }

// Admin returns the router for messages outside any session. Join and
// leave are handled by the server itself.
func (s *Server) Admin() *Router { return s.admin }

// Serve accepts connections on listener until ctx ends or the listener
// is closed. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return ErrClosed
	}
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("server listening", "address", listener.Addr().String(), "endpoint", s.endpointID)
	for {
		netConn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.handshake(netConn)
	}
}

// Close stops every listener and closes every connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	s.listeners = nil
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener.Close()
	}
	for _, p := range peers {
		p.conn.Close()
	}
	return nil
}

func (s *Server) handshake(netConn net.Conn) {
	netConn.SetDeadline(time.Now().Add(s.handshakeTimeout))
	reader := bufio.NewReader(netConn)

	hello, err := readEnvelope(reader)
	if err != nil {
		s.logger.Warn("handshake failed", "remote", netConn.RemoteAddr().String(), "error", err)
		netConn.Close()
		return
	}
	reply := Envelope{Kind: schema.KindHello, RequestID: hello.RequestID, Response: true, Sender: s.endpointID}
	fail := func(code schema.ResponseCode, reason string) {
		reply.Code, reply.Reason = code, reason
		writeEnvelope(netConn, reply)
		netConn.Close()
		s.logger.Warn("refusing connection", "remote", netConn.RemoteAddr().String(), "reason", reason)
	}
	if hello.Kind != schema.KindHello || !hello.IsRequest() {
		fail(schema.ResponseInvalidRequest, "first message must be a hello request")
		return
	}
	request, err := DecodePayload[schema.HelloRequest](hello.Payload)
	if err != nil {
		fail(schema.ResponseInvalidRequest, "decoding hello: "+err.Error())
		return
	}
	if request.Protocol != version.Protocol {
		fail(schema.ResponseInvalidRequest, fmt.Sprintf("protocol %d is not supported, server speaks %d", request.Protocol, version.Protocol))
		return
	}
	if request.EndpointID == uuid.Nil || request.EndpointID == s.endpointID {
		fail(schema.ResponseInvalidRequest, "invalid endpoint identifier")
		return
	}

	conn := newConn(netConn, s.endpointID, request.EndpointID, s.logger)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		netConn.Close()
		return
	}
	if _, exists := s.peers[request.EndpointID]; exists {
		s.mu.Unlock()
		fail(schema.ResponseFailed, "endpoint is already connected")
		return
	}
	s.peers[request.EndpointID] = &peer{conn: conn, info: request.Client, sessions: make(map[uuid.UUID]struct{})}
	s.mu.Unlock()

	body, err := encodePayload(schema.HelloResponse{
		ServerEndpointID: s.endpointID,
		ServerName:       s.name,
		Protocol:         version.Protocol,
		Version:          version.Short(),
	})
	if err == nil {
		reply.Payload = body
		err = writeEnvelope(netConn, reply)
	}
	if err != nil {
		s.logger.Warn("handshake reply failed", "endpoint", request.EndpointID, "error", err)
		s.removePeer(request.EndpointID)
		netConn.Close()
		return
	}
	netConn.SetDeadline(time.Time{})

	s.logger.Info("client connected", "endpoint", request.EndpointID, "user", request.Client.UserName, "device", request.Client.DeviceName)
	conn.start(reader, s.inbox, s.dispatch, s.disconnected)
}

func (s *Server) removePeer(endpoint uuid.UUID) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.peers[endpoint]
	delete(s.peers, endpoint)
	return p
}

func (s *Server) peer(endpoint uuid.UUID) (*peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[endpoint]
	return p, ok
}

// ClientInfo returns the identity a connected endpoint presented at
// hello time.
func (s *Server) ClientInfo(endpoint uuid.UUID) (schema.ClientInfo, bool) {
	p, ok := s.peer(endpoint)
	if !ok {
		return schema.ClientInfo{}, false
	}
	return p.info, true
}

// disconnected runs on the inbox goroutine when a connection closes.
func (s *Server) disconnected(conn *Conn) {
	endpoint := conn.RemoteEndpointID()
	p := s.removePeer(endpoint)
	if p == nil {
		return
	}
	for sessionID := range p.sessions {
		if session, ok := s.sessions[sessionID]; ok {
			session.leave(endpoint)
		}
	}
	s.logger.Info("client disconnected", "endpoint", endpoint)
}

// dispatch runs on the inbox goroutine for every non-response
// envelope.
func (s *Server) dispatch(conn *Conn, envelope Envelope) {
	if envelope.Session == uuid.Nil {
		if envelope.Kind == schema.KindJoinSession && envelope.IsRequest() {
			s.join(conn, envelope)
			return
		}
		route(s.admin, conn, envelope)
		return
	}

	session, ok := s.sessions[envelope.Session]
	if !ok || !session.IsMember(envelope.Sender) {
		s.logger.Warn("dropping message for a session the sender has not joined",
			"kind", envelope.Kind, "session", envelope.Session, "sender", envelope.Sender)
		if envelope.IsRequest() {
			conn.respond(envelope, nil, schema.ResponseInvalidRequest, "not a member of session "+envelope.Session.String())
		}
		return
	}
	if envelope.Kind == schema.KindLeaveSession {
		session.leave(envelope.Sender)
		return
	}
	route(session.router, conn, envelope)
}

func (s *Server) join(conn *Conn, envelope Envelope) {
	request, err := DecodePayload[schema.JoinSessionRequest](envelope.Payload)
	if err != nil {
		conn.respond(envelope, nil, schema.ResponseInvalidRequest, "decoding join: "+err.Error())
		return
	}
	session, ok := s.sessions[request.SessionID]
	if !ok {
		conn.respond(envelope, nil, schema.ResponseFailed, "no session "+request.SessionID.String())
		return
	}
	p, ok := s.peer(envelope.Sender)
	if !ok {
		return
	}
	if session.IsMember(envelope.Sender) {
		conn.respond(envelope, nil, schema.ResponseInvalidRequest, "already joined")
		return
	}

	session.add(envelope.Sender, p)
	body, err := encodePayload(schema.JoinSessionResponse{Session: session.info, Clients: session.Clients()})
	if err != nil {
		conn.respond(envelope, nil, schema.ResponseFailed, "encoding join response")
		return
	}
	// The join response is queued before anything the session sends
	// the new member.
	conn.respond(envelope, body, schema.ResponseSuccess, "")
	session.joined(envelope.Sender, p.info)
}

// HostSession starts hosting a session. The session's router is empty
// until the caller registers its handlers.
func (s *Server) HostSession(info schema.SessionInfo) *ServerSession {
	info.ServerEndpointID = s.endpointID
	session := &ServerSession{
		server:  s,
		info:    info,
		router:  NewRouter(s.logger.With("session", info.SessionID)),
		members: make(map[uuid.UUID]*peer),
	}
	s.sessions[info.SessionID] = session
	s.logger.Info("hosting session", "session", info.SessionID, "name", info.SessionName)
	return session
}

// Session returns a hosted session.
func (s *Server) Session(id uuid.UUID) (*ServerSession, bool) {
	session, ok := s.sessions[id]
	return session, ok
}

// Sessions returns every hosted session ordered by creation time then
// name.
func (s *Server) Sessions() []*ServerSession {
	sessions := make([]*ServerSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b *ServerSession) int {
		if c := a.info.CreatedAt.Compare(b.info.CreatedAt); c != 0 {
			return c
		}
		if a.info.SessionName < b.info.SessionName {
			return -1
		}
		if a.info.SessionName > b.info.SessionName {
			return 1
		}
		return 0
	})
	return sessions
}

// ServerSession is the membership and routing of one hosted session.
// Its methods run on the inbox goroutine.
type ServerSession struct {
	server  *Server
	info    schema.SessionInfo
	router  *Router
	members map[uuid.UUID]*peer
	order   []uuid.UUID
	closed  bool

	onConnected    []func(endpoint uuid.UUID, client schema.ClientInfo)
	onDisconnected []func(endpoint uuid.UUID, client schema.ClientInfo)
}

// Info returns the session description.
func (s *ServerSession) Info() schema.SessionInfo { return s.info }

// ID returns the session identifier.
func (s *ServerSession) ID() uuid.UUID { return s.info.SessionID }

// Router returns the router for the session's messages.
func (s *ServerSession) Router() *Router { return s.router }

// OnClientConnected registers fn to run after an endpoint joins.
func (s *ServerSession) OnClientConnected(fn func(endpoint uuid.UUID, client schema.ClientInfo)) {
	s.onConnected = append(s.onConnected, fn)
}

// OnClientDisconnected registers fn to run after an endpoint leaves or
// its connection drops.
func (s *ServerSession) OnClientDisconnected(fn func(endpoint uuid.UUID, client schema.ClientInfo)) {
	s.onDisconnected = append(s.onDisconnected, fn)
}

// IsMember reports whether endpoint has joined.
func (s *ServerSession) IsMember(endpoint uuid.UUID) bool {
	_, ok := s.members[endpoint]
	return ok
}

// Endpoints returns the joined endpoints in join order.
func (s *ServerSession) Endpoints() []uuid.UUID { return slices.Clone(s.order) }

// ClientInfo returns a member's identity.
func (s *ServerSession) ClientInfo(endpoint uuid.UUID) (schema.ClientInfo, bool) {
	p, ok := s.members[endpoint]
	if !ok {
		return schema.ClientInfo{}, false
	}
	return p.info, true
}

// Clients returns the members in join order.
func (s *ServerSession) Clients() []schema.SessionClientInfo {
	clients := make([]schema.SessionClientInfo, 0, len(s.order))
	for _, endpoint := range s.order {
		clients = append(clients, schema.SessionClientInfo{EndpointID: endpoint, Info: s.members[endpoint].info})
	}
	return clients
}

// SendEvent sends one event to each listed member. Endpoints that are
// not members are skipped.
func (s *ServerSession) SendEvent(endpoints []uuid.UUID, kind schema.MessageKind, payload any) {
	body, err := encodePayload(payload)
	if err != nil {
		s.server.logger.Error("encoding event failed", "session", s.info.SessionID, "kind", kind, "error", err)
		return
	}
	for _, endpoint := range endpoints {
		s.send(endpoint, kind, body)
	}
}

func (s *ServerSession) send(endpoint uuid.UUID, kind schema.MessageKind, body codec.RawMessage) {
	p, ok := s.members[endpoint]
	if !ok {
		return
	}
	if err := p.conn.sendEvent(s.info.SessionID, kind, body); err != nil && !errors.Is(err, ErrClosed) {
		s.server.logger.Error("sending event failed", "session", s.info.SessionID, "kind", kind, "endpoint", endpoint, "error", err)
	}
}

func (s *ServerSession) add(endpoint uuid.UUID, p *peer) {
	s.members[endpoint] = p
	s.order = append(s.order, endpoint)
	p.sessions[s.info.SessionID] = struct{}{}
}

func (s *ServerSession) joined(endpoint uuid.UUID, client schema.ClientInfo) {
	s.broadcastClients()
	s.server.logger.Info("client joined session", "session", s.info.SessionID, "endpoint", endpoint)
	for _, fn := range s.onConnected {
		fn(endpoint, client)
	}
}

func (s *ServerSession) leave(endpoint uuid.UUID) {
	p, ok := s.members[endpoint]
	if !ok {
		return
	}
	delete(s.members, endpoint)
	s.order = slices.DeleteFunc(s.order, func(candidate uuid.UUID) bool { return candidate == endpoint })
	delete(p.sessions, s.info.SessionID)

	s.server.logger.Info("client left session", "session", s.info.SessionID, "endpoint", endpoint)
	for _, fn := range s.onDisconnected {
		fn(endpoint, p.info)
	}
	if !s.closed {
		s.broadcastClients()
	}
}

func (s *ServerSession) broadcastClients() {
	s.SendEvent(s.Endpoints(), schema.KindSessionClients, schema.SessionClientsEvent{Clients: s.Clients()})
}

// Close stops hosting the session. Every member is told with a leave
// event and then removed, running the disconnect callbacks.
func (s *ServerSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.SendEvent(s.Endpoints(), schema.KindLeaveSession, schema.LeaveSessionEvent{})
	for _, endpoint := range s.Endpoints() {
		s.leave(endpoint)
	}
	delete(s.server.sessions, s.info.SessionID)
	s.server.logger.Info("stopped hosting session", "session", s.info.SessionID)
}
