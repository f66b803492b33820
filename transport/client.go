// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/lib/version"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// EndpointID identifies this client. Zero selects a random one.
	EndpointID uuid.UUID

	// Info is presented to the server and to the other members of
	// every joined session.
	Info schema.ClientInfo

	// Inbox receives every handler invocation. Nil creates one.
	Inbox *Inbox

	Logger *slog.Logger
}

// Client is a connection to a server.
type Client struct {
	conn       *Conn
	info       schema.ClientInfo
	inbox      *Inbox
	logger     *slog.Logger
	serverName string

	// Touched on the inbox goroutine only.
	sessions       map[uuid.UUID]*ClientSession
	onDisconnected []func()

	stopped chan struct{}
}

// Dial connects to the server at address and completes the hello
// exchange before returning.
func Dial(ctx context.Context, dialer Dialer, address string, config ClientConfig) (*Client, error) {
	endpointID := config.EndpointID
	if endpointID == uuid.Nil {
		endpointID = uuid.New()
	}
	inbox := config.Inbox
	if inbox == nil {
		inbox = NewInbox()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	netConn, err := dialer.DialContext(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultHandshakeTimeout)
	}
	netConn.SetDeadline(deadline)

	payload, err := encodePayload(schema.HelloRequest{
		EndpointID: endpointID,
		Client:     config.Info,
		Protocol:   version.Protocol,
		Version:    version.Short(),
	})
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("encoding hello: %w", err)
	}
	if err := writeEnvelope(netConn, Envelope{Kind: schema.KindHello, Sender: endpointID, RequestID: 1, Payload: payload}); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("sending hello to %s: %w", address, err)
	}
	reader := bufio.NewReader(netConn)
	reply, err := readEnvelope(reader)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("reading hello response from %s: %w", address, err)
	}
	if reply.Kind != schema.KindHello || !reply.Response {
		netConn.Close()
		return nil, fmt.Errorf("hello to %s answered with %s", address, reply.Kind)
	}
	if reply.Code != schema.ResponseSuccess {
		netConn.Close()
		return nil, &ResponseError{Kind: schema.KindHello, Code: reply.Code, Reason: reply.Reason}
	}
	hello, err := DecodePayload[schema.HelloResponse](reply.Payload)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("decoding hello response: %w", err)
	}
	netConn.SetDeadline(time.Time{})

	client := &Client{
		conn:       newConn(netConn, endpointID, hello.ServerEndpointID, logger),
		info:       config.Info,
		inbox:      inbox,
		logger:     logger,
		serverName: hello.ServerName,
		sessions:   make(map[uuid.UUID]*ClientSession),
		stopped:    make(chan struct{}),
	}
	client.conn.start(reader, inbox, client.dispatch, client.disconnected)
	logger.Info("connected to server", "address", address, "server", hello.ServerName, "server_version", hello.Version)
	return client, nil
}

// EndpointID returns this client's endpoint identifier.
func (c *Client) EndpointID() uuid.UUID { return c.conn.LocalEndpointID() }

// ServerEndpointID returns the server's endpoint identifier.
func (c *Client) ServerEndpointID() uuid.UUID { return c.conn.RemoteEndpointID() }

// ServerName returns the name the server reported at hello time.
func (c *Client) ServerName() string { return c.serverName }

// Info returns the identity this client presented.
func (c *Client) Info() schema.ClientInfo { return c.info }

// Inbox returns the inbox the client's handlers run on.
func (c *Client) Inbox() *Inbox { return c.inbox }

// Request sends an admin request.
func (c *Client) Request(kind schema.MessageKind, payload any, complete func(codec.RawMessage, error)) {
	c.conn.request(uuid.Nil, kind, payload, complete)
}

// OnDisconnected registers fn to run on the inbox goroutine once the
// connection is gone.
func (c *Client) OnDisconnected(fn func()) {
	c.onDisconnected = append(c.onDisconnected, fn)
}

// Done is closed after the connection closed and the disconnect
// handlers ran.
func (c *Client) Done() <-chan struct{} { return c.stopped }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Run pumps the inbox until ctx ends or the connection is gone. A
// caller that shares the inbox with other nodes pumps it itself
// instead.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopped:
			c.inbox.Pump()
			return nil
		case <-c.inbox.Ready():
			c.inbox.Pump()
		}
	}
}

// JoinSession joins a hosted session. The future resolves on the inbox
// goroutine, before any session event is dispatched, so handlers
// registered on the session's router in a Then callback see every
// event.
func (c *Client) JoinSession(id uuid.UUID) *Future[*ClientSession] {
	future := NewFuture[*ClientSession]()
	c.Request(schema.KindJoinSession, schema.JoinSessionRequest{SessionID: id}, func(body codec.RawMessage, err error) {
		if err != nil {
			future.Resolve(nil, err)
			return
		}
		response, err := DecodePayload[schema.JoinSessionResponse](body)
		if err != nil {
			future.Resolve(nil, fmt.Errorf("decoding join response: %w", err))
			return
		}
		session := &ClientSession{
			client:    c,
			info:      response.Session,
			router:    NewRouter(c.logger.With("session", id)),
			clients:   response.Clients,
			connected: true,
		}
		c.sessions[id] = session
		c.logger.Info("joined session", "session", id, "name", response.Session.SessionName)
		future.Resolve(session, nil)
	})
	return future
}

func (c *Client) dispatch(conn *Conn, envelope Envelope) {
	session, ok := c.sessions[envelope.Session]
	if !ok {
		c.logger.Debug("dropping message outside any joined session", "kind", envelope.Kind, "session", envelope.Session)
		if envelope.IsRequest() {
			conn.respond(envelope, nil, schema.ResponseUnknownRequest, "not joined")
		}
		return
	}
	switch envelope.Kind {
	case schema.KindSessionClients:
		event, err := DecodePayload[schema.SessionClientsEvent](envelope.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed session clients event", "error", err)
			return
		}
		session.clients = event.Clients
		for _, fn := range session.onClientsChanged {
			fn(slices.Clone(event.Clients))
		}
	case schema.KindLeaveSession:
		session.end()
	default:
		route(session.router, conn, envelope)
	}
}

func (c *Client) disconnected(*Conn) {
	for _, session := range c.sessions {
		session.end()
	}
	for _, fn := range c.onDisconnected {
		fn()
	}
	c.logger.Info("disconnected from server")
	close(c.stopped)
}

// ClientSession is this client's membership in one session. Its
// methods run on the inbox goroutine.
type ClientSession struct {
	client    *Client
	info      schema.SessionInfo
	router    *Router
	clients   []schema.SessionClientInfo
	connected bool

	onConnectionChanged []func(connected bool)
	onClientsChanged    []func(clients []schema.SessionClientInfo)
}

// Info returns the session description.
func (s *ClientSession) Info() schema.SessionInfo { return s.info }

// ID returns the session identifier.
func (s *ClientSession) ID() uuid.UUID { return s.info.SessionID }

// Router returns the router for the session's messages.
func (s *ClientSession) Router() *Router { return s.router }

// LocalEndpointID returns this client's endpoint identifier.
func (s *ClientSession) LocalEndpointID() uuid.UUID { return s.client.EndpointID() }

// ServerEndpointID returns the hosting server's endpoint identifier.
func (s *ClientSession) ServerEndpointID() uuid.UUID { return s.client.ServerEndpointID() }

// IsConnected reports whether the session is still joined.
func (s *ClientSession) IsConnected() bool { return s.connected }

// Clients returns the members at the last membership change, this
// client included.
func (s *ClientSession) Clients() []schema.SessionClientInfo { return slices.Clone(s.clients) }

// FindSessionClient returns the identity of a member.
func (s *ClientSession) FindSessionClient(endpoint uuid.UUID) (schema.ClientInfo, bool) {
	for _, client := range s.clients {
		if client.EndpointID == endpoint {
			return client.Info, true
		}
	}
	return schema.ClientInfo{}, false
}

// OnConnectionChanged registers fn to run when the session ends.
func (s *ClientSession) OnConnectionChanged(fn func(connected bool)) {
	s.onConnectionChanged = append(s.onConnectionChanged, fn)
}

// OnClientsChanged registers fn to run when membership changes.
func (s *ClientSession) OnClientsChanged(fn func(clients []schema.SessionClientInfo)) {
	s.onClientsChanged = append(s.onClientsChanged, fn)
}

// SendEvent sends an event to the server within this session.
func (s *ClientSession) SendEvent(kind schema.MessageKind, payload any) error {
	if !s.connected {
		return ErrClosed
	}
	body, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", kind, err)
	}
	return s.client.conn.sendEvent(s.info.SessionID, kind, body)
}

// Request sends a request to the server within this session.
func (s *ClientSession) Request(kind schema.MessageKind, payload any, complete func(codec.RawMessage, error)) {
	if !s.connected {
		complete(nil, ErrClosed)
		return
	}
	s.client.conn.request(s.info.SessionID, kind, payload, complete)
}

// Leave leaves the session.
func (s *ClientSession) Leave() error {
	if !s.connected {
		return nil
	}
	err := s.client.conn.sendEvent(s.info.SessionID, schema.KindLeaveSession, nil)
	s.end()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (s *ClientSession) end() {
	if !s.connected {
		return
	}
	s.connected = false
	delete(s.client.sessions, s.info.SessionID)
	s.client.logger.Info("left session", "session", s.info.SessionID)
	for _, fn := range s.onConnectionChanged {
		fn(false)
	}
}
