// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
)

// Requester sends requests whose responses complete asynchronously.
// complete runs on the inbox goroutine with the response body, a
// *ResponseError for a non-success answer, or ErrClosed.
type Requester interface {
	Request(kind schema.MessageKind, payload any, complete func(codec.RawMessage, error))
}

// Call sends a request through requester and returns a future for the
// decoded response.
func Call[R any](requester Requester, kind schema.MessageKind, payload any) *Future[R] {
	future := NewFuture[R]()
	requester.Request(kind, payload, func(body codec.RawMessage, err error) {
		if err != nil {
			var zero R
			future.Resolve(zero, err)
			return
		}
		response, err := DecodePayload[R](body)
		if err != nil {
			future.Resolve(response, &ResponseError{Kind: kind, Code: schema.ResponseInvalidRequest, Reason: "decoding response: " + err.Error()})
			return
		}
		future.Resolve(response, nil)
	})
	return future
}

type pendingRequest struct {
	kind     schema.MessageKind
	complete func(codec.RawMessage, error)
}

// Conn is one side of an established connection.
type Conn struct {
	netConn net.Conn
	logger  *slog.Logger
	local   uuid.UUID
	remote  uuid.UUID

	mu            sync.Mutex
	queue         [][]byte
	closed        bool
	pending       map[uint64]pendingRequest
	nextRequestID uint64

	wake chan struct{}
	done chan struct{}
}

func newConn(netConn net.Conn, local, remote uuid.UUID, logger *slog.Logger) *Conn {
	return &Conn{
		netConn: netConn,
		logger:  logger.With("remote", remote),
		local:   local,
		remote:  remote,
		pending: make(map[uint64]pendingRequest),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// LocalEndpointID returns this side's endpoint identifier.
func (c *Conn) LocalEndpointID() uuid.UUID { return c.local }

// RemoteEndpointID returns the peer's endpoint identifier.
func (c *Conn) RemoteEndpointID() uuid.UUID { return c.remote }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// start runs the reader and writer. dispatch receives every
// non-response envelope and closed runs once after pending requests
// failed; both on the inbox goroutine.
func (c *Conn) start(reader *bufio.Reader, inbox *Inbox, dispatch func(*Conn, Envelope), closed func(*Conn)) {
	go c.writeLoop()
	go c.readLoop(reader, inbox, dispatch, closed)
}

func (c *Conn) readLoop(reader *bufio.Reader, inbox *Inbox, dispatch func(*Conn, Envelope), closed func(*Conn)) {
	for {
		data, err := readFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("connection read ended", "error", err)
			}
			break
		}
		envelope, err := decodeEnvelope(data)
		if err != nil {
			c.logger.Warn("dropping undecodable envelope", "error", err)
			continue
		}
		envelope.Sender = c.remote
		inbox.Post(func() {
			if envelope.Response {
				c.completeRequest(envelope)
				return
			}
			dispatch(c, envelope)
		})
	}
	c.Close()
	inbox.Post(func() {
		c.failPending()
		if closed != nil {
			closed(c)
		}
	})
}

func (c *Conn) writeLoop() {
	writer := bufio.NewWriter(c.netConn)
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, frame := range batch {
			if _, err := writer.Write(frame); err != nil {
				c.logger.Debug("connection write failed", "error", err)
				c.Close()
				return
			}
		}
		if err := writer.Flush(); err != nil {
			c.logger.Debug("connection flush failed", "error", err)
			c.Close()
			return
		}
	}
}

// Close closes the connection. Requests in flight resolve with
// ErrClosed on the inbox goroutine.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.queue = nil
	close(c.done)
	c.mu.Unlock()
	return c.netConn.Close()
}

func (c *Conn) enqueue(envelope Envelope) error {
	envelope.Sender = c.local
	data, err := encodeEnvelope(envelope)
	if err != nil {
		return err
	}
	frame, err := appendFrame(nil, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue = append(c.queue, frame)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// sendEvent queues an event.
func (c *Conn) sendEvent(session uuid.UUID, kind schema.MessageKind, payload codec.RawMessage) error {
	return c.enqueue(Envelope{Kind: kind, Session: session, Payload: payload})
}

// request queues a request and registers complete for its response.
// When the request cannot be sent, complete runs synchronously with
// the error.
func (c *Conn) request(session uuid.UUID, kind schema.MessageKind, payload any, complete func(codec.RawMessage, error)) {
	body, err := encodePayload(payload)
	if err != nil {
		complete(nil, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		complete(nil, ErrClosed)
		return
	}
	c.nextRequestID++
	requestID := c.nextRequestID
	c.pending[requestID] = pendingRequest{kind: kind, complete: complete}
	c.mu.Unlock()

	if err := c.enqueue(Envelope{Kind: kind, Session: session, RequestID: requestID, Payload: body}); err != nil {
		c.mu.Lock()
		_, stillPending := c.pending[requestID]
		delete(c.pending, requestID)
		c.mu.Unlock()
		if stillPending {
			complete(nil, err)
		}
	}
}

// respond answers request.
func (c *Conn) respond(request Envelope, body codec.RawMessage, code schema.ResponseCode, reason string) {
	err := c.enqueue(Envelope{
		Kind:      request.Kind,
		Session:   request.Session,
		RequestID: request.RequestID,
		Response:  true,
		Code:      code,
		Reason:    reason,
		Payload:   body,
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Error("sending response failed", "kind", request.Kind, "error", err)
	}
}

func (c *Conn) completeRequest(response Envelope) {
	c.mu.Lock()
	pending, ok := c.pending[response.RequestID]
	delete(c.pending, response.RequestID)
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("dropping response to unknown request", "kind", response.Kind, "request_id", response.RequestID)
		return
	}
	if response.Code != schema.ResponseSuccess {
		pending.complete(nil, &ResponseError{Kind: pending.kind, Code: response.Code, Reason: response.Reason})
		return
	}
	pending.complete(response.Payload, nil)
}

func (c *Conn) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]pendingRequest)
	c.mu.Unlock()
	for _, request := range pending {
		request.complete(nil, ErrClosed)
	}
}

// route dispatches a non-response envelope through router and answers
// requests.
func route(router *Router, c *Conn, envelope Envelope) {
	ctx := MessageContext{Kind: envelope.Kind, Session: envelope.Session, Sender: envelope.Sender}
	if !envelope.IsRequest() {
		router.HandleEvent(ctx, envelope.Payload)
		return
	}
	body, code, reason := router.HandleRequest(ctx, envelope.Payload)
	c.respond(envelope, body, code, reason)
}

// writeEnvelope and readEnvelope carry the hello exchange, which runs
// synchronously before the reader and writer start.
func writeEnvelope(w io.Writer, envelope Envelope) error {
	data, err := encodeEnvelope(envelope)
	if err != nil {
		return err
	}
	return writeFrame(w, data)
}

func readEnvelope(r io.Reader) (Envelope, error) {
	data, err := readFrame(r)
	if err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(data)
}
