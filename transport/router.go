// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
)

// MessageContext describes the message a handler is running for.
type MessageContext struct {
	Kind    schema.MessageKind
	Session uuid.UUID
	Sender  uuid.UUID
}

type eventHandler func(MessageContext, codec.RawMessage) error

type requestHandler func(MessageContext, codec.RawMessage) (any, error)

// Router dispatches messages to handlers by kind. It is used from the
// inbox goroutine only.
type Router struct {
	logger   *slog.Logger
	events   map[schema.MessageKind]eventHandler
	requests map[schema.MessageKind]requestHandler
}

// NewRouter returns an empty router. A nil logger discards.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		logger:   logger,
		events:   make(map[schema.MessageKind]eventHandler),
		requests: make(map[schema.MessageKind]requestHandler),
	}
}

// OnEvent registers fn for events of kind, replacing any previous
// handler. Events whose payload does not decode as T are logged and
// dropped.
func OnEvent[T any](router *Router, kind schema.MessageKind, fn func(MessageContext, T)) {
	router.events[kind] = func(ctx MessageContext, payload codec.RawMessage) error {
		event, err := DecodePayload[T](payload)
		if err != nil {
			return err
		}
		fn(ctx, event)
		return nil
	}
}

// OnRequest registers fn for requests of kind, replacing any previous
// handler. A payload that does not decode as T is answered with
// InvalidRequest. An error from fn is answered with its code when it
// is a *ResponseError and with Failed otherwise.
func OnRequest[T, R any](router *Router, kind schema.MessageKind, fn func(MessageContext, T) (R, error)) {
	router.requests[kind] = func(ctx MessageContext, payload codec.RawMessage) (any, error) {
		request, err := DecodePayload[T](payload)
		if err != nil {
			return nil, InvalidRequest("decoding %s: %v", kind, err)
		}
		return fn(ctx, request)
	}
}

// Remove drops the handlers for kind.
func (r *Router) Remove(kind schema.MessageKind) {
	delete(r.events, kind)
	delete(r.requests, kind)
}

// Handles reports whether an event or request handler is registered
// for kind.
func (r *Router) Handles(kind schema.MessageKind) bool {
	_, event := r.events[kind]
	_, request := r.requests[kind]
	return event || request
}

// HandleEvent runs the event handler for ctx.Kind. Unknown kinds and
// malformed payloads are logged and dropped.
func (r *Router) HandleEvent(ctx MessageContext, payload codec.RawMessage) {
	handler, ok := r.events[ctx.Kind]
	if !ok {
		r.logger.Warn("dropping event with no handler", "kind", ctx.Kind, "sender", ctx.Sender)
		return
	}
	if err := handler(ctx, payload); err != nil {
		r.logger.Warn("dropping malformed event", "kind", ctx.Kind, "sender", ctx.Sender, "error", err)
	}
}

// HandleRequest runs the request handler for ctx.Kind and returns the
// encoded response body and outcome.
func (r *Router) HandleRequest(ctx MessageContext, payload codec.RawMessage) (codec.RawMessage, schema.ResponseCode, string) {
	handler, ok := r.requests[ctx.Kind]
	if !ok {
		return nil, schema.ResponseUnknownRequest, "no handler for " + string(ctx.Kind)
	}
	response, err := handler(ctx, payload)
	if err != nil {
		var responseError *ResponseError
		if errors.As(err, &responseError) {
			if responseError.Code == schema.ResponseInvalidRequest {
				r.logger.Warn("invalid request", "kind", ctx.Kind, "sender", ctx.Sender, "reason", responseError.Reason)
			}
			return nil, responseError.Code, responseError.Reason
		}
		return nil, schema.ResponseFailed, err.Error()
	}
	body, err := encodePayload(response)
	if err != nil {
		r.logger.Error("encoding response failed", "kind", ctx.Kind, "error", err)
		return nil, schema.ResponseFailed, "encoding response"
	}
	return body, schema.ResponseSuccess, ""
}
