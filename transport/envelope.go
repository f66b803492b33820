// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
)

// ErrClosed is returned by sends on a closed connection and resolves
// the futures of requests that were in flight when it closed.
var ErrClosed = errors.New("transport: connection closed")

// Envelope is the unit carried by one frame.
type Envelope struct {
	Kind schema.MessageKind `cbor:"kind"`

	// Session is the session the message belongs to, or uuid.Nil for
	// admin messages.
	Session uuid.UUID `cbor:"session"`

	// Sender is the endpoint that sent the message. The server
	// overwrites it with the endpoint registered at hello time.
	Sender uuid.UUID `cbor:"sender"`

	// RequestID is non-zero for requests and their responses.
	RequestID uint64 `cbor:"request_id,omitempty"`

	// Response marks the answer to the request with RequestID.
	Response bool `cbor:"response,omitempty"`

	// Code and Reason describe a response's outcome.
	Code   schema.ResponseCode `cbor:"code,omitempty"`
	Reason string              `cbor:"reason,omitempty"`

	// Payload is the CBOR encoding of the kind's message type.
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// IsRequest reports whether the envelope expects a response.
func (e Envelope) IsRequest() bool { return e.RequestID != 0 && !e.Response }

func encodeEnvelope(envelope Envelope) ([]byte, error) {
	data, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", envelope.Kind, err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if envelope.Kind == "" {
		return Envelope{}, fmt.Errorf("decoding envelope: empty message kind")
	}
	return envelope, nil
}

// encodePayload encodes a message body. A nil payload stays empty.
func encodePayload(payload any) (codec.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(codec.RawMessage); ok {
		return raw, nil
	}
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return codec.RawMessage(data), nil
}

// DecodePayload decodes a message body into T. An empty payload
// decodes to the zero value.
func DecodePayload[T any](payload codec.RawMessage) (T, error) {
	var value T
	if len(payload) == 0 {
		return value, nil
	}
	if err := codec.Unmarshal(payload, &value); err != nil {
		return value, err
	}
	return value, nil
}

// ResponseError is the error a request resolves with when the peer
// answers with anything other than success. Request handlers return
// one to choose the response code.
type ResponseError struct {
	Kind   schema.MessageKind
	Code   schema.ResponseCode
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Reason)
}

// InvalidRequest returns a handler error answered with
// ResponseInvalidRequest.
func InvalidRequest(format string, args ...any) error {
	return &ResponseError{Code: schema.ResponseInvalidRequest, Reason: fmt.Sprintf(format, args...)}
}

// Failed returns a handler error answered with ResponseFailed.
func Failed(format string, args ...any) error {
	return &ResponseError{Code: schema.ResponseFailed, Reason: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is a ResponseError with code.
func IsCode(err error, code schema.ResponseCode) bool {
	var responseError *ResponseError
	return errors.As(err, &responseError) && responseError.Code == code
}
