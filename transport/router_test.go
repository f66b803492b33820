// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/lib/testutil"
)

func mustEncode(t *testing.T, value any) codec.RawMessage {
	t.Helper()
	data, err := codec.Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func TestRouterEvent(t *testing.T) {
	t.Parallel()
	router := NewRouter(testutil.Logger(t))
	sender := uuid.New()

	var received []schema.PlaySessionEvent
	var contexts []MessageContext
	OnEvent(router, schema.KindPlaySession, func(ctx MessageContext, event schema.PlaySessionEvent) {
		contexts = append(contexts, ctx)
		received = append(received, event)
	})
	if !router.Handles(schema.KindPlaySession) {
		t.Fatal("Handles(play_session) = false after OnEvent")
	}

	ctx := MessageContext{Kind: schema.KindPlaySession, Sender: sender}
	router.HandleEvent(ctx, mustEncode(t, schema.PlaySessionEvent{EventType: schema.PlaySessionBegin, PlayPackageName: "/Game/Maps/Harbor"}))
	// Undecodable payloads and unknown kinds are dropped.
	router.HandleEvent(ctx, mustEncode(t, "not an event"))
	router.HandleEvent(MessageContext{Kind: schema.KindSyncLock}, nil)

	if len(received) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(received))
	}
	if received[0].PlayPackageName != "/Game/Maps/Harbor" || received[0].EventType != schema.PlaySessionBegin {
		t.Errorf("event = %+v", received[0])
	}
	if contexts[0].Sender != sender {
		t.Errorf("sender = %v, want %v", contexts[0].Sender, sender)
	}

	router.Remove(schema.KindPlaySession)
	if router.Handles(schema.KindPlaySession) {
		t.Error("Handles(play_session) = true after Remove")
	}
}

func TestRouterRequest(t *testing.T) {
	t.Parallel()
	router := NewRouter(testutil.Logger(t))
	OnRequest(router, schema.KindFindSession, func(ctx MessageContext, request schema.FindSessionRequest) (schema.SessionInfoResponse, error) {
		switch request.SessionID {
		case uuid.Nil:
			return schema.SessionInfoResponse{}, InvalidRequest("missing session id")
		case failingSession:
			return schema.SessionInfoResponse{}, errors.New("registry unavailable")
		}
		return schema.SessionInfoResponse{Session: schema.SessionInfo{SessionID: request.SessionID, SessionName: "harbor"}}, nil
	})

	ctx := MessageContext{Kind: schema.KindFindSession}
	id := uuid.New()

	body, code, reason := router.HandleRequest(ctx, mustEncode(t, schema.FindSessionRequest{SessionID: id}))
	if code != schema.ResponseSuccess {
		t.Fatalf("code = %v (%s), want success", code, reason)
	}
	response, err := DecodePayload[schema.SessionInfoResponse](body)
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.Session.SessionID != id || response.Session.SessionName != "harbor" {
		t.Errorf("response = %+v", response)
	}

	tests := []struct {
		name    string
		ctx     MessageContext
		payload codec.RawMessage
		code    schema.ResponseCode
		reason  string
	}{
		{name: "handler invalid", ctx: ctx, payload: mustEncode(t, schema.FindSessionRequest{}), code: schema.ResponseInvalidRequest, reason: "missing session id"},
		{name: "handler error", ctx: ctx, payload: mustEncode(t, schema.FindSessionRequest{SessionID: failingSession}), code: schema.ResponseFailed, reason: "registry unavailable"},
		{name: "malformed payload", ctx: ctx, payload: mustEncode(t, []int{1, 2}), code: schema.ResponseInvalidRequest},
		{name: "unknown kind", ctx: MessageContext{Kind: schema.KindDeleteSession}, code: schema.ResponseUnknownRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			body, code, reason := router.HandleRequest(test.ctx, test.payload)
			if code != test.code {
				t.Errorf("code = %v, want %v", code, test.code)
			}
			if test.reason != "" && reason != test.reason {
				t.Errorf("reason = %q, want %q", reason, test.reason)
			}
			if body != nil {
				t.Errorf("failed request carried a body of %d bytes", len(body))
			}
		})
	}
}

var failingSession = uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
