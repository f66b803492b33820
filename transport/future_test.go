// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/schema"
)

func TestFutureResolveOnce(t *testing.T) {
	t.Parallel()
	future := NewFuture[int]()
	if _, err := future.Result(); !errors.Is(err, ErrPending) {
		t.Fatalf("Result before resolve: err = %v, want ErrPending", err)
	}

	var before []int
	future.Then(func(value int, err error) { before = append(before, value) })

	if !future.Resolve(7, nil) {
		t.Fatal("first Resolve reported false")
	}
	if future.Resolve(9, errors.New("late")) {
		t.Fatal("second Resolve reported true")
	}
	value, err := future.Result()
	if value != 7 || err != nil {
		t.Errorf("Result = %d, %v; want 7, nil", value, err)
	}
	if len(before) != 1 || before[0] != 7 {
		t.Errorf("callback registered before resolve saw %v", before)
	}

	var after int
	future.Then(func(value int, err error) { after = value })
	if after != 7 {
		t.Errorf("callback registered after resolve saw %d, want 7", after)
	}

	select {
	case <-future.Done():
	default:
		t.Error("Done is open after Resolve")
	}
}

func TestFutureDisarm(t *testing.T) {
	t.Parallel()
	future := NewFuture[string]()
	ran := false
	future.Then(func(string, error) { ran = true })
	future.Disarm()
	future.Then(func(string, error) { ran = true })
	future.Resolve("done", nil)

	if ran {
		t.Error("callback ran on a disarmed future")
	}
	if value, err := future.Result(); value != "done" || err != nil {
		t.Errorf("Result = %q, %v", value, err)
	}
}

func TestFutureWait(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFuture[int]().Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait on cancelled context: err = %v", err)
	}

	value, err := Resolved(3, nil).Wait(context.Background())
	if value != 3 || err != nil {
		t.Errorf("Wait = %d, %v; want 3, nil", value, err)
	}
}

type fakeRequester struct {
	kinds []schema.MessageKind
	body  codec.RawMessage
	err   error
}

func (r *fakeRequester) Request(kind schema.MessageKind, payload any, complete func(codec.RawMessage, error)) {
	r.kinds = append(r.kinds, kind)
	complete(r.body, r.err)
}

func TestCall(t *testing.T) {
	t.Parallel()
	requester := &fakeRequester{body: mustEncode(t, schema.GetSavedSessionNamesResponse{Names: []string{"harbor"}})}
	response, err := Call[schema.GetSavedSessionNamesResponse](requester, schema.KindGetSavedSessionNames, schema.GetSavedSessionNamesRequest{}).Result()
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(response.Names) != 1 || response.Names[0] != "harbor" {
		t.Errorf("names = %v", response.Names)
	}
	if requester.kinds[0] != schema.KindGetSavedSessionNames {
		t.Errorf("kind = %s", requester.kinds[0])
	}

	requester.body = mustEncode(t, "not a response")
	_, err = Call[schema.GetSavedSessionNamesResponse](requester, schema.KindGetSavedSessionNames, nil).Result()
	if !IsCode(err, schema.ResponseInvalidRequest) {
		t.Errorf("undecodable response: err = %v, want InvalidRequest", err)
	}

	requester.err = ErrClosed
	_, err = Call[schema.GetSavedSessionNamesResponse](requester, schema.KindGetSavedSessionNames, nil).Result()
	if !errors.Is(err, ErrClosed) {
		t.Errorf("closed: err = %v, want ErrClosed", err)
	}
}

func TestInboxOrder(t *testing.T) {
	t.Parallel()
	inbox := NewInbox()
	var order []int
	inbox.Post(func() {
		order = append(order, 1)
		inbox.Post(func() { order = append(order, 3) })
	})
	inbox.Post(func() { order = append(order, 2) })

	select {
	case <-inbox.Ready():
	default:
		t.Fatal("Ready did not fire after Post")
	}
	if inbox.Len() != 2 {
		t.Errorf("Len = %d, want 2", inbox.Len())
	}
	if ran := inbox.Pump(); ran != 3 {
		t.Errorf("Pump ran %d, want 3", ran)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
	if ran := inbox.Pump(); ran != 0 {
		t.Errorf("empty Pump ran %d", ran)
	}
}
