// Copyright (c) Microsoft. All rights reserved.

package agents_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/internal/testutil"
)

func TestSendActivity_AddressesFromInbound(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	in := testutil.Message("hi")
	tc := agents.NewTurnContext(adapter, in)

	out := activity.NewMessageActivity("hello")
	if _, err := tc.SendActivity(context.Background(), out); err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Conversation.ID != "" {
		t.Error("caller's activity should not be mutated")
	}

	sent := adapter.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d activities, want 1", len(sent))
	}
	got := sent[0]
	if got.Conversation.ID != in.Conversation.ID || got.Recipient.ID != in.From.ID || got.From.ID != in.Recipient.ID {
		t.Errorf("outbound not addressed from inbound: %+v", got)
	}
	if got.ReplyToID != in.ID {
		t.Errorf("ReplyToID = %q, want %q", got.ReplyToID, in.ID)
	}
	if !tc.Responded() {
		t.Error("Responded should be true after a message")
	}
}

func TestSendTrace_DoesNotMarkResponded(t *testing.T) {
	tc := agents.NewTurnContext(testutil.NewTestAdapter(), testutil.Message("hi"))
	if _, err := tc.SendTrace(context.Background(), "debug", nil, "", "label"); err != nil {
		t.Fatalf("trace: %v", err)
	}
	if tc.Responded() {
		t.Error("trace activities should not mark the turn as responded")
	}
}

func TestOnSendActivities_RegistrationOrderAndShortCircuit(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	tc := agents.NewTurnContext(adapter, testutil.Message("hi"))

	var order []string
	tc.OnSendActivities(func(ctx context.Context, tc *agents.TurnContext, acts []*activity.Activity, next agents.SendActivitiesNext) ([]agents.ResourceResponse, error) {
		order = append(order, "first")
		for _, a := range acts {
			a.Text = "[" + a.Text + "]"
		}
		return next(ctx)
	})
	tc.OnSendActivities(func(ctx context.Context, tc *agents.TurnContext, acts []*activity.Activity, next agents.SendActivitiesNext) ([]agents.ResourceResponse, error) {
		order = append(order, "second")
		if acts[0].Text == "[secret]" {
			return nil, nil
		}
		return next(ctx)
	})

	ctx := context.Background()
	if _, err := tc.SendText(ctx, "public"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := tc.SendText(ctx, "secret"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if want := []string{"first", "second", "first", "second"}; len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if got := adapter.SentTexts(); len(got) != 1 || got[0] != "[public]" {
		t.Errorf("sent = %v, want [[public]]", got)
	}
}

func TestUpdateAndDeleteInterceptors(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	tc := agents.NewTurnContext(adapter, testutil.Message("hi"))

	var updates, deletes int
	tc.OnUpdateActivity(func(ctx context.Context, tc *agents.TurnContext, a *activity.Activity, next agents.UpdateActivityNext) (agents.ResourceResponse, error) {
		updates++
		return next(ctx)
	})
	tc.OnDeleteActivity(func(ctx context.Context, tc *agents.TurnContext, ref activity.ConversationReference, next agents.DeleteActivityNext) error {
		deletes++
		if ref.ActivityID == "keep" {
			return nil
		}
		return next(ctx)
	})

	ctx := context.Background()
	upd := activity.NewMessageActivity("new text")
	upd.ID = "m1"
	if _, err := tc.UpdateActivity(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tc.DeleteActivity(ctx, "keep"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tc.DeleteActivity(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if updates != 1 || deletes != 2 {
		t.Errorf("updates=%d deletes=%d", updates, deletes)
	}
	if got := adapter.Updated(); len(got) != 1 || got[0].ID != "m1" || got[0].Conversation.ID != testutil.ConversationID {
		t.Errorf("updated = %+v", got)
	}
	if got := adapter.Deleted(); len(got) != 1 || got[0].ActivityID != "m1" {
		t.Errorf("deleted = %+v", got)
	}
}

func TestExpectRepliesBuffers(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	tc := agents.NewTurnContext(adapter, testutil.Message("hi", testutil.WithDeliveryMode(activity.DeliveryModeExpectReplies)))

	res, err := tc.SendText(context.Background(), "one")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.ID == "" {
		t.Error("buffered reply should be assigned an id")
	}
	if len(adapter.Sent()) != 0 {
		t.Error("expectReplies turn should not call the adapter")
	}
	if got := tc.BufferedReplies(); len(got) != 1 || got[0].Text != "one" {
		t.Errorf("buffered = %+v", got)
	}
}

func TestInvokeResponseIsCaptured(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	tc := agents.NewTurnContext(adapter, testutil.Invoke("custom/op"))

	if _, err := tc.SendActivity(context.Background(), activity.NewInvokeResponseActivity(200, map[string]any{"ok": true})); err != nil {
		t.Fatalf("send: %v", err)
	}
	ir := tc.InvokeResponse()
	if ir == nil || ir.Status != 200 {
		t.Fatalf("InvokeResponse = %+v", ir)
	}
	if len(adapter.Sent()) != 0 {
		t.Error("invoke responses are not sent to the channel")
	}
}

func TestSendErrorPropagates(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	adapter.SendErr = errors.New("channel down")
	tc := agents.NewTurnContext(adapter, testutil.Message("hi"))
	if _, err := tc.SendText(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if tc.Responded() {
		t.Error("failed send should not mark the turn as responded")
	}
}

func TestHeadersAndIdentity(t *testing.T) {
	h := http.Header{}
	h.Set("X-Ms-Conversation-Id", "abc")
	id := agents.NewClaimsIdentity(map[string]string{agents.ClaimAudience: "app-1"})

	tc := agents.NewTurnContext(testutil.NewTestAdapter(), testutil.Message("hi"), agents.WithHeaders(h), agents.WithIdentity(id))
	h.Set("X-Ms-Conversation-Id", "changed")

	if got := tc.Headers().Get("X-Ms-Conversation-Id"); got != "abc" {
		t.Errorf("header = %q, want abc", got)
	}
	if tc.Identity().Audience() != "app-1" || !tc.Identity().IsAuthenticated {
		t.Errorf("identity = %+v", tc.Identity())
	}
}

func TestServices(t *testing.T) {
	tc := agents.NewTurnContext(testutil.NewTestAdapter(), testutil.Message("hi"))
	tc.Services().Set("counter", 41)

	n, ok := agents.Service[int](tc, "counter")
	if !ok || n != 41 {
		t.Errorf("Service[int] = %d, %v", n, ok)
	}
	if _, ok := agents.Service[string](tc, "counter"); ok {
		t.Error("wrong type should not match")
	}
	tc.Services().Delete("counter")
	if _, ok := tc.Services().Get("counter"); ok {
		t.Error("value should be deleted")
	}
}

func TestContinueConversation(t *testing.T) {
	adapter := testutil.NewTestAdapter()
	ref := testutil.Message("hi").ConversationReference()

	err := adapter.ContinueConversation(context.Background(), agents.AnonymousIdentity(), ref, func(ctx context.Context, tc *agents.TurnContext) error {
		_, err := tc.SendText(ctx, "proactive")
		return err
	})
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	sent := adapter.Sent()
	if len(sent) != 1 || sent[0].Recipient.ID != testutil.UserID {
		t.Errorf("sent = %+v", sent)
	}
}
