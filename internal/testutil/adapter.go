// Copyright (c) Microsoft. All rights reserved.

// Package testutil provides an in-memory adapter and activity builders for
// package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
)

// TestAdapter is an agents.Adapter that records outbound traffic instead of
// calling a channel.
type TestAdapter struct {
	middleware agents.MiddlewareSet

	mu      sync.Mutex
	sent    []*activity.Activity
	updated []*activity.Activity
	deleted []activity.ConversationReference
	nextID  int

	// SendErr, when set, is returned by SendActivities.
	SendErr error
}

var _ agents.Adapter = (*TestAdapter)(nil)

// NewTestAdapter creates a TestAdapter running the given middleware.
func NewTestAdapter(mws ...agents.Middleware) *TestAdapter {
	a := &TestAdapter{}
	a.middleware.Use(mws...)
	return a
}

// Use appends middleware.
func (a *TestAdapter) Use(mws ...agents.Middleware) *TestAdapter {
	a.middleware.Use(mws...)
	return a
}

// ProcessActivity runs one turn for in through the middleware and agent and
// returns the turn context for inspection.
func (a *TestAdapter) ProcessActivity(ctx context.Context, in *activity.Activity, agent agents.Agent) (*agents.TurnContext, error) {
	tc := agents.NewTurnContext(a, in)
	err := a.middleware.ReceiveActivity(ctx, tc, agent.OnTurn)
	return tc, err
}

func (a *TestAdapter) SendActivities(_ context.Context, _ *agents.TurnContext, activities []*activity.Activity) ([]agents.ResourceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		return nil, a.SendErr
	}
	out := make([]agents.ResourceResponse, len(activities))
	for i, act := range activities {
		a.nextID++
		id := act.ID
		if id == "" {
			id = fmt.Sprintf("sent-%d", a.nextID)
		}
		out[i] = agents.ResourceResponse{ID: id}
		a.sent = append(a.sent, act.Clone())
	}
	return out, nil
}

func (a *TestAdapter) UpdateActivity(_ context.Context, _ *agents.TurnContext, act *activity.Activity) (agents.ResourceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updated = append(a.updated, act.Clone())
	return agents.ResourceResponse{ID: act.ID}, nil
}

func (a *TestAdapter) DeleteActivity(_ context.Context, _ *agents.TurnContext, ref activity.ConversationReference) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, ref)
	return nil
}

func (a *TestAdapter) ContinueConversation(ctx context.Context, claims agents.ClaimsIdentity, ref activity.ConversationReference, handler agents.TurnHandler) error {
	tc := agents.NewTurnContext(a, activity.ContinueActivity(ref), agents.WithIdentity(claims))
	return a.middleware.ReceiveActivity(ctx, tc, handler)
}

// Sent returns the activities sent so far.
func (a *TestAdapter) Sent() []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*activity.Activity(nil), a.sent...)
}

// SentTexts returns the text of every sent message activity.
func (a *TestAdapter) SentTexts() []string {
	var out []string
	for _, act := range a.Sent() {
		if act.Type == activity.TypeMessage {
			out = append(out, act.Text)
		}
	}
	return out
}

// SentOfType returns the sent activities with the given type.
func (a *TestAdapter) SentOfType(t activity.Type) []*activity.Activity {
	var out []*activity.Activity
	for _, act := range a.Sent() {
		if act.Type == t {
			out = append(out, act)
		}
	}
	return out
}

// Updated returns the activities passed to UpdateActivity.
func (a *TestAdapter) Updated() []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*activity.Activity(nil), a.updated...)
}

// Deleted returns the references passed to DeleteActivity.
func (a *TestAdapter) Deleted() []activity.ConversationReference {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activity.ConversationReference(nil), a.deleted...)
}

// Reset clears recorded traffic.
func (a *TestAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent, a.updated, a.deleted = nil, nil, nil
}
