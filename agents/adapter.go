// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"context"

	"github.com/microsoft/agents-sdk/go/activity"
)

// ResourceResponse identifies an activity created or updated by a channel.
type ResourceResponse struct {
	ID string `json:"id"`
}

// TurnHandler processes one turn.
type TurnHandler func(ctx context.Context, tc *TurnContext) error

// Agent is the application logic invoked once per inbound activity.
type Agent interface {
	OnTurn(ctx context.Context, tc *TurnContext) error
}

// AgentFunc adapts a function to the [Agent] interface.
type AgentFunc func(ctx context.Context, tc *TurnContext) error

func (f AgentFunc) OnTurn(ctx context.Context, tc *TurnContext) error { return f(ctx, tc) }

// Adapter delivers outbound activities to a channel. A [TurnContext] calls
// it at the end of its send, update and delete pipelines.
type Adapter interface {
	SendActivities(ctx context.Context, tc *TurnContext, activities []*activity.Activity) ([]ResourceResponse, error)
	UpdateActivity(ctx context.Context, tc *TurnContext, a *activity.Activity) (ResourceResponse, error)
	DeleteActivity(ctx context.Context, tc *TurnContext, ref activity.ConversationReference) error

	// ContinueConversation runs handler in a new turn addressed by ref,
	// typically to send a proactive message.
	ContinueConversation(ctx context.Context, claims ClaimsIdentity, ref activity.ConversationReference, handler TurnHandler) error
}
