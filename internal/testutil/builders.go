// Copyright (c) Microsoft. All rights reserved.

package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/microsoft/agents-sdk/go/activity"
)

// Default addressing used by the builders.
const (
	ChannelID      = "test"
	ServiceURL     = "https://test.example.com/"
	ConversationID = "conv-1"
	UserID         = "user-1"
	AgentID        = "agent-1"
)

// ActivityOption customizes a built activity.
type ActivityOption func(*activity.Activity)

// WithConversation sets the conversation id.
func WithConversation(id string) ActivityOption {
	return func(a *activity.Activity) { a.Conversation.ID = id }
}

// WithUser sets the sender id.
func WithUser(id string) ActivityOption {
	return func(a *activity.Activity) { a.From.ID = id }
}

// WithDeliveryMode sets the delivery mode.
func WithDeliveryMode(mode string) ActivityOption {
	return func(a *activity.Activity) { a.DeliveryMode = mode }
}

// WithValue sets the activity value.
func WithValue(v activity.Value) ActivityOption {
	return func(a *activity.Activity) { a.Value = v }
}

// NewActivity builds an inbound activity of type t with test addressing.
func NewActivity(t activity.Type, opts ...ActivityOption) *activity.Activity {
	now := time.Now().UTC()
	a := &activity.Activity{
		Type:         t,
		ID:           uuid.NewString(),
		Timestamp:    &now,
		ChannelID:    ChannelID,
		ServiceURL:   ServiceURL,
		From:         activity.ChannelAccount{ID: UserID, Name: "User", Role: "user"},
		Recipient:    activity.ChannelAccount{ID: AgentID, Name: "Agent", Role: "bot"},
		Conversation: activity.ConversationAccount{ID: ConversationID},
		Locale:       "en-US",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Message builds an inbound message.
func Message(text string, opts ...ActivityOption) *activity.Activity {
	a := NewActivity(activity.TypeMessage, opts...)
	a.Text = text
	return a
}

// Event builds an inbound named event.
func Event(name string, opts ...ActivityOption) *activity.Activity {
	a := NewActivity(activity.TypeEvent, opts...)
	a.Name = name
	return a
}

// Invoke builds an inbound invoke.
func Invoke(name string, opts ...ActivityOption) *activity.Activity {
	a := NewActivity(activity.TypeInvoke, opts...)
	a.Name = name
	return a
}

// MembersAdded builds a conversationUpdate adding the given member ids.
func MembersAdded(ids ...string) *activity.Activity {
	a := NewActivity(activity.TypeConversationUpdate)
	for _, id := range ids {
		a.MembersAdded = append(a.MembersAdded, activity.ChannelAccount{ID: id})
	}
	return a
}
