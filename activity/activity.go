// Copyright (c) Microsoft. All rights reserved.

package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of an [Activity].
type Type string

const (
	TypeMessage            Type = "message"
	TypeEvent              Type = "event"
	TypeConversationUpdate Type = "conversationUpdate"
	TypeInvoke             Type = "invoke"
	TypeInvokeResponse     Type = "invokeResponse"
	TypeEndOfConversation  Type = "endOfConversation"
	TypeTyping             Type = "typing"
	TypeMessageReaction    Type = "messageReaction"
	TypeMessageUpdate      Type = "messageUpdate"
	TypeMessageDelete      Type = "messageDelete"
	TypeInstallationUpdate Type = "installationUpdate"
	TypeTrace              Type = "trace"
	TypeHandoff            Type = "handoff"
	TypeCommand            Type = "command"
	TypeCommandResult      Type = "commandResult"
)

// EndOfConversationCode explains why a conversation ended.
type EndOfConversationCode string

const (
	EndOfConversationUnknown                   EndOfConversationCode = "unknown"
	EndOfConversationCompletedSuccessfully     EndOfConversationCode = "completedSuccessfully"
	EndOfConversationUserCancelled             EndOfConversationCode = "userCancelled"
	EndOfConversationAgentTimedOut             EndOfConversationCode = "agentTimedOut"
	EndOfConversationAgentIssuedInvalidMessage EndOfConversationCode = "agentIssuedInvalidMessage"
	EndOfConversationChannelFailed             EndOfConversationCode = "channelFailed"
)

// DeliveryMode values understood by the hosting layer.
const (
	DeliveryModeNormal        = "normal"
	DeliveryModeExpectReplies = "expectReplies"
)

// InputHint values for outgoing messages.
const (
	InputHintAcceptingInput = "acceptingInput"
	InputHintExpectingInput = "expectingInput"
	InputHintIgnoringInput  = "ignoringInput"
)

// ErrInvalidActivity is returned by [Activity.Validate].
var ErrInvalidActivity = errors.New("invalid activity")

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AadObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// MessageReaction is a reaction added to or removed from a message.
type MessageReaction struct {
	Type string `json:"type"`
}

// Activity is the envelope for every message or event exchanged with a channel.
//
// Once an inbound activity has been dispatched it should be treated as
// immutable. Code that needs a modified copy (outbound sends, transcripts)
// works on [Activity.Clone].
type Activity struct {
	Type             Type                   `json:"type"`
	ID               string                 `json:"id,omitempty"`
	Timestamp        *time.Time             `json:"timestamp,omitempty"`
	LocalTimestamp   *time.Time             `json:"localTimestamp,omitempty"`
	ServiceURL       string                 `json:"serviceUrl,omitempty"`
	ChannelID        string                 `json:"channelId,omitempty"`
	From             ChannelAccount         `json:"from"`
	Conversation     ConversationAccount    `json:"conversation"`
	Recipient        ChannelAccount         `json:"recipient"`
	Text             string                 `json:"text,omitempty"`
	TextFormat       string                 `json:"textFormat,omitempty"`
	Locale           string                 `json:"locale,omitempty"`
	Speak            string                 `json:"speak,omitempty"`
	InputHint        string                 `json:"inputHint,omitempty"`
	ReplyToID        string                 `json:"replyToId,omitempty"`
	Name             string                 `json:"name,omitempty"`
	Label            string                 `json:"label,omitempty"`
	Code             EndOfConversationCode  `json:"code,omitempty"`
	Value            Value                  `json:"-"`
	ValueType        string                 `json:"valueType,omitempty"`
	MembersAdded     []ChannelAccount       `json:"membersAdded,omitempty"`
	MembersRemoved   []ChannelAccount       `json:"membersRemoved,omitempty"`
	ReactionsAdded   []MessageReaction      `json:"reactionsAdded,omitempty"`
	ReactionsRemoved []MessageReaction      `json:"reactionsRemoved,omitempty"`
	DeliveryMode     string                 `json:"deliveryMode,omitempty"`
	RelatesTo        *ConversationReference `json:"relatesTo,omitempty"`

	// Attachments, Entities and ChannelData are carried as opaque JSON; their
	// schemas belong to the channel.
	Attachments []json.RawMessage `json:"attachments,omitempty"`
	Entities    []json.RawMessage `json:"entities,omitempty"`
	ChannelData json.RawMessage   `json:"channelData,omitempty"`
}

// NewMessageActivity creates an outgoing message with the given text.
func NewMessageActivity(text string) *Activity {
	return &Activity{
		Type:      TypeMessage,
		Text:      text,
		InputHint: InputHintAcceptingInput,
	}
}

// NewTypingActivity creates a typing indicator.
func NewTypingActivity() *Activity {
	return &Activity{Type: TypeTyping}
}

// NewEndOfConversationActivity creates an endOfConversation activity carrying code.
func NewEndOfConversationActivity(code EndOfConversationCode, text string) *Activity {
	return &Activity{Type: TypeEndOfConversation, Code: code, Text: text}
}

// NewEventActivity creates a named event with an optional value.
func NewEventActivity(name string, value Value) *Activity {
	return &Activity{Type: TypeEvent, Name: name, Value: value}
}

// NewTraceActivity creates a trace activity. Channels other than the emulator
// drop trace activities.
func NewTraceActivity(name, valueType string, value Value, label string) *Activity {
	return &Activity{
		Type:      TypeTrace,
		Name:      name,
		ValueType: valueType,
		Value:     value,
		Label:     label,
	}
}

// NewInvokeResponseActivity wraps an invoke response so it can travel through
// the send pipeline back to the hosting layer.
func NewInvokeResponseActivity(status int, body any) *Activity {
	return &Activity{
		Type:  TypeInvokeResponse,
		Value: &InvokeResponseValue{Status: status, Body: body},
	}
}

// IsType reports whether the activity has the given type.
func (a *Activity) IsType(t Type) bool {
	return a != nil && a.Type == t
}

// Validate checks the fields the runtime needs to route an inbound activity.
func (a *Activity) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil activity", ErrInvalidActivity)
	}
	if a.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidActivity)
	}
	if a.Conversation.ID == "" {
		return fmt.Errorf("%w: conversation.id is required", ErrInvalidActivity)
	}
	if a.ChannelID == "" {
		return fmt.Errorf("%w: channelId is required", ErrInvalidActivity)
	}
	return nil
}

// CreateReply builds a message addressed back to the sender of a.
func (a *Activity) CreateReply(text string) *Activity {
	now := time.Now().UTC()
	return &Activity{
		Type:         TypeMessage,
		Timestamp:    &now,
		From:         a.Recipient,
		Recipient:    a.From,
		ReplyToID:    a.ID,
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		Conversation: a.Conversation,
		Text:         text,
		Locale:       a.Locale,
		InputHint:    InputHintAcceptingInput,
	}
}

// Clone returns a deep copy of the activity.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	if a.Timestamp != nil {
		ts := *a.Timestamp
		c.Timestamp = &ts
	}
	if a.LocalTimestamp != nil {
		ts := *a.LocalTimestamp
		c.LocalTimestamp = &ts
	}
	if a.RelatesTo != nil {
		r := *a.RelatesTo
		c.RelatesTo = &r
	}
	c.MembersAdded = append([]ChannelAccount(nil), a.MembersAdded...)
	c.MembersRemoved = append([]ChannelAccount(nil), a.MembersRemoved...)
	c.ReactionsAdded = append([]MessageReaction(nil), a.ReactionsAdded...)
	c.ReactionsRemoved = append([]MessageReaction(nil), a.ReactionsRemoved...)
	c.Attachments = cloneRawSlice(a.Attachments)
	c.Entities = cloneRawSlice(a.Entities)
	if a.ChannelData != nil {
		c.ChannelData = append(json.RawMessage(nil), a.ChannelData...)
	}
	c.Value = cloneValue(a.Value)
	return &c
}

// EnsureID assigns a random id when the activity has none.
func (a *Activity) EnsureID() string {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a.ID
}

func cloneRawSlice(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return nil
	}
	out := make([]json.RawMessage, len(in))
	for i, r := range in {
		out[i] = append(json.RawMessage(nil), r...)
	}
	return out
}
