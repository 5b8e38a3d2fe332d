// Copyright (c) Microsoft. All rights reserved.

package activity

import "time"

// ConversationReference captures enough of an activity to address the same
// conversation later, for example from a proactive message.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Agent        ChannelAccount      `json:"agent"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl"`
	Locale       string              `json:"locale,omitempty"`
}

// ConversationReference extracts a reference from an inbound activity.
func (a *Activity) ConversationReference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Agent:        a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyConversationReference addresses a using ref. When isIncoming is true,
// the activity is treated as coming from the user (proactive turns);
// otherwise it is addressed from the agent to the user and replies to the
// referenced activity.
func ApplyConversationReference(a *Activity, ref ConversationReference, isIncoming bool) *Activity {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	if ref.Locale != "" && a.Locale == "" {
		a.Locale = ref.Locale
	}

	if isIncoming {
		a.From = ref.User
		a.Recipient = ref.Agent
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
		return a
	}

	a.From = ref.Agent
	a.Recipient = ref.User
	if ref.ActivityID != "" && a.Type != TypeConversationUpdate && a.Type != TypeEndOfConversation && a.ReplyToID == "" {
		a.ReplyToID = ref.ActivityID
	}
	return a
}

// ContinueActivity builds the synthetic event used to resume a conversation
// proactively.
func ContinueActivity(ref ConversationReference) *Activity {
	now := time.Now().UTC()
	a := &Activity{Type: TypeEvent, Name: "ContinueConversation", Timestamp: &now}
	return ApplyConversationReference(a, ref, true)
}
