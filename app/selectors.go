// Copyright (c) Microsoft. All rights reserved.

package app

import (
	"context"
	"regexp"
	"strings"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
)

// ConversationUpdateEvent names the change a conversationUpdate reports.
type ConversationUpdateEvent string

const (
	MembersAdded   ConversationUpdateEvent = "membersAdded"
	MembersRemoved ConversationUpdateEvent = "membersRemoved"
)

// MessageReactionEvent names the change a messageReaction reports.
type MessageReactionEvent string

const (
	ReactionsAdded   MessageReactionEvent = "reactionsAdded"
	ReactionsRemoved MessageReactionEvent = "reactionsRemoved"
)

// ActivityType selects activities of type t.
func ActivityType(t activity.Type) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		return tc.Activity().IsType(t), nil
	}
}

// MessageText selects messages whose trimmed text equals text, ignoring
// case. An empty text selects every message.
func MessageText(text string) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		a := tc.Activity()
		if !a.IsType(activity.TypeMessage) {
			return false, nil
		}
		return text == "" || strings.EqualFold(strings.TrimSpace(a.Text), text), nil
	}
}

// MessageRegexp selects messages whose text matches re.
func MessageRegexp(re *regexp.Regexp) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		a := tc.Activity()
		return a.IsType(activity.TypeMessage) && re.MatchString(a.Text), nil
	}
}

// ConversationUpdate selects conversationUpdate activities reporting event.
func ConversationUpdate(event ConversationUpdateEvent) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		a := tc.Activity()
		if !a.IsType(activity.TypeConversationUpdate) {
			return false, nil
		}
		switch event {
		case MembersAdded:
			return len(a.MembersAdded) > 0, nil
		case MembersRemoved:
			return len(a.MembersRemoved) > 0, nil
		default:
			return false, nil
		}
	}
}

// MessageReaction selects messageReaction activities reporting event.
func MessageReaction(event MessageReactionEvent) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		a := tc.Activity()
		if !a.IsType(activity.TypeMessageReaction) {
			return false, nil
		}
		switch event {
		case ReactionsAdded:
			return len(a.ReactionsAdded) > 0, nil
		case ReactionsRemoved:
			return len(a.ReactionsRemoved) > 0, nil
		default:
			return false, nil
		}
	}
}

// EventName selects event activities with the given name.
func EventName(name string) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		a := tc.Activity()
		return a.IsType(activity.TypeEvent) && a.Name == name, nil
	}
}

// InvokeName selects invoke activities with the given name.
func InvokeName(name string) RouteSelector {
	return func(_ context.Context, tc *agents.TurnContext) (bool, error) {
		a := tc.Activity()
		return a.IsType(activity.TypeInvoke) && a.Name == name, nil
	}
}
