// Copyright (c) Microsoft. All rights reserved.

package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
)

// ConversationParameters describes a conversation to create.
type ConversationParameters struct {
	IsGroup     bool                      `json:"isGroup,omitempty"`
	Agent       activity.ChannelAccount   `json:"bot"`
	Members     []activity.ChannelAccount `json:"members,omitempty"`
	TopicName   string                    `json:"topicName,omitempty"`
	TenantID    string                    `json:"tenantId,omitempty"`
	Activity    *activity.Activity        `json:"activity,omitempty"`
	ChannelData json.RawMessage           `json:"channelData,omitempty"`
}

// ConversationResourceResponse is returned by [Client.CreateConversation].
type ConversationResourceResponse struct {
	ID         string `json:"id"`
	ServiceURL string `json:"serviceUrl,omitempty"`
	ActivityID string `json:"activityId,omitempty"`
}

// Client calls the conversations API of a channel service. Use [New] to
// create one. A Client is safe for concurrent use.
type Client struct {
	tp     *httpTransport
	retry  agents.RetryPolicy
	logger *slog.Logger
}

// New creates a [Client].
//
//	client := connector.New(connector.WithTokenProvider(provider))
//	res, err := client.SendToConversation(ctx, a.ServiceURL, a.Conversation.ID, reply)
func New(opts ...Option) *Client {
	cfg := &clientConfig{retry: agents.DefaultRetryPolicy(), logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	return &Client{tp: newHTTPTransport(cfg), retry: cfg.retry, logger: cfg.logger}
}

// SendToConversation appends a to the end of the conversation.
func (c *Client) SendToConversation(ctx context.Context, serviceURL, conversationID string, a *activity.Activity) (agents.ResourceResponse, error) {
	var res agents.ResourceResponse
	err := c.call(ctx, "send to conversation", http.MethodPost, serviceURL, activitiesPath(conversationID, ""), a, &res)
	return res, err
}

// ReplyToActivity sends a as a reply to the activity replyToID.
func (c *Client) ReplyToActivity(ctx context.Context, serviceURL, conversationID, replyToID string, a *activity.Activity) (agents.ResourceResponse, error) {
	var res agents.ResourceResponse
	err := c.call(ctx, "reply to activity", http.MethodPost, serviceURL, activitiesPath(conversationID, replyToID), a, &res)
	return res, err
}

// UpdateActivity replaces the activity a.ID.
func (c *Client) UpdateActivity(ctx context.Context, serviceURL, conversationID string, a *activity.Activity) (agents.ResourceResponse, error) {
	if a.ID == "" {
		return agents.ResourceResponse{}, fmt.Errorf("%w: update requires an activity id", activity.ErrInvalidActivity)
	}
	var res agents.ResourceResponse
	err := c.call(ctx, "update activity", http.MethodPut, serviceURL, activitiesPath(conversationID, a.ID), a, &res)
	return res, err
}

// DeleteActivity removes the activity activityID.
func (c *Client) DeleteActivity(ctx context.Context, serviceURL, conversationID, activityID string) error {
	return c.call(ctx, "delete activity", http.MethodDelete, serviceURL, activitiesPath(conversationID, activityID), nil, nil)
}

// CreateConversation starts a new conversation.
func (c *Client) CreateConversation(ctx context.Context, serviceURL string, params ConversationParameters) (ConversationResourceResponse, error) {
	var res ConversationResourceResponse
	err := c.call(ctx, "create conversation", http.MethodPost, serviceURL, "/v3/conversations", params, &res)
	return res, err
}

func (c *Client) call(ctx context.Context, op, method, serviceURL, path string, body, out any) error {
	if serviceURL == "" {
		return fmt.Errorf("%w: %s: missing service url", activity.ErrInvalidActivity, op)
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}
	err := agents.Retry(ctx, c.retry, op, func(ctx context.Context) error {
		err := c.tp.do(ctx, method, serviceURL, path, payload, out)
		if err != nil && agents.IsTransient(err) {
			c.logger.DebugContext(ctx, "channel call failed", slog.String("op", op), slog.Any("error", err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func activitiesPath(conversationID, activityID string) string {
	p := "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if activityID != "" {
		p += "/" + url.PathEscape(activityID)
	}
	return p
}
