// Copyright (c) Microsoft. All rights reserved.

package hosting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/authentication"
	"github.com/microsoft/agents-sdk/go/connector"
)

// channelClientKey is the turn service key of the turn's [ChannelClient].
const channelClientKey = "hosting.ChannelClient"

// ChannelClient delivers activities to a channel service.
// *connector.Client satisfies this interface.
type ChannelClient interface {
	SendToConversation(ctx context.Context, serviceURL, conversationID string, a *activity.Activity) (agents.ResourceResponse, error)
	ReplyToActivity(ctx context.Context, serviceURL, conversationID, replyToID string, a *activity.Activity) (agents.ResourceResponse, error)
	UpdateActivity(ctx context.Context, serviceURL, conversationID string, a *activity.Activity) (agents.ResourceResponse, error)
	DeleteActivity(ctx context.Context, serviceURL, conversationID, activityID string) error
}

var _ ChannelClient = (*connector.Client)(nil)

// ClientFactory creates the client used to reply to a turn. audience, when
// set, is the resource outbound tokens are requested for.
type ClientFactory func(ctx context.Context, claims agents.ClaimsIdentity, serviceURL, audience string) (ChannelClient, error)

// TurnErrorHandler is called when a turn fails. Returning nil marks the
// failure handled; the host then answers the request normally.
type TurnErrorHandler func(ctx context.Context, tc *agents.TurnContext, err error) error

// InvokeResponse is the synchronous answer to an invoke or expectReplies
// request.
type InvokeResponse struct {
	Status int
	Body   any
}

// ExpectedReplies is the body returned for an expectReplies request.
type ExpectedReplies struct {
	Activities []*activity.Activity `json:"activities"`
}

// AdapterOption configures a [CloudAdapter].
type AdapterOption func(*CloudAdapter)

// WithConnections resolves outbound credentials through m. Without it,
// outbound calls are unauthenticated.
func WithConnections(m *authentication.ConnectionManager) AdapterOption {
	return func(a *CloudAdapter) { a.connections = m }
}

// WithConnectorOptions passes options to every connector client the
// adapter creates.
func WithConnectorOptions(opts ...connector.Option) AdapterOption {
	return func(a *CloudAdapter) { a.connectorOpts = append(a.connectorOpts, opts...) }
}

// WithClientFactory replaces the default connector-based client factory.
func WithClientFactory(f ClientFactory) AdapterOption {
	return func(a *CloudAdapter) { a.clients = f }
}

// WithMiddleware appends turn middleware. The first registered runs
// outermost.
func WithMiddleware(mws ...agents.Middleware) AdapterOption {
	return func(a *CloudAdapter) { a.middleware.Use(mws...) }
}

// WithOnTurnError sets the turn error handler.
func WithOnTurnError(h TurnErrorHandler) AdapterOption {
	return func(a *CloudAdapter) { a.onTurnError = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *CloudAdapter) { a.logger = l }
}

// CloudAdapter connects agents to channels over the connector REST API.
// It creates a turn for every inbound activity, runs the middleware
// pipeline and the agent, and sends replies back through a
// [ChannelClient].
type CloudAdapter struct {
	connections   *authentication.ConnectionManager
	connectorOpts []connector.Option
	clients       ClientFactory
	middleware    agents.MiddlewareSet
	onTurnError   TurnErrorHandler
	logger        *slog.Logger
}

var _ agents.Adapter = (*CloudAdapter)(nil)

// NewCloudAdapter creates a [CloudAdapter].
func NewCloudAdapter(opts ...AdapterOption) *CloudAdapter {
	a := &CloudAdapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.clients == nil {
		a.clients = a.connectorClient
	}
	return a
}

// Use appends turn middleware.
func (a *CloudAdapter) Use(mws ...agents.Middleware) *CloudAdapter {
	a.middleware.Use(mws...)
	return a
}

// OnTurnError sets the turn error handler.
func (a *CloudAdapter) OnTurnError(h TurnErrorHandler) { a.onTurnError = h }

func (a *CloudAdapter) connectorClient(_ context.Context, claims agents.ClaimsIdentity, serviceURL, audience string) (ChannelClient, error) {
	opts := append([]connector.Option{connector.WithLogger(a.logger)}, a.connectorOpts...)
	if a.connections != nil {
		p, err := a.connections.ForServiceURL(claims, serviceURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, connector.WithTokenProvider(p))
	}
	if audience != "" {
		opts = append(opts, connector.WithResource(audience))
	}
	return connector.New(opts...), nil
}

// Process runs one turn for an inbound activity. For invoke and
// expectReplies activities it returns the response the channel is waiting
// for; otherwise the response is nil.
func (a *CloudAdapter) Process(ctx context.Context, claims agents.ClaimsIdentity, act *activity.Activity, headers http.Header, agent agents.Agent) (*InvokeResponse, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: no agent", agents.ErrAdapter)
	}

	tc := agents.NewTurnContext(a, act, agents.WithIdentity(claims), agents.WithHeaders(headers))
	if err := a.runTurn(ctx, tc, "", agent.OnTurn); err != nil {
		return nil, err
	}

	if act.DeliveryMode == activity.DeliveryModeExpectReplies {
		return &InvokeResponse{
			Status: http.StatusOK,
			Body:   ExpectedReplies{Activities: tc.BufferedReplies()},
		}, nil
	}
	if act.IsType(activity.TypeInvoke) {
		if r := tc.InvokeResponse(); r != nil {
			return &InvokeResponse{Status: r.Status, Body: r.Body}, nil
		}
		return &InvokeResponse{Status: http.StatusNotImplemented}, nil
	}
	return nil, nil
}

// ContinueConversation runs handler in a proactive turn addressed by ref.
func (a *CloudAdapter) ContinueConversation(ctx context.Context, claims agents.ClaimsIdentity, ref activity.ConversationReference, handler agents.TurnHandler) error {
	return a.continueConversation(ctx, claims, ref, "", handler)
}

func (a *CloudAdapter) continueConversation(ctx context.Context, claims agents.ClaimsIdentity, ref activity.ConversationReference, audience string, handler agents.TurnHandler) error {
	if ref.ServiceURL == "" || ref.Conversation.ID == "" {
		return fmt.Errorf("%w: conversation reference needs a service url and conversation id", activity.ErrInvalidActivity)
	}
	tc := agents.NewTurnContext(a, activity.ContinueActivity(ref), agents.WithIdentity(claims))
	return a.runTurn(ctx, tc, audience, handler)
}

func (a *CloudAdapter) runTurn(ctx context.Context, tc *agents.TurnContext, audience string, handler agents.TurnHandler) error {
	act := tc.Activity()
	if act.DeliveryMode != activity.DeliveryModeExpectReplies {
		client, err := a.clients(ctx, tc.Identity(), act.ServiceURL, audience)
		if err != nil {
			return fmt.Errorf("%w: channel client: %w", agents.ErrAdapter, err)
		}
		tc.Services().Set(channelClientKey, client)
	}

	err := a.middleware.ReceiveActivity(ctx, tc, handler)
	if err == nil {
		return nil
	}
	a.logger.ErrorContext(ctx, "turn failed",
		slog.String("activity_type", string(act.Type)),
		slog.String("conversation_id", act.Conversation.ID),
		slog.Any("error", err))
	if a.onTurnError == nil {
		return err
	}
	if herr := a.onTurnError(ctx, tc, err); herr != nil {
		return errors.Join(err, herr)
	}
	return nil
}

func (a *CloudAdapter) channelClient(tc *agents.TurnContext) (ChannelClient, error) {
	c, ok := agents.Service[ChannelClient](tc, channelClientKey)
	if !ok {
		return nil, fmt.Errorf("%w: turn has no channel client", agents.ErrAdapter)
	}
	return c, nil
}

// SendActivities delivers activities in order. Replies to an activity are
// threaded under it when the channel supports it.
func (a *CloudAdapter) SendActivities(ctx context.Context, tc *agents.TurnContext, activities []*activity.Activity) ([]agents.ResourceResponse, error) {
	client, err := a.channelClient(tc)
	if err != nil {
		return nil, err
	}
	responses := make([]agents.ResourceResponse, 0, len(activities))
	for _, act := range activities {
		var (
			res agents.ResourceResponse
			err error
		)
		if act.ReplyToID != "" {
			res, err = client.ReplyToActivity(ctx, act.ServiceURL, act.Conversation.ID, act.ReplyToID, act)
		} else {
			res, err = client.SendToConversation(ctx, act.ServiceURL, act.Conversation.ID, act)
		}
		if err != nil {
			return responses, err
		}
		responses = append(responses, res)
	}
	return responses, nil
}

// UpdateActivity replaces a previously sent activity.
func (a *CloudAdapter) UpdateActivity(ctx context.Context, tc *agents.TurnContext, act *activity.Activity) (agents.ResourceResponse, error) {
	client, err := a.channelClient(tc)
	if err != nil {
		return agents.ResourceResponse{}, err
	}
	return client.UpdateActivity(ctx, act.ServiceURL, act.Conversation.ID, act)
}

// DeleteActivity deletes a previously sent activity.
func (a *CloudAdapter) DeleteActivity(ctx context.Context, tc *agents.TurnContext, ref activity.ConversationReference) error {
	client, err := a.channelClient(tc)
	if err != nil {
		return err
	}
	return client.DeleteActivity(ctx, ref.ServiceURL, ref.Conversation.ID, ref.ActivityID)
}

// DefaultOnTurnError tells the user something went wrong and sends the
// error text as a trace for the emulator.
func DefaultOnTurnError(ctx context.Context, tc *agents.TurnContext, err error) error {
	if _, serr := tc.SendText(ctx, "The agent encountered an error or bug."); serr != nil {
		return serr
	}
	msg, _ := json.Marshal(err.Error())
	_, serr := tc.SendTrace(ctx, "OnTurnError Trace", &activity.RawValue{JSON: msg}, "https://www.botframework.com/schemas/error", "TurnError")
	return serr
}

// EndOfConversationOnError ends the conversation with code unknown after a
// turn failure.
func EndOfConversationOnError(ctx context.Context, tc *agents.TurnContext, err error) error {
	_, serr := tc.SendActivity(ctx, activity.NewEndOfConversationActivity(activity.EndOfConversationUnknown, err.Error()))
	return serr
}
