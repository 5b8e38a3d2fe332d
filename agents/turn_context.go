// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/microsoft/agents-sdk/go/activity"
)

// SendActivitiesNext continues a send pipeline.
type SendActivitiesNext func(ctx context.Context) ([]ResourceResponse, error)

// UpdateActivityNext continues an update pipeline.
type UpdateActivityNext func(ctx context.Context) (ResourceResponse, error)

// DeleteActivityNext continues a delete pipeline.
type DeleteActivityNext func(ctx context.Context) error

// SendActivitiesHandler intercepts outbound activities. It may inspect or
// modify the activities and must call next to deliver them; returning
// without calling next suppresses the send.
type SendActivitiesHandler func(ctx context.Context, tc *TurnContext, activities []*activity.Activity, next SendActivitiesNext) ([]ResourceResponse, error)

// UpdateActivityHandler intercepts activity updates.
type UpdateActivityHandler func(ctx context.Context, tc *TurnContext, a *activity.Activity, next UpdateActivityNext) (ResourceResponse, error)

// DeleteActivityHandler intercepts activity deletes.
type DeleteActivityHandler func(ctx context.Context, tc *TurnContext, ref activity.ConversationReference, next DeleteActivityNext) error

// TurnContextOption configures a [TurnContext].
type TurnContextOption func(*TurnContext)

// WithIdentity sets the caller identity established by authentication.
func WithIdentity(id ClaimsIdentity) TurnContextOption {
	return func(tc *TurnContext) { tc.identity = id }
}

// WithHeaders carries inbound request headers into the turn. Headers are
// passed explicitly so nothing depends on ambient request state.
func WithHeaders(h http.Header) TurnContextOption {
	return func(tc *TurnContext) { tc.headers = h.Clone() }
}

// TurnContext is the per-turn handle given to middleware and agents. It
// exposes the inbound activity and the pipelines used to reply.
//
// A TurnContext is safe for concurrent use by the goroutines of one turn.
type TurnContext struct {
	adapter  Adapter
	activity *activity.Activity
	identity ClaimsIdentity
	headers  http.Header
	services *Services

	mu              sync.Mutex
	responded       bool
	bufferedReplies []*activity.Activity
	invokeResponse  *activity.InvokeResponseValue
	onSend          []SendActivitiesHandler
	onUpdate        []UpdateActivityHandler
	onDelete        []DeleteActivityHandler
}

// NewTurnContext creates a TurnContext for the inbound activity a.
func NewTurnContext(adapter Adapter, a *activity.Activity, opts ...TurnContextOption) *TurnContext {
	tc := &TurnContext{
		adapter:  adapter,
		activity: a,
		identity: AnonymousIdentity(),
		headers:  http.Header{},
		services: newServices(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Activity returns the inbound activity. Treat it as read-only.
func (tc *TurnContext) Activity() *activity.Activity { return tc.activity }

// Adapter returns the adapter that created this turn.
func (tc *TurnContext) Adapter() Adapter { return tc.adapter }

// Identity returns the authenticated caller identity.
func (tc *TurnContext) Identity() ClaimsIdentity { return tc.identity }

// Headers returns the inbound request headers.
func (tc *TurnContext) Headers() http.Header { return tc.headers }

// Services returns the per-turn value bag.
func (tc *TurnContext) Services() *Services { return tc.services }

// Responded reports whether a non-trace activity has been sent this turn.
func (tc *TurnContext) Responded() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.responded
}

// InvokeResponse returns the response recorded for an invoke activity, or nil.
func (tc *TurnContext) InvokeResponse() *activity.InvokeResponseValue {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.invokeResponse
}

// BufferedReplies returns the replies collected for an expectReplies turn.
func (tc *TurnContext) BufferedReplies() []*activity.Activity {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]*activity.Activity(nil), tc.bufferedReplies...)
}

// OnSendActivities registers a send interceptor. Interceptors run in
// registration order.
func (tc *TurnContext) OnSendActivities(h SendActivitiesHandler) *TurnContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onSend = append(tc.onSend, h)
	return tc
}

// OnUpdateActivity registers an update interceptor.
func (tc *TurnContext) OnUpdateActivity(h UpdateActivityHandler) *TurnContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onUpdate = append(tc.onUpdate, h)
	return tc
}

// OnDeleteActivity registers a delete interceptor.
func (tc *TurnContext) OnDeleteActivity(h DeleteActivityHandler) *TurnContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onDelete = append(tc.onDelete, h)
	return tc
}

// SendText sends a message with the given text.
func (tc *TurnContext) SendText(ctx context.Context, text string) (ResourceResponse, error) {
	return tc.SendActivity(ctx, activity.NewMessageActivity(text))
}

// SendTrace sends a trace activity. Only the emulator displays them.
func (tc *TurnContext) SendTrace(ctx context.Context, name string, value activity.Value, valueType, label string) (ResourceResponse, error) {
	return tc.SendActivity(ctx, activity.NewTraceActivity(name, valueType, value, label))
}

// SendActivity sends a single activity.
func (tc *TurnContext) SendActivity(ctx context.Context, a *activity.Activity) (ResourceResponse, error) {
	res, err := tc.SendActivities(ctx, []*activity.Activity{a})
	if err != nil {
		return ResourceResponse{}, err
	}
	if len(res) == 0 {
		return ResourceResponse{}, nil
	}
	return res[0], nil
}

// SendActivities addresses each activity from the inbound conversation, then
// runs them through the send interceptors and on to the adapter.
func (tc *TurnContext) SendActivities(ctx context.Context, activities []*activity.Activity) ([]ResourceResponse, error) {
	if len(activities) == 0 {
		return nil, nil
	}
	ref := tc.activity.ConversationReference()
	out := make([]*activity.Activity, 0, len(activities))
	for _, a := range activities {
		if a == nil {
			return nil, errors.New("send activities: nil activity")
		}
		c := activity.ApplyConversationReference(a.Clone(), ref, false)
		if c.Type == "" {
			c.Type = activity.TypeMessage
		}
		out = append(out, c)
	}

	tc.mu.Lock()
	handlers := append([]SendActivitiesHandler(nil), tc.onSend...)
	tc.mu.Unlock()

	var run func(ctx context.Context, i int) ([]ResourceResponse, error)
	run = func(ctx context.Context, i int) ([]ResourceResponse, error) {
		if i == len(handlers) {
			return tc.deliver(ctx, out)
		}
		return handlers[i](ctx, tc, out, func(ctx context.Context) ([]ResourceResponse, error) {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

// deliver is the end of the send pipeline. Invoke responses are recorded on
// the turn, expectReplies turns buffer, everything else goes to the adapter.
func (tc *TurnContext) deliver(ctx context.Context, activities []*activity.Activity) ([]ResourceResponse, error) {
	responses := make([]ResourceResponse, len(activities))
	var (
		toSend  []*activity.Activity
		indexes []int
	)
	expectReplies := tc.activity.DeliveryMode == activity.DeliveryModeExpectReplies

	tc.mu.Lock()
	for i, a := range activities {
		switch {
		case a.Type == activity.TypeInvokeResponse:
			if v, ok := a.Value.(*activity.InvokeResponseValue); ok {
				tc.invokeResponse = v
			}
		case expectReplies:
			a.EnsureID()
			tc.bufferedReplies = append(tc.bufferedReplies, a)
			responses[i] = ResourceResponse{ID: a.ID}
		default:
			toSend = append(toSend, a)
			indexes = append(indexes, i)
		}
	}
	tc.mu.Unlock()

	if len(toSend) > 0 {
		if tc.adapter == nil {
			return nil, fmt.Errorf("%w: no adapter", ErrAdapter)
		}
		sent, err := tc.adapter.SendActivities(ctx, tc, toSend)
		if err != nil {
			return nil, err
		}
		for j, r := range sent {
			if j < len(indexes) {
				responses[indexes[j]] = r
			}
		}
	}

	for _, a := range activities {
		if a.Type != activity.TypeTrace {
			tc.mu.Lock()
			tc.responded = true
			tc.mu.Unlock()
			break
		}
	}
	return responses, nil
}

// UpdateActivity replaces a previously sent activity.
func (tc *TurnContext) UpdateActivity(ctx context.Context, a *activity.Activity) (ResourceResponse, error) {
	if a == nil {
		return ResourceResponse{}, errors.New("update activity: nil activity")
	}
	c := activity.ApplyConversationReference(a.Clone(), tc.activity.ConversationReference(), false)

	tc.mu.Lock()
	handlers := append([]UpdateActivityHandler(nil), tc.onUpdate...)
	tc.mu.Unlock()

	var run func(ctx context.Context, i int) (ResourceResponse, error)
	run = func(ctx context.Context, i int) (ResourceResponse, error) {
		if i == len(handlers) {
			if tc.adapter == nil {
				return ResourceResponse{}, fmt.Errorf("%w: no adapter", ErrAdapter)
			}
			return tc.adapter.UpdateActivity(ctx, tc, c)
		}
		return handlers[i](ctx, tc, c, func(ctx context.Context) (ResourceResponse, error) {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

// DeleteActivity deletes a previously sent activity by id.
func (tc *TurnContext) DeleteActivity(ctx context.Context, activityID string) error {
	ref := tc.activity.ConversationReference()
	ref.ActivityID = activityID

	tc.mu.Lock()
	handlers := append([]DeleteActivityHandler(nil), tc.onDelete...)
	tc.mu.Unlock()

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(handlers) {
			if tc.adapter == nil {
				return fmt.Errorf("%w: no adapter", ErrAdapter)
			}
			return tc.adapter.DeleteActivity(ctx, tc, ref)
		}
		return handlers[i](ctx, tc, ref, func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}
