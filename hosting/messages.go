// Copyright (c) Microsoft. All rights reserved.

package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
)

const defaultMaxBodyBytes = 4 << 20

// RequestAuthenticator establishes the caller identity from an
// Authorization header. *authentication.JWTValidator satisfies it.
type RequestAuthenticator interface {
	ValidateHeader(ctx context.Context, header string) (agents.ClaimsIdentity, error)
}

type anonymousAuthenticator struct{}

func (anonymousAuthenticator) ValidateHeader(context.Context, string) (agents.ClaimsIdentity, error) {
	return agents.AnonymousIdentity(), nil
}

// Response is the transport-neutral result of handling one request.
type Response struct {
	Status int
	Body   any
}

// MessagesOption configures a [MessagesHandler].
type MessagesOption func(*MessagesHandler)

// WithAuthenticator sets how callers are authenticated. Without one every
// request is accepted as anonymous.
func WithAuthenticator(auth RequestAuthenticator) MessagesOption {
	return func(h *MessagesHandler) { h.auth = auth }
}

// WithAsync hands activities to q and answers 202 without waiting for the
// turn. Invoke and expectReplies requests still run synchronously since the
// channel waits for their response.
func WithAsync(q *ActivityTaskQueue) MessagesOption {
	return func(h *MessagesHandler) { h.queue = q }
}

// WithMaxBodyBytes limits the request body size.
func WithMaxBodyBytes(n int64) MessagesOption {
	return func(h *MessagesHandler) { h.maxBody = n }
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *slog.Logger) MessagesOption {
	return func(h *MessagesHandler) { h.logger = l }
}

// MessagesHandler serves the messages endpoint channels post activities to.
type MessagesHandler struct {
	adapter *CloudAdapter
	agent   agents.Agent
	auth    RequestAuthenticator
	queue   *ActivityTaskQueue
	maxBody int64
	logger  *slog.Logger
}

var _ http.Handler = (*MessagesHandler)(nil)

// NewMessagesHandler returns a handler running agent on adapter.
//
//	mux.Handle("POST /api/messages", hosting.NewMessagesHandler(adapter, agent,
//	    hosting.WithAuthenticator(validator)))
func NewMessagesHandler(adapter *CloudAdapter, agent agents.Agent, opts ...MessagesOption) *MessagesHandler {
	h := &MessagesHandler{
		adapter: adapter,
		agent:   agent,
		auth:    anonymousAuthenticator{},
		maxBody: defaultMaxBodyBytes,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
		return
	}
	res := h.Handle(r.Context(), r.Header, body)
	writeJSON(w, res.Status, res.Body)
}

// Handle authenticates and processes one posted activity. It is shared by
// the HTTP handler and serverless entrypoints.
func (h *MessagesHandler) Handle(ctx context.Context, header http.Header, body []byte) Response {
	claims, err := h.auth.ValidateHeader(ctx, header.Get("Authorization"))
	if err != nil {
		h.logger.WarnContext(ctx, "request rejected", slog.Any("error", err))
		return Response{Status: http.StatusUnauthorized, Body: errorBody("unauthorized")}
	}

	var act activity.Activity
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&act); err != nil {
		return Response{Status: http.StatusBadRequest, Body: errorBody("malformed activity")}
	}
	if err := act.Validate(); err != nil {
		return Response{Status: http.StatusBadRequest, Body: errorBody(err.Error())}
	}

	if h.queue != nil && !act.IsType(activity.TypeInvoke) && act.DeliveryMode != activity.DeliveryModeExpectReplies {
		err := h.queue.Enqueue(ActivityWithClaims{Claims: claims, Activity: &act, Headers: header.Clone()})
		if err != nil {
			return Response{Status: http.StatusServiceUnavailable, Body: errorBody("not accepting activities")}
		}
		return Response{Status: http.StatusAccepted}
	}

	invoke, err := h.adapter.Process(ctx, claims, &act, header, h.agent)
	switch {
	case errors.Is(err, activity.ErrInvalidActivity):
		return Response{Status: http.StatusBadRequest, Body: errorBody(err.Error())}
	case err != nil:
		return Response{Status: http.StatusInternalServerError, Body: errorBody("turn failed")}
	case invoke != nil:
		return Response{Status: invoke.Status, Body: invoke.Body}
	default:
		return Response{Status: http.StatusAccepted}
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
