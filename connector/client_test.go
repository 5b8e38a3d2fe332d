// Copyright (c) Microsoft. All rights reserved.

package connector_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/connector"
)

type staticToken string

func (s staticToken) GetAccessToken(context.Context, string, []string) (string, error) {
	return string(s), nil
}

func fastRetry() agents.RetryPolicy {
	return agents.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1}
}

func newClient(srv *httptest.Server, opts ...connector.Option) *connector.Client {
	opts = append([]connector.Option{
		connector.WithHTTPClient(srv.Client()),
		connector.WithRetryPolicy(fastRetry()),
	}, opts...)
	return connector.New(opts...)
}

func TestSendToConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/conversations/conv 1/activities", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		var a activity.Activity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		assert.Equal(t, "hi", a.Text)
		_ = json.NewEncoder(w).Encode(agents.ResourceResponse{ID: "act-1"})
	}))
	defer srv.Close()

	c := newClient(srv, connector.WithTokenProvider(staticToken("tok")), connector.WithUserAgent("test-agent"))
	res, err := c.SendToConversation(context.Background(), srv.URL+"/", "conv 1", activity.NewMessageActivity("hi"))
	require.NoError(t, err)
	assert.Equal(t, "act-1", res.ID)
}

func TestReplyUpdateDelete(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		assert.Empty(t, r.Header.Get("Authorization"))
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(agents.ResourceResponse{ID: "x"})
	}))
	defer srv.Close()

	c := newClient(srv)
	ctx := context.Background()
	_, err := c.ReplyToActivity(ctx, srv.URL, "c", "a1", activity.NewMessageActivity("r"))
	require.NoError(t, err)

	upd := activity.NewMessageActivity("u")
	upd.ID = "a2"
	_, err = c.UpdateActivity(ctx, srv.URL, "c", upd)
	require.NoError(t, err)
	require.NoError(t, c.DeleteActivity(ctx, srv.URL, "c", "a3"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /v3/conversations/c/activities/a1",
		"PUT /v3/conversations/c/activities/a2",
		"DELETE /v3/conversations/c/activities/a3",
	}, calls)

	_, err = c.UpdateActivity(ctx, srv.URL, "c", activity.NewMessageActivity("no id"))
	assert.ErrorIs(t, err, activity.ErrInvalidActivity)
}

func TestCreateConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/conversations", r.URL.Path)
		var p map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, map[string]any{"id": "agent"}, p["bot"])
		_ = json.NewEncoder(w).Encode(connector.ConversationResourceResponse{ID: "new-conv", ActivityID: "a"})
	}))
	defer srv.Close()

	res, err := newClient(srv).CreateConversation(context.Background(), srv.URL, connector.ConversationParameters{
		Agent:   activity.ChannelAccount{ID: "agent"},
		Members: []activity.ChannelAccount{{ID: "user"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-conv", res.ID)
}

func TestTransientErrorsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(agents.ResourceResponse{ID: "ok"})
	}))
	defer srv.Close()

	res, err := newClient(srv).SendToConversation(context.Background(), srv.URL, "c", activity.NewMessageActivity("x"))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.ID)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv).SendToConversation(context.Background(), srv.URL, "c", activity.NewMessageActivity("x"))
	require.ErrorIs(t, err, agents.ErrRetriesExhausted)

	var svcErr *connector.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientErrorsNotRetried(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, connector.ErrService},
		{http.StatusUnauthorized, agents.ErrAuth},
		{http.StatusNotFound, agents.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":"BadThing","message":"nope"}}`))
			}))
			defer srv.Close()

			_, err := newClient(srv).SendToConversation(context.Background(), srv.URL, "c", activity.NewMessageActivity("x"))
			require.ErrorIs(t, err, tt.want)
			assert.False(t, agents.IsTransient(err))

			var svcErr *connector.ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, "BadThing", svcErr.Code)
			assert.Equal(t, "nope", svcErr.Message)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestMissingServiceURL(t *testing.T) {
	_, err := connector.New().SendToConversation(context.Background(), "", "c", activity.NewMessageActivity("x"))
	assert.ErrorIs(t, err, activity.ErrInvalidActivity)
}
