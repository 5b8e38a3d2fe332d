// Copyright (c) Microsoft. All rights reserved.

package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/app"
	"github.com/microsoft/agents-sdk/go/internal/testutil"
	"github.com/microsoft/agents-sdk/go/state"
	"github.com/microsoft/agents-sdk/go/storage"
)

func record(log *[]string, name string) app.RouteHandler {
	return func(context.Context, *agents.TurnContext, *state.TurnState) error {
		*log = append(*log, name)
		return nil
	}
}

func always(context.Context, *agents.TurnContext) (bool, error) { return true, nil }

func TestRouteOrder(t *testing.T) {
	a := app.New()
	var log []string
	require.NoError(t, a.OnMessage("a", record(&log, "a"), app.WithRank(10), app.WithLabel("a")))
	require.NoError(t, a.OnInvoke("b", record(&log, "b"), app.WithRank(500), app.WithLabel("b")))
	require.NoError(t, a.OnMessage("c", record(&log, "c"), app.WithRank(10), app.WithLabel("c")))
	require.NoError(t, a.OnMessage("d", record(&log, "d"), app.WithRank(app.RankFirst), app.WithLabel("d")))
	require.NoError(t, a.OnMessage("e", record(&log, "e"), app.WithLabel("e")))

	var labels []string
	for _, r := range a.Routes() {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, labels)
}

func TestFirstMatchRunsNonExclusiveRoutes(t *testing.T) {
	var log []string
	a := app.New()
	require.NoError(t, a.OnActivity(activity.TypeMessage, record(&log, "audit"), app.WithNonExclusive(), app.WithRank(app.RankFirst)))
	require.NoError(t, a.OnMessage("hello", record(&log, "hello")))
	require.NoError(t, a.OnActivity(activity.TypeMessage, record(&log, "fallback"), app.WithRank(app.RankLast)))

	adapter := testutil.NewTestAdapter()
	_, err := adapter.ProcessActivity(context.Background(), testutil.Message("Hello"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "hello"}, log)

	log = nil
	_, err = adapter.ProcessActivity(context.Background(), testutil.Message("other"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "fallback"}, log)
}

func TestFirstMatchRunsNonExclusiveRoutesRankedAfterExclusive(t *testing.T) {
	var log []string
	a := app.New()
	require.NoError(t, a.OnActivity(activity.TypeMessage, record(&log, "echo")))
	require.NoError(t, a.OnActivity(activity.TypeMessage, record(&log, "telemetry"), app.WithNonExclusive(), app.WithRank(app.RankLast)))
	require.NoError(t, a.OnActivity(activity.TypeMessage, record(&log, "unreached"), app.WithRank(app.RankLast)))

	_, err := testutil.NewTestAdapter().ProcessActivity(context.Background(), testutil.Message("hi"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "telemetry"}, log)
}

func TestAllMatches(t *testing.T) {
	var log []string
	a := app.New(app.WithDispatchMode(app.AllMatches))
	require.NoError(t, a.OnMessageRegexp(regexp.MustCompile(`^h`), record(&log, "h")))
	require.NoError(t, a.OnMessage("hello", record(&log, "hello")))
	require.NoError(t, a.OnEvent("hello", record(&log, "event")))

	_, err := testutil.NewTestAdapter().ProcessActivity(context.Background(), testutil.Message("hello"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "hello"}, log)
}

func TestUnmatchedInvokeReturns501(t *testing.T) {
	a := app.New()
	require.NoError(t, a.OnInvoke("known", func(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
		_, err := tc.SendActivity(ctx, activity.NewInvokeResponseActivity(200, map[string]any{"ok": true}))
		return err
	}))
	adapter := testutil.NewTestAdapter()

	tc, err := adapter.ProcessActivity(context.Background(), testutil.Invoke("unknown"), a)
	require.NoError(t, err)
	require.NotNil(t, tc.InvokeResponse())
	assert.Equal(t, 501, tc.InvokeResponse().Status)

	tc, err = adapter.ProcessActivity(context.Background(), testutil.Invoke("known"), a)
	require.NoError(t, err)
	require.NotNil(t, tc.InvokeResponse())
	assert.Equal(t, 200, tc.InvokeResponse().Status)
	assert.Empty(t, adapter.Sent(), "invoke responses are not sent through the adapter")
}

func TestInvokeRoutesOnlyMatchInvokes(t *testing.T) {
	var log []string
	r, err := app.NewRoute().WithSelector(always).WithHandler(record(&log, "invoke")).AsInvoke().Build()
	require.NoError(t, err)

	a := app.New()
	require.NoError(t, a.AddRoute(r))
	_, err = testutil.NewTestAdapter().ProcessActivity(context.Background(), testutil.Message("hi"), a)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestRouteBuilderErrors(t *testing.T) {
	h := func(context.Context, *agents.TurnContext, *state.TurnState) error { return nil }
	tests := []struct {
		name    string
		builder *app.RouteBuilder
		want    error
	}{
		{"demotion", app.NewRoute().WithSelector(always).WithHandler(h).AsInvoke().AsNonInvoke(), app.ErrInvokeDemotion},
		{"no selector", app.NewRoute().WithHandler(h), app.ErrInvalidRoute},
		{"no handler", app.NewRoute().WithSelector(always), app.ErrInvalidRoute},
		{"rank", app.NewRoute().WithSelector(always).WithHandler(h).WithRank(app.RankLast + 1), app.ErrInvalidRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			assert.ErrorIs(t, err, tt.want)
		})
	}

	r, err := app.NewRoute().WithSelector(always).WithHandler(h).AsNonInvoke().Build()
	require.NoError(t, err)
	assert.False(t, r.IsInvoke)
	assert.Equal(t, app.RankUnspecified, r.Rank)
}

func TestRoutesSealedAfterFirstTurn(t *testing.T) {
	a := app.New()
	_, err := testutil.NewTestAdapter().ProcessActivity(context.Background(), testutil.Message("hi"), a)
	require.NoError(t, err)

	h := func(context.Context, *agents.TurnContext, *state.TurnState) error { return nil }
	assert.ErrorIs(t, a.OnMessage("late", h), app.ErrRoutesSealed)
	assert.ErrorIs(t, a.OnBeforeTurn(func(context.Context, *agents.TurnContext, *state.TurnState) (bool, error) {
		return true, nil
	}), app.ErrRoutesSealed)
}

func TestStatePersistsAcrossTurns(t *testing.T) {
	store := storage.NewMemoryStorage()
	count := state.NewProperty[int](state.ScopeConversation, "count")
	a := app.New(app.WithStorage(store))
	require.NoError(t, a.OnActivity(activity.TypeMessage, func(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
		n, _, err := count.Get(ctx, tc)
		if err != nil {
			return err
		}
		n++
		if err := count.Set(ctx, tc, n); err != nil {
			return err
		}
		_, err = tc.SendText(ctx, fmt.Sprintf("turn %d", n))
		return err
	}))

	adapter := testutil.NewTestAdapter()
	for range 3 {
		_, err := adapter.ProcessActivity(context.Background(), testutil.Message("hi"), a)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"turn 1", "turn 2", "turn 3"}, adapter.SentTexts())
}

func TestHandlerErrorSkipsSave(t *testing.T) {
	store := storage.NewMemoryStorage()
	boom := errors.New("boom")
	a := app.New(app.WithStorage(store))
	require.NoError(t, a.OnActivity(activity.TypeMessage, func(_ context.Context, _ *agents.TurnContext, ts *state.TurnState) error {
		ts.Conversation().Set("partial", true)
		return boom
	}, app.WithLabel("failing")))

	var handled error
	a.OnTurnError(func(ctx context.Context, tc *agents.TurnContext, err error) error {
		handled = err
		_, serr := tc.SendText(ctx, "Sorry, something went wrong.")
		return serr
	})

	adapter := testutil.NewTestAdapter()
	_, err := adapter.ProcessActivity(context.Background(), testutil.Message("hi"), a)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, agents.ErrHandler)

	var he *agents.HandlerError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "failing", he.Handler)
	assert.Equal(t, err, handled)
	assert.Equal(t, []string{"Sorry, something went wrong."}, adapter.SentTexts())
	assert.Equal(t, 0, store.Len())
}

func TestBeforeTurnCanStopRouting(t *testing.T) {
	store := storage.NewMemoryStorage()
	var log []string
	a := app.New(app.WithStorage(store))
	require.NoError(t, a.OnBeforeTurn(func(_ context.Context, tc *agents.TurnContext, ts *state.TurnState) (bool, error) {
		ts.User().Set("seen", true)
		return tc.Activity().Text != "stop", nil
	}))
	require.NoError(t, a.OnAfterTurn(func(context.Context, *agents.TurnContext, *state.TurnState) (bool, error) {
		log = append(log, "after")
		return true, nil
	}))
	require.NoError(t, a.OnActivity(activity.TypeMessage, record(&log, "route")))

	adapter := testutil.NewTestAdapter()
	_, err := adapter.ProcessActivity(context.Background(), testutil.Message("stop"), a)
	require.NoError(t, err)
	assert.Empty(t, log)
	assert.Equal(t, 1, store.Len(), "state is saved when a hook stops the turn")

	_, err = adapter.ProcessActivity(context.Background(), testutil.Message("go"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"route", "after"}, log)
}

func TestConversationUpdateMembersAdded(t *testing.T) {
	a := app.New()
	require.NoError(t, a.OnConversationUpdate(app.MembersAdded, func(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
		for _, m := range tc.Activity().MembersAdded {
			if m.ID == tc.Activity().Recipient.ID {
				continue
			}
			if _, err := tc.SendText(ctx, "Welcome "+m.ID); err != nil {
				return err
			}
		}
		return nil
	}))
	adapter := testutil.NewTestAdapter()
	_, err := adapter.ProcessActivity(context.Background(), testutil.MembersAdded(testutil.AgentID, "alice"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome alice"}, adapter.SentTexts())
}

func TestMessageReaction(t *testing.T) {
	var log []string
	a := app.New()
	require.NoError(t, a.OnMessageReaction(app.ReactionsAdded, record(&log, "added")))
	require.NoError(t, a.OnMessageReaction(app.ReactionsRemoved, record(&log, "removed")))

	in := testutil.NewActivity(activity.TypeMessageReaction)
	in.ReactionsRemoved = []activity.MessageReaction{{Type: "like"}}
	_, err := testutil.NewTestAdapter().ProcessActivity(context.Background(), in, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"removed"}, log)
}

func TestRemoveRecipientMention(t *testing.T) {
	var got string
	a := app.New(app.WithRemoveRecipientMention(true))
	require.NoError(t, a.OnMessage("help", func(_ context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
		got = tc.Activity().Text
		return nil
	}))

	mention, err := json.Marshal(activity.Mention{
		Type:      "mention",
		Mentioned: activity.ChannelAccount{ID: testutil.AgentID, Name: "Agent"},
		Text:      "<at>Agent</at>",
	})
	require.NoError(t, err)
	in := testutil.Message("<at>Agent</at> help")
	in.Entities = []json.RawMessage{mention}

	_, err = testutil.NewTestAdapter().ProcessActivity(context.Background(), in, a)
	require.NoError(t, err)
	assert.Equal(t, "help", got)
}

func TestSerializeTurns(t *testing.T) {
	var active, peak int32
	a := app.New(app.WithSerializeTurns(true))
	require.NoError(t, a.OnActivity(activity.TypeMessage, func(context.Context, *agents.TurnContext, *state.TurnState) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}))

	adapter := testutil.NewTestAdapter()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.ProcessActivity(context.Background(), testutil.Message("hi"), a)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestSerializeTurnsHonorsContext(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	a := app.New(app.WithSerializeTurns(true))
	require.NoError(t, a.OnActivity(activity.TypeMessage, func(context.Context, *agents.TurnContext, *state.TurnState) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}))
	adapter := testutil.NewTestAdapter()

	done := make(chan error, 1)
	go func() {
		_, err := adapter.ProcessActivity(context.Background(), testutil.Message("first"), a)
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := adapter.ProcessActivity(ctx, testutil.Message("second"), a)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}
