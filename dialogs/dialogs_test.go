// Copyright (c) Microsoft. All rights reserved.

package dialogs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/dialogs"
	"github.com/microsoft/agents-sdk/go/internal/testutil"
	"github.com/microsoft/agents-sdk/go/state"
	"github.com/microsoft/agents-sdk/go/storage"
)

// harness runs turns against a dialog set with state persisted between them.
type harness struct {
	t       *testing.T
	adapter *testutil.TestAdapter
	store   *storage.MemoryStorage
	set     *dialogs.DialogSet
	rootID  string
	options any
}

func newHarness(t *testing.T, rootID string, options any, ds ...dialogs.Dialog) *harness {
	t.Helper()
	set := dialogs.NewDialogSet(dialogs.NewStateAccessor("dialogState"))
	require.NoError(t, set.Add(ds...))
	return &harness{
		t:       t,
		adapter: testutil.NewTestAdapter(),
		store:   storage.NewMemoryStorage(),
		set:     set,
		rootID:  rootID,
		options: options,
	}
}

func (h *harness) turn(a *activity.Activity) dialogs.DialogTurnResult {
	h.t.Helper()
	ctx := context.Background()
	tc := agents.NewTurnContext(h.adapter, a)
	ts := state.NewTurnState(h.store).Attach(tc)
	require.NoError(h.t, ts.LoadAll(ctx, tc, false))
	res, err := h.set.Run(ctx, tc, h.rootID, h.options)
	require.NoError(h.t, err)
	require.NoError(h.t, ts.SaveAll(ctx, false))
	return res
}

func (h *harness) say(text string) dialogs.DialogTurnResult {
	h.t.Helper()
	return h.turn(testutil.Message(text))
}

// stack reloads the persisted stack in a fresh turn.
func (h *harness) stack() []dialogs.DialogInstance {
	h.t.Helper()
	ctx := context.Background()
	tc := agents.NewTurnContext(h.adapter, testutil.Message("peek"))
	ts := state.NewTurnState(h.store).Attach(tc)
	require.NoError(h.t, ts.LoadAll(ctx, tc, false))
	dc, err := h.set.CreateContext(ctx, tc)
	require.NoError(h.t, err)
	return dc.Stack()
}

func TestPromptRetryThenComplete(t *testing.T) {
	longEnough := func(_ context.Context, pc dialogs.PromptValidatorContext[string]) (bool, error) {
		return pc.Recognized.Succeeded && len(pc.Recognized.Value) > 5, nil
	}
	h := newHarness(t, "A", dialogs.PromptOptions{
		Prompt:      activity.NewMessageActivity("Tell me something."),
		RetryPrompt: activity.NewMessageActivity("A bit longer, please."),
	}, dialogs.NewTextPrompt("A", longEnough))

	res := h.say("start")
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	assert.Equal(t, []string{"Tell me something."}, h.adapter.SentTexts())

	res = h.say("hello")
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	assert.Equal(t, []string{"Tell me something.", "A bit longer, please."}, h.adapter.SentTexts())

	stack := h.stack()
	require.Len(t, stack, 1)
	assert.Equal(t, "A", stack[0].ID)
	assert.Equal(t, 2, dialogs.AttemptCount(&stack[0]))

	res = h.say("hello world")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, "hello world", res.Result)
	assert.True(t, res.ParentEnded)
	assert.Empty(t, h.stack())
}

func TestRepromptAfterReload(t *testing.T) {
	h := newHarness(t, "p", dialogs.PromptOptions{
		Prompt:      activity.NewMessageActivity("Name?"),
		RetryPrompt: activity.NewMessageActivity("Your name, please."),
	}, dialogs.NewTextPrompt("p", nil))
	h.say("hi")
	require.Equal(t, 1, dialogs.AttemptCount(&h.stack()[0]))

	ctx := context.Background()
	tc := agents.NewTurnContext(h.adapter, testutil.Event("reminder"))
	ts := state.NewTurnState(h.store).Attach(tc)
	require.NoError(t, ts.LoadAll(ctx, tc, false))
	dc, err := h.set.CreateContext(ctx, tc)
	require.NoError(t, err)
	require.NoError(t, dc.RepromptDialog(ctx))
	require.NoError(t, ts.SaveAll(ctx, false))

	assert.Equal(t, []string{"Name?", "Name?"}, h.adapter.SentTexts())
	stack := h.stack()
	require.Len(t, stack, 1)
	assert.Equal(t, 1, dialogs.AttemptCount(&stack[0]))
}

func TestRepromptOnEmptyStack(t *testing.T) {
	h := newHarness(t, "p", nil, dialogs.NewTextPrompt("p", nil))
	ctx := context.Background()
	tc := agents.NewTurnContext(h.adapter, testutil.Message("hi"))
	ts := state.NewTurnState(h.store).Attach(tc)
	require.NoError(t, ts.LoadAll(ctx, tc, false))
	dc, err := h.set.CreateContext(ctx, tc)
	require.NoError(t, err)
	require.NoError(t, dc.RepromptDialog(ctx))
	assert.Empty(t, h.adapter.Sent())
}

func TestPromptSetsExpectingInput(t *testing.T) {
	h := newHarness(t, "p", dialogs.PromptOptions{Prompt: activity.NewMessageActivity("Name?")},
		dialogs.NewTextPrompt("p", nil))
	h.say("hi")
	sent := h.adapter.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, activity.InputHintExpectingInput, sent[0].InputHint)
}

func TestWaterfallWithPrompts(t *testing.T) {
	root := dialogs.NewWaterfallDialog("root",
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.Prompt(ctx, "name", dialogs.PromptOptions{Prompt: activity.NewMessageActivity("Name?")})
		},
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			step.Values["name"] = step.Result
			return step.Prompt(ctx, "age", dialogs.PromptOptions{
				Prompt:      activity.NewMessageActivity("Age?"),
				RetryPrompt: activity.NewMessageActivity("Age as a number?"),
			})
		},
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.EndDialog(ctx, fmt.Sprintf("%v is %v", step.Values["name"], step.Result))
		},
	)
	h := newHarness(t, "root", nil, root, dialogs.NewTextPrompt("name", nil), dialogs.NewNumberPrompt("age", nil))

	assert.Equal(t, dialogs.StatusWaiting, h.say("hi").Status)
	assert.Equal(t, dialogs.StatusWaiting, h.say("Ada").Status)

	ids := func() []string {
		var out []string
		for _, f := range h.stack() {
			out = append(out, f.ID)
		}
		return out
	}
	assert.Equal(t, []string{"root", "age"}, ids())

	assert.Equal(t, dialogs.StatusWaiting, h.say("old enough").Status)
	res := h.say("I am 36")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, "Ada is 36", res.Result)
	assert.Equal(t, []string{"Name?", "Age?", "Age as a number?"}, h.adapter.SentTexts())
	assert.Empty(t, ids())
}

func TestWaterfallNextAndNonMessage(t *testing.T) {
	var seen []int
	wf := dialogs.NewWaterfallDialog("wf").
		AddStep(func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			seen = append(seen, step.Index)
			return step.Next(ctx, "skipped")
		}).
		AddStep(func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			seen = append(seen, step.Index)
			assert.Equal(t, "skipped", step.Result)
			return dialogs.EndOfTurn, nil
		}).
		AddStep(func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			seen = append(seen, step.Index)
			return step.EndDialog(ctx, step.Result)
		})
	h := newHarness(t, "wf", nil, wf)

	assert.Equal(t, dialogs.StatusWaiting, h.say("go").Status)
	assert.Equal(t, []int{0, 1}, seen)

	assert.Equal(t, dialogs.StatusWaiting, h.turn(testutil.Event("ping")).Status)
	assert.Equal(t, []int{0, 1}, seen)

	res := h.say("done")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, "done", res.Result)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestNextTwiceFails(t *testing.T) {
	wf := dialogs.NewWaterfallDialog("wf",
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			if _, err := step.Next(ctx, nil); err != nil {
				return dialogs.DialogTurnResult{}, err
			}
			return step.Next(ctx, nil)
		},
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return dialogs.EndOfTurn, nil
		},
	)
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(wf))
	dc := dialogs.NewDialogContext(set, newTurn(), nil)
	_, err := dc.BeginDialog(context.Background(), "wf", nil)
	assert.ErrorIs(t, err, dialogs.ErrNextCalled)
}

func newTurn() *agents.TurnContext {
	return agents.NewTurnContext(testutil.NewTestAdapter(), testutil.Message("x"))
}

func TestEndDialogOnLastFrame(t *testing.T) {
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(dialogs.NewWaterfallDialog("only",
		func(context.Context, *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return dialogs.EndOfTurn, nil
		})))
	ctx := context.Background()
	dc := dialogs.NewDialogContext(set, newTurn(), nil)

	res, err := dc.BeginDialog(ctx, "only", nil)
	require.NoError(t, err)
	require.Equal(t, dialogs.StatusWaiting, res.Status)
	require.Len(t, dc.Stack(), 1)

	res, err = dc.EndDialog(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, dialogs.DialogTurnResult{Status: dialogs.StatusComplete, Result: 42, ParentEnded: true}, res)
	assert.Empty(t, dc.Stack())
	assert.Nil(t, dc.ActiveDialog())
}

func TestReplaceDialog(t *testing.T) {
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(
		dialogs.NewWaterfallDialog("first", func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.ReplaceDialog(ctx, "second", "handoff")
		}),
		dialogs.NewWaterfallDialog("second", func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return dialogs.EndOfTurn, nil
		}),
	))
	dc := dialogs.NewDialogContext(set, newTurn(), nil)
	res, err := dc.BeginDialog(context.Background(), "first", nil)
	require.NoError(t, err)
	assert.Equal(t, dialogs.StatusWaiting, res.Status)

	stack := dc.Stack()
	require.Len(t, stack, 1)
	assert.Equal(t, "second", stack[0].ID)
	assert.Equal(t, "handoff", stack[0].State["options"])
}

func TestUnknownDialogs(t *testing.T) {
	ctx := context.Background()
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(dialogs.NewTextPrompt("known", nil)))

	dc := dialogs.NewDialogContext(set, newTurn(), nil)
	_, err := dc.BeginDialog(ctx, "missing", nil)
	var nf *dialogs.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.DialogID)

	ds := &dialogs.DialogState{Stack: []dialogs.DialogInstance{
		{ID: "known", State: map[string]any{}},
		{ID: "removed-by-deploy", State: map[string]any{}},
	}}
	dc = dialogs.NewDialogContext(set, newTurn(), ds)
	_, err = dc.ContinueDialog(ctx)
	assert.ErrorIs(t, err, dialogs.ErrDialogNotFound)
	assert.ErrorIs(t, err, agents.ErrNotFound)

	res, err := dc.CancelAllDialogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, dialogs.StatusCancelled, res.Status)
	assert.Empty(t, dc.Stack())

	res, err = dc.CancelAllDialogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, dialogs.StatusEmpty, res.Status)
}

func TestResumeUnknownParent(t *testing.T) {
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(dialogs.NewTextPrompt("child", nil)))
	ds := &dialogs.DialogState{Stack: []dialogs.DialogInstance{
		{ID: "gone", State: map[string]any{}},
		{ID: "child", State: map[string]any{}},
	}}
	dc := dialogs.NewDialogContext(set, agents.NewTurnContext(testutil.NewTestAdapter(), testutil.Message("answer")), ds)
	_, err := dc.ContinueDialog(context.Background())
	var nf *dialogs.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "gone", nf.DialogID)
}

func TestVersionChanged(t *testing.T) {
	noop := func(context.Context, *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
		return dialogs.EndOfTurn, nil
	}
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(dialogs.NewWaterfallDialog("wf", noop, noop)))

	ds := &dialogs.DialogState{Stack: []dialogs.DialogInstance{
		{ID: "wf", Version: "wf:1", State: map[string]any{"stepIndex": float64(0)}},
	}}
	dc := dialogs.NewDialogContext(set, newTurn(), ds)
	_, err := dc.ContinueDialog(context.Background())
	assert.ErrorIs(t, err, dialogs.ErrVersionChanged)
}

func TestAddRejectsDuplicates(t *testing.T) {
	set := dialogs.NewDialogSet(nil)
	require.NoError(t, set.Add(dialogs.NewTextPrompt("a", nil)))
	assert.ErrorIs(t, set.Add(dialogs.NewConfirmPrompt("a", nil)), dialogs.ErrDuplicateDialog)
	assert.Error(t, set.Add(dialogs.NewTextPrompt("", nil)))
	assert.Equal(t, []string{"a"}, set.IDs())

	_, err := set.CreateContext(context.Background(), newTurn())
	assert.ErrorIs(t, err, dialogs.ErrNoAccessor)
}

func TestDialogStateRoundTrip(t *testing.T) {
	in := dialogs.DialogState{Stack: []dialogs.DialogInstance{
		{ID: "root", Version: "root:3", State: map[string]any{
			"stepIndex": float64(1),
			"values":    map[string]any{"name": "Ada", "tags": []any{"a", "b"}},
		}},
		{ID: "confirm", State: map[string]any{"attemptCount": float64(2), "flag": true}},
		{ID: "leaf", State: map[string]any{}},
	}}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out dialogs.DialogState
	require.NoError(t, json.Unmarshal(b, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRunHelper(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	accessor := dialogs.NewStateAccessor("stack")
	confirm := dialogs.NewConfirmPrompt("confirm", nil)
	root := dialogs.NewWaterfallDialog("root",
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.Prompt(ctx, "confirm", dialogs.PromptOptions{Prompt: activity.NewMessageActivity("Continue?")})
		},
		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.EndDialog(ctx, step.Result)
		},
	)
	adapter := testutil.NewTestAdapter()
	run := func(text string) dialogs.DialogTurnResult {
		tc := agents.NewTurnContext(adapter, testutil.Message(text))
		ts := state.NewTurnState(store).Attach(tc)
		require.NoError(t, ts.LoadAll(ctx, tc, false))
		res, err := dialogs.Run(ctx, root, tc, accessor, confirm)
		require.NoError(t, err)
		require.NoError(t, ts.SaveAll(ctx, false))
		return res
	}

	assert.Equal(t, dialogs.StatusWaiting, run("hi").Status)
	assert.Equal(t, []string{"Continue? (1) Yes or (2) No"}, adapter.SentTexts())
	res := run("Yes!")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, true, res.Result)
}
