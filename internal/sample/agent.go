// Copyright (c) Microsoft. All rights reserved.

// Package sample is the demo agent run by the commands in cmd.
package sample

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/app"
	"github.com/microsoft/agents-sdk/go/dialogs"
	"github.com/microsoft/agents-sdk/go/state"
	"github.com/microsoft/agents-sdk/go/storage"
)

const (
	profileDialog = "profile"
	namePrompt    = "name"
	agePrompt     = "age"
	confirmPrompt = "confirm"
)

// profile is kept in user state once the dialog completes.
type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

var (
	dialogState  = dialogs.NewStateAccessor("dialogState")
	userProfile  = state.NewProperty[*profile](state.ScopeUser, "profile")
	messageCount = state.NewProperty[int](state.ScopeConversation, "count")
)

// NewAgent builds the sample application: it greets new members, collects
// a profile with a waterfall dialog and echoes everything else.
func NewAgent(store storage.Storage, logger *slog.Logger) (*app.AgentApplication, error) {
	a := app.New(
		app.WithStorage(store),
		app.WithRemoveRecipientMention(true),
		app.WithLogger(logger),
	)

	set := dialogs.NewDialogSet(dialogState)
	if err := set.Add(
		dialogs.NewWaterfallDialog(profileDialog, askName, askAge, confirm, finish),
		dialogs.NewTextPrompt(namePrompt, nil),
		dialogs.NewNumberPrompt(agePrompt, validAge),
		dialogs.NewConfirmPrompt(confirmPrompt, nil),
	); err != nil {
		return nil, err
	}

	// /profile always starts over, even in the middle of the flow.
	startProfile := func(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
		dc, err := set.CreateContext(ctx, tc)
		if err != nil {
			return err
		}
		if _, err := dc.CancelAllDialogs(ctx); err != nil {
			return err
		}
		_, err = dc.BeginDialog(ctx, profileDialog, nil)
		return err
	}

	for _, err := range []error{
		a.OnConversationUpdate(app.MembersAdded, welcome),
		a.OnMessage("/profile", startProfile, app.WithRank(app.RankFirst)),
		a.OnMessage("/reset", reset, app.WithRank(app.RankFirst)),
		a.OnActivity(activity.TypeMessage, func(ctx context.Context, tc *agents.TurnContext, ts *state.TurnState) error {
			ds, _, err := dialogState.Get(ctx, tc)
			if err != nil {
				return err
			}
			if ds != nil && len(ds.Stack) > 0 {
				_, err := set.Run(ctx, tc, profileDialog, nil)
				return err
			}
			return echo(ctx, tc, ts)
		}, app.WithRank(app.RankLast)),
	} {
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func welcome(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
	for _, m := range tc.Activity().MembersAdded {
		if m.ID == tc.Activity().Recipient.ID {
			continue
		}
		if _, err := tc.SendText(ctx, "Hello and welcome! Say /profile to introduce yourself."); err != nil {
			return err
		}
	}
	return nil
}

func echo(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
	n, err := messageCount.GetOrDefault(ctx, tc, func() int { return 0 })
	if err != nil {
		return err
	}
	n++
	if err := messageCount.Set(ctx, tc, n); err != nil {
		return err
	}

	greeting := ""
	if p, ok, err := userProfile.Get(ctx, tc); err != nil {
		return err
	} else if ok && p != nil {
		greeting = p.Name + ", "
	}
	_, err = tc.SendText(ctx, fmt.Sprintf("%syou said %q (message %d)", greeting, tc.Activity().Text, n))
	return err
}

func reset(ctx context.Context, tc *agents.TurnContext, _ *state.TurnState) error {
	for _, err := range []error{
		userProfile.Delete(ctx, tc),
		messageCount.Delete(ctx, tc),
		dialogState.Delete(ctx, tc),
	} {
		if err != nil {
			return err
		}
	}
	_, err := tc.SendText(ctx, "Forgotten.")
	return err
}

func askName(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
	return step.Prompt(ctx, namePrompt, dialogs.PromptOptions{
		Prompt: activity.NewMessageActivity("What is your name?"),
	})
}

func askAge(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
	name, _ := step.Result.(string)
	step.Values["name"] = strings.TrimSpace(name)
	return step.Prompt(ctx, agePrompt, dialogs.PromptOptions{
		Prompt:      activity.NewMessageActivity("How old are you?"),
		RetryPrompt: activity.NewMessageActivity("Please enter an age between 1 and 150."),
	})
}

func confirm(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
	age, _ := step.Result.(float64)
	step.Values["age"] = int(age)
	return step.Prompt(ctx, confirmPrompt, dialogs.PromptOptions{
		Prompt: activity.NewMessageActivity(fmt.Sprintf("%s, %d. Is that right?", step.Values["name"], int(age))),
	})
}

func finish(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
	tc := step.TurnContext()
	if ok, _ := step.Result.(bool); !ok {
		if _, err := tc.SendText(ctx, "Okay, let's start over."); err != nil {
			return dialogs.DialogTurnResult{}, err
		}
		return step.ReplaceDialog(ctx, profileDialog, nil)
	}

	name, _ := step.Values["name"].(string)
	age, _ := state.Int(step.Values["age"])
	p := &profile{Name: name, Age: age}
	if err := userProfile.Set(ctx, tc, p); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	if _, err := tc.SendText(ctx, "Thanks "+name+", saved."); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	return step.EndDialog(ctx, p)
}

func validAge(_ context.Context, pc dialogs.PromptValidatorContext[float64]) (bool, error) {
	return pc.Recognized.Succeeded && pc.Recognized.Value >= 1 && pc.Recognized.Value <= 150, nil
}
