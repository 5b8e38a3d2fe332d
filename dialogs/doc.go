// Copyright (c) Microsoft. All rights reserved.

// Package dialogs implements multi-turn conversations as a stack of dialog
// frames stored in conversation state.
//
// # Stack
//
// A [DialogSet] registers dialogs by id. [DialogSet.CreateContext] loads the
// conversation's [DialogState] and returns a [DialogContext] for the turn.
// BeginDialog pushes a frame; ContinueDialog hands the turn to the top frame;
// EndDialog pops it and resumes the parent with the result, which can end
// in turn. When the last frame ends the result is StatusComplete with
// ParentEnded set.
//
// A frame naming a dialog that is no longer registered fails with
// *[NotFoundError]. CancelAllDialogs clears such a stack.
//
// # Waterfalls and prompts
//
// A [WaterfallDialog] runs its steps in order, usually one prompt per step:
//
//	wf := dialogs.NewWaterfallDialog("profile",
//		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
//			return step.Prompt(ctx, "name", dialogs.PromptOptions{
//				Prompt: activity.NewMessageActivity("What is your name?"),
//			})
//		},
//		func(ctx context.Context, step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
//			return step.EndDialog(ctx, step.Result)
//		},
//	)
//
// Prompts re-ask until the reply is recognized and passes the validator.
// The attempt counter is kept in the frame, so it survives between turns.
//
// This package does not lock. Callers serialize turns per conversation.
package dialogs
