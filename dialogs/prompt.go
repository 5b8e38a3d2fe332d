// Copyright (c) Microsoft. All rights reserved.

package dialogs

import (
	"context"
	"fmt"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/state"
)

// Frame state keys used by prompts.
const (
	promptOptionsKey  = "options"
	promptAttemptsKey = "attemptCount"
)

// PromptOptions configures a prompt when it is begun.
type PromptOptions struct {
	// Prompt is sent when the prompt begins and on reprompt.
	Prompt *activity.Activity `json:"prompt,omitempty"`
	// RetryPrompt is sent after input fails recognition or validation.
	// Prompt is used when it is nil.
	RetryPrompt *activity.Activity `json:"retryPrompt,omitempty"`
	// Choices lists the accepted answers for choice prompts.
	Choices []string `json:"choices,omitempty"`
	// Validations is passed to the validator untouched.
	Validations any `json:"validations,omitempty"`
}

// PromptRecognizerResult is the outcome of parsing the user's reply.
type PromptRecognizerResult[T any] struct {
	Succeeded bool
	Value     T
}

// PromptValidatorContext is passed to a [PromptValidator].
type PromptValidatorContext[T any] struct {
	TurnContext *agents.TurnContext
	Recognized  PromptRecognizerResult[T]
	Options     PromptOptions

	// AttemptCount is 1 for the first reply and grows by one after every
	// rejected reply.
	AttemptCount int
}

// PromptValidator decides whether a recognized reply is acceptable. It runs
// for every reply, including ones that failed recognition.
type PromptValidator[T any] func(ctx context.Context, pc PromptValidatorContext[T]) (bool, error)

type recognizer[T any] func(ctx context.Context, tc *agents.TurnContext, opts PromptOptions) (PromptRecognizerResult[T], error)

// Prompt asks the user for a value of type T and re-asks until a reply is
// recognized and accepted by the validator. The accepted value is returned
// to the parent dialog.
type Prompt[T any] struct {
	BaseDialog
	validator PromptValidator[T]
	recognize recognizer[T]
	decorate  func(a *activity.Activity, opts PromptOptions)
}

var _ Dialog = (*Prompt[string])(nil)

func newPrompt[T any](id string, validator PromptValidator[T], rec recognizer[T]) *Prompt[T] {
	return &Prompt[T]{BaseDialog: BaseDialog{DialogID: id}, validator: validator, recognize: rec}
}

// AttemptCount returns the attempt counter stored in a prompt frame.
func AttemptCount(inst *DialogInstance) int {
	if inst == nil {
		return 0
	}
	n, _ := state.Int(inst.State[promptAttemptsKey])
	return n
}

func promptOptions(inst *DialogInstance) (PromptOptions, error) {
	raw, ok := inst.State[promptOptionsKey]
	if !ok || raw == nil {
		return PromptOptions{}, nil
	}
	opts, err := state.As[PromptOptions](raw)
	if err != nil {
		return PromptOptions{}, fmt.Errorf("dialogs: prompt %q options: %w", inst.ID, err)
	}
	inst.State[promptOptionsKey] = opts
	return opts, nil
}

func (p *Prompt[T]) BeginDialog(ctx context.Context, dc *DialogContext, options any) (DialogTurnResult, error) {
	var opts PromptOptions
	switch o := options.(type) {
	case nil:
	case PromptOptions:
		opts = o
	case *PromptOptions:
		if o != nil {
			opts = *o
		}
	default:
		return DialogTurnResult{}, fmt.Errorf("%w: prompt %q wants PromptOptions, got %T", ErrDialogs, p.DialogID, options)
	}
	inst := dc.ActiveDialog()
	inst.State[promptOptionsKey] = opts
	inst.State[promptAttemptsKey] = 1

	if err := p.send(ctx, dc.TurnContext(), opts, false); err != nil {
		return DialogTurnResult{}, err
	}
	return EndOfTurn, nil
}

func (p *Prompt[T]) ContinueDialog(ctx context.Context, dc *DialogContext) (DialogTurnResult, error) {
	tc := dc.TurnContext()
	if !tc.Activity().IsType(activity.TypeMessage) {
		return EndOfTurn, nil
	}
	inst := dc.ActiveDialog()
	opts, err := promptOptions(inst)
	if err != nil {
		return DialogTurnResult{}, err
	}

	recognized, err := p.recognize(ctx, tc, opts)
	if err != nil {
		return DialogTurnResult{}, fmt.Errorf("dialogs: prompt %q recognize: %w", p.DialogID, err)
	}
	attempts := max(AttemptCount(inst), 1)

	valid := recognized.Succeeded
	if p.validator != nil {
		valid, err = p.validator(ctx, PromptValidatorContext[T]{
			TurnContext:  tc,
			Recognized:   recognized,
			Options:      opts,
			AttemptCount: attempts,
		})
		if err != nil {
			return DialogTurnResult{}, fmt.Errorf("dialogs: prompt %q validator: %w", p.DialogID, err)
		}
	}
	if valid {
		return dc.EndDialog(ctx, recognized.Value)
	}

	inst.State[promptAttemptsKey] = attempts + 1
	if err := p.send(ctx, tc, opts, true); err != nil {
		return DialogTurnResult{}, err
	}
	return EndOfTurn, nil
}

// ResumeDialog re-asks after a child dialog started by a validator ends.
func (p *Prompt[T]) ResumeDialog(ctx context.Context, dc *DialogContext, _ DialogReason, _ any) (DialogTurnResult, error) {
	if err := dc.RepromptDialog(ctx); err != nil {
		return DialogTurnResult{}, err
	}
	return EndOfTurn, nil
}

func (p *Prompt[T]) RepromptDialog(ctx context.Context, tc *agents.TurnContext, inst *DialogInstance) error {
	opts, err := promptOptions(inst)
	if err != nil {
		return err
	}
	return p.send(ctx, tc, opts, false)
}

func (p *Prompt[T]) send(ctx context.Context, tc *agents.TurnContext, opts PromptOptions, retry bool) error {
	src := opts.Prompt
	if retry && opts.RetryPrompt != nil {
		src = opts.RetryPrompt
	}
	if src == nil {
		return nil
	}
	out := src.Clone()
	if out.InputHint == "" || out.InputHint == activity.InputHintAcceptingInput {
		out.InputHint = activity.InputHintExpectingInput
	}
	if p.decorate != nil {
		p.decorate(out, opts)
	}
	if _, err := tc.SendActivity(ctx, out); err != nil {
		return fmt.Errorf("dialogs: prompt %q send: %w", p.DialogID, err)
	}
	return nil
}
