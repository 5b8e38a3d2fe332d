// Copyright (c) Microsoft. All rights reserved.

package dialogs

import (
	"context"
	"fmt"

	"github.com/microsoft/agents-sdk/go/agents"
)

// DialogContext runs stack operations for one turn.
type DialogContext struct {
	dialogs *DialogSet
	tc      *agents.TurnContext
	state   *DialogState
}

// NewDialogContext creates a context over ds. Most callers use
// [DialogSet.CreateContext] instead.
func NewDialogContext(set *DialogSet, tc *agents.TurnContext, ds *DialogState) *DialogContext {
	if ds == nil {
		ds = &DialogState{}
	}
	return &DialogContext{dialogs: set, tc: tc, state: ds}
}

// TurnContext returns the turn the context runs in.
func (dc *DialogContext) TurnContext() *agents.TurnContext { return dc.tc }

// Dialogs returns the set dialogs are resolved from.
func (dc *DialogContext) Dialogs() *DialogSet { return dc.dialogs }

// Stack returns a copy of the stack, bottom first.
func (dc *DialogContext) Stack() []DialogInstance {
	return append([]DialogInstance(nil), dc.state.Stack...)
}

// ActiveDialog returns the top frame, or nil when the stack is empty. The
// pointer is valid until the next push or pop.
func (dc *DialogContext) ActiveDialog() *DialogInstance {
	n := len(dc.state.Stack)
	if n == 0 {
		return nil
	}
	inst := &dc.state.Stack[n-1]
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	return inst
}

// BeginDialog pushes a frame for id and runs the dialog's begin logic.
func (dc *DialogContext) BeginDialog(ctx context.Context, id string, options any) (DialogTurnResult, error) {
	d, ok := dc.dialogs.Find(id)
	if !ok {
		return DialogTurnResult{}, &NotFoundError{DialogID: id}
	}
	dc.state.Stack = append(dc.state.Stack, DialogInstance{
		ID:      id,
		State:   make(map[string]any),
		Version: versionOf(d),
	})
	return d.BeginDialog(ctx, dc, options)
}

// Prompt begins the prompt registered under id.
func (dc *DialogContext) Prompt(ctx context.Context, id string, opts PromptOptions) (DialogTurnResult, error) {
	return dc.BeginDialog(ctx, id, opts)
}

// ContinueDialog passes the turn to the active dialog. It returns
// StatusEmpty when the stack is empty.
func (dc *DialogContext) ContinueDialog(ctx context.Context) (DialogTurnResult, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return DialogTurnResult{Status: StatusEmpty}, nil
	}
	d, ok := dc.dialogs.Find(inst.ID)
	if !ok {
		return DialogTurnResult{}, &NotFoundError{DialogID: inst.ID}
	}
	if v := versionOf(d); inst.Version != "" && v != inst.Version {
		return DialogTurnResult{}, fmt.Errorf("%w: %q was %q, now %q", ErrVersionChanged, inst.ID, inst.Version, v)
	}
	return d.ContinueDialog(ctx, dc)
}

// EndDialog pops the active frame and resumes its parent with result. The
// parent may end in turn. When the last frame ends the stack is empty and
// the result is complete with ParentEnded set.
func (dc *DialogContext) EndDialog(ctx context.Context, result any) (DialogTurnResult, error) {
	if err := dc.endActive(ctx, ReasonEndCalled); err != nil {
		return DialogTurnResult{}, err
	}
	parent := dc.ActiveDialog()
	if parent == nil {
		return DialogTurnResult{Status: StatusComplete, Result: result, ParentEnded: true}, nil
	}
	d, ok := dc.dialogs.Find(parent.ID)
	if !ok {
		return DialogTurnResult{}, &NotFoundError{DialogID: parent.ID}
	}
	return d.ResumeDialog(ctx, dc, ReasonEndCalled, result)
}

// ReplaceDialog ends the active frame without resuming its parent and
// begins id in its place.
func (dc *DialogContext) ReplaceDialog(ctx context.Context, id string, options any) (DialogTurnResult, error) {
	if err := dc.endActive(ctx, ReasonReplaceCalled); err != nil {
		return DialogTurnResult{}, err
	}
	return dc.BeginDialog(ctx, id, options)
}

// RepromptDialog asks the active dialog to send its prompt again.
func (dc *DialogContext) RepromptDialog(ctx context.Context) error {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	d, ok := dc.dialogs.Find(inst.ID)
	if !ok {
		return &NotFoundError{DialogID: inst.ID}
	}
	return d.RepromptDialog(ctx, dc.tc, inst)
}

// CancelAllDialogs pops every frame, innermost first. Frames whose dialog
// is no longer registered are dropped without notification, so this is
// also the reset path after a deploy removed a dialog.
func (dc *DialogContext) CancelAllDialogs(ctx context.Context) (DialogTurnResult, error) {
	if len(dc.state.Stack) == 0 {
		return DialogTurnResult{Status: StatusEmpty}, nil
	}
	for len(dc.state.Stack) > 0 {
		if err := dc.endActive(ctx, ReasonCancelCalled); err != nil {
			return DialogTurnResult{}, err
		}
	}
	return DialogTurnResult{Status: StatusCancelled}, nil
}

// endActive notifies the active dialog and pops its frame.
func (dc *DialogContext) endActive(ctx context.Context, reason DialogReason) error {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	if d, ok := dc.dialogs.Find(inst.ID); ok {
		if err := d.EndDialog(ctx, dc.tc, inst, reason); err != nil {
			return fmt.Errorf("dialogs: end %q: %w", inst.ID, err)
		}
	} else if reason != ReasonCancelCalled {
		return &NotFoundError{DialogID: inst.ID}
	}
	dc.state.Stack = dc.state.Stack[:len(dc.state.Stack)-1]
	return nil
}
