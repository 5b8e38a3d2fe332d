// Copyright (c) Microsoft. All rights reserved.

package dialogs

import (
	"context"
	"errors"
	"fmt"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/state"
)

// Frame state keys used by WaterfallDialog.
const (
	waterfallStepIndex = "stepIndex"
	waterfallOptions   = "options"
	waterfallValues    = "values"
)

// ErrNextCalled is returned when a step calls Next more than once.
var ErrNextCalled = errors.New("dialogs: waterfall step already advanced")

// WaterfallStep is one step of a [WaterfallDialog]. A step usually begins a
// prompt, which ends the turn, or calls Next to run the following step.
type WaterfallStep func(ctx context.Context, step *WaterfallStepContext) (DialogTurnResult, error)

// WaterfallStepContext is passed to each step.
type WaterfallStepContext struct {
	*DialogContext

	// Index is the zero-based position of the running step.
	Index int
	// Options are the options the waterfall was begun with.
	Options any
	// Reason tells why the step runs.
	Reason DialogReason
	// Result is the value passed from the previous step or child dialog.
	Result any
	// Values is shared by all steps and persisted with the frame.
	Values map[string]any

	waterfall *WaterfallDialog
	advanced  bool
}

// Next skips to the following step with result.
func (s *WaterfallStepContext) Next(ctx context.Context, result any) (DialogTurnResult, error) {
	if s.advanced {
		return DialogTurnResult{}, fmt.Errorf("%w: step %d", ErrNextCalled, s.Index)
	}
	s.advanced = true
	return s.waterfall.ResumeDialog(ctx, s.DialogContext, ReasonNextCalled, result)
}

// WaterfallDialog runs a fixed sequence of steps, one per turn or faster.
type WaterfallDialog struct {
	BaseDialog
	steps []WaterfallStep
}

var _ Dialog = (*WaterfallDialog)(nil)

// NewWaterfallDialog creates a waterfall with the given steps.
func NewWaterfallDialog(id string, steps ...WaterfallStep) *WaterfallDialog {
	return &WaterfallDialog{BaseDialog: BaseDialog{DialogID: id}, steps: steps}
}

// AddStep appends a step.
func (w *WaterfallDialog) AddStep(step WaterfallStep) *WaterfallDialog {
	w.steps = append(w.steps, step)
	return w
}

// Version changes whenever steps are added or removed.
func (w *WaterfallDialog) Version() string {
	return fmt.Sprintf("%s:%d", w.DialogID, len(w.steps))
}

func (w *WaterfallDialog) BeginDialog(ctx context.Context, dc *DialogContext, options any) (DialogTurnResult, error) {
	inst := dc.ActiveDialog()
	inst.State[waterfallOptions] = options
	inst.State[waterfallValues] = make(map[string]any)
	return w.runStep(ctx, dc, 0, ReasonBeginCalled, nil)
}

// ContinueDialog feeds the user's message text to the next step. Other
// activity types leave the waterfall waiting.
func (w *WaterfallDialog) ContinueDialog(ctx context.Context, dc *DialogContext) (DialogTurnResult, error) {
	a := dc.TurnContext().Activity()
	if !a.IsType(activity.TypeMessage) {
		return EndOfTurn, nil
	}
	return w.ResumeDialog(ctx, dc, ReasonContinueCalled, a.Text)
}

func (w *WaterfallDialog) ResumeDialog(ctx context.Context, dc *DialogContext, reason DialogReason, result any) (DialogTurnResult, error) {
	inst := dc.ActiveDialog()
	idx, _ := state.Int(inst.State[waterfallStepIndex])
	return w.runStep(ctx, dc, idx+1, reason, result)
}

func (w *WaterfallDialog) runStep(ctx context.Context, dc *DialogContext, index int, reason DialogReason, result any) (DialogTurnResult, error) {
	if index >= len(w.steps) {
		return dc.EndDialog(ctx, result)
	}
	inst := dc.ActiveDialog()
	inst.State[waterfallStepIndex] = index

	values, ok := inst.State[waterfallValues].(map[string]any)
	if !ok {
		values = make(map[string]any)
		inst.State[waterfallValues] = values
	}
	step := &WaterfallStepContext{
		DialogContext: dc,
		Index:         index,
		Options:       inst.State[waterfallOptions],
		Reason:        reason,
		Result:        result,
		Values:        values,
		waterfall:     w,
	}
	return w.steps[index](ctx, step)
}
