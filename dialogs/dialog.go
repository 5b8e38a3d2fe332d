// Copyright (c) Microsoft. All rights reserved.

package dialogs

import (
	"context"
	"errors"
	"fmt"

	"github.com/microsoft/agents-sdk/go/agents"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrDialogs is the base error for dialog stack failures.
	ErrDialogs = fmt.Errorf("%w: dialogs", agents.ErrAgents)

	// ErrDialogNotFound is matched by [NotFoundError].
	ErrDialogNotFound = fmt.Errorf("%w: dialog", agents.ErrNotFound)

	// ErrDuplicateDialog is returned when a set already has a dialog with
	// the same id.
	ErrDuplicateDialog = fmt.Errorf("%w: duplicate dialog id", ErrDialogs)

	// ErrVersionChanged is returned by ContinueDialog when the active frame
	// was started by a different version of its dialog. Callers typically
	// respond with CancelAllDialogs.
	ErrVersionChanged = fmt.Errorf("%w: dialog version changed", ErrDialogs)

	// ErrNoAccessor is returned when a set has no state property to load the
	// stack from.
	ErrNoAccessor = errors.New("dialogs: dialog set has no state accessor")
)

// NotFoundError reports a stack frame or begin call naming a dialog that is
// not registered.
type NotFoundError struct {
	DialogID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dialog %q not found in dialog set", e.DialogID)
}

func (e *NotFoundError) Unwrap() error { return ErrDialogNotFound }

// DialogTurnStatus is the state of the stack after a dialog operation.
type DialogTurnStatus int

const (
	// StatusEmpty means the stack had no active dialog.
	StatusEmpty DialogTurnStatus = iota
	// StatusWaiting means the active dialog expects more input.
	StatusWaiting
	// StatusComplete means the dialog finished this turn.
	StatusComplete
	// StatusCancelled means the dialog was cancelled.
	StatusCancelled
)

func (s DialogTurnStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusWaiting:
		return "waiting"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("DialogTurnStatus(%d)", int(s))
	}
}

// DialogReason tells a dialog why it is being resumed or ended.
type DialogReason int

const (
	ReasonBeginCalled DialogReason = iota
	ReasonContinueCalled
	ReasonEndCalled
	ReasonReplaceCalled
	ReasonCancelCalled
	ReasonNextCalled
)

// DialogTurnResult is returned by every stack operation.
type DialogTurnResult struct {
	Status DialogTurnStatus
	Result any

	// ParentEnded is set when the last frame on the stack ended, leaving the
	// stack empty.
	ParentEnded bool
}

// EndOfTurn is the result a dialog returns while waiting for input.
var EndOfTurn = DialogTurnResult{Status: StatusWaiting}

// DialogInstance is one frame of a dialog stack.
type DialogInstance struct {
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	Version string         `json:"version,omitempty"`
}

// DialogState is the persisted stack of a conversation. The active dialog is
// the last element.
type DialogState struct {
	Stack []DialogInstance `json:"dialogStack"`
}

// Dialog is a unit of multi-turn logic that can be pushed on a stack.
//
// BeginDialog runs when the dialog is pushed. ContinueDialog runs on each
// later turn while the dialog is on top. ResumeDialog runs when a child the
// dialog started has ended and passes back its result.
type Dialog interface {
	ID() string
	BeginDialog(ctx context.Context, dc *DialogContext, options any) (DialogTurnResult, error)
	ContinueDialog(ctx context.Context, dc *DialogContext) (DialogTurnResult, error)
	ResumeDialog(ctx context.Context, dc *DialogContext, reason DialogReason, result any) (DialogTurnResult, error)
	RepromptDialog(ctx context.Context, tc *agents.TurnContext, instance *DialogInstance) error
	EndDialog(ctx context.Context, tc *agents.TurnContext, instance *DialogInstance, reason DialogReason) error
}

// Versioned is implemented by dialogs whose persisted frames become invalid
// when the dialog definition changes.
type Versioned interface {
	Version() string
}

// BaseDialog supplies default behavior for [Dialog]. Embed it and implement
// BeginDialog.
type BaseDialog struct {
	DialogID string
}

// ID returns the dialog id.
func (d *BaseDialog) ID() string { return d.DialogID }

// ContinueDialog ends the dialog.
func (d *BaseDialog) ContinueDialog(ctx context.Context, dc *DialogContext) (DialogTurnResult, error) {
	return dc.EndDialog(ctx, nil)
}

// ResumeDialog ends the dialog, passing the child's result to the parent.
func (d *BaseDialog) ResumeDialog(ctx context.Context, dc *DialogContext, _ DialogReason, result any) (DialogTurnResult, error) {
	return dc.EndDialog(ctx, result)
}

func (d *BaseDialog) RepromptDialog(context.Context, *agents.TurnContext, *DialogInstance) error {
	return nil
}

func (d *BaseDialog) EndDialog(context.Context, *agents.TurnContext, *DialogInstance, DialogReason) error {
	return nil
}

func versionOf(d Dialog) string {
	if v, ok := d.(Versioned); ok {
		return v.Version()
	}
	return ""
}
