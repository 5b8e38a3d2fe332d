// Copyright (c) Microsoft. All rights reserved.

package dialogs

import (
	"context"
	"fmt"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/state"
)

// DialogSet is a registry of dialogs sharing one persisted stack.
type DialogSet struct {
	accessor *state.Property[*DialogState]
	dialogs  map[string]Dialog
	order    []string
}

// NewDialogSet creates a set whose stack is stored through accessor.
// accessor may be nil for sets that are only used with [NewDialogContext].
func NewDialogSet(accessor *state.Property[*DialogState]) *DialogSet {
	return &DialogSet{accessor: accessor, dialogs: make(map[string]Dialog)}
}

// NewStateAccessor returns the conventional accessor for a conversation's
// dialog stack.
func NewStateAccessor(name string) *state.Property[*DialogState] {
	return state.NewProperty[*DialogState](state.ScopeConversation, name)
}

// Add registers dialogs. It fails on an empty or duplicate id.
func (s *DialogSet) Add(dialogs ...Dialog) error {
	for _, d := range dialogs {
		id := d.ID()
		if id == "" {
			return fmt.Errorf("%w: empty dialog id", ErrDialogs)
		}
		if _, ok := s.dialogs[id]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateDialog, id)
		}
		s.dialogs[id] = d
		s.order = append(s.order, id)
	}
	return nil
}

// Find returns the dialog registered under id.
func (s *DialogSet) Find(id string) (Dialog, bool) {
	d, ok := s.dialogs[id]
	return d, ok
}

// IDs returns the registered ids in registration order.
func (s *DialogSet) IDs() []string {
	return append([]string(nil), s.order...)
}

// CreateContext loads the stack for the turn and returns a context over it.
// Changes made through the context are saved with the conversation scope.
func (s *DialogSet) CreateContext(ctx context.Context, tc *agents.TurnContext) (*DialogContext, error) {
	if s.accessor == nil {
		return nil, ErrNoAccessor
	}
	ds, err := s.accessor.GetOrDefault(ctx, tc, func() *DialogState { return &DialogState{} })
	if err != nil {
		return nil, fmt.Errorf("dialogs: load stack: %w", err)
	}
	if ds == nil {
		ds = &DialogState{}
		if err := s.accessor.Set(ctx, tc, ds); err != nil {
			return nil, err
		}
	}
	return NewDialogContext(s, tc, ds), nil
}

// Run continues the active dialog, or begins rootID when the stack is empty.
func (s *DialogSet) Run(ctx context.Context, tc *agents.TurnContext, rootID string, options any) (DialogTurnResult, error) {
	dc, err := s.CreateContext(ctx, tc)
	if err != nil {
		return DialogTurnResult{}, err
	}
	res, err := dc.ContinueDialog(ctx)
	if err != nil {
		return res, err
	}
	if res.Status == StatusEmpty {
		return dc.BeginDialog(ctx, rootID, options)
	}
	return res, nil
}

// Run runs a single dialog and the dialogs it starts for the turn. The
// caller is expected to serialize turns for a conversation; Run does no
// locking.
func Run(ctx context.Context, d Dialog, tc *agents.TurnContext, accessor *state.Property[*DialogState], children ...Dialog) (DialogTurnResult, error) {
	set := NewDialogSet(accessor)
	if err := set.Add(append([]Dialog{d}, children...)...); err != nil {
		return DialogTurnResult{}, err
	}
	return set.Run(ctx, tc, d.ID(), nil)
}
