// Copyright (c) Microsoft. All rights reserved.

package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/storage"
)

// servicesKey is where a TurnState is attached to a turn.
const servicesKey = "agents.turnState"

// TurnState groups the user, conversation and temp scopes of one turn.
type TurnState struct {
	storage      storage.Storage
	user         *Scope
	conversation *Scope
	temp         *Scope
}

// NewTurnState creates the scopes for one turn. A nil store keeps the
// persisted scopes in memory for the turn only.
func NewTurnState(store storage.Storage) *TurnState {
	return &TurnState{
		storage:      store,
		user:         NewScope(ScopeUser, store, UserKey),
		conversation: NewScope(ScopeConversation, store, ConversationKey),
		temp:         newTempScope(),
	}
}

// Attach makes ts reachable from tc through [FromTurn].
func (ts *TurnState) Attach(tc *agents.TurnContext) *TurnState {
	tc.Services().Set(servicesKey, ts)
	return ts
}

// FromTurn returns the TurnState attached to tc.
func FromTurn(tc *agents.TurnContext) (*TurnState, bool) {
	return agents.Service[*TurnState](tc, servicesKey)
}

// User returns the user scope.
func (ts *TurnState) User() *Scope { return ts.user }

// Conversation returns the conversation scope.
func (ts *TurnState) Conversation() *Scope { return ts.conversation }

// Temp returns the turn-only scope.
func (ts *TurnState) Temp() *Scope { return ts.temp }

// Scope returns the scope with the given name.
func (ts *TurnState) Scope(name ScopeName) (*Scope, error) {
	switch name {
	case ScopeUser:
		return ts.user, nil
	case ScopeConversation:
		return ts.conversation, nil
	case ScopeTemp:
		return ts.temp, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, name)
	}
}

func (ts *TurnState) persisted() []*Scope {
	return []*Scope{ts.user, ts.conversation}
}

// LoadAll reads every persisted scope that is not yet loaded, or all of
// them when force is set, in a single storage call.
func (ts *TurnState) LoadAll(ctx context.Context, tc *agents.TurnContext, force bool) error {
	if ts.storage == nil {
		for _, s := range ts.persisted() {
			s.mu.Lock()
			s.loaded = true
			s.mu.Unlock()
		}
		return nil
	}

	var (
		pending []*Scope
		keys    []string
	)
	for _, s := range ts.persisted() {
		if s.IsLoaded() && !force {
			continue
		}
		key, err := s.Key(tc)
		if err != nil {
			return fmt.Errorf("state: key for %s: %w", s.name, err)
		}
		pending = append(pending, s)
		keys = append(keys, key)
	}
	if len(pending) == 0 {
		return nil
	}

	items, err := ts.storage.Read(ctx, keys)
	if err != nil {
		return fmt.Errorf("state: load: %w", err)
	}
	for i, s := range pending {
		it, ok := items[keys[i]]
		if err := s.apply(keys[i], it, ok); err != nil {
			return err
		}
	}
	return nil
}

// SaveAll writes every changed persisted scope in a single storage call, or
// every loaded scope when force is set. Conflicts are returned unchanged.
func (ts *TurnState) SaveAll(ctx context.Context, force bool) error {
	if ts.storage == nil {
		return nil
	}
	changes := make(map[string]storage.Item)
	owners := make(map[string]*Scope)
	for _, s := range ts.persisted() {
		key, item, ok, err := s.change(force)
		if err != nil {
			return err
		}
		if ok {
			changes[key] = item
			owners[key] = s
		}
	}
	if len(changes) == 0 {
		return nil
	}
	etags, err := ts.storage.Write(ctx, changes)
	if err != nil {
		return err
	}
	for key, s := range owners {
		s.saved(changes[key].Document, etags[key])
	}
	return nil
}

// splitPath parses "scope.name".
func (ts *TurnState) splitPath(path string) (*Scope, string, error) {
	scopeName, name, ok := strings.Cut(path, ".")
	if !ok || name == "" {
		return nil, "", fmt.Errorf("state: invalid path %q, want scope.name", path)
	}
	s, err := ts.Scope(ScopeName(scopeName))
	if err != nil {
		return nil, "", err
	}
	return s, name, nil
}

// Get returns the value at a path such as "conversation.count".
func (ts *TurnState) Get(path string) (any, bool, error) {
	s, name, err := ts.splitPath(path)
	if err != nil {
		return nil, false, err
	}
	v, ok := s.Get(name)
	return v, ok, nil
}

// Set stores v at a path such as "user.name".
func (ts *TurnState) Set(path string, v any) error {
	s, name, err := ts.splitPath(path)
	if err != nil {
		return err
	}
	s.Set(name, v)
	return nil
}

// Delete removes the value at path.
func (ts *TurnState) Delete(path string) error {
	s, name, err := ts.splitPath(path)
	if err != nil {
		return err
	}
	s.Delete(name)
	return nil
}
