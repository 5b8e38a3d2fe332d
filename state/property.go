// Copyright (c) Microsoft. All rights reserved.

package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/microsoft/agents-sdk/go/agents"
)

// Property is a typed accessor for one value in a scope. It resolves the
// scope from the turn's [TurnState], so one Property can be shared across
// turns.
type Property[T any] struct {
	scope ScopeName
	name  string
}

// NewProperty creates an accessor for name in scope.
func NewProperty[T any](scope ScopeName, name string) *Property[T] {
	return &Property[T]{scope: scope, name: name}
}

// Name returns the property name.
func (p *Property[T]) Name() string { return p.name }

func (p *Property[T]) resolve(ctx context.Context, tc *agents.TurnContext) (*Scope, error) {
	ts, ok := FromTurn(tc)
	if !ok {
		return nil, ErrNoTurnState
	}
	s, err := ts.Scope(p.scope)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx, tc, false); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the value, loading the scope if needed. Values that came back
// from storage as generic JSON are decoded into T and cached in the scope.
func (p *Property[T]) Get(ctx context.Context, tc *agents.TurnContext) (T, bool, error) {
	var zero T
	s, err := p.resolve(ctx, tc)
	if err != nil {
		return zero, false, err
	}
	v, ok := s.Get(p.name)
	if !ok {
		return zero, false, nil
	}
	t, err := As[T](v)
	if err != nil {
		return zero, false, fmt.Errorf("state: property %s.%s: %w", p.scope, p.name, err)
	}
	if _, typed := v.(T); !typed {
		s.replace(p.name, t)
	}
	return t, true, nil
}

// GetOrDefault returns the value, storing and returning def() when absent.
func (p *Property[T]) GetOrDefault(ctx context.Context, tc *agents.TurnContext, def func() T) (T, error) {
	v, ok, err := p.Get(ctx, tc)
	if err != nil || ok {
		return v, err
	}
	var d T
	if def != nil {
		d = def()
	}
	if err := p.Set(ctx, tc, d); err != nil {
		var zero T
		return zero, err
	}
	return d, nil
}

// Set stores v.
func (p *Property[T]) Set(ctx context.Context, tc *agents.TurnContext, v T) error {
	s, err := p.resolve(ctx, tc)
	if err != nil {
		return err
	}
	s.Set(p.name, v)
	return nil
}

// Delete removes the value.
func (p *Property[T]) Delete(ctx context.Context, tc *agents.TurnContext) error {
	s, err := p.resolve(ctx, tc)
	if err != nil {
		return err
	}
	s.Delete(p.name)
	return nil
}

// As converts a state value to T. It tries a type assertion first and falls
// back to a JSON round trip, which covers values decoded from storage as
// map[string]any, []any or float64.
func As[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Int converts a numeric state value to int.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
