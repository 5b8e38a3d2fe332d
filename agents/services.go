// Copyright (c) Microsoft. All rights reserved.

package agents

import "sync"

// Services is a per-turn bag for values that middleware shares with the
// agent, such as loaded state or a connector client.
type Services struct {
	mu     sync.RWMutex
	values map[string]any
}

func newServices() *Services {
	return &Services{values: make(map[string]any)}
}

// Set stores v under key.
func (s *Services) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// Get returns the value stored under key.
func (s *Services) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes key.
func (s *Services) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Service returns the value stored under key as a T.
func Service[T any](tc *TurnContext, key string) (T, bool) {
	var zero T
	v, ok := tc.Services().Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
