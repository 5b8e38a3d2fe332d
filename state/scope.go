// Copyright (c) Microsoft. All rights reserved.

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/storage"
)

// ScopeName identifies a state scope.
type ScopeName string

const (
	ScopeUser         ScopeName = "user"
	ScopeConversation ScopeName = "conversation"
	ScopeTemp         ScopeName = "temp"
)

var (
	// ErrNoTurnState is returned when a turn has no [TurnState] attached.
	ErrNoTurnState = errors.New("state: turn state not attached to turn")

	// ErrUnknownScope is returned for scope names other than user,
	// conversation and temp.
	ErrUnknownScope = errors.New("state: unknown scope")

	// ErrMissingKeyPart is returned when the activity lacks the ids a scope
	// key is built from.
	ErrMissingKeyPart = errors.New("state: activity is missing channel, conversation or user id")
)

// KeyFunc builds a scope's storage key from the turn.
type KeyFunc func(tc *agents.TurnContext) (string, error)

// UserKey keys state by channel and sender.
func UserKey(tc *agents.TurnContext) (string, error) {
	a := tc.Activity()
	if a.ChannelID == "" || a.From.ID == "" {
		return "", ErrMissingKeyPart
	}
	return storage.UserKey(a.ChannelID, a.From.ID), nil
}

// ConversationKey keys state by channel and conversation.
func ConversationKey(tc *agents.TurnContext) (string, error) {
	a := tc.Activity()
	if a.ChannelID == "" || a.Conversation.ID == "" {
		return "", ErrMissingKeyPart
	}
	return storage.ConversationKey(a.ChannelID, a.Conversation.ID), nil
}

// Scope is a named bag of values loaded from and saved to one storage key.
// A Scope without storage (temp) lives only for the turn.
//
// A Scope tracks the ETag it was loaded at. SaveChanges writes with that
// ETag, so a concurrent writer that saved first causes a
// *storage.ConflictError rather than a silent overwrite.
type Scope struct {
	name    ScopeName
	keyFn   KeyFunc
	storage storage.Storage

	mu       sync.Mutex
	values   map[string]any
	key      string
	etag     string
	snapshot []byte
	loaded   bool
	dirty    bool
}

// NewScope creates a persisted scope. Pass a nil store for a turn-only scope.
func NewScope(name ScopeName, store storage.Storage, keyFn KeyFunc) *Scope {
	return &Scope{name: name, storage: store, keyFn: keyFn, values: make(map[string]any)}
}

func newTempScope() *Scope {
	return &Scope{name: ScopeTemp, values: make(map[string]any), loaded: true}
}

// Name returns the scope name.
func (s *Scope) Name() ScopeName { return s.name }

// Persisted reports whether the scope is backed by storage.
func (s *Scope) Persisted() bool { return s.storage != nil && s.keyFn != nil }

// Key returns the storage key for tc.
func (s *Scope) Key(tc *agents.TurnContext) (string, error) {
	if !s.Persisted() {
		return "", nil
	}
	return s.keyFn(tc)
}

// IsLoaded reports whether Load has completed.
func (s *Scope) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// ETag returns the version the scope was loaded or last saved at.
func (s *Scope) ETag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.etag
}

// Load reads the scope from storage. It does nothing when the scope is
// already loaded, unless force is set.
func (s *Scope) Load(ctx context.Context, tc *agents.TurnContext, force bool) error {
	if !s.Persisted() {
		return nil
	}
	if s.IsLoaded() && !force {
		return nil
	}
	key, err := s.keyFn(tc)
	if err != nil {
		return err
	}
	items, err := s.storage.Read(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("state: load %s: %w", s.name, err)
	}
	it, ok := items[key]
	return s.apply(key, it, ok)
}

// apply installs a stored item as the scope's loaded state.
func (s *Scope) apply(key string, it storage.Item, found bool) error {
	values := make(map[string]any)
	var snapshot []byte
	if found && len(it.Document) > 0 {
		if err := json.Unmarshal(it.Document, &values); err != nil {
			return fmt.Errorf("state: decode %s: %w", s.name, err)
		}
		if values == nil {
			values = make(map[string]any)
		}
		snapshot = append([]byte(nil), it.Document...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.values = values
	s.etag = ""
	if found {
		s.etag = it.ETag
	}
	s.snapshot = snapshot
	s.loaded = true
	s.dirty = false
	return nil
}

// Get returns the value stored under name.
func (s *Scope) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores v under name and marks the scope dirty.
func (s *Scope) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
	s.dirty = true
}

// replace swaps a value for an equivalent typed one without marking the
// scope dirty.
func (s *Scope) replace(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

// Delete removes name and marks the scope dirty if it was present.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; ok {
		delete(s.values, name)
		s.dirty = true
	}
}

// Clear removes every value and marks the scope dirty.
func (s *Scope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
	s.dirty = true
}

// Values returns a shallow copy of the scope's values.
func (s *Scope) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// IsDirty reports whether the scope has changes to save. Values mutated in
// place are detected by comparing against the loaded document.
func (s *Scope) IsDirty() bool {
	_, changed, err := s.pending()
	return err == nil && changed
}

// pending returns the encoded values and whether they differ from what was
// loaded.
func (s *Scope) pending() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := json.Marshal(s.values)
	if err != nil {
		return nil, false, fmt.Errorf("state: encode %s: %w", s.name, err)
	}
	if s.dirty {
		return doc, true, nil
	}
	if len(s.snapshot) == 0 {
		return doc, len(s.values) > 0, nil
	}
	return doc, !jsonEqual(doc, s.snapshot), nil
}

// change returns the storage write for this scope, or ok=false when nothing
// needs saving.
func (s *Scope) change(force bool) (key string, item storage.Item, ok bool, err error) {
	if !s.Persisted() || !s.IsLoaded() {
		return "", storage.Item{}, false, nil
	}
	doc, changed, err := s.pending()
	if err != nil {
		return "", storage.Item{}, false, err
	}
	if !changed && !force {
		return "", storage.Item{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, storage.Item{Document: doc, ETag: s.etag}, true, nil
}

// saved records a successful write.
func (s *Scope) saved(doc []byte, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etag = etag
	s.snapshot = doc
	s.dirty = false
}

// SaveChanges writes the scope when it has changes or force is set. On
// success the new ETag is recorded and the scope is clean. A conflict is
// returned as is; the scope keeps its changes.
func (s *Scope) SaveChanges(ctx context.Context, force bool) error {
	key, item, ok, err := s.change(force)
	if err != nil || !ok {
		return err
	}
	etags, err := s.storage.Write(ctx, map[string]storage.Item{key: item})
	if err != nil {
		return err
	}
	s.saved(item.Document, etags[key])
	return nil
}

// DeleteState removes the scope's record from storage and clears it.
func (s *Scope) DeleteState(ctx context.Context, tc *agents.TurnContext) error {
	if !s.Persisted() {
		s.Clear()
		return nil
	}
	key, err := s.keyFn(tc)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, []string{key}); err != nil {
		return fmt.Errorf("state: delete %s: %w", s.name, err)
	}
	return s.apply(key, storage.Item{}, false)
}

func jsonEqual(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	xb, _ := json.Marshal(x)
	yb, _ := json.Marshal(y)
	return bytes.Equal(xb, yb)
}
