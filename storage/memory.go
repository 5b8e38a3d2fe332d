// Copyright (c) Microsoft. All rights reserved.

package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStorage is a [Storage] backed by a map. It is safe for concurrent
// use and is intended for tests and single-process hosts.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]Item
}

// NewMemoryStorage creates an empty [MemoryStorage].
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]Item)}
}

func (s *MemoryStorage) Read(_ context.Context, keys []string) (map[string]Item, error) {
	if err := ValidateKeys(keys...); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Item, len(keys))
	for _, k := range keys {
		if it, ok := s.items[k]; ok {
			out[k] = copyItem(it)
		}
	}
	return out, nil
}

// Write applies every change under one lock. Changes are checked before any is
// applied, so a conflict on one key leaves all keys untouched.
func (s *MemoryStorage) Write(_ context.Context, changes map[string]Item) (map[string]string, error) {
	for k := range changes {
		if k == "" {
			return nil, ErrInvalidKey
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, it := range changes {
		if IsWildcard(it.ETag) {
			continue
		}
		cur, ok := s.items[k]
		if ok && cur.ETag != it.ETag {
			return nil, &ConflictError{Key: k, Expected: it.ETag, Current: cur.ETag}
		}
	}

	etags := make(map[string]string, len(changes))
	for k, it := range changes {
		tag := NewETag()
		s.items[k] = Item{Document: append(json.RawMessage(nil), it.Document...), ETag: tag}
		etags[k] = tag
	}
	return etags, nil
}

func (s *MemoryStorage) Delete(_ context.Context, keys []string) error {
	if err := ValidateKeys(keys...); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func copyItem(it Item) Item {
	return Item{Document: append(json.RawMessage(nil), it.Document...), ETag: it.ETag}
}
