// Copyright (c) Microsoft. All rights reserved.

package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/storage"
	"github.com/microsoft/agents-sdk/go/storage/storagetest"
)

func TestMemoryStorageContract(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Storage { return storage.NewMemoryStorage() })
}

func TestMemoryStorageCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	d := json.RawMessage(`{"a":1}`)
	_, err := s.Write(ctx, map[string]storage.Item{"k": {Document: d}})
	require.NoError(t, err)
	d[2] = 'b'

	got, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got["k"].Document))
}

func TestMemoryStorageConflictIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	tags, err := s.Write(ctx, map[string]storage.Item{"a": {Document: json.RawMessage(`1`)}})
	require.NoError(t, err)
	_, err = s.Write(ctx, map[string]storage.Item{"a": {Document: json.RawMessage(`2`)}})
	require.NoError(t, err)

	_, err = s.Write(ctx, map[string]storage.Item{
		"a": {Document: json.RawMessage(`3`), ETag: tags["a"]},
		"b": {Document: json.RawMessage(`3`)},
	})
	require.Error(t, err)
	assert.Equal(t, 1, s.Len(), "no key written when one conflicts")
}

func TestConflictErrorChain(t *testing.T) {
	var err error = &storage.ConflictError{Key: "k", Expected: "1", Current: "2"}
	assert.True(t, errors.Is(err, storage.ErrEtagConflict))
	assert.True(t, errors.Is(err, agents.ErrConflict))
	assert.True(t, errors.Is(err, agents.ErrAgents))
	assert.Contains(t, err.Error(), `"k"`)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "msteams/users/u1", storage.UserKey("msteams", "u1"))
	assert.Equal(t, "msteams/conversations/c1", storage.ConversationKey("msteams", "c1"))
}
