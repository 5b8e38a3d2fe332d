// Copyright (c) Microsoft. All rights reserved.

// Package storagetest holds the behavior every storage backend must share.
// Backends call [Run] from their own tests.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/storage"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) storage.Storage

// Run exercises the ETag contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ReadMissingKeysOmitted", func(t *testing.T) { testReadMissing(t, newStore(t)) })
	t.Run("WildcardAlwaysWins", func(t *testing.T) { testWildcard(t, newStore(t)) })
	t.Run("StaleETagConflicts", func(t *testing.T) { testStale(t, newStore(t)) })
	t.Run("ETagOnNewKeySucceeds", func(t *testing.T) { testETagOnNewKey(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("EmptyKeyRejected", func(t *testing.T) { testEmptyKey(t, newStore(t)) })
	t.Run("ConcurrentWildcardWriters", func(t *testing.T) { testConcurrentWildcard(t, newStore(t)) })
}

func doc(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func testReadMissing(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Write(ctx, map[string]storage.Item{"a": {Document: doc(t, map[string]int{"n": 1})}})
	require.NoError(t, err)

	got, err := s.Read(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"n":1}`, string(got["a"].Document))
	assert.NotEmpty(t, got["a"].ETag)
}

func testWildcard(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	first, err := s.Write(ctx, map[string]storage.Item{"k": {Document: doc(t, "v1"), ETag: storage.ETagAny}})
	require.NoError(t, err)

	second, err := s.Write(ctx, map[string]storage.Item{"k": {Document: doc(t, "v2")}})
	require.NoError(t, err)
	assert.NotEqual(t, first["k"], second["k"], "every write issues a new etag")

	third, err := s.Write(ctx, map[string]storage.Item{"k": {Document: doc(t, "v3"), ETag: storage.ETagAny}})
	require.NoError(t, err)

	got, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	assert.JSONEq(t, `"v3"`, string(got["k"].Document))
	assert.Equal(t, third["k"], got["k"].ETag)
}

func testStale(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Write(ctx, map[string]storage.Item{"k": {Document: doc(t, "v1")}})
	require.NoError(t, err)

	read, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	e1 := read["k"].ETag

	tags, err := s.Write(ctx, map[string]storage.Item{"k": {Document: doc(t, "v2"), ETag: e1}})
	require.NoError(t, err)
	e2 := tags["k"]
	require.NotEqual(t, e1, e2)

	_, err = s.Write(ctx, map[string]storage.Item{"k": {Document: doc(t, "v3"), ETag: e1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrEtagConflict))
	var ce *storage.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "k", ce.Key)

	got, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	assert.JSONEq(t, `"v2"`, string(got["k"].Document), "stale write must not be applied")
	assert.Equal(t, e2, got["k"].ETag)
}

func testETagOnNewKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Write(ctx, map[string]storage.Item{"fresh": {Document: doc(t, 1), ETag: "never-issued"}})
	require.NoError(t, err)
}

func testDelete(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Write(ctx, map[string]storage.Item{"a": {Document: doc(t, 1)}, "b": {Document: doc(t, 2)}})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, []string{"a", "never-written"}))

	got, err := s.Read(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.NotContains(t, got, "a")
	assert.Contains(t, got, "b")
}

func testEmptyKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Read(ctx, []string{""})
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
	_, err = s.Write(ctx, map[string]storage.Item{"": {Document: doc(t, 1)}})
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
	assert.ErrorIs(t, s.Delete(ctx, []string{""}), storage.ErrInvalidKey)
}

func testConcurrentWildcard(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	tags := make([]string, writers)
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.Write(ctx, map[string]storage.Item{"shared": {Document: doc(t, i), ETag: storage.ETagAny}})
			errs[i] = err
			tags[i] = out["shared"]
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, writers)
	for i := range writers {
		require.NoError(t, errs[i])
		require.NotEmpty(t, tags[i])
		assert.False(t, seen[tags[i]], "etags must be unique")
		seen[tags[i]] = true
	}

	got, err := s.Read(ctx, []string{"shared"})
	require.NoError(t, err)
	final := got["shared"]
	assert.True(t, seen[final.ETag], "final etag belongs to one of the writers")

	var n int
	require.NoError(t, json.Unmarshal(final.Document, &n))
	assert.Equal(t, final.ETag, tags[n], "final document and etag come from the same write")
}
