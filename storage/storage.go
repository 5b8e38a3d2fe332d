// Copyright (c) Microsoft. All rights reserved.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/microsoft/agents-sdk/go/agents"
)

// ETagAny matches any stored version. A write carrying it, or no ETag at all,
// always succeeds.
const ETagAny = "*"

var (
	// ErrEtagConflict is the sentinel matched by [ConflictError].
	ErrEtagConflict = fmt.Errorf("%w: etag mismatch", agents.ErrConflict)

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("storage: key must not be empty")
)

// Item is a stored document and the version token it was read at.
type Item struct {
	Document json.RawMessage
	ETag     string
}

// Storage is a key/value store with optimistic concurrency.
//
// Every backend implements the same ETag rules:
//   - a write with an empty ETag or [ETagAny] always succeeds and issues a new token;
//   - a write with any other ETag fails with *[ConflictError] when the key exists
//     and its stored ETag differs;
//   - each successful write yields a new ETag, returned by Write;
//   - a conflict on any key in a Write leaves every key unchanged.
//
// Keys absent from the store are omitted from Read results.
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]Item, error)
	Write(ctx context.Context, changes map[string]Item) (map[string]string, error)
	Delete(ctx context.Context, keys []string) error
}

// ConflictError reports a write whose ETag did not match the stored version.
type ConflictError struct {
	Key      string
	Expected string
	Current  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("storage: etag conflict on %q: expected %q, current %q", e.Key, e.Expected, e.Current)
}

func (e *ConflictError) Unwrap() error { return ErrEtagConflict }

// NewETag returns a fresh, unique version token.
func NewETag() string {
	return uuid.NewString()
}

// IsWildcard reports whether etag skips the version check.
func IsWildcard(etag string) bool {
	return etag == "" || etag == ETagAny
}

// ValidateKeys returns ErrInvalidKey if any key is empty.
func ValidateKeys[K ~string](keys ...K) error {
	for _, k := range keys {
		if k == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// UserKey is the storage key for a user's state on a channel.
func UserKey(channelID, userID string) string {
	return channelID + "/users/" + userID
}

// ConversationKey is the storage key for a conversation's state on a channel.
func ConversationKey(channelID, conversationID string) string {
	return channelID + "/conversations/" + conversationID
}
