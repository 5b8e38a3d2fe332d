// Copyright (c) Microsoft. All rights reserved.

// Package storage defines the key/value document store behind agent state.
//
// # Concurrency
//
// Every [Item] carries an ETag. A write succeeds only when the stored ETag
// still matches the one the caller read, or when the item is new, or when
// the ETag is empty or [ETagAny]. A stale write fails with a
// [ConflictError] matching [ErrEtagConflict]. Successful writes return the
// new ETag for each key.
//
// # Backends
//
// [MemoryStorage] keeps documents in process and suits tests and single
// instance hosts. Subpackages dynamodb and sqlstore persist to Amazon
// DynamoDB and to any database GORM supports. Package storagetest holds
// the conformance suite they share.
package storage
