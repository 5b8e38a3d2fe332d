// Copyright (c) Microsoft. All rights reserved.

// Package state keeps per-user and per-conversation data between turns.
//
// A [TurnState] holds three scopes. User and conversation scopes are read
// from and written to a [storage.Storage]; the temp scope lives only for the
// turn. Each persisted scope remembers the ETag it was loaded at and writes
// with it, so two turns racing on the same conversation cannot both win:
// the second SaveAll fails with *storage.ConflictError.
//
//	ts := state.NewTurnState(store).Attach(tc)
//	if err := ts.LoadAll(ctx, tc, false); err != nil {
//		return err
//	}
//	count := state.NewProperty[int](state.ScopeConversation, "count")
//	n, _, _ := count.Get(ctx, tc)
//	_ = count.Set(ctx, tc, n+1)
//	return ts.SaveAll(ctx, false)
//
// Values loaded from storage are generic JSON (maps, slices, float64). A
// [Property] decodes them into its type on first access.
package state
