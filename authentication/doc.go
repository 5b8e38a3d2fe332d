// Copyright (c) Microsoft. All rights reserved.

// Package authentication authenticates inbound channel requests and supplies
// tokens for outbound calls.
//
// # Connections
//
// A connection is a named app identity described by [ConnectionSettings].
// [NewTokenProvider] turns one into a [TokenProvider] backed by an azidentity
// credential. [ConnectionManager] holds all connections and picks the one to
// use for a channel's service URL from an ordered list of
// [ConnectionMapEntry] values, falling back to [ServiceConnectionName].
//
//	m, err := authentication.NewConnectionManager(cfg.Connections, cfg.ConnectionsMap)
//	provider, err := m.ForServiceURL(claims, activity.ServiceURL)
//	token, err := provider.GetAccessToken(ctx, "https://api.botframework.com", nil)
//
// # Inbound tokens
//
// [JWTValidator] checks the bearer token of each request against the
// channel's published signing keys. The accepted audiences are normally
// [ConnectionManager.ClientIDs]. With no audiences the validator admits
// anonymous requests, which suits local testing with an emulator.
package authentication
