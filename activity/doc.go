// Copyright (c) Microsoft. All rights reserved.

// Package activity defines the Activity envelope exchanged between channels and
// agents, together with the account, conversation and reference types that
// address it.
//
// # Values
//
// The value field of an activity is decoded into a sealed [Value] union. The
// variant is chosen from the activity type and name:
//
//   - invoke "adaptiveCard/action": [AdaptiveCardInvokeValue]
//   - invoke "signin/tokenExchange": [TokenExchangeInvokeValue]
//   - invoke "signin/verifyState": [VerifyStateValue]
//   - invokeResponse: [InvokeResponseValue]
//   - any other JSON object: [ObjectValue]
//   - anything else: [RawValue]
//
// Encoding is lossless for every variant, so an activity read from the wire
// can be written back unchanged.
//
// # Immutability
//
// An inbound activity should not be mutated after dispatch. Use
// [Activity.Clone] when a modified copy is needed.
package activity
