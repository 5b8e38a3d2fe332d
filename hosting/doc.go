// Copyright (c) Microsoft. All rights reserved.

// Package hosting runs agents behind an HTTP endpoint.
//
// [CloudAdapter] turns inbound activities into turns and sends replies back
// to the channel. [MessagesHandler] is the POST /api/messages endpoint:
//
//	adapter := hosting.NewCloudAdapter(hosting.WithConnections(connections))
//	mux.Handle("POST /api/messages", hosting.NewMessagesHandler(adapter, agent,
//	    hosting.WithAuthenticator(validator)))
//
// # Status codes
//
// The endpoint answers 401 when authentication fails, 400 for a malformed
// or invalid activity, and 500 when the turn fails and no turn error
// handler absorbs the failure. Invoke and expectReplies requests receive
// the response the turn produced; all other requests receive 202.
//
// # Background processing
//
// With [WithAsync], activities are placed on an [ActivityTaskQueue] and the
// request returns at once. A [HostedActivityService] drains the queue,
// running each item as its own goroutine. A failing or panicking item is
// logged and dropped; redelivery is left to the channel.
//
//	queue := hosting.NewActivityTaskQueue()
//	svc := hosting.NewHostedActivityService(adapter, queue, agent)
//	svc.Start(ctx)
//	defer svc.Shutdown(shutdownCtx, true)
package hosting
