// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/microsoft/agents-sdk/go/activity"
)

// ShowTypingMiddleware sends typing indicators while a message turn runs.
// The first indicator is sent after delay, then one every period until the
// turn finishes.
func ShowTypingMiddleware(delay, period time.Duration) Middleware {
	if delay < 0 {
		delay = 0
	}
	if period <= 0 {
		period = 2 * time.Second
	}
	return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next NextDelegate) error {
		if !tc.Activity().IsType(activity.TypeMessage) {
			return next(ctx)
		}
		stop := StartTyping(ctx, tc, delay, period)
		defer stop()
		return next(ctx)
	})
}

// StartTyping sends typing indicators for tc from a background goroutine and
// returns a function that stops it and waits for it to exit. Indicators go
// straight to the adapter, so they neither pass through send interceptors nor
// mark the turn as responded.
func StartTyping(ctx context.Context, tc *TurnContext, delay, period time.Duration) (stop func()) {
	if tc.Adapter() == nil || tc.Activity().DeliveryMode == activity.DeliveryModeExpectReplies {
		return func() {}
	}
	ref := tc.Activity().ConversationReference()
	typingCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		for {
			select {
			case <-typingCtx.Done():
				return
			case <-timer.C:
			}
			typing := activity.ApplyConversationReference(activity.NewTypingActivity(), ref, false)
			if _, err := tc.Adapter().SendActivities(typingCtx, tc, []*activity.Activity{typing}); err != nil {
				if typingCtx.Err() == nil {
					slog.DebugContext(ctx, "typing indicator failed", "error", err)
				}
				return
			}
			timer.Reset(period)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
