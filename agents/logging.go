// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a [Middleware] that logs each turn using slog.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next NextDelegate) error {
		a := tc.Activity()
		attrs := []any{
			"activity_type", a.Type,
			"channel_id", a.ChannelID,
			"conversation_id", a.Conversation.ID,
			"activity_id", a.ID,
		}
		start := time.Now()
		logger.InfoContext(ctx, "turn started", attrs...)

		err := next(ctx)

		duration := time.Since(start)
		if err != nil {
			logger.ErrorContext(ctx, "turn failed", append(attrs,
				"duration", duration,
				"error", err,
			)...)
			return err
		}

		logger.InfoContext(ctx, "turn completed", append(attrs,
			"duration", duration,
			"responded", tc.Responded(),
		)...)
		return nil
	})
}
