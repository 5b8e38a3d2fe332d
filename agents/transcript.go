// Copyright (c) Microsoft. All rights reserved.

package agents

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/microsoft/agents-sdk/go/activity"
)

// TranscriptInfo describes one stored conversation transcript.
type TranscriptInfo struct {
	ChannelID string
	ID        string
	Created   time.Time
}

// TranscriptStore persists the activities exchanged in a conversation.
type TranscriptStore interface {
	LogActivity(ctx context.Context, a *activity.Activity) error
	GetTranscriptActivities(ctx context.Context, channelID, conversationID string, since time.Time) ([]*activity.Activity, error)
	ListTranscripts(ctx context.Context, channelID string) ([]TranscriptInfo, error)
	DeleteTranscript(ctx context.Context, channelID, conversationID string) error
}

// MemoryTranscriptStore keeps transcripts in memory.
type MemoryTranscriptStore struct {
	mu       sync.RWMutex
	channels map[string]map[string][]*activity.Activity
}

// NewMemoryTranscriptStore creates an empty [MemoryTranscriptStore].
func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{channels: make(map[string]map[string][]*activity.Activity)}
}

func (s *MemoryTranscriptStore) LogActivity(_ context.Context, a *activity.Activity) error {
	if a == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	convs, ok := s.channels[a.ChannelID]
	if !ok {
		convs = make(map[string][]*activity.Activity)
		s.channels[a.ChannelID] = convs
	}
	convs[a.Conversation.ID] = append(convs[a.Conversation.ID], a.Clone())
	return nil
}

// GetTranscriptActivities returns the activities logged at or after since,
// in the order they were logged. A zero since returns everything.
func (s *MemoryTranscriptStore) GetTranscriptActivities(_ context.Context, channelID, conversationID string, since time.Time) ([]*activity.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*activity.Activity
	for _, a := range s.channels[channelID][conversationID] {
		if !since.IsZero() && a.Timestamp != nil && a.Timestamp.Before(since) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *MemoryTranscriptStore) ListTranscripts(_ context.Context, channelID string) ([]TranscriptInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TranscriptInfo
	for id, acts := range s.channels[channelID] {
		info := TranscriptInfo{ChannelID: channelID, ID: id}
		if len(acts) > 0 && acts[0].Timestamp != nil {
			info.Created = *acts[0].Timestamp
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b TranscriptInfo) int { return a.Created.Compare(b.Created) })
	return out, nil
}

func (s *MemoryTranscriptStore) DeleteTranscript(_ context.Context, channelID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels[channelID], conversationID)
	return nil
}

// TranscriptLoggerMiddleware records the inbound activity and every
// outbound send, update and delete of the turn. Activities are queued during
// the turn and written when it ends; store failures are logged, not returned.
func TranscriptLoggerMiddleware(store TranscriptStore, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next NextDelegate) error {
		var (
			mu    sync.Mutex
			queue []*activity.Activity
		)
		enqueue := func(a *activity.Activity, role string) {
			c := a.Clone()
			if c.Timestamp == nil {
				now := time.Now().UTC()
				c.Timestamp = &now
			}
			if c.From.Role == "" {
				c.From.Role = role
			}
			mu.Lock()
			queue = append(queue, c)
			mu.Unlock()
		}

		enqueue(tc.Activity(), "user")

		tc.OnSendActivities(func(ctx context.Context, tc *TurnContext, activities []*activity.Activity, next SendActivitiesNext) ([]ResourceResponse, error) {
			res, err := next(ctx)
			for i, a := range activities {
				c := a
				if i < len(res) && c.ID == "" && res[i].ID != "" {
					c = a.Clone()
					c.ID = res[i].ID
				}
				enqueue(c, "bot")
			}
			return res, err
		})
		tc.OnUpdateActivity(func(ctx context.Context, tc *TurnContext, a *activity.Activity, next UpdateActivityNext) (ResourceResponse, error) {
			res, err := next(ctx)
			c := a.Clone()
			c.Type = activity.TypeMessageUpdate
			enqueue(c, "bot")
			return res, err
		})
		tc.OnDeleteActivity(func(ctx context.Context, tc *TurnContext, ref activity.ConversationReference, next DeleteActivityNext) error {
			err := next(ctx)
			tombstone := activity.ApplyConversationReference(&activity.Activity{
				Type: activity.TypeMessageDelete,
				ID:   ref.ActivityID,
			}, ref, false)
			enqueue(tombstone, "bot")
			return err
		})

		defer func() {
			mu.Lock()
			pending := queue
			queue = nil
			mu.Unlock()
			for _, a := range pending {
				if err := store.LogActivity(context.WithoutCancel(ctx), a); err != nil {
					logger.ErrorContext(ctx, "transcript logging failed",
						"activity_id", a.ID,
						"conversation_id", a.Conversation.ID,
						"error", err,
					)
				}
			}
		}()
		return next(ctx)
	})
}
