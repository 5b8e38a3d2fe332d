// Copyright (c) Microsoft. All rights reserved.

package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/microsoft/agents-sdk/go/agents"
)

// ErrShutdownTimeout is returned by [HostedActivityService.Shutdown] when
// in-flight work outlives its context.
var ErrShutdownTimeout = fmt.Errorf("%w: shutdown timed out", agents.ErrAdapter)

// ServiceOption configures a [HostedActivityService].
type ServiceOption func(*HostedActivityService)

// WithAgent registers agent under name for items whose AgentType is name.
func WithAgent(name string, agent agents.Agent) ServiceOption {
	return func(s *HostedActivityService) { s.agents[name] = agent }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *HostedActivityService) { s.logger = l }
}

// HostedActivityService runs queued activities in the background. A single
// worker dequeues items and starts each as its own goroutine.
//
// Admission is gated by a read/write lock: every running task holds the
// read side, and Shutdown takes the write side, so once Shutdown starts
// waiting no new task can begin.
type HostedActivityService struct {
	adapter *CloudAdapter
	queue   *ActivityTaskQueue
	agent   agents.Agent
	agents  map[string]agents.Agent
	logger  *slog.Logger

	gate sync.RWMutex

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
	stop     context.CancelFunc
	done     chan struct{}
}

// NewHostedActivityService creates a service processing items from queue
// with agent as the default agent.
func NewHostedActivityService(adapter *CloudAdapter, queue *ActivityTaskQueue, agent agents.Agent, opts ...ServiceOption) *HostedActivityService {
	s := &HostedActivityService{
		adapter:  adapter,
		queue:    queue,
		agent:    agent,
		agents:   map[string]agents.Agent{},
		logger:   slog.Default(),
		inFlight: map[string]context.CancelFunc{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker and returns. The worker processes items until
// the queue is closed and empty, Shutdown stops it, or ctx ends. Tasks
// receive ctx; cancelling it cancels running turns. Calls after the first
// are ignored.
func (s *HostedActivityService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	loopCtx, stop := context.WithCancel(ctx)
	s.stop = stop
	go s.loop(ctx, loopCtx)
}

// Run starts the worker and blocks until it exits.
func (s *HostedActivityService) Run(ctx context.Context) error {
	s.Start(ctx)
	<-s.done
	return ctx.Err()
}

func (s *HostedActivityService) loop(ctx, loopCtx context.Context) {
	defer close(s.done)
	for {
		item, err := s.queue.Dequeue(loopCtx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && loopCtx.Err() == nil {
				s.logger.ErrorContext(ctx, "dequeue failed", slog.Any("error", err))
			}
			return
		}

		s.gate.RLock()
		id := uuid.NewString()
		taskCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.inFlight[id] = cancel
		s.mu.Unlock()

		go s.runTask(taskCtx, id, item)
	}
}

func (s *HostedActivityService) runTask(ctx context.Context, id string, item ActivityWithClaims) {
	defer s.gate.RUnlock()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.inFlight[id]; ok {
			cancel()
			delete(s.inFlight, id)
		}
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "background task panicked",
				slog.String("task_id", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := s.process(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "background task failed",
			slog.String("task_id", id),
			slog.String("conversation_id", item.Activity.Conversation.ID),
			slog.Any("error", err))
	}
}

func (s *HostedActivityService) process(ctx context.Context, item ActivityWithClaims) error {
	agent := s.agent
	if item.AgentType != "" {
		a, ok := s.agents[item.AgentType]
		if !ok {
			return fmt.Errorf("%w: agent type %q", agents.ErrNotFound, item.AgentType)
		}
		agent = a
	}
	if agent == nil {
		return fmt.Errorf("%w: no agent", agents.ErrAdapter)
	}

	if item.IsProactive {
		return s.adapter.continueConversation(ctx, item.Claims, item.Activity.ConversationReference(), item.ProactiveAudience, agent.OnTurn)
	}
	_, err := s.adapter.Process(ctx, item.Claims, item.Activity, item.Headers, agent)
	return err
}

// InFlight returns the number of running tasks.
func (s *HostedActivityService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Shutdown closes the queue and waits for background work to finish. With
// waitForEmpty, items already queued are processed first; otherwise they
// are discarded. Shutdown returns ErrShutdownTimeout if ctx ends before
// running tasks complete.
func (s *HostedActivityService) Shutdown(ctx context.Context, waitForEmpty bool) error {
	s.queue.Close()

	if !waitForEmpty {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if dropped := s.queue.Drain(); len(dropped) > 0 {
			s.logger.WarnContext(ctx, "discarding queued activities", slog.Int("count", len(dropped)))
		}
	}

	s.mu.Lock()
	running := s.stop != nil
	s.mu.Unlock()
	if running {
		select {
		case <-s.done:
		case <-ctx.Done():
			return fmt.Errorf("%w: %d queued, %d running", ErrShutdownTimeout, s.queue.Len(), s.InFlight())
		}
	}

	locked := make(chan struct{})
	go func() {
		s.gate.Lock()
		close(locked)
	}()
	select {
	case <-locked:
		s.gate.Unlock()
		return nil
	case <-ctx.Done():
		go func() {
			<-locked
			s.gate.Unlock()
		}()
		return fmt.Errorf("%w: %d running", ErrShutdownTimeout, s.InFlight())
	}
}
