// Copyright (c) Microsoft. All rights reserved.

package hosting

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
)

// ErrQueueClosed is returned by [ActivityTaskQueue.Enqueue] after Close, and
// by Dequeue once a closed queue is empty.
var ErrQueueClosed = fmt.Errorf("%w: activity queue closed", agents.ErrAdapter)

// ActivityWithClaims is one unit of background work.
type ActivityWithClaims struct {
	Claims   agents.ClaimsIdentity
	Activity *activity.Activity
	Headers  http.Header

	// IsProactive runs the item as a continuation of the activity's
	// conversation rather than as an inbound turn.
	IsProactive bool

	// ProactiveAudience overrides the token audience used for outbound calls
	// of a proactive item.
	ProactiveAudience string

	// AgentType selects a registered agent. Empty selects the default.
	AgentType string
}

// ActivityTaskQueue is an unbounded FIFO of background work. It is safe for
// concurrent use; any number of producers may enqueue while consumers block
// in Dequeue.
type ActivityTaskQueue struct {
	mu     sync.Mutex
	items  []ActivityWithClaims
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// NewActivityTaskQueue returns an empty queue.
func NewActivityTaskQueue() *ActivityTaskQueue {
	return &ActivityTaskQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends item and wakes a waiting consumer.
func (q *ActivityTaskQueue) Enqueue(item ActivityWithClaims) error {
	if item.Activity == nil {
		return fmt.Errorf("%w: nil activity", activity.ErrInvalidActivity)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.ring()
	return nil
}

// Dequeue removes and returns the oldest item, blocking until one is
// available, the queue is closed and empty, or ctx ends.
func (q *ActivityTaskQueue) Dequeue(ctx context.Context) (ActivityWithClaims, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = ActivityWithClaims{}
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.ring()
			}
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ActivityWithClaims{}, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return ActivityWithClaims{}, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *ActivityTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue accepting items. Queued items can still be
// dequeued.
func (q *ActivityTaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Drain removes and returns all queued items.
func (q *ActivityTaskQueue) Drain() []ActivityWithClaims {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// ring must be called with mu held.
func (q *ActivityTaskQueue) ring() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
