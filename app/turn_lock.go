// Copyright (c) Microsoft. All rights reserved.

package app

import (
	"context"
	"sync"
)

// turnLocks serializes turns per conversation within one process.
type turnLocks struct {
	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	ch   chan struct{}
	refs int
}

func newTurnLocks() *turnLocks {
	return &turnLocks{locks: make(map[string]*turnLock)}
}

// acquire blocks until key is free or ctx is done. The returned func
// releases the lock.
func (l *turnLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[key]
	if !ok {
		tl = &turnLock{ch: make(chan struct{}, 1)}
		l.locks[key] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, tl, false)
		return nil, ctx.Err()
	}
	return func() { l.release(key, tl, true) }, nil
}

func (l *turnLocks) release(key string, tl *turnLock, held bool) {
	if held {
		<-tl.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, key)
	}
}
