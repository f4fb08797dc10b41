package statemachine

import (
	"context"
	"sync"
	"time"

	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

// Locker serializes transitions against a single entity row. Acquire blocks
// for at most wait; on timeout it returns sentinel.ErrLockTimeout, which the
// engine surfaces as CONTENTION. The returned release function must always be
// called.
type Locker interface {
	Acquire(ctx context.Context, kind id.EntityKind, entityID string, wait time.Duration) (release func(), err error)
}

// InProcessLocker is the single-node implementation: one channel-based mutex
// per (kind, id) key. Used in tests and when no Redis is configured.
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{locks: make(map[string]chan struct{})}
}

func (l *InProcessLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.locks[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.locks[key] = slot
	}
	return slot
}

func (l *InProcessLocker) Acquire(ctx context.Context, kind id.EntityKind, entityID string, wait time.Duration) (func(), error) {
	slot := l.slot(string(kind) + ":" + entityID)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-timer.C:
		return nil, sentinel.ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
