package services

import (
	"context"
	"sync"
)

// UserLockTable serializes admission attempts per user without a
// global lock. Entries are refcounted so the table does not grow with
// every user id ever seen.
type UserLockTable struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	slot chan struct{} // capacity 1, holding the token means holding the lock
	refs int
}

func NewUserLockTable() *UserLockTable {
	return &UserLockTable{locks: make(map[string]*userLock)}
}

// Acquire blocks until the caller holds the lock for userID or ctx is
// done. On a nil return the caller must call Release(userID) on every
// exit path.
func (t *UserLockTable) Acquire(ctx context.Context, userID string) error {
	t.mu.Lock()
	l, ok := t.locks[userID]
	if !ok {
		l = &userLock{slot: make(chan struct{}, 1)}
		t.locks[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.unref(userID, l)
		return ctx.Err()
	}
}

func (t *UserLockTable) Release(userID string) {
	t.mu.Lock()
	l, ok := t.locks[userID]
	t.mu.Unlock()
	if !ok {
		return
	}

	<-l.slot
	t.unref(userID, l)
}

func (t *UserLockTable) unref(userID string, l *userLock) {
	t.mu.Lock()
	l.refs--
	if l.refs <= 0 {
		delete(t.locks, userID)
	}
	t.mu.Unlock()
}

// Len reports how many users currently have waiters or holders.
func (t *UserLockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
