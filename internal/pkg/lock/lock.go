// Package lock provides keyed mutual exclusion.
// A KeyedLock serializes work per key (a user, a spin record, a unique group)
// while letting unrelated keys proceed in parallel.
package lock

import (
	"context"
	"sync"
)

// keyMutex is a mutex shared by every holder and waiter of one key.
type keyMutex struct {
	ch   chan struct{}
	refs int
}

// KeyedLock hands out one mutex per key and drops it once nobody holds or waits for it.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*keyMutex)}
}

func (kl *KeyedLock) acquireRef(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{ch: make(chan struct{}, 1)}
		kl.locks[key] = m
	}
	m.refs++
	return m
}

func (kl *KeyedLock) releaseRef(key string, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(kl.locks, key)
	}
}

// Lock blocks until the key is held.
func (kl *KeyedLock) Lock(key string) {
	m := kl.acquireRef(key)
	m.ch <- struct{}{}
}

// LockContext blocks until the key is held or ctx is done.
// A context that is already done never acquires the key.
func (kl *KeyedLock) LockContext(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return contextErr(err)
	}
	m := kl.acquireRef(key)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.releaseRef(key, m)
		return contextErr(ctx.Err())
	}
}

func contextErr(err error) error {
	if err == context.DeadlineExceeded {
		return ErrLockTimeout
	}
	return err
}

// TryLock acquires the key without blocking.
func (kl *KeyedLock) TryLock(key string) bool {
	m := kl.acquireRef(key)
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		kl.releaseRef(key, m)
		return false
	}
}

// Unlock releases the key. Unlocking a key that is not held panics.
func (kl *KeyedLock) Unlock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key " + key)
	}
	select {
	case <-m.ch:
	default:
		panic("lock: unlock of unlocked key " + key)
	}
	kl.releaseRef(key, m)
}

// WithLock runs fn while holding key.
func (kl *KeyedLock) WithLock(key string, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding key, giving up if ctx ends first.
func (kl *KeyedLock) WithLockContext(ctx context.Context, key string, fn func() error) error {
	if err := kl.LockContext(ctx, key); err != nil {
		return err
	}
	defer kl.Unlock(key)
	return fn()
}

// IsLocked reports whether key is currently held.
func (kl *KeyedLock) IsLocked(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	m, ok := kl.locks[key]
	return ok && len(m.ch) == 1
}

// Len returns the number of keys with holders or waiters.
func (kl *KeyedLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
