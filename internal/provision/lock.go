package provision

import (
	"context"
	"sync"
)

// keyedMutex is a set of mutexes indexed by key. Entries exist only while
// someone holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) acquire(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock blocks until key is free or ctx is done.
func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	l := k.acquire(key)
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, l)
		return ctx.Err()
	}
}

// TryLock takes key only if nobody holds it.
func (k *keyedMutex) TryLock(key string) bool {
	l := k.acquire(key)
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		k.release(key, l)
		return false
	}
}

// Unlock releases key. It panics if key is not held.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		panic("provision: unlock of unlocked key " + key)
	}
	<-l.ch
	k.release(key, l)
}

// Held reports how many keys are currently held or waited on.
func (k *keyedMutex) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
