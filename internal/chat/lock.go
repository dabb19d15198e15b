package chat

import (
	"context"
	"sync"
)

// Locker serialises turns of one session. Lock blocks until the key is free
// or ctx ends; the returned func releases it and is safe to call twice.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a per-key mutex for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl := l.locks[key]
	if kl == nil {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// held reports how many callers hold or wait for key.
func (l *MemoryLocker) held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl := l.locks[key]; kl != nil {
		return kl.refs
	}
	return 0
}
