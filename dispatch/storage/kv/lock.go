package kv

import (
	"context"
	"sync"

	"github.com/micromdm/nanoflow/dispatch/storage"
)

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// keyedLocker is a set of mutexes keyed by string.
// Entries are created on demand and dropped when unreferenced.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*lockEntry)}
}

func (l *keyedLocker) release(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// lock blocks until key is held or ctx is done.
func (l *keyedLocker) lock(ctx context.Context, key string) (storage.UnlockFunc, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}
