package app

import (
	"context"
	"sync"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// keyedMutex serializes work per tenant while letting different tenants
// proceed in parallel. Entries are dropped once nobody holds or waits on
// them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.TenantID]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int // holders plus waiters; guarded by keyedMutex.mu
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.TenantID]*keyLock)}
}

// Lock blocks until the lock for id is held or ctx is done. The returned
// func releases the lock and is safe to call more than once.
func (k *keyedMutex) Lock(ctx context.Context, id domain.TenantID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(id, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			k.release(id, l)
		})
	}, nil
}

func (k *keyedMutex) release(id domain.TenantID, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// size reports how many keys are tracked.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
