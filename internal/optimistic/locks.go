package optimistic

import (
	"sync"
)

// keyedLocks serializes operations per entity: concurrent intents for the
// same kind/id apply in a deterministic order instead of racing on the
// store. Locks are created on demand and dropped when no one holds or
// waits on them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		locks: make(map[string]*entityLock),
	}
}

// lock blocks until the key is free and returns the matching unlock.
func (kl *keyedLocks) lock(key string) func() {
	kl.mu.Lock()
	l, ok := kl.locks[key]
	if !ok {
		l = &entityLock{ch: make(chan struct{}, 1)}
		kl.locks[key] = l
	}
	l.refs++
	kl.mu.Unlock()

	l.ch <- struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			kl.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(kl.locks, key)
			}
			kl.mu.Unlock()
		})
	}
}
