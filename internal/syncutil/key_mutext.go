package syncutil

import "sync"

// KeyMutex serializes work per key.
// A key entry lives while somebody holds or waits for it.
// The zero value is ready to use.
type KeyMutex[K comparable] struct {
	mu   sync.Mutex
	keys map[K]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex of key and returns a function that releases it.
func (km *KeyMutex[K]) Lock(key K) (unlock func()) {
	km.mu.Lock()
	if km.keys == nil {
		km.keys = make(map[K]*keyLock)
	}
	l, ok := km.keys[key]
	if !ok {
		l = &keyLock{}
		km.keys[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		km.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(km.keys, key)
		}
		km.mu.Unlock()
	}
}

// Len returns the number of keys held or waited for.
func (km *KeyMutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.keys)
}
