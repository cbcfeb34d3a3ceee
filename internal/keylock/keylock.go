// Package keylock provides in-process mutual exclusion keyed by an arbitrary value.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Map hands out one exclusive lock per key. Entries are dropped once no
// goroutine holds or waits for them.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

// New creates an empty lock map
func New[K comparable]() *Map[K] {
	return &Map[K]{locks: make(map[K]*entry)}
}

// Lock blocks until the lock for key is held or ctx is done. The returned
// release func must be called exactly once.
func (m *Map[K]) Lock(ctx context.Context, key K) (release func(), err error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.unref(key, e)
		})
	}, nil
}

func (m *Map[K]) unref(key K, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
