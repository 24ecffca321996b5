package tasks

import (
	"context"
	"sync"
)

// mutation is one optimistic change to local state: apply locally, persist remotely, then commit or roll back.
//
// A nil apply makes the mutation confirm-first: nothing changes locally until persist succeeds.
type mutation[T any] struct {
	apply    func() (undo func())
	persist  func(ctx context.Context) (T, error)
	commit   func(T)
	rollback func(err error) bool
}

func (m mutation[T]) run(ctx context.Context) (T, error) {
	var undo func()
	if m.apply != nil {
		undo = m.apply()
	}

	result, err := m.persist(ctx)
	if err != nil {
		if undo != nil && m.rollback != nil && m.rollback(err) {
			undo()
		}
		var zero T
		return zero, err
	}

	if m.commit != nil {
		m.commit(result)
	}
	return result, nil
}

// keyedMutex serializes work per key, releasing per-key state once idle.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key int) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
