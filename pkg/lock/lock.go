// Package lock implements per-key mutual exclusion within a process.
// Holders of the same key are serialized; distinct keys never contend.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrLockHeld signifies a non-blocking acquire of a key someone else holds
	ErrLockHeld = errors.New("lock held")
	// ErrLockNotHeld signifies an attempt to operate on a released lock
	ErrLockNotHeld = errors.New("lock not held")
)

// Keyed hands out locks by key. The zero value is not usable, use NewKeyed.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Lock is a held key of a Keyed
type Lock struct {
	k   *Keyed
	key string
	e   *entry

	mu   sync.Mutex
	held bool
}

// NewKeyed creates an empty Keyed
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*entry)}
}

// Acquire will attempt to acquire the lock for key. If blocking is set to true
// it will wait until the lock is free or ctx is done. Setting blocking to false
// returns ErrLockHeld immediately if the key is taken.
func (k *Keyed) Acquire(ctx context.Context, key string, blocking bool) (*Lock, error) {
	e := k.ref(key)

	if !blocking {
		select {
		case e.sem <- struct{}{}:
			return &Lock{k: k, key: key, e: e, held: true}, nil
		default:
			k.unref(key, e)
			return nil, ErrLockHeld
		}
	}

	// Prefer a cancelled context over a free lock
	if err := ctx.Err(); err != nil {
		k.unref(key, e)
		return nil, err
	}

	select {
	case e.sem <- struct{}{}:
		return &Lock{k: k, key: key, e: e, held: true}, nil
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}
}

// Len returns the number of keys that are held or waited on
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *Keyed) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Key returns the key the lock was acquired for
func (l *Lock) Key() string {
	return l.key
}

// Release will release the lock
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return ErrLockNotHeld
	}
	l.held = false
	<-l.e.sem
	l.k.unref(l.key, l.e)
	return nil
}
