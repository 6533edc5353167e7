package unitcache

import (
	"context"
	"sync"
)

// fileLock is a mutex built on a one-slot channel so acquisition can be
// abandoned when a context is cancelled and probed without blocking.
type fileLock struct {
	ch chan struct{}
}

func newFileLock() *fileLock {
	return &fileLock{ch: make(chan struct{}, 1)}
}

// held records the locks owned by a call chain. It is stored in the context
// handed to callbacks, which is what makes the per-file lock reentrant.
type held struct {
	name   string
	parent *held
}

type heldKey struct{}

func holds(ctx context.Context, name string) bool {
	h, _ := ctx.Value(heldKey{}).(*held)
	for ; h != nil; h = h.parent {
		if h.name == name {
			return true
		}
	}
	return false
}

// lockTable maps file names to their locks. Entries are created on first
// use and never removed; mu guards only the map.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*fileLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*fileLock)}
}

func (t *lockTable) get(name string) *fileLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[name]
	if !ok {
		l = newFileLock()
		t.locks[name] = l
	}
	return l
}

func (t *lockTable) lookup(name string) *fileLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locks[name]
}

func noop() {}

// acquire blocks until the lock for name is held or ctx is done. The returned
// context marks name as held; pass it to nested calls to re-enter.
func (t *lockTable) acquire(ctx context.Context, name string) (context.Context, func(), error) {
	if holds(ctx, name) {
		return ctx, noop, nil
	}
	if err := ctx.Err(); err != nil {
		return ctx, noop, err
	}
	l := t.get(name)
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx, noop, ctx.Err()
	}
	return owned(ctx, name), func() { <-l.ch }, nil
}

// tryAcquire is acquire without waiting. ok is false if another call chain
// holds the lock.
func (t *lockTable) tryAcquire(ctx context.Context, name string) (context.Context, func(), bool) {
	if holds(ctx, name) {
		return ctx, noop, true
	}
	l := t.get(name)
	select {
	case l.ch <- struct{}{}:
		return owned(ctx, name), func() { <-l.ch }, true
	default:
		return ctx, noop, false
	}
}

// locked reports whether name is held right now. The answer may be stale by
// the time the caller acts on it.
func (t *lockTable) locked(name string) bool {
	l := t.lookup(name)
	return l != nil && len(l.ch) == 1
}

func owned(ctx context.Context, name string) context.Context {
	parent, _ := ctx.Value(heldKey{}).(*held)
	return context.WithValue(ctx, heldKey{}, &held{name: name, parent: parent})
}
