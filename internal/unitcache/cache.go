// Package unitcache keeps one parsed translation unit per file and decides
// whether a request can reuse it, must reparse it, or must create it.
//
// All work on one file runs under that file's lock. The lock is reentrant
// per call chain: callbacks receive a context that records which files the
// chain holds, and passing that context back into the cache re-enters
// instead of deadlocking.
package unitcache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

var (
	// ErrNoUnit means the backend could not produce a unit for the file.
	ErrNoUnit = errors.New("no translation unit")
	// ErrBusy means a non-blocking access found the file locked.
	ErrBusy = errors.New("translation unit is busy")
	// ErrNotParsed means a non-blocking access found the file stale.
	ErrNotParsed = errors.New("translation unit is not parsed")
)

// Backend is the parsing library the cache drives.
type Backend interface {
	Parse(ctx context.Context, name string, args []string, src []byte, flags treesitter.ParseFlags) (*treesitter.Unit, error)
	Reparse(ctx context.Context, u *treesitter.Unit, src []byte) error
}

// ContentFunc supplies the current source of a file. It is only called when
// a parse is needed.
type ContentFunc func() ([]byte, error)

// Func is called with a unit while its file lock is held. ctx must be used
// for nested cache calls on the same file.
type Func func(ctx context.Context, u *treesitter.Unit) error

// Options configures a Cache.
type Options struct {
	// Args returns the argument list for new units. Called per creation.
	Args    func() []string
	Metrics *metrics.Metrics
}

// Cache maps file names to parsed units.
type Cache struct {
	backend Backend
	args    func() []string
	metrics *metrics.Metrics
	locks   *lockTable

	mu       sync.Mutex
	units    map[string]*treesitter.Unit
	upToDate map[string]struct{}
	// gen is bumped by ClearCaches and epochs[name] by Invalidate. A parse
	// only marks its file up to date if neither moved while it ran.
	gen    uint64
	epochs map[string]uint64
}

// New creates an empty cache over backend.
func New(backend Backend, opts Options) *Cache {
	args := opts.Args
	if args == nil {
		args = func() []string { return nil }
	}
	return &Cache{
		backend:  backend,
		args:     args,
		metrics:  opts.Metrics,
		locks:    newLockTable(),
		units:    make(map[string]*treesitter.Unit),
		upToDate: make(map[string]struct{}),
		epochs:   make(map[string]uint64),
	}
}

// GetOrCreate returns an up-to-date unit for name, parsing if needed. The
// unit must not be used after return without holding the file lock; use Do
// to work with it.
func (c *Cache) GetOrCreate(ctx context.Context, name string, content ContentFunc) (*treesitter.Unit, error) {
	ctx, release, err := c.locks.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.parseAction(ctx, name, content)
}

// Do brings name up to date and calls fn with the unit under the file lock.
// The lock is released on every exit path, panics included.
func (c *Cache) Do(ctx context.Context, name string, content ContentFunc, fn Func) error {
	ctx, release, err := c.locks.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	u, err := c.parseAction(ctx, name, content)
	if err != nil {
		return err
	}
	return fn(ctx, u)
}

// TryDo calls fn only if the lock is free and the unit is up to date. It
// never parses and never waits.
func (c *Cache) TryDo(ctx context.Context, name string, fn Func) error {
	ctx, release, ok := c.locks.tryAcquire(ctx, name)
	if !ok {
		return ErrBusy
	}
	defer release()

	c.mu.Lock()
	u := c.units[name]
	_, fresh := c.upToDate[name]
	c.mu.Unlock()

	if u == nil || !fresh {
		return ErrNotParsed
	}
	return fn(ctx, u)
}

// ClearCaches marks every file stale without dropping units, so the next
// access reparses incrementally. Parses in flight will not mark their file
// up to date.
func (c *Cache) ClearCaches() {
	c.mu.Lock()
	c.gen++
	clear(c.upToDate)
	c.mu.Unlock()

	c.metrics.Invalidate("all")
	log.Debug().Msg("unitcache: caches cleared")
}

// Invalidate marks one file stale.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	c.epochs[name]++
	delete(c.upToDate, name)
	c.mu.Unlock()

	c.metrics.Invalidate("file")
	log.Debug().Str("file", name).Msg("unitcache: invalidated")
}

// IsUpToDate reports whether name has a unit reflecting its latest content.
func (c *Cache) IsUpToDate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.upToDate[name]
	return ok
}

// IsLocked reports whether some call chain holds name. Best effort only.
func (c *Cache) IsLocked(name string) bool {
	return c.locks.locked(name)
}

// Names returns the files that have a unit, sorted.
func (c *Cache) Names() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)
	return names
}

// Len returns the number of cached units.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.units)
}
