// Package access is the single entry point through which editor features
// reach translation units. It ties the unit cache, the background
// scheduler and the host editor together.
package access

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/companion"
	"github.com/xonecas/cxxnav/internal/editor"
	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/scheduler"
	"github.com/xonecas/cxxnav/internal/treesitter"
	"github.com/xonecas/cxxnav/internal/unitcache"
)

// ErrUnreadable means a file named by path could not be read.
var ErrUnreadable = errors.New("file is unreadable")

// Re-exported so callers need not import unitcache.
var (
	ErrNoUnit    = unitcache.ErrNoUnit
	ErrBusy      = unitcache.ErrBusy
	ErrNotParsed = unitcache.ErrNotParsed
)

// Func is called with a unit while its file is locked.
type Func = unitcache.Func

// Options configures an Accessor.
type Options struct {
	Workers   int
	Companion companion.Options
	Metrics   *metrics.Metrics
	// Backend defaults to the tree-sitter parser.
	Backend unitcache.Backend
}

// Accessor serves translation units to foreground features.
type Accessor struct {
	editor editor.Editor
	cache  *unitcache.Cache
	finder *companion.Finder
	sched  *scheduler.Scheduler
}

// New wires a cache, a companion finder and a scheduler for ed. The
// scheduler is not started.
func New(ed editor.Editor, opts Options) *Accessor {
	backend := opts.Backend
	if backend == nil {
		backend = treesitter.NewParser()
	}
	if opts.Companion.Excluded == nil {
		opts.Companion.Excluded = ed.ExcludedDirectories()
	}

	cache := unitcache.New(backend, unitcache.Options{
		Args:    ed.UserOptions,
		Metrics: opts.Metrics,
	})
	finder := companion.New(opts.Companion)
	return &Accessor{
		editor: ed,
		cache:  cache,
		finder: finder,
		sched: scheduler.New(cache, finder, scheduler.Options{
			Workers: opts.Workers,
			Metrics: opts.Metrics,
		}),
	}
}

// Editor returns the host editor.
func (a *Accessor) Editor() editor.Editor { return a.editor }

// Finder returns the companion finder shared with the scheduler.
func (a *Accessor) Finder() *companion.Finder { return a.finder }

// Scheduler returns the background scheduler.
func (a *Accessor) Scheduler() *scheduler.Scheduler { return a.sched }

// CurrentTranslationUnitDo parses the editor's current file if needed and
// calls fn with its unit.
func (a *Accessor) CurrentTranslationUnitDo(ctx context.Context, fn Func) error {
	return a.TranslationUnitDo(ctx, a.editor.CurrentFile(), fn)
}

// CurrentTranslationUnitIfParsedDo calls fn only if the current file is
// already parsed and nobody is working on it. It never blocks.
func (a *Accessor) CurrentTranslationUnitIfParsedDo(ctx context.Context, fn Func) error {
	return a.cache.TryDo(ctx, a.editor.FileName(), fn)
}

// TranslationUnitForFileNamedDo reads path from disk and calls fn with its
// unit.
func (a *Accessor) TranslationUnitForFileNamedDo(ctx context.Context, path string, fn Func) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return a.TranslationUnitDo(ctx, editor.File{Name: path, Content: src}, fn)
}

// TranslationUnitDo parses file with the given content if needed and calls
// fn with its unit.
func (a *Accessor) TranslationUnitDo(ctx context.Context, file editor.File, fn Func) error {
	a.sched.Supply(file.Name, file.Content)
	err := a.cache.Do(ctx, file.Name, staticContent(file.Content), fn)
	if errors.Is(err, unitcache.ErrNoUnit) {
		a.editor.DisplayMessage(unparseableMessage(a.editor.UserOptions()))
		log.Debug().Err(err).Str("file", file.Name).Msg("access: no unit")
	}
	return err
}

// EnqueueTranslationUnitCreation asks the background workers to parse file
// ahead of any discovered companions.
func (a *Accessor) EnqueueTranslationUnitCreation(file editor.File) {
	a.sched.Enqueue(file.Name, file.Content, true)
}

// EnqueueBackground queues file behind explicit requests.
func (a *Accessor) EnqueueBackground(file editor.File) {
	a.sched.Enqueue(file.Name, file.Content, false)
}

// Supply records file's content as its newest text for background parses.
func (a *Accessor) Supply(file editor.File) { a.sched.Supply(file.Name, file.Content) }

// ClearCaches marks every unit stale.
func (a *Accessor) ClearCaches() { a.cache.ClearCaches() }

// Invalidate marks one unit stale.
func (a *Accessor) Invalidate(name string) { a.cache.Invalidate(name) }

// IsUpToDate reports whether name's unit reflects its latest content.
func (a *Accessor) IsUpToDate(name string) bool { return a.cache.IsUpToDate(name) }

// Names lists the files with a cached unit.
func (a *Accessor) Names() []string { return a.cache.Names() }

// Start launches the background workers.
func (a *Accessor) Start() { a.sched.Start() }

// Terminate stops the background workers and waits for them.
func (a *Accessor) Terminate() { a.sched.Terminate() }

func staticContent(src []byte) unitcache.ContentFunc {
	return func() ([]byte, error) { return src, nil }
}

func unparseableMessage(args []string) string {
	return "Cannot parse this source file. The following arguments are used: " + strings.Join(args, " ")
}
