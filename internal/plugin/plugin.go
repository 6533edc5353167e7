// Package plugin implements the editor-facing features: diagnostics,
// definition and declaration jumps, and completion. Everything goes through
// an access.Accessor so that parsing stays cached and serialized per file.
package plugin

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/access"
	"github.com/xonecas/cxxnav/internal/editor"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

// Listener is called with the unit of the current file after every
// reparse triggered by FileChanged. The file lock is held.
type Listener func(ctx context.Context, u *treesitter.Unit)

// Plugin serves one editor.
type Plugin struct {
	ed      editor.Editor
	acc     *access.Accessor
	current *latestWorker
	results slot[diagResult]

	mu               sync.Mutex
	listeners        []Listener
	shown            bool
	shownName        string
	shownFingerprint uint64
}

// New creates a plugin for ed and starts its background workers.
func New(ed editor.Editor, opts access.Options) *Plugin {
	p := &Plugin{
		ed:  ed,
		acc: access.New(ed, opts),
	}
	p.current = newLatestWorker(p.processChanged)
	p.AddListener(func(_ context.Context, u *treesitter.Unit) {
		p.results.put(resultFor(u))
	})
	p.acc.Start()
	return p
}

// Accessor returns the accessor the plugin works through.
func (p *Plugin) Accessor() *access.Accessor { return p.acc }

// AddListener registers l for reparses of the current file.
func (p *Plugin) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// FileOpened queues the current file for a background parse.
func (p *Plugin) FileOpened() {
	f := p.ed.CurrentFile()
	log.Debug().Str("file", f.Name).Msg("plugin: file opened")
	p.acc.EnqueueTranslationUnitCreation(f)
}

// FileChanged marks every unit stale and reparses the current file in the
// background. Results reach the editor on a later Tick.
func (p *Plugin) FileChanged() {
	f := p.ed.CurrentFile()
	log.Debug().Str("file", f.Name).Msg("plugin: file changed, clearing caches")
	p.acc.Supply(f)
	p.acc.ClearCaches()
	p.current.request(f)
	p.Tick()
}

// Tick publishes diagnostics that became available since the last call. It
// never waits for a parse or a lock.
func (p *Plugin) Tick() {
	if r, ok := p.results.take(); ok {
		if r.name == p.ed.FileName() {
			p.publish(r)
		}
		return
	}

	var (
		r     diagResult
		fresh bool
	)
	err := p.acc.CurrentTranslationUnitIfParsedDo(context.Background(), func(_ context.Context, u *treesitter.Unit) error {
		if p.alreadyShown(u.Name(), u.Fingerprint()) {
			return nil
		}
		r, fresh = resultFor(u), true
		return nil
	})
	switch {
	case err == nil:
		if fresh {
			p.publish(r)
		}
	case errors.Is(err, access.ErrBusy), errors.Is(err, access.ErrNotParsed):
	default:
		log.Debug().Err(err).Msg("plugin: tick")
	}
}

// Terminate stops the current-file worker and the background workers.
func (p *Plugin) Terminate() {
	p.current.terminate()
	p.acc.Terminate()
}

func (p *Plugin) processChanged(ctx context.Context, f editor.File) {
	p.mu.Lock()
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	// The slot may have held an older version of this file while a
	// foreground call parsed it; never trust that up-to-date mark.
	p.acc.Invalidate(f.Name)
	err := p.acc.TranslationUnitDo(ctx, f, func(ctx context.Context, u *treesitter.Unit) error {
		for _, l := range listeners {
			l(ctx, u)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("file", f.Name).Msg("plugin: reparse of current file failed")
	}
}
