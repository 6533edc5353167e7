// Package watch keeps cached units in step with files edited outside the
// editor.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/editor"
	"github.com/xonecas/cxxnav/internal/filesearch"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 100 * time.Millisecond

// Target receives the consequences of disk changes.
type Target interface {
	Invalidate(name string)
	EnqueueBackground(f editor.File)
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Excluded []string
}

// Watcher watches every non-excluded directory under a root.
type Watcher struct {
	fsw      *fsnotify.Watcher
	walker   *filesearch.Walker
	target   Target
	debounce time.Duration

	// pending is only touched by the loop goroutine.
	pending map[string]fsnotify.Op

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New starts watching root.
func New(root string, target Target, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	walker, err := filesearch.NewWalker(root, opts.Excluded)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		walker:   walker,
		target:   target,
		debounce: opts.Debounce,
		pending:  make(map[string]fsnotify.Op),
		done:     make(chan struct{}),
	}
	if err := w.addTree(walker.Root()); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	log.Debug().Str("root", walker.Root()).Dur("debounce", w.debounce).Msg("watch: started")
	return w, nil
}

// Close stops the watcher and waits for its goroutine. Pending events are
// dropped.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

// addTree watches dir and every directory below it that a walk would visit.
func (w *Watcher) addTree(dir string) error {
	sub, err := filesearch.NewWalker(dir, nil)
	if err != nil {
		return err
	}
	return sub.Dirs(context.Background(), func(path string) error {
		if path != w.walker.Root() && w.walker.Skips(path, true) {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("watch: add failed")
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.record(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watch: error")
		case <-timerC:
			timerC = nil
			w.flush()
		}
	}
}

// record notes a relevant event. New directories are watched right away.
func (w *Watcher) record(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if !w.walker.Skips(ev.Name, true) {
				if err := w.addTree(ev.Name); err != nil {
					log.Warn().Err(err).Str("dir", ev.Name).Msg("watch: add failed")
				}
			}
			return false
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if !treesitter.Supported(ev.Name) || w.walker.Skips(ev.Name, false) {
		return false
	}
	w.pending[ev.Name] |= ev.Op
	return true
}

// flush invalidates every quiet file and queues the ones that still exist.
func (w *Watcher) flush() {
	for name := range w.pending {
		w.target.Invalidate(name)

		src, err := os.ReadFile(name)
		switch {
		case err == nil:
			if len(src) > filesearch.MaxFileSize {
				continue
			}
			w.target.EnqueueBackground(editor.File{Name: name, Content: src})
			log.Debug().Str("file", name).Msg("watch: changed")
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("file", name).Msg("watch: removed")
		default:
			log.Debug().Err(err).Str("file", name).Msg("watch: unreadable")
		}
	}
	clear(w.pending)
}
