package plugin

import (
	"context"
	"sync"

	"github.com/xonecas/cxxnav/internal/editor"
)

// slot holds at most one value; a put replaces whatever was not yet taken.
type slot[T any] struct {
	mu sync.Mutex
	v  T
	ok bool
}

func (s *slot[T]) put(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v, s.ok = v, true
}

func (s *slot[T]) take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.v, s.ok
	var zero T
	s.v, s.ok = zero, false
	return v, ok
}

// latestWorker processes files on one goroutine. Requests made while it is
// busy collapse into the newest one.
type latestWorker struct {
	process func(ctx context.Context, f editor.File)

	next   slot[editor.File]
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newLatestWorker(process func(ctx context.Context, f editor.File)) *latestWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &latestWorker{
		process: process,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *latestWorker) request(f editor.File) {
	w.next.put(f)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *latestWorker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
		}
		if f, ok := w.next.take(); ok {
			w.process(w.ctx, f)
		}
	}
}

// terminate abandons queued work, cancels a parse waiting on a lock and
// waits for the goroutine to exit.
func (w *latestWorker) terminate() {
	w.once.Do(w.cancel)
	w.wg.Wait()
}
