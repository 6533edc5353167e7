// Package scheduler parses translation units in the background. Requests
// wait in a priority queue: files the user touched go first, companion
// files discovered along the way follow.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"iter"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/treesitter"
	"github.com/xonecas/cxxnav/internal/unitcache"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 7

// Cache is the part of the unit cache the scheduler drives.
type Cache interface {
	GetOrCreate(ctx context.Context, name string, content unitcache.ContentFunc) (*treesitter.Unit, error)
	IsUpToDate(name string) bool
	IsLocked(name string) bool
}

// Finder discovers companion files of a parsed file.
type Finder interface {
	DefinitionFiles(target string) iter.Seq[string]
}

// Options configures a Scheduler.
type Options struct {
	Workers int
	Metrics *metrics.Metrics
}

// Scheduler owns a fixed pool of parsing workers.
type Scheduler struct {
	cache   Cache
	finder  Finder
	workers int
	metrics *metrics.Metrics

	mu         sync.Mutex
	cond       *sync.Cond
	queue      requestHeap
	queued     map[requestKey]bool
	contents   map[string][]byte
	seq        uint64
	started    bool
	terminated bool

	group errgroup.Group
	once  sync.Once
}

// New creates a stopped scheduler. Requests may be enqueued before Start.
func New(cache Cache, finder Finder, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	s := &Scheduler{
		cache:    cache,
		finder:   finder,
		workers:  opts.Workers,
		metrics:  opts.Metrics,
		queued:   make(map[requestKey]bool),
		contents: make(map[string][]byte),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the workers. Calling it again, or after Terminate, does
// nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.terminated {
		return
	}
	s.started = true
	for id := 1; id <= s.workers; id++ {
		s.group.Go(func() error {
			s.work(id)
			return nil
		})
	}
	log.Debug().Int("workers", s.workers).Msg("scheduler: started")
}

// Enqueue asks for name to be parsed with content. The request is dropped
// if the file is already up to date, is being worked on, or is already
// queued at the same priority. A same-priority duplicate still records its
// content so the queued parse sees the newest text; up-to-date and locked
// drops record nothing.
func (s *Scheduler) Enqueue(name string, content []byte, high bool) {
	s.enqueue(name, content, high)
}

// Supply records content as the newest text for name without queueing a
// parse. Any request for name parses it instead of text enqueued earlier.
func (s *Scheduler) Supply(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[name] = content
}

// enqueue reports whether a new request was queued.
func (s *Scheduler) enqueue(name string, content []byte, high bool) bool {
	if s.cache.IsUpToDate(name) {
		s.metrics.Dropped(metrics.DropUpToDate)
		return false
	}
	if s.cache.IsLocked(name) {
		s.metrics.Dropped(metrics.DropLocked)
		return false
	}

	priority := priorityLow
	if high {
		priority = priorityHigh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		s.metrics.Dropped(metrics.DropTerminated)
		return false
	}
	s.contents[name] = content
	return s.pushLocked(priority, name)
}

// pushLocked inserts a request unless an identical one is pending.
func (s *Scheduler) pushLocked(priority int, name string) bool {
	s.seq++
	r := request{priority: priority, name: name, seq: s.seq}
	if priority != prioritySentinel {
		if s.queued[r.key()] {
			s.metrics.Dropped(metrics.DropDuplicate)
			return false
		}
		s.queued[r.key()] = true
		s.metrics.QueueAdd(priorityLabel(priority), 1)
	}
	heap.Push(&s.queue, r)
	s.cond.Signal()
	return true
}

// Pending returns the number of queued parse requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// Terminate stops the workers once their current parse finishes and waits
// for them. Queued requests are abandoned. Safe to call more than once.
func (s *Scheduler) Terminate() {
	s.once.Do(func() {
		s.mu.Lock()
		s.terminated = true
		s.abandonLocked()
		for range s.workers {
			s.pushLocked(prioritySentinel, "")
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		_ = s.group.Wait()
		log.Debug().Msg("scheduler: terminated")
	})
}

// abandonLocked empties the queue and settles the depth gauge.
func (s *Scheduler) abandonLocked() {
	for _, r := range s.queue {
		if r.priority == prioritySentinel {
			continue
		}
		s.metrics.QueueAdd(priorityLabel(r.priority), -1)
	}
	s.queue = s.queue[:0]
	clear(s.queued)
}

// next blocks for the most urgent request. ok is false when the worker
// must exit.
func (s *Scheduler) next() (request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() == 0 {
		s.cond.Wait()
	}
	r := heap.Pop(&s.queue).(request)
	if r.priority == prioritySentinel {
		return r, false
	}
	delete(s.queued, r.key())
	s.metrics.QueueAdd(priorityLabel(r.priority), -1)
	if s.terminated {
		return r, false
	}
	return r, true
}

func (s *Scheduler) work(id int) {
	ctx := unitcache.WithRole(context.Background(), fmt.Sprintf("worker-%d", id))
	for {
		r, ok := s.next()
		if !ok {
			return
		}
		s.process(ctx, r)
	}
}

// process parses one file and queues its companions. Failures are logged
// and never stop the worker.
func (s *Scheduler) process(ctx context.Context, r request) {
	defer func() {
		if p := recover(); p != nil {
			s.metrics.Panic()
			log.Error().Str("file", r.name).Interface("panic", p).Msg("scheduler: worker panic")
		}
	}()

	if _, err := s.cache.GetOrCreate(ctx, r.name, s.contentOf(r.name)); err != nil {
		log.Debug().Err(err).Str("file", r.name).Msg("scheduler: parse failed")
		return
	}
	s.enqueueCompanions(r.name)
}

func (s *Scheduler) contentOf(name string) unitcache.ContentFunc {
	return func() ([]byte, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		content, ok := s.contents[name]
		if !ok {
			return nil, fmt.Errorf("no content recorded for %s", name)
		}
		return content, nil
	}
}

func (s *Scheduler) enqueueCompanions(name string) {
	if s.finder == nil {
		return
	}
	for path := range s.finder.DefinitionFiles(name) {
		s.enqueueIfNew(path)
	}
}

// enqueueIfNew queues a file from disk at low priority unless content for it
// was already supplied, so in-memory edits are never replaced by disk text.
// Unreadable files are skipped.
func (s *Scheduler) enqueueIfNew(path string) bool {
	s.mu.Lock()
	_, known := s.contents[path]
	s.mu.Unlock()
	if known {
		return false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return s.enqueue(path, content, false)
}
