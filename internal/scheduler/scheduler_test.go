package scheduler

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/xonecas/cxxnav/internal/companion"
	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/treesitter"
	"github.com/xonecas/cxxnav/internal/unitcache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCache struct {
	mu       sync.Mutex
	order    []string
	contents map[string]string
	upToDate map[string]bool
	locked   map[string]bool
	panicOn  string
	started  chan string
	gate     chan struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		contents: make(map[string]string),
		upToDate: make(map[string]bool),
		locked:   make(map[string]bool),
	}
}

func (c *fakeCache) GetOrCreate(ctx context.Context, name string, content unitcache.ContentFunc) (*treesitter.Unit, error) {
	if c.started != nil {
		c.started <- name
	}
	if c.gate != nil {
		<-c.gate
	}
	src, err := content()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.order = append(c.order, name)
	c.contents[name] = string(src)
	c.mu.Unlock()

	if name == c.panicOn {
		panic("parser exploded")
	}

	c.mu.Lock()
	c.upToDate[name] = true
	c.mu.Unlock()
	return nil, nil
}

func (c *fakeCache) IsUpToDate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upToDate[name]
}

func (c *fakeCache) IsLocked(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked[name]
}

func (c *fakeCache) processed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

func (c *fakeCache) content(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contents[name]
}

type fakeFinder map[string][]string

func (f fakeFinder) DefinitionFiles(target string) iter.Seq[string] {
	return slices.Values(f[target])
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPriorityOrder(t *testing.T) {
	cache := newFakeCache()
	s := New(cache, nil, Options{Workers: 1})
	defer s.Terminate()

	s.Enqueue("low1.cpp", []byte("a"), false)
	s.Enqueue("low2.cpp", []byte("b"), false)
	s.Enqueue("high.cpp", []byte("c"), true)
	s.Start()

	waitFor(t, "all files", func() bool { return len(cache.processed()) == 3 })
	want := []string{"high.cpp", "low1.cpp", "low2.cpp"}
	if got := cache.processed(); !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	m := metrics.New(nil)
	cache := newFakeCache()
	s := New(cache, nil, Options{Workers: 1, Metrics: m})
	defer s.Terminate()

	s.Enqueue("a.cpp", []byte("old"), true)
	s.Enqueue("a.cpp", []byte("new"), true)
	if s.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending())
	}
	s.Enqueue("a.cpp", []byte("newer"), false)
	if s.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", s.Pending())
	}
	if got := testutil.ToFloat64(m.EnqueueDropped.WithLabelValues(metrics.DropDuplicate)); got != 1 {
		t.Errorf("duplicate drops = %v, want 1", got)
	}

	s.Start()
	waitFor(t, "a.cpp", func() bool { return len(cache.processed()) >= 1 })
	// The parse sees the latest content even though the request was deduplicated.
	if got := cache.content("a.cpp"); got != "newer" {
		t.Errorf("content = %q, want newer", got)
	}
}

func TestEnqueueDropsUpToDateAndLocked(t *testing.T) {
	cache := newFakeCache()
	cache.upToDate["fresh.cpp"] = true
	cache.locked["busy.cpp"] = true
	s := New(cache, nil, Options{Workers: 1})
	defer s.Terminate()

	s.Enqueue("fresh.cpp", nil, true)
	s.Enqueue("busy.cpp", nil, true)
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestCompanionsQueuedFromDisk(t *testing.T) {
	dir := t.TempDir()
	impl := filepath.Join(dir, "widget.cpp")
	edited := filepath.Join(dir, "widgetI.cpp")
	missing := filepath.Join(dir, "gone.cpp")
	if err := os.WriteFile(impl, []byte("disk"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(edited, []byte("disk"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := newFakeCache()
	finder := fakeFinder{"widget.h": {impl, missing, edited}}
	s := New(cache, finder, Options{Workers: 1})
	defer s.Terminate()

	s.Enqueue(edited, []byte("in memory"), false)
	s.Enqueue("widget.h", []byte("class Widget;"), true)
	s.Start()

	waitFor(t, "companions", func() bool { return len(cache.processed()) == 3 })
	if got := cache.content(impl); got != "disk" {
		t.Errorf("companion content = %q, want disk", got)
	}
	if got := cache.content(edited); got != "in memory" {
		t.Errorf("edited companion content = %q, want in memory", got)
	}
	if slices.Contains(cache.processed(), missing) {
		t.Error("unreadable companion was queued")
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	m := metrics.New(nil)
	cache := newFakeCache()
	cache.panicOn = "bad.cpp"
	s := New(cache, nil, Options{Workers: 1, Metrics: m})
	defer s.Terminate()

	s.Enqueue("bad.cpp", nil, true)
	s.Enqueue("good.cpp", nil, false)
	s.Start()

	waitFor(t, "good.cpp", func() bool { return slices.Contains(cache.processed(), "good.cpp") })
	if got := testutil.ToFloat64(m.WorkerPanics); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
}

func TestTerminate(t *testing.T) {
	cache := newFakeCache()
	s := New(cache, nil, Options{Workers: 3})
	s.Start()
	s.Start()

	s.Terminate()
	s.Terminate()

	s.Enqueue("late.cpp", nil, true)
	if s.Pending() != 0 {
		t.Errorf("Pending after Terminate = %d, want 0", s.Pending())
	}
	s.Start()
}

func TestTerminateWithoutStart(t *testing.T) {
	s := New(newFakeCache(), nil, Options{})
	s.Enqueue("a.cpp", nil, true)
	s.Terminate()
}

func TestTerminateWaitsForInFlightParse(t *testing.T) {
	cache := newFakeCache()
	cache.started = make(chan string, 1)
	cache.gate = make(chan struct{})
	s := New(cache, nil, Options{Workers: 2})

	s.Enqueue("slow.cpp", nil, true)
	s.Start()
	<-cache.started

	done := make(chan struct{})
	go func() {
		s.Terminate()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Terminate returned while a parse was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(cache.gate)
	<-done

	if got := cache.processed(); !slices.Equal(got, []string{"slow.cpp"}) {
		t.Errorf("processed = %v", got)
	}
}

func TestWarm(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a.cpp", "inc/b.h", "notes.txt", "build/c.cpp"} {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("int x;"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cache := newFakeCache()
	s := New(cache, nil, Options{Workers: 2})
	defer s.Terminate()

	n, err := s.Warm(context.Background(), root, []string{"build"})
	if err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if n != 2 {
		t.Errorf("Warm queued %d files, want 2", n)
	}
	s.Start()

	waitFor(t, "warm-up", func() bool { return len(cache.processed()) == 2 })
	got := cache.processed()
	slices.Sort(got)
	want := []string{filepath.Join(root, "a.cpp"), filepath.Join(root, "inc", "b.h")}
	if !slices.Equal(got, want) {
		t.Errorf("processed = %v, want %v", got, want)
	}
}

func TestParsesCompanionsWithRealCache(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "shape.h")
	impl := filepath.Join(dir, "shape.cpp")
	if err := os.WriteFile(impl, []byte("int area() { return 0; }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := unitcache.New(treesitter.NewParser(), unitcache.Options{})
	finder := companion.New(companion.Options{SearchLimit: 1})
	s := New(cache, finder, Options{Workers: 2})
	defer s.Terminate()
	s.Start()

	s.Enqueue(header, []byte("int area();\n"), true)
	waitFor(t, "shape.cpp", func() bool { return cache.IsUpToDate(impl) })
	if !cache.IsUpToDate(header) {
		t.Error("header not parsed")
	}
}

func TestTerminateSettlesQueueDepth(t *testing.T) {
	m := metrics.New(nil)
	s := New(newFakeCache(), nil, Options{Workers: 1, Metrics: m})

	s.Enqueue("a.cpp", nil, true)
	s.Enqueue("b.cpp", nil, false)
	s.Enqueue("c.cpp", nil, false)
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("low")); got != 2 {
		t.Fatalf("low queue depth = %v, want 2", got)
	}

	s.Terminate()
	for _, p := range []string{"high", "low"} {
		if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues(p)); got != 0 {
			t.Errorf("%s queue depth after Terminate = %v, want 0", p, got)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("Pending after Terminate = %d, want 0", s.Pending())
	}
}

func TestSuppliedContentReplacesQueued(t *testing.T) {
	cache := unitcache.New(treesitter.NewParser(), unitcache.Options{})
	s := New(cache, nil, Options{Workers: 1})
	defer s.Terminate()
	ctx := context.Background()

	s.Enqueue("a.cpp", []byte("int v1;"), true)
	s.Supply("a.cpp", []byte("int v2;"))
	_, err := cache.GetOrCreate(ctx, "a.cpp", func() ([]byte, error) { return []byte("int v2;"), nil })
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	cache.ClearCaches()
	s.Start()

	waitFor(t, "a.cpp", func() bool { return cache.IsUpToDate("a.cpp") })
	u, err := cache.GetOrCreate(ctx, "a.cpp", func() ([]byte, error) { return []byte("int v2;"), nil })
	if err != nil {
		t.Fatal(err)
	}
	if got := string(u.Source()); got != "int v2;" {
		t.Errorf("source = %q, want the supplied text", got)
	}
}
