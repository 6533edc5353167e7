package unitcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

// countingBackend wraps the real parser, counting calls and optionally
// pausing each parse until gate is closed.
type countingBackend struct {
	inner *treesitter.Parser

	parses    atomic.Int32
	reparses  atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32

	entered chan string   // receives the file name when a parse starts
	gate    chan struct{} // parses wait for this to close
	err     error
}

func newBackend() *countingBackend {
	return &countingBackend{inner: treesitter.NewParser()}
}

func (b *countingBackend) enter(ctx context.Context, name string) error {
	n := b.active.Add(1)
	for {
		m := b.maxActive.Load()
		if n <= m || b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if b.entered != nil {
		b.entered <- name
	}
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.err
}

func (b *countingBackend) Parse(ctx context.Context, name string, args []string, src []byte, flags treesitter.ParseFlags) (*treesitter.Unit, error) {
	defer b.active.Add(-1)
	b.parses.Add(1)
	if err := b.enter(ctx, name); err != nil {
		return nil, err
	}
	return b.inner.Parse(ctx, name, args, src, flags)
}

func (b *countingBackend) Reparse(ctx context.Context, u *treesitter.Unit, src []byte) error {
	defer b.active.Add(-1)
	b.reparses.Add(1)
	if err := b.enter(ctx, u.Name()); err != nil {
		return err
	}
	return b.inner.Reparse(ctx, u, src)
}

// source returns a ContentFunc serving src and counting calls.
func source(src string, calls *atomic.Int32) ContentFunc {
	return func() ([]byte, error) {
		if calls != nil {
			calls.Add(1)
		}
		return []byte(src), nil
	}
}

func TestCreateThenHit(t *testing.T) {
	b := newBackend()
	m := metrics.New(nil)
	c := New(b, Options{Metrics: m})
	ctx := context.Background()
	var reads atomic.Int32

	u1, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", &reads))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !c.IsUpToDate("a.cpp") {
		t.Fatal("a.cpp should be up to date after creation")
	}

	u2, err := c.GetOrCreate(ctx, "a.cpp", source("int changed;", &reads))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if u1 != u2 {
		t.Error("up-to-date lookup returned a different unit")
	}
	if reads.Load() != 1 {
		t.Errorf("content read %d times, want 1", reads.Load())
	}
	if b.parses.Load() != 1 || b.reparses.Load() != 0 {
		t.Errorf("parses=%d reparses=%d, want 1/0", b.parses.Load(), b.reparses.Load())
	}
	if got := testutil.ToFloat64(m.ParsesTotal.WithLabelValues(metrics.ResultHit)); got != 1 {
		t.Errorf("hit counter = %v, want 1", got)
	}
	if names := c.Names(); len(names) != 1 || names[0] != "a.cpp" {
		t.Errorf("Names = %v", names)
	}
}

func TestClearCachesReparsesInPlace(t *testing.T) {
	b := newBackend()
	c := New(b, Options{})
	ctx := context.Background()

	u1, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", nil))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	c.ClearCaches()
	if c.IsUpToDate("a.cpp") {
		t.Fatal("ClearCaches left a.cpp up to date")
	}

	u2, err := c.GetOrCreate(ctx, "a.cpp", source("int a;\nint b;", nil))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if u1 != u2 {
		t.Error("reparse must update the existing unit")
	}
	if u2.Version() != 1 {
		t.Errorf("Version = %d, want 1", u2.Version())
	}
	if b.reparses.Load() != 1 {
		t.Errorf("reparses = %d, want 1", b.reparses.Load())
	}
	if len(u2.Declarations("b")) != 1 {
		t.Error("reparsed unit does not see the new content")
	}
}

func TestInvalidateOneFile(t *testing.T) {
	c := New(newBackend(), Options{})
	ctx := context.Background()

	for _, name := range []string{"a.cpp", "b.cpp"} {
		if _, err := c.GetOrCreate(ctx, name, source("int x;", nil)); err != nil {
			t.Fatalf("GetOrCreate(%s): %v", name, err)
		}
	}
	c.Invalidate("a.cpp")
	if c.IsUpToDate("a.cpp") {
		t.Error("a.cpp still up to date")
	}
	if !c.IsUpToDate("b.cpp") {
		t.Error("b.cpp should be unaffected")
	}
}

func TestUnparseable(t *testing.T) {
	c := New(newBackend(), Options{})

	_, err := c.GetOrCreate(context.Background(), "notes.txt", source("hello", nil))
	if !errors.Is(err, ErrNoUnit) {
		t.Fatalf("err = %v, want ErrNoUnit", err)
	}
	if !errors.Is(err, treesitter.ErrUnparseable) {
		t.Errorf("err = %v should wrap ErrUnparseable", err)
	}
	if c.IsUpToDate("notes.txt") || c.Len() != 0 {
		t.Error("unparseable file must not be cached")
	}
	if c.IsLocked("notes.txt") {
		t.Error("lock not released after failure")
	}
}

func TestBackendErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	b := newBackend()
	b.err = boom
	c := New(b, Options{})

	_, err := c.GetOrCreate(context.Background(), "a.cpp", source("int a;", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if errors.Is(err, ErrNoUnit) {
		t.Error("backend failures are not ErrNoUnit")
	}
}

func TestContentError(t *testing.T) {
	c := New(newBackend(), Options{})
	gone := errors.New("gone")

	_, err := c.GetOrCreate(context.Background(), "a.cpp", func() ([]byte, error) { return nil, gone })
	if !errors.Is(err, gone) {
		t.Fatalf("err = %v, want gone", err)
	}
}

func TestDoIsReentrant(t *testing.T) {
	c := New(newBackend(), Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	calls := 0
	err := c.Do(ctx, "a.cpp", source("int a;", nil), func(ctx context.Context, u *treesitter.Unit) error {
		return c.Do(ctx, "a.cpp", source("int a;", nil), func(ctx context.Context, inner *treesitter.Unit) error {
			calls++
			if inner != u {
				t.Error("nested Do returned a different unit")
			}
			return c.TryDo(ctx, "a.cpp", func(context.Context, *treesitter.Unit) error {
				calls++
				return nil
			})
		})
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestTryDo(t *testing.T) {
	c := New(newBackend(), Options{})
	ctx := context.Background()

	called := false
	fn := func(context.Context, *treesitter.Unit) error { called = true; return nil }

	if err := c.TryDo(ctx, "a.cpp", fn); !errors.Is(err, ErrNotParsed) {
		t.Fatalf("err = %v, want ErrNotParsed", err)
	}

	if _, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", nil)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Do(ctx, "a.cpp", source("int a;", nil), func(context.Context, *treesitter.Unit) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	if !c.IsLocked("a.cpp") {
		t.Error("IsLocked = false while held")
	}
	start := time.Now()
	if err := c.TryDo(ctx, "a.cpp", fn); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	if time.Since(start) > time.Second {
		t.Error("TryDo blocked")
	}
	done <- struct{}{}
	<-done

	if called {
		t.Fatal("fn called while busy or stale")
	}
	if err := c.TryDo(ctx, "a.cpp", fn); err != nil {
		t.Fatalf("TryDo: %v", err)
	}
	if !called {
		t.Error("fn not called on an up-to-date unit")
	}

	c.ClearCaches()
	called = false
	if err := c.TryDo(ctx, "a.cpp", fn); !errors.Is(err, ErrNotParsed) || called {
		t.Errorf("after ClearCaches: err = %v called = %v", err, called)
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	c := New(newBackend(), Options{})
	bg := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.Do(bg, "a.cpp", source("int a;", nil), func(context.Context, *treesitter.Unit) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestPanicReleasesLock(t *testing.T) {
	c := New(newBackend(), Options{})
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		_ = c.Do(ctx, "a.cpp", source("int a;", nil), func(context.Context, *treesitter.Unit) error {
			panic("callback failed")
		})
	}()

	if c.IsLocked("a.cpp") {
		t.Fatal("lock still held after panic")
	}
	if err := c.TryDo(ctx, "a.cpp", func(context.Context, *treesitter.Unit) error { return nil }); err != nil {
		t.Errorf("TryDo after panic: %v", err)
	}
}

func TestOneParsePerFile(t *testing.T) {
	b := newBackend()
	c := New(b, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", nil)); err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
		}()
	}
	wg.Wait()

	if b.parses.Load() != 1 {
		t.Errorf("parses = %d, want 1", b.parses.Load())
	}
	if b.maxActive.Load() != 1 {
		t.Errorf("max concurrent parses = %d, want 1", b.maxActive.Load())
	}
}

func TestDifferentFilesParseConcurrently(t *testing.T) {
	b := newBackend()
	b.entered = make(chan string, 2)
	b.gate = make(chan struct{})
	c := New(b, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, name := range []string{"a.cpp", "b.cpp"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrCreate(ctx, name, source("int x;", nil)); err != nil {
				t.Errorf("GetOrCreate(%s): %v", name, err)
			}
		}()
	}

	// Both parses must be inside the backend before either is released.
	for range 2 {
		select {
		case <-b.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("parses of different files did not overlap")
		}
	}
	close(b.gate)
	wg.Wait()
}

func TestClearDuringParseLeavesStale(t *testing.T) {
	for _, tt := range []struct {
		name       string
		invalidate func(c *Cache)
	}{
		{"ClearCaches", func(c *Cache) { c.ClearCaches() }},
		{"Invalidate", func(c *Cache) { c.Invalidate("a.cpp") }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			b.entered = make(chan string, 1)
			b.gate = make(chan struct{})
			c := New(b, Options{})
			ctx := context.Background()

			done := make(chan error, 1)
			go func() {
				_, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", nil))
				done <- err
			}()

			<-b.entered
			tt.invalidate(c)
			close(b.gate)
			if err := <-done; err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}

			if c.IsUpToDate("a.cpp") {
				t.Fatal("file marked up to date despite invalidation during parse")
			}

			b.entered = nil
			var reads atomic.Int32
			if _, err := c.GetOrCreate(ctx, "a.cpp", source("int a;", &reads)); err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}
			if reads.Load() != 1 || b.reparses.Load() != 1 {
				t.Errorf("next access should reparse: reads=%d reparses=%d", reads.Load(), b.reparses.Load())
			}
		})
	}
}
