package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/x/exp/golden"
	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
	"go.uber.org/goleak"

	"github.com/xonecas/cxxnav/internal/access"
	"github.com/xonecas/cxxnav/internal/editor"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newPlugin(t *testing.T, buf *editor.Buffer) *Plugin {
	t.Helper()
	p := New(buf, access.Options{Workers: 2})
	t.Cleanup(p.Terminate)
	return p
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// waitFor calls Tick until cond holds.
func waitFor(t *testing.T, p *Plugin, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		p.Tick()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEditFixDiagnosticsAndJump(t *testing.T) {
	buf := editor.NewBuffer("test.cpp", []byte("foo"))
	p := newPlugin(t, buf)
	ctx := context.Background()

	diags, err := p.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if len(diags) == 0 || int(diags[0].Severity) != SeverityError {
		t.Fatalf("expected an error diagnostic, got %+v", diags)
	}
	if diags[0].Range.Start.Line != 0 {
		t.Errorf("diagnostic line = %d, want 0", diags[0].Range.Start.Line)
	}

	// Unchanged unit: Tick must not publish again.
	p.Tick()
	if _, n := buf.Diagnostics(); n != 1 {
		t.Errorf("published %d times, want 1", n)
	}

	buf.SetCursor(1, 1)
	if _, err := p.JumpToDefinition(ctx); !errors.Is(err, ErrNoDefinition) {
		t.Fatalf("err = %v, want ErrNoDefinition", err)
	}
	if msgs := buf.Messages(); !slices.Contains(msgs, "no navigable definition") {
		t.Errorf("messages = %q", msgs)
	}

	buf.SetContent([]byte("void foo(){}"))
	p.FileChanged()
	waitFor(t, p, func() bool {
		got, n := buf.Diagnostics()
		return n >= 2 && len(got) == 0
	})

	buf.SetCursor(1, 6)
	loc, err := p.JumpToDefinition(ctx)
	if err != nil {
		t.Fatalf("JumpToDefinition: %v", err)
	}
	want := editor.Location{File: "test.cpp", Line: 1, Column: 1}
	if loc != want {
		t.Errorf("jumped to %v, want %v", loc, want)
	}
	if opened := buf.Opened(); len(opened) != 1 || opened[0] != want {
		t.Errorf("Opened = %v", opened)
	}
}

func TestNoNavigableDefinition(t *testing.T) {
	buf := editor.NewBuffer("test.cpp", []byte("int x;\n\n"))
	buf.SetCursor(2, 1)
	p := newPlugin(t, buf)

	if _, err := p.JumpToDefinition(context.Background()); !errors.Is(err, ErrNoDefinition) {
		t.Fatalf("err = %v, want ErrNoDefinition", err)
	}
	if msgs := buf.Messages(); !slices.Contains(msgs, "no navigable definition") {
		t.Errorf("messages = %q", msgs)
	}
	if _, err := p.JumpToDeclaration(context.Background()); !errors.Is(err, ErrNoDeclaration) {
		t.Fatalf("err = %v, want ErrNoDeclaration", err)
	}
	if len(buf.Opened()) != 0 {
		t.Errorf("opened %v", buf.Opened())
	}
}

func TestDefinitionInCompanion(t *testing.T) {
	dir := t.TempDir()
	header := writeFile(t, dir, "widget.h", "void draw();\n")
	impl := writeFile(t, dir, "widget.cpp", "#include \"widget.h\"\n\nvoid draw() {}\n")

	src, _ := os.ReadFile(header)
	buf := editor.NewBuffer(header, src)
	buf.SetCursor(1, 6)
	p := newPlugin(t, buf)

	loc, err := p.JumpToDefinition(context.Background())
	if err != nil {
		t.Fatalf("JumpToDefinition: %v", err)
	}
	if !samePath(loc.File, impl) || loc.Line != 3 {
		t.Errorf("jumped to %v, want %s:3", loc, impl)
	}
}

func TestDeclarationInInclude(t *testing.T) {
	dir := t.TempDir()
	header := writeFile(t, dir, "util.h", "int helper(int);\n")
	main := filepath.Join(dir, "main.cpp")

	buf := editor.NewBuffer(main, []byte("#include \"util.h\"\n\nint main() { return helper(1); }\n"))
	buf.SetCursor(3, 22)
	p := newPlugin(t, buf)

	var got []editor.Location
	for loc := range p.DeclarationLocations(context.Background()) {
		got = append(got, loc)
	}
	want := []editor.Location{{File: header, Line: 1, Column: 1}}
	if !slices.Equal(got, want) {
		t.Errorf("declarations = %v, want %v", got, want)
	}

	loc, err := p.JumpToDeclaration(context.Background())
	if err != nil || loc != want[0] {
		t.Errorf("JumpToDeclaration = %v, %v", loc, err)
	}
}

func TestDefinitionLocationsIsLazy(t *testing.T) {
	buf := editor.NewBuffer("a.cpp", []byte("int f();\nint f() { return 0; }\n"))
	buf.SetCursor(1, 5)
	p := newPlugin(t, buf)

	var got []editor.Location
	for loc := range p.DefinitionLocations(context.Background()) {
		got = append(got, loc)
		break
	}
	if len(got) != 1 || got[0].Line != 2 {
		t.Errorf("first definition = %v, want line 2", got)
	}
}

func TestCompletions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "api.h", "int foo_bar(void);\nint foo_baz;\nint other;\n")
	buf := editor.NewBuffer(filepath.Join(dir, "main.c"),
		[]byte("#include \"api.h\"\n#include <stdio.h>\nint foo_local;\nint foo_bar(void);\n"))
	p := newPlugin(t, buf)

	got, err := p.Completions(context.Background(), "foo_")
	if err != nil {
		t.Fatalf("Completions: %v", err)
	}
	want := []string{"foo_bar", "foo_baz", "foo_local"}
	if !slices.Equal(got, want) {
		t.Errorf("Completions = %v, want %v", got, want)
	}
}

func TestListenersSeeLatestContent(t *testing.T) {
	buf := editor.NewBuffer("l.c", []byte("int a;\n"))
	p := newPlugin(t, buf)

	var calls atomic.Int32
	var last atomic.Uint64
	p.AddListener(func(_ context.Context, u *treesitter.Unit) {
		calls.Add(1)
		last.Store(u.Fingerprint())
	})

	for _, src := range []string{"int b;\n", "int c;\n", "int d;\n"} {
		buf.SetContent([]byte(src))
		p.FileChanged()
	}

	final := xxhash.Sum64String("int d;\n")
	waitFor(t, p, func() bool { return last.Load() == final })
	if n := calls.Load(); n < 1 || n > 3 {
		t.Errorf("listener called %d times", n)
	}
}

func TestFileOpenedParsesInBackground(t *testing.T) {
	buf := editor.NewBuffer("bg.cpp", []byte("int bg;\n"))
	p := newPlugin(t, buf)

	p.FileOpened()
	waitFor(t, p, func() bool { return p.Accessor().IsUpToDate("bg.cpp") })

	// Tick picks the parsed unit up without blocking.
	waitFor(t, p, func() bool {
		_, n := buf.Diagnostics()
		return n == 1
	})
}

func TestLineSeverities(t *testing.T) {
	diags := []protocol.Diagnostic{
		{Range: protocol.Range{Start: protocol.Position{Line: 2}}, Severity: protocol.DiagnosticSeverity(SeverityWarning)},
		{Range: protocol.Range{Start: protocol.Position{Line: 2}}, Severity: protocol.DiagnosticSeverity(SeverityError)},
		{Range: protocol.Range{Start: protocol.Position{Line: 5}}, Severity: protocol.DiagnosticSeverity(SeverityWarning)},
		{Range: protocol.Range{Start: protocol.Position{Line: 7}}, Severity: protocol.DiagnosticSeverity(3)},
	}
	got := LineSeverities(diags)
	if len(got) != 2 || got[2] != SeverityError || got[5] != SeverityWarning {
		t.Errorf("LineSeverities = %v", got)
	}
	if LineSeverities(nil) != nil {
		t.Error("expected nil for no diagnostics")
	}
}

func TestFormatDiagnostics(t *testing.T) {
	diags := ToProtocol([]treesitter.Diagnostic{
		{Line: 1, Column: 4, EndLine: 1, EndColumn: 4, Severity: treesitter.SeverityError, Message: "Missing ';'"},
		{Line: 3, Column: 1, EndLine: 3, EndColumn: 9, Severity: treesitter.SeverityError, Message: "Syntax error near 'class {'"},
	})
	diags = append(diags, protocol.Diagnostic{
		Range:    protocol.Range{Start: protocol.Position{Line: 9, Character: 2}},
		Severity: protocol.DiagnosticSeverity(SeverityWarning),
		Message:  "unused variable",
	})
	golden.RequireEqual(t, []byte(FormatDiagnostics("src/main.cpp", diags)))

	if got := FormatDiagnostics("x.c", nil); got != "" {
		t.Errorf("FormatDiagnostics(nil) = %q", got)
	}
}

func TestFormatDiagnosticsTruncates(t *testing.T) {
	var diags []protocol.Diagnostic
	for i := range 25 {
		diags = append(diags, protocol.Diagnostic{
			Range:    protocol.Range{Start: protocol.Position{Line: uint32(i)}},
			Severity: protocol.DiagnosticSeverity(SeverityError),
			Message:  "bad",
		})
	}
	out := FormatDiagnostics("x.c", diags)
	if want := "... and 5 more\n</diagnostics>\n"; len(out) < len(want) || out[len(out)-len(want):] != want {
		t.Errorf("tail of output = %q", out)
	}
}
