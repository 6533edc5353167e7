package treesitter

import (
	"fmt"
	"sort"
	"strings"
)

// MaxOutlineBytes caps the outline so a large project stays readable.
const MaxOutlineBytes = 16 * 1024

// FormatOutline produces a compact per-file outline. Methods are grouped by
// their enclosing class.
//
// Example output:
//
//	# Symbols
//	src/widget.cpp:
//	  type: Widget (class), Color (enum)
//	  Widget: Widget, draw, resize
//	  fn: main, helper
//	  var: g_count
func FormatOutline(snap map[string][]Symbol) string {
	if len(snap) == 0 {
		return ""
	}

	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("# Symbols\n")

	for _, path := range paths {
		text := formatFileCompact(snap[path])
		if text == "" {
			continue
		}
		entry := fmt.Sprintf("%s:\n%s", path, text)
		if b.Len()+len(entry) > MaxOutlineBytes {
			fmt.Fprintf(&b, "# ... truncated (%d files total)\n", len(paths))
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// fileGroups collects symbols into categories for compact rendering.
type fileGroups struct {
	methods map[string][]string // class -> method names
	seen    map[string]bool
	funcs   []string
	types   []string
	vars    []string
	macros  []string
}

func newFileGroups() *fileGroups {
	return &fileGroups{
		methods: make(map[string][]string),
		seen:    make(map[string]bool),
	}
}

func (g *fileGroups) add(s Symbol) {
	// A declaration followed by its definition is listed once.
	key := s.Kind.String() + " " + s.QualifiedName()
	if g.seen[key] {
		return
	}
	g.seen[key] = true

	switch {
	case s.Kind == KindFunction:
		g.funcs = append(g.funcs, s.QualifiedName())
	case s.Kind == KindMethod:
		scope := s.Scope
		if scope == "" {
			scope = "?"
		}
		g.methods[scope] = append(g.methods[scope], s.Name)
	case s.Kind.isType():
		g.types = append(g.types, fmt.Sprintf("%s (%s)", s.QualifiedName(), s.Kind))
	case s.Kind == KindVar:
		g.vars = append(g.vars, s.QualifiedName())
	case s.Kind == KindMacro:
		g.macros = append(g.macros, s.Name)
	}
}

func (g *fileGroups) empty() bool {
	return len(g.funcs) == 0 && len(g.methods) == 0 &&
		len(g.types) == 0 && len(g.vars) == 0 && len(g.macros) == 0
}

func (g *fileGroups) render() string {
	var b strings.Builder

	if len(g.types) > 0 {
		fmt.Fprintf(&b, "  type: %s\n", strings.Join(g.types, ", "))
	}

	scopes := make([]string, 0, len(g.methods))
	for s := range g.methods {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	for _, scope := range scopes {
		fmt.Fprintf(&b, "  %s: %s\n", scope, strings.Join(g.methods[scope], ", "))
	}

	if len(g.funcs) > 0 {
		fmt.Fprintf(&b, "  fn: %s\n", strings.Join(g.funcs, ", "))
	}
	if len(g.vars) > 0 {
		fmt.Fprintf(&b, "  var: %s\n", strings.Join(g.vars, ", "))
	}
	if len(g.macros) > 0 {
		fmt.Fprintf(&b, "  macro: %s\n", strings.Join(g.macros, ", "))
	}

	return b.String()
}

// formatFileCompact produces a compact per-file representation.
func formatFileCompact(syms []Symbol) string {
	g := newFileGroups()
	for _, s := range syms {
		g.add(s)
	}
	if g.empty() {
		return ""
	}
	return g.render()
}
