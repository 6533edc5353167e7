package treesitter

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"
)

// Include is one #include directive.
type Include struct {
	Path   string // as written, without quotes or brackets
	System bool   // <...> form
	Line   int    // 1-indexed
}

// Unit is a parsed translation unit. A Unit is not safe for concurrent use;
// callers serialize access per file name.
type Unit struct {
	name        string
	lang        Language
	args        []string
	includeDirs []string
	flags       ParseFlags

	src         []byte
	tree        *sitter.Tree
	version     int
	fingerprint uint64

	symbols  []Symbol
	diags    []Diagnostic
	includes []Include
}

// Name returns the file name the unit was created for.
func (u *Unit) Name() string { return u.name }

// Source returns the source the current tree was parsed from.
func (u *Unit) Source() []byte { return u.src }

// Language returns the grammar selected for the unit.
func (u *Unit) Language() Language { return u.lang }

// Args returns the argument list the unit was created with.
func (u *Unit) Args() []string { return u.args }

// IncludeDirs returns the -I directories from the argument list.
func (u *Unit) IncludeDirs() []string { return u.includeDirs }

// Version counts reparses; a fresh unit is version 0.
func (u *Unit) Version() int { return u.version }

// Fingerprint is the xxhash of the current source.
func (u *Unit) Fingerprint() uint64 { return u.fingerprint }

// Diagnostics returns the syntax errors of the current tree.
func (u *Unit) Diagnostics() []Diagnostic { return u.diags }

// Symbols returns the declarations and definitions in source order.
func (u *Unit) Symbols() []Symbol { return u.symbols }

// Includes returns the #include directives in source order.
func (u *Unit) Includes() []Include { return u.includes }

// Close releases the tree.
func (u *Unit) Close() {
	if u.tree != nil {
		u.tree.Close()
		u.tree = nil
	}
}

// Definitions returns the symbols named name that define it.
func (u *Unit) Definitions(name string) []Symbol {
	var out []Symbol
	for _, s := range u.symbols {
		if s.Definition && matchesName(s, name) {
			out = append(out, s)
		}
	}
	return out
}

// Declarations returns every symbol named name, definitions included, in
// source order.
func (u *Unit) Declarations(name string) []Symbol {
	var out []Symbol
	for _, s := range u.symbols {
		if matchesName(s, name) {
			out = append(out, s)
		}
	}
	return out
}

// matchesName accepts a bare name or a qualified suffix (Foo::bar).
func matchesName(s Symbol, name string) bool {
	if s.Name == name {
		return true
	}
	return strings.Contains(name, "::") && strings.HasSuffix("::"+s.QualifiedName(), "::"+name)
}

// identifierTypes are the leaf nodes a position can resolve to.
var identifierTypes = map[string]bool{
	"identifier":           true,
	"field_identifier":     true,
	"type_identifier":      true,
	"namespace_identifier": true,
	"destructor_name":      true,
	"operator_name":        true,
}

// IdentifierAt returns the identifier covering the 1-indexed line and byte
// column, or "" if there is none. A position just past the end of an
// identifier still resolves to it.
func (u *Unit) IdentifierAt(lineNo, col int) string {
	if u.tree == nil || lineNo < 1 || col < 1 {
		return ""
	}
	p := sitter.Point{Row: uint32(lineNo - 1), Column: uint32(col - 1)}

	var inside, touching *sitter.Node
	stack := []*sitter.Node{u.tree.RootNode()}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		start, end := n.StartPoint(), n.EndPoint()
		if pointLess(p, start) || pointLess(end, p) {
			continue
		}
		if identifierTypes[n.Type()] {
			if pointLess(p, end) && inside == nil {
				inside = n
			} else if !pointLess(p, end) && touching == nil {
				touching = n
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			stack = append(stack, n.Child(i))
		}
	}

	switch {
	case inside != nil:
		return inside.Content(u.src)
	case touching != nil:
		return touching.Content(u.src)
	default:
		return ""
	}
}

func pointLess(a, b sitter.Point) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

// collectIncludes returns the #include directives reachable without
// entering function bodies.
func collectIncludes(root *sitter.Node, src []byte) []Include {
	var out []Include
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "preproc_include":
			path := n.ChildByFieldName("path")
			if path == nil {
				continue
			}
			text := content(path, src)
			out = append(out, Include{
				Path:   strings.Trim(text, "\"<>"),
				System: path.Type() == "system_lib_string",
				Line:   line(n),
			})
		case "function_definition":
			continue
		default:
			for i := int(n.ChildCount()) - 1; i >= 0; i-- {
				stack = append(stack, n.Child(i))
			}
		}
	}
	return out
}

// refresh recomputes everything derived from the tree.
func (u *Unit) refresh() {
	root := u.tree.RootNode()
	u.fingerprint = xxhash.Sum64(u.src)
	u.symbols = extractSymbols(root, u.src)
	u.diags = collectDiagnostics(root, u.src)
	u.includes = collectIncludes(root, u.src)
}
