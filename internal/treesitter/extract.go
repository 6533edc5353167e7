package treesitter

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxSignature caps the rendered signature length.
const maxSignature = 120

type frame struct {
	node    *sitter.Node
	scope   string
	inClass bool
}

// extractSymbols walks the declaration structure of a translation unit and
// returns its file-scope, namespace-scope and class-member symbols in
// source order. Function bodies are not entered.
func extractSymbols(root *sitter.Node, src []byte) []Symbol {
	var syms []Symbol
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node

		switch n.Type() {
		case "translation_unit", "declaration_list", "field_declaration_list",
			"preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif",
			"template_declaration", "linkage_specification", "ERROR":
			for i := int(n.ChildCount()) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: n.Child(i), scope: f.scope, inClass: f.inClass})
			}

		case "namespace_definition":
			scope := f.scope
			if name := n.ChildByFieldName("name"); name != nil {
				syms = append(syms, newSymbol(n, content(name, src), KindNamespace, f.scope, true, src))
				scope = qualify(f.scope, content(name, src))
			}
			if body := n.ChildByFieldName("body"); body != nil {
				stack = append(stack, frame{node: body, scope: scope})
			}

		case "function_definition":
			if sym, ok := declaratorSymbol(n, n.ChildByFieldName("declarator"), f, true, src); ok {
				syms = append(syms, sym)
			}

		case "declaration", "field_declaration":
			if typ := n.ChildByFieldName("type"); typ != nil {
				stack = append(stack, frame{node: typ, scope: f.scope, inClass: f.inClass})
			}
			def := !hasStorageClass(n, "extern", src)
			for _, d := range fieldChildren(n, "declarator") {
				if sym, ok := declaratorSymbol(n, d, f, def, src); ok {
					syms = append(syms, sym)
				}
			}

		case "class_specifier", "struct_specifier", "union_specifier":
			name := n.ChildByFieldName("name")
			body := n.ChildByFieldName("body")
			if name == nil {
				// Anonymous aggregates expose their members in the enclosing scope.
				if body != nil {
					stack = append(stack, frame{node: body, scope: f.scope, inClass: f.inClass})
				}
				continue
			}
			kind := map[string]SymbolKind{
				"class_specifier":  KindClass,
				"struct_specifier": KindStruct,
				"union_specifier":  KindUnion,
			}[n.Type()]
			syms = append(syms, newSymbol(n, content(name, src), kind, f.scope, body != nil, src))
			if body != nil {
				stack = append(stack, frame{node: body, scope: qualify(f.scope, content(name, src)), inClass: true})
			}

		case "enum_specifier":
			body := n.ChildByFieldName("body")
			if name := n.ChildByFieldName("name"); name != nil {
				syms = append(syms, newSymbol(n, content(name, src), KindEnum, f.scope, body != nil, src))
			}
			if body == nil {
				continue
			}
			for i := 0; i < int(body.NamedChildCount()); i++ {
				e := body.NamedChild(i)
				if e.Type() != "enumerator" {
					continue
				}
				if name := e.ChildByFieldName("name"); name != nil {
					syms = append(syms, newSymbol(e, content(name, src), KindEnumerator, f.scope, true, src))
				}
			}

		case "type_definition":
			if typ := n.ChildByFieldName("type"); typ != nil {
				stack = append(stack, frame{node: typ, scope: f.scope, inClass: f.inClass})
			}
			for _, d := range fieldChildren(n, "declarator") {
				if name, _, _ := declaratorName(d, src); name != nil {
					syms = append(syms, newSymbol(n, content(name, src), KindTypedef, f.scope, true, src))
				}
			}

		case "alias_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				syms = append(syms, newSymbol(n, content(name, src), KindTypedef, f.scope, true, src))
			}

		case "preproc_def", "preproc_function_def":
			if name := n.ChildByFieldName("name"); name != nil {
				syms = append(syms, newSymbol(n, content(name, src), KindMacro, "", true, src))
			}
		}
	}

	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Line != syms[j].Line {
			return syms[i].Line < syms[j].Line
		}
		return syms[i].Column < syms[j].Column
	})
	return syms
}

// declaratorSymbol builds the symbol for one declarator of decl.
func declaratorSymbol(decl, d *sitter.Node, f frame, def bool, src []byte) (Symbol, bool) {
	if d == nil {
		return Symbol{}, false
	}
	name, qualifier, isFunc := declaratorName(d, src)
	if name == nil {
		return Symbol{}, false
	}

	kind := KindVar
	switch {
	case isFunc && (f.inClass || qualifier != ""):
		kind = KindMethod
	case isFunc:
		kind = KindFunction
	case f.inClass:
		kind = KindField
	}
	// A prototype declares; only a body defines.
	if isFunc && decl.Type() != "function_definition" {
		def = false
	}

	sym := newSymbol(decl, content(name, src), kind, qualify(f.scope, qualifier), def, src)
	if decl.Type() == "function_definition" {
		if body := decl.ChildByFieldName("body"); body != nil {
			sym.Signature = signature(src[decl.StartByte():body.StartByte()])
		}
	}
	return sym, true
}

// declaratorName unwraps pointer, reference, array, init and function
// declarators down to the declared name. qualifier holds the A::B part of a
// qualified name; isFunc reports whether a function declarator was crossed.
func declaratorName(d *sitter.Node, src []byte) (name *sitter.Node, qualifier string, isFunc bool) {
	var quals []string
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier", "type_identifier",
			"destructor_name", "operator_name", "namespace_identifier":
			return d, strings.Join(quals, "::"), isFunc
		case "function_declarator":
			isFunc = true
			d = d.ChildByFieldName("declarator")
		case "qualified_identifier":
			if scope := d.ChildByFieldName("scope"); scope != nil {
				quals = append(quals, content(scope, src))
			}
			d = d.ChildByFieldName("name")
		case "template_function", "template_type":
			d = d.ChildByFieldName("name")
		case "pointer_declarator", "reference_declarator", "array_declarator",
			"init_declarator", "parenthesized_declarator", "attributed_declarator":
			next := d.ChildByFieldName("declarator")
			if next == nil && d.NamedChildCount() > 0 {
				next = d.NamedChild(int(d.NamedChildCount()) - 1)
			}
			d = next
		default:
			return nil, "", false
		}
	}
	return nil, "", false
}

func newSymbol(n *sitter.Node, name string, kind SymbolKind, scope string, def bool, src []byte) Symbol {
	return Symbol{
		Name:       name,
		Kind:       kind,
		Scope:      scope,
		Signature:  signature(src[n.StartByte():n.EndByte()]),
		Definition: def,
		Line:       line(n),
		Column:     column(n),
		EndLine:    endLine(n),
	}
}

// fieldChildren returns every child stored under field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

func hasStorageClass(n *sitter.Node, class string, src []byte) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "storage_class_specifier" && content(c, src) == class {
			return true
		}
	}
	return false
}

func qualify(scope, name string) string {
	switch {
	case scope == "":
		return name
	case name == "":
		return scope
	default:
		return scope + "::" + name
	}
}

// signature renders the first line of a declaration with runs of
// whitespace collapsed.
func signature(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSuffix(s, "{")
	s = strings.TrimSpace(s)
	if len(s) > maxSignature {
		s = s[:maxSignature] + "..."
	}
	return s
}

// helpers

func content(node *sitter.Node, src []byte) string {
	return node.Content(src)
}

func line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1 // 1-indexed
}

func column(node *sitter.Node) int {
	return int(node.StartPoint().Column) + 1
}

func endLine(node *sitter.Node) int {
	return int(node.EndPoint().Row) + 1
}
