// Package treesitter parses C and C++ sources with tree-sitter and answers
// the syntactic queries the navigation features need: symbols, syntax
// diagnostics, identifiers under a position and #include directives.
package treesitter

// SymbolKind classifies extracted symbols.
type SymbolKind int

const (
	KindFunction SymbolKind = iota
	KindMethod
	KindClass
	KindStruct
	KindUnion
	KindEnum
	KindEnumerator
	KindNamespace
	KindTypedef
	KindVar
	KindField
	KindMacro
)

// Symbol represents a single declaration or definition.
type Symbol struct {
	Name       string
	Kind       SymbolKind
	Scope      string // enclosing namespaces and classes, "::" separated
	Signature  string // first line of the declaration, trimmed
	Definition bool
	Line       int // 1-indexed start of the whole declaration
	Column     int // 1-indexed byte column
	EndLine    int // 1-indexed
}

// QualifiedName returns Scope::Name, or Name at file scope.
func (s Symbol) QualifiedName() string {
	if s.Scope == "" {
		return s.Name
	}
	return s.Scope + "::" + s.Name
}

func (k SymbolKind) String() string {
	switch k {
	case KindFunction:
		return "func"
	case KindMethod:
		return "method"
	case KindClass:
		return "class"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindEnumerator:
		return "enumerator"
	case KindNamespace:
		return "namespace"
	case KindTypedef:
		return "typedef"
	case KindVar:
		return "var"
	case KindField:
		return "field"
	case KindMacro:
		return "macro"
	default:
		return "unknown"
	}
}

// isType reports whether the kind names a type.
func (k SymbolKind) isType() bool {
	switch k {
	case KindClass, KindStruct, KindUnion, KindEnum, KindTypedef:
		return true
	}
	return false
}
