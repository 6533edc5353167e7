package treesitter

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// MaxDiagnostics caps the number of syntax errors reported per unit.
const MaxDiagnostics = 50

// Severity mirrors the LSP diagnostic severities.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
)

// Diagnostic is a syntax problem found in a parse tree. Positions are
// 1-indexed; columns count bytes.
type Diagnostic struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
	Severity  Severity
	Message   string
}

// collectDiagnostics walks the tree with an explicit stack, reporting ERROR
// and MISSING nodes in source order. Subtrees without errors are skipped.
func collectDiagnostics(root *sitter.Node, src []byte) []Diagnostic {
	if root == nil || !root.HasError() {
		return nil
	}

	var diags []Diagnostic
	stack := []*sitter.Node{root}
	for len(stack) > 0 && len(diags) < MaxDiagnostics {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case n.IsMissing():
			diags = append(diags, newDiagnostic(n, fmt.Sprintf("Missing %s", missingText(n))))
			continue
		case n.IsError():
			diags = append(diags, newDiagnostic(n, errorMessage(n, src)))
			// Nested errors inside an ERROR node only repeat the report.
			continue
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			c := n.Child(i)
			if c != nil && (c.HasError() || c.IsMissing()) {
				stack = append(stack, c)
			}
		}
	}
	return diags
}

func newDiagnostic(n *sitter.Node, msg string) Diagnostic {
	start, end := n.StartPoint(), n.EndPoint()
	return Diagnostic{
		Line:      int(start.Row) + 1,
		Column:    int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndColumn: int(end.Column) + 1,
		Severity:  SeverityError,
		Message:   msg,
	}
}

func missingText(n *sitter.Node) string {
	t := n.Type()
	if t == "" {
		return "token"
	}
	// Anonymous nodes are literal tokens; named ones are rule names.
	if !n.IsNamed() {
		return "'" + t + "'"
	}
	return t
}

func errorMessage(n *sitter.Node, src []byte) string {
	text := strings.Join(strings.Fields(n.Content(src)), " ")
	if text == "" {
		return "Syntax error"
	}
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Sprintf("Syntax error near '%s'", text)
}
