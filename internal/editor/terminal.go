package editor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"

	"github.com/xonecas/cxxnav/internal/highlight"
)

// Severities as numbered by LSP.
const (
	SeverityError   = 1
	SeverityWarning = 2
)

// snippetContext is the number of lines shown around a jump target.
const snippetContext = 2

// Terminal is an Editor that prints to a writer. File state lives in the
// embedded Buffer; jumps are shown as highlighted snippets.
type Terminal struct {
	*Buffer

	mu    sync.Mutex
	out   io.Writer
	width int
	theme string

	errStyle  lipgloss.Style
	warnStyle lipgloss.Style
	locStyle  lipgloss.Style
	dimStyle  lipgloss.Style
}

// NewTerminal wraps buf, writing to out. Lines wider than width are
// truncated; width <= 0 disables truncation.
func NewTerminal(buf *Buffer, out io.Writer, width int, theme string) *Terminal {
	if theme == "" {
		theme = highlight.DefaultTheme
	}
	p := highlight.ThemePalette(theme)
	return &Terminal{
		Buffer:    buf,
		out:       out,
		width:     width,
		theme:     theme,
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)).Bold(true),
		warnStyle: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Warning)).Bold(true),
		locStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)),
		dimStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Dim)),
	}
}

// OpenLocation prints the location and the source around it.
func (t *Terminal) OpenLocation(loc Location) {
	t.Buffer.OpenLocation(loc)

	src := t.sourceOf(loc.File)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(t.locStyle.Render(loc.String()))
	for _, line := range highlight.Snippet(src, loc.File, loc.Line, snippetContext, t.theme) {
		t.println(line)
	}
}

func (t *Terminal) DisplayMessage(msg string) {
	t.Buffer.DisplayMessage(msg)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(t.dimStyle.Render(msg))
}

// DisplayDiagnostics prints one line per diagnostic, compiler style.
func (t *Terminal) DisplayDiagnostics(diags []protocol.Diagnostic) {
	t.Buffer.DisplayDiagnostics(diags)
	name := t.FileName()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range diags {
		label := "note"
		style := t.dimStyle
		switch int(d.Severity) {
		case SeverityError:
			label, style = "error", t.errStyle
		case SeverityWarning:
			label, style = "warning", t.warnStyle
		}
		t.println(fmt.Sprintf("%s: %s %s",
			t.locStyle.Render(fmt.Sprintf("%s:%d:%d", name, d.Range.Start.Line+1, d.Range.Start.Character+1)),
			style.Render(label+":"),
			d.Message,
		))
	}
}

// sourceOf prefers the buffer's content for the current file.
func (t *Terminal) sourceOf(name string) []byte {
	if f := t.CurrentFile(); f.Name == name {
		return f.Content
	}
	src, err := os.ReadFile(name)
	if err != nil {
		return nil
	}
	return src
}

func (t *Terminal) println(line string) {
	line = strings.TrimRight(line, "\n")
	if t.width > 0 {
		line = ansi.Truncate(line, t.width, "…")
	}
	fmt.Fprintln(t.out, line)
}
