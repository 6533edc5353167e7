package plugin

import (
	"context"
	"fmt"

	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/treesitter"
)

// Severities as numbered by LSP.
const (
	SeverityError   = 1
	SeverityWarning = 2
)

// maxFormatted caps the entries FormatDiagnostics lists.
const maxFormatted = 20

// diagResult is a diagnostics list computed for one version of a file.
type diagResult struct {
	name        string
	fingerprint uint64
	diags       []protocol.Diagnostic
}

func resultFor(u *treesitter.Unit) diagResult {
	return diagResult{
		name:        u.Name(),
		fingerprint: u.Fingerprint(),
		diags:       ToProtocol(u.Diagnostics()),
	}
}

// ToProtocol converts unit diagnostics to LSP form with 0-indexed positions.
func ToProtocol(diags []treesitter.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: uint32(d.Line - 1), Character: uint32(d.Column - 1)},
				End:   protocol.Position{Line: uint32(d.EndLine - 1), Character: uint32(d.EndColumn - 1)},
			},
			Severity: protocol.DiagnosticSeverity(d.Severity),
			Source:   "cxxnav",
			Message:  d.Message,
		})
	}
	return out
}

// Diagnostics parses the current file if needed, displays its diagnostics
// and returns them.
func (p *Plugin) Diagnostics(ctx context.Context) ([]protocol.Diagnostic, error) {
	var r diagResult
	err := p.acc.CurrentTranslationUnitDo(ctx, func(_ context.Context, u *treesitter.Unit) error {
		r = resultFor(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.publish(r)
	return r.diags, nil
}

// publish displays r and remembers which file version it describes.
func (p *Plugin) publish(r diagResult) {
	p.mu.Lock()
	p.shownName, p.shownFingerprint, p.shown = r.name, r.fingerprint, true
	p.mu.Unlock()

	log.Debug().Str("file", r.name).Int("count", len(r.diags)).Msg("plugin: diagnostics published")
	p.ed.DisplayDiagnostics(r.diags)
}

func (p *Plugin) alreadyShown(name string, fingerprint uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown && p.shownName == name && p.shownFingerprint == fingerprint
}

// LineSeverities maps 0-indexed lines to the most severe error or warning
// on them. Lower severity number wins.
func LineSeverities(diags []protocol.Diagnostic) map[int]int {
	if len(diags) == 0 {
		return nil
	}
	lines := make(map[int]int)
	for _, d := range diags {
		sev := int(d.Severity)
		if sev != SeverityError && sev != SeverityWarning {
			continue
		}
		line := int(d.Range.Start.Line)
		if existing, ok := lines[line]; !ok || sev < existing {
			lines[line] = sev
		}
	}
	return lines
}

// FormatDiagnostics formats diagnostics as a text block.
// Returns empty string if no errors or warnings.
func FormatDiagnostics(displayPath string, diags []protocol.Diagnostic) string {
	var buf []byte
	count, total := 0, 0
	for _, d := range diags {
		sev := int(d.Severity)
		if sev != SeverityError && sev != SeverityWarning {
			continue
		}
		total++
		if count >= maxFormatted {
			continue
		}
		if count == 0 {
			buf = append(buf, fmt.Sprintf("<diagnostics file=%q>\n", displayPath)...)
		}
		label := "WARNING"
		if sev == SeverityError {
			label = "ERROR"
		}
		buf = append(buf, fmt.Sprintf("%s [%d:%d] %s\n",
			label,
			d.Range.Start.Line+1, // display as 1-indexed
			d.Range.Start.Character+1,
			d.Message,
		)...)
		count++
	}
	if count == 0 {
		return ""
	}
	if total > count {
		buf = append(buf, fmt.Sprintf("... and %d more\n", total-count)...)
	}
	buf = append(buf, "</diagnostics>\n"...)
	return string(buf)
}
