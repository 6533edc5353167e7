// Package highlight renders C and C++ source snippets with Chroma for
// terminal output.
package highlight

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultTheme is used when no theme is configured.
const DefaultTheme = "vulcan"

// Highlight returns an ANSI-highlighted version of text. The lexer is picked
// from path, falling back to C++.
func Highlight(text, path, theme string) string {
	lex := lexers.Match(path)
	if lex == nil {
		lex = lexers.Get("cpp")
	}
	if lex == nil {
		return text
	}
	lex = chroma.Coalesce(lex)
	sty := styles.Get(theme)
	fmtr := formatters.Get("terminal16m")
	if fmtr == nil {
		fmtr = formatters.Fallback
	}
	it, err := lex.Tokenise(nil, text)
	if err != nil {
		return text
	}
	var buf strings.Builder
	if err := fmtr.Format(&buf, sty, it); err != nil {
		return text
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Snippet returns the lines of src around the 1-indexed line, highlighted
// and prefixed with line numbers. The target line is marked with '>'.
func Snippet(src []byte, path string, line, context int, theme string) []string {
	all := strings.Split(string(src), "\n")
	if line < 1 || line > len(all) {
		return nil
	}
	from := max(1, line-context)
	to := min(len(all), line+context)

	block := Highlight(strings.Join(all[from-1:to], "\n"), path, theme)
	lines := SplitLines(block)

	out := make([]string, 0, len(lines))
	for i, l := range lines {
		n := from + i
		mark := " "
		if n == line {
			mark = ">"
		}
		out = append(out, fmt.Sprintf("%s%4d | %s\x1b[0m", mark, n, l))
	}
	return out
}

// SplitLines splits a highlighted block into per-line strings, propagating
// ANSI style state across lines so each is independently renderable.
func SplitLines(block string) []string {
	lines := strings.Split(block, "\n")
	if len(lines) <= 1 {
		return lines
	}
	var active []string
	for i, line := range lines {
		if i > 0 && len(active) > 0 {
			lines[i] = strings.Join(active, "") + line
		}
		active = scanSGR(line, active)
	}
	return lines
}

// scanSGR scans a line for SGR escape sequences and updates the active
// sequence list. Resets clear the list; other SGRs are appended.
func scanSGR(line string, active []string) []string {
	for j := 0; j < len(line); j++ {
		if line[j] != '\x1b' || j+1 >= len(line) || line[j+1] != '[' {
			continue
		}
		k := j + 2
		for k < len(line) && line[k] != 'm' && line[k] != '\x1b' {
			k++
		}
		if k >= len(line) || line[k] != 'm' {
			continue
		}
		params := line[j+2 : k]
		if params == "" || params == "0" {
			active = active[:0]
		} else {
			active = append(active, line[j:k+1])
		}
		j = k
	}
	return active
}

// Palette holds the colors used for diagnostics and locations, derived from
// a Chroma theme.
type Palette struct {
	Fg      string
	Dim     string // 45% bg→fg
	Accent  string // most saturated token color
	Error   string // from the Error token
	Warning string // from the Keyword token
}

// ThemePalette derives a Palette from a Chroma theme name. Falls back to
// fixed colors when the theme is missing entries.
func ThemePalette(theme string) Palette {
	sty := styles.Get(theme)
	if sty == nil {
		return defaultPalette()
	}
	entry := sty.Get(chroma.Background)
	bg := "#000000"
	fg := "#c8c8c8"
	if entry.Background.IsSet() {
		bg = entry.Background.String()
	}
	if entry.Colour.IsSet() {
		fg = entry.Colour.String()
	}

	return Palette{
		Fg:      fg,
		Dim:     lerpHex(bg, fg, 0.45),
		Accent:  pickAccent(sty, fg),
		Error:   tokenColour(sty, chroma.Error, "#ff5f5f"),
		Warning: tokenColour(sty, chroma.Keyword, "#ffaf00"),
	}
}

func defaultPalette() Palette {
	return Palette{
		Fg: "#c8c8c8", Dim: "#5a5a5a",
		Accent: "#00dfff", Error: "#ff5f5f", Warning: "#ffaf00",
	}
}

func tokenColour(sty *chroma.Style, tt chroma.TokenType, fallback string) string {
	e := sty.Get(tt)
	if !e.Colour.IsSet() {
		return fallback
	}
	return e.Colour.String()
}

// pickAccent returns the most saturated foreground color across all tokens.
func pickAccent(sty *chroma.Style, fallback string) string {
	best := fallback
	bestSat := 0.0
	for tt := chroma.TokenType(0); tt < 2000; tt++ {
		e := sty.Get(tt)
		if !e.Colour.IsSet() {
			continue
		}
		hex := e.Colour.String()
		r, g, b := hexToRGBf(hex)
		mx := max(r, g, b)
		if mx == 0 {
			continue
		}
		sat := (mx - min(r, g, b)) / mx
		if sat > bestSat {
			bestSat = sat
			best = hex
		}
	}
	return best
}

// lerpHex linearly interpolates between two hex colors at fraction t.
func lerpHex(a, b string, t float64) string {
	ar, ag, ab := hexToRGBf(a)
	br, bg, bb := hexToRGBf(b)
	return fmt.Sprintf("#%02x%02x%02x",
		clampByte(ar+(br-ar)*t),
		clampByte(ag+(bg-ag)*t),
		clampByte(ab+(bb-ab)*t),
	)
}

func hexToRGBf(hex string) (float64, float64, float64) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0
	}
	return float64(hexByte(hex[1], hex[2])),
		float64(hexByte(hex[3], hex[4])),
		float64(hexByte(hex[5], hex[6]))
}

func hexByte(hi, lo byte) int {
	return hexNibble(hi)<<4 | hexNibble(lo)
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

func clampByte(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return int(v + 0.5)
}
