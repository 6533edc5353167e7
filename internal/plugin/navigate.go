package plugin

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/editor"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

var (
	ErrNoDefinition  = errors.New("no definition found")
	ErrNoDeclaration = errors.New("no declaration found")
)

type lookupFunc func(u *treesitter.Unit, name string) []treesitter.Symbol

// cursorContext is what a search needs from the current unit. It is
// copied out so the file lock is not held while other files are parsed.
type cursorContext struct {
	file         string
	ident        string
	definitions  []editor.Location
	declarations []editor.Location
	prototypes   []editor.Location
	headers      []string
}

func (p *Plugin) cursor(ctx context.Context) (cursorContext, bool) {
	var c cursorContext
	err := p.acc.CurrentTranslationUnitDo(ctx, func(_ context.Context, u *treesitter.Unit) error {
		loc := p.ed.CurrentLocation()
		c.file = u.Name()
		c.ident = u.IdentifierAt(loc.Line, loc.Column)
		if c.ident == "" {
			return nil
		}
		c.definitions = locations(u, u.Definitions(c.ident))
		c.declarations = locations(u, u.Declarations(c.ident))
		c.prototypes = locations(u, slices.DeleteFunc(u.Declarations(c.ident), func(s treesitter.Symbol) bool {
			return s.Definition
		}))
		c.headers = includedFiles(u)
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("plugin: no unit for cursor")
		return c, false
	}
	return c, c.ident != ""
}

// DefinitionLocations yields definitions of the identifier under the
// cursor: from the current file, then its quoted includes, then its
// companion files. Declarations of the current file come last. Files are
// parsed only as the sequence is consumed.
func (p *Plugin) DefinitionLocations(ctx context.Context) iter.Seq[editor.Location] {
	return func(yield func(editor.Location) bool) {
		c, ok := p.cursor(ctx)
		if !ok {
			return
		}
		if !yieldAll(yield, c.definitions) {
			return
		}
		for _, h := range c.headers {
			if !yieldAll(yield, p.lookup(ctx, h, c.ident, (*treesitter.Unit).Definitions)) {
				return
			}
		}
		for path := range p.acc.Finder().DefinitionFiles(c.file) {
			if samePath(path, c.file) {
				continue
			}
			if !yieldAll(yield, p.lookup(ctx, path, c.ident, (*treesitter.Unit).Definitions)) {
				return
			}
		}
		yieldAll(yield, c.prototypes)
	}
}

// DeclarationLocations yields declarations of the identifier under the
// cursor from the current file, then its quoted includes.
func (p *Plugin) DeclarationLocations(ctx context.Context) iter.Seq[editor.Location] {
	return func(yield func(editor.Location) bool) {
		c, ok := p.cursor(ctx)
		if !ok {
			return
		}
		if !yieldAll(yield, c.declarations) {
			return
		}
		for _, h := range c.headers {
			if !yieldAll(yield, p.lookup(ctx, h, c.ident, (*treesitter.Unit).Declarations)) {
				return
			}
		}
	}
}

// JumpToDefinition opens the first definition found.
func (p *Plugin) JumpToDefinition(ctx context.Context) (editor.Location, error) {
	for loc := range p.DefinitionLocations(ctx) {
		p.ed.OpenLocation(loc)
		return loc, nil
	}
	p.ed.DisplayMessage("no navigable definition")
	return editor.Location{}, ErrNoDefinition
}

// JumpToDeclaration opens the first declaration found.
func (p *Plugin) JumpToDeclaration(ctx context.Context) (editor.Location, error) {
	for loc := range p.DeclarationLocations(ctx) {
		p.ed.OpenLocation(loc)
		return loc, nil
	}
	p.ed.DisplayMessage("no navigable declaration")
	return editor.Location{}, ErrNoDeclaration
}

// lookup parses path from disk and runs find on it. Files that are not C
// or C++ or cannot be parsed contribute nothing.
func (p *Plugin) lookup(ctx context.Context, path, ident string, find lookupFunc) []editor.Location {
	if !treesitter.Supported(path) {
		return nil
	}
	var out []editor.Location
	err := p.acc.TranslationUnitForFileNamedDo(ctx, path, func(_ context.Context, u *treesitter.Unit) error {
		out = locations(u, find(u, ident))
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("plugin: lookup skipped")
	}
	return out
}

func locations(u *treesitter.Unit, syms []treesitter.Symbol) []editor.Location {
	out := make([]editor.Location, 0, len(syms))
	for _, s := range syms {
		out = append(out, editor.Location{File: u.Name(), Line: s.Line, Column: s.Column})
	}
	return out
}

// includedFiles resolves the quoted includes of u against the including
// file's directory and then the -I directories.
func includedFiles(u *treesitter.Unit) []string {
	dirs := append([]string{filepath.Dir(u.Name())}, u.IncludeDirs()...)
	seen := make(map[string]bool)
	var out []string
	for _, inc := range u.Includes() {
		if inc.System {
			continue
		}
		for _, dir := range dirs {
			path := filepath.Join(dir, inc.Path)
			if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
				continue
			}
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
			break
		}
	}
	return out
}

func yieldAll(yield func(editor.Location) bool, locs []editor.Location) bool {
	for _, l := range locs {
		if !yield(l) {
			return false
		}
	}
	return true
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
