package treesitter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnparseable is returned when no translation unit can be produced for a
// file: no grammar for it, a malformed argument list, or a parser failure.
var ErrUnparseable = errors.New("unparseable translation unit")

// ParseFlags tune how units are built.
type ParseFlags uint

const (
	// FlagPrecompiledPreamble keeps the tree around so Reparse can edit it
	// and parse incrementally instead of starting over.
	FlagPrecompiledPreamble ParseFlags = 1 << iota
	// FlagSkipFunctionBodies is accepted for compatibility; bodies are never
	// indexed.
	FlagSkipFunctionBodies
)

// Parser builds and refreshes units. It holds no state and is safe for
// concurrent use.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse creates a unit for name from src, interpreting the compiler-style
// args. The returned unit must be refreshed with Reparse, never re-created.
func (p *Parser) Parse(ctx context.Context, name string, args []string, src []byte, flags ParseFlags) (*Unit, error) {
	opts, err := parseArgs(name, args)
	if err != nil {
		return nil, err
	}

	tree, err := parse(ctx, opts.lang, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnparseable, name, err)
	}

	u := &Unit{
		name:        name,
		lang:        opts.lang,
		args:        append([]string(nil), args...),
		includeDirs: opts.includeDirs,
		flags:       flags,
		src:         src,
		tree:        tree,
	}
	u.refresh()
	return u, nil
}

// Reparse brings u up to date with src. With FlagPrecompiledPreamble the old
// tree is edited and reused.
func (p *Parser) Reparse(ctx context.Context, u *Unit, src []byte) error {
	var old *sitter.Tree
	if u.flags&FlagPrecompiledPreamble != 0 && u.tree != nil {
		if edit, ok := computeEdit(u.src, src); ok {
			u.tree.Edit(edit)
		}
		old = u.tree
	}

	tree, err := parse(ctx, u.lang, old, src)
	if err != nil {
		// The edited tree no longer matches u.src; force a full parse next time.
		if old != nil {
			u.tree.Close()
			u.tree = nil
		}
		return fmt.Errorf("reparse %s: %w", u.name, err)
	}

	if u.tree != nil {
		u.tree.Close()
	}
	u.tree = tree
	u.src = src
	u.version++
	u.refresh()
	return nil
}

func parse(ctx context.Context, lang Language, old *sitter.Tree, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar())

	tree, err := parser.ParseCtx(ctx, old, src)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, errors.New("parser returned no tree")
	}
	return tree, nil
}

type parseOptions struct {
	lang        Language
	includeDirs []string
}

// parseArgs reads the flags the backend cares about: -x picks the language
// outright, -std= picks it when -x is absent, and -I directories are
// recorded. Everything else is ignored.
func parseArgs(name string, args []string) (parseOptions, error) {
	var (
		opts    parseOptions
		xLang   Language
		stdLang Language
	)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-x" || arg == "-I":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%w: %s: missing value for %s", ErrUnparseable, name, arg)
			}
			i++
			if arg == "-I" {
				opts.includeDirs = append(opts.includeDirs, args[i])
				continue
			}
			lang, ok := languageForFlag(args[i])
			if !ok {
				return opts, fmt.Errorf("%w: %s: unsupported language %q", ErrUnparseable, name, args[i])
			}
			xLang = lang
		case strings.HasPrefix(arg, "-x"):
			lang, ok := languageForFlag(arg[2:])
			if !ok {
				return opts, fmt.Errorf("%w: %s: unsupported language %q", ErrUnparseable, name, arg[2:])
			}
			xLang = lang
		case strings.HasPrefix(arg, "-I"):
			opts.includeDirs = append(opts.includeDirs, arg[2:])
		case strings.HasPrefix(arg, "-std="):
			if strings.Contains(arg, "++") {
				stdLang = LangCPP
			} else {
				stdLang = LangC
			}
		}
	}

	switch {
	case xLang != LangUnknown:
		opts.lang = xLang
	case stdLang != LangUnknown:
		opts.lang = stdLang
	default:
		opts.lang = LanguageForPath(name)
	}
	if opts.lang == LangUnknown {
		return opts, fmt.Errorf("%w: %s: unknown language", ErrUnparseable, name)
	}
	return opts, nil
}
