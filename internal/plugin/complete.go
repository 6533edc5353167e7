package plugin

import (
	"context"
	"slices"
	"strings"

	"github.com/xonecas/cxxnav/internal/treesitter"
)

// Completions returns the sorted, distinct names declared in the current
// file and its quoted includes that start with base.
func (p *Plugin) Completions(ctx context.Context, base string) ([]string, error) {
	seen := make(map[string]bool)
	collect := func(_ context.Context, u *treesitter.Unit) error {
		for _, s := range u.Symbols() {
			if s.Name != "" && strings.HasPrefix(s.Name, base) {
				seen[s.Name] = true
			}
		}
		return nil
	}

	var headers []string
	err := p.acc.CurrentTranslationUnitDo(ctx, func(ctx context.Context, u *treesitter.Unit) error {
		headers = includedFiles(u)
		return collect(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	for _, h := range headers {
		if !treesitter.Supported(h) {
			continue
		}
		// A header that fails to parse only narrows the result.
		_ = p.acc.TranslationUnitForFileNamedDo(ctx, h, collect)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
