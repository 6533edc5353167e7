package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/filesearch"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

// Warm walks root and queues every C or C++ file at low priority, skipping
// excluded directories, gitignored paths and files over 1 MB. It returns
// the number of files queued.
func (s *Scheduler) Warm(ctx context.Context, root string, excluded []string) (int, error) {
	w, err := filesearch.NewWalker(root, excluded)
	if err != nil {
		return 0, err
	}

	queued := 0
	err = w.Files(ctx, treesitter.Supported, func(path string) error {
		if s.enqueueIfNew(path) {
			queued++
		}
		return nil
	})
	if err != nil {
		return queued, fmt.Errorf("warm %s: %w", root, err)
	}
	log.Info().Str("root", w.Root()).Int("files", queued).Msg("scheduler: warm-up queued")
	return queued, nil
}
