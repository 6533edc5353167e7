package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xonecas/cxxnav/internal/companion"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

var companionsCmd = &cobra.Command{
	Use:   "companions <file>",
	Short: "List implementation files whose names resemble a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompanions,
}

var outlineCmd = &cobra.Command{
	Use:   "outline <file>...",
	Short: "Print a compact symbol outline of files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOutline,
}

func runCompanions(cmd *cobra.Command, args []string) error {
	finder := companion.New(companion.Options{
		SearchLimit: cfg.Companion.SearchLimit,
		Similarity:  cfg.Companion.Similarity,
		Excluded:    cfg.ExcludedDirectories,
	})
	for path := range finder.DefinitionFiles(args[0]) {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

func runOutline(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, "")
	if err != nil {
		return err
	}
	defer s.Close()

	snap := make(map[string][]treesitter.Symbol, len(args))
	for _, path := range args {
		err := s.plugin.Accessor().TranslationUnitForFileNamedDo(cmd.Context(), path, func(_ context.Context, u *treesitter.Unit) error {
			snap[path] = u.Symbols()
			return nil
		})
		if err != nil {
			return err
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), treesitter.FormatOutline(snap))
	return nil
}
