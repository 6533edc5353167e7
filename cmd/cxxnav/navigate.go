package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var defCmd = &cobra.Command{
	Use:   "def <file:line[:col]>",
	Short: "Jump to the definition of the identifier at a position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJump(cmd, args[0], false)
	},
}

var declCmd = &cobra.Command{
	Use:   "decl <file:line[:col]>",
	Short: "Jump to the declaration of the identifier at a position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJump(cmd, args[0], true)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <file> <prefix>",
	Short: "List names visible in a file that start with a prefix",
	Args:  cobra.ExactArgs(2),
	RunE:  runComplete,
}

func init() {
	defCmd.Flags().Bool("all", false, "list every candidate instead of the first")
	declCmd.Flags().Bool("all", false, "list every candidate instead of the first")
}

func runJump(cmd *cobra.Command, pos string, declaration bool) error {
	file, line, col, err := parsePosition(pos)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")

	s, err := newSession(cmd, file)
	if err != nil {
		return err
	}
	defer s.Close()
	s.buf.SetCursor(line, col)

	ctx := cmd.Context()
	if all {
		seq := s.plugin.DefinitionLocations(ctx)
		if declaration {
			seq = s.plugin.DeclarationLocations(ctx)
		}
		n := 0
		for loc := range seq {
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			n++
		}
		if n == 0 {
			return fmt.Errorf("%s: nothing found", pos)
		}
		return nil
	}

	if declaration {
		_, err = s.plugin.JumpToDeclaration(ctx)
	} else {
		_, err = s.plugin.JumpToDefinition(ctx)
	}
	return err
}

func runComplete(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := s.plugin.Completions(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
