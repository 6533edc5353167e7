package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xonecas/cxxnav/internal/plugin"
)

var diagCmd = &cobra.Command{
	Use:   "diag [flags] <file>",
	Short: "Report syntax errors in a C or C++ file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiag,
}

func init() {
	diagCmd.Flags().String("format", "pretty", "output format (pretty|block)")
}

// runDiag prints the file's diagnostics and fails if any is an error.
func runDiag(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "pretty" && format != "block" {
		return fmt.Errorf("unknown format %q", format)
	}

	s, err := newSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	diags, err := s.plugin.Diagnostics(cmd.Context())
	if err != nil {
		return err
	}
	if format == "block" {
		fmt.Fprint(cmd.OutOrStdout(), plugin.FormatDiagnostics(args[0], diags))
	}

	errs := 0
	for _, d := range diags {
		if int(d.Severity) == plugin.SeverityError {
			errs++
		}
	}
	if errs > 0 {
		return fmt.Errorf("%s: %d syntax error(s)", args[0], errs)
	}
	return nil
}
