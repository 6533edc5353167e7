package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xonecas/cxxnav/internal/config"
)

var (
	cfg      *config.Config
	registry = prometheus.NewRegistry()
	logFile  *os.File
)

var rootCmd = &cobra.Command{
	Use:           "cxxnav",
	Short:         "Navigate C and C++ sources",
	Long:          `cxxnav parses C and C++ files in the background and answers definition, declaration, completion and diagnostics queries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Log.File, _ = cmd.Flags().GetString("log-file")
		}
		return setupLogging(cfg.Log)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/cxxnav/config.toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().Int("width", 0, "truncate output lines to this width (0 = no limit)")
	rootCmd.PersistentFlags().String("theme", "", "chroma theme for snippets")

	rootCmd.AddCommand(diagCmd)
	rootCmd.AddCommand(defCmd)
	rootCmd.AddCommand(declCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(companionsCmd)
	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cxxnav: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(lc config.LogConfig) error {
	level, err := zerolog.ParseLevel(lc.LevelOrDefault())
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		w = f
	}
	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}
