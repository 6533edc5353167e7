package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xonecas/cxxnav/internal/watch"
)

var warmCmd = &cobra.Command{
	Use:   "warm [flags] <dir>",
	Short: "Parse every C and C++ file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWarm,
}

var statsCmd = &cobra.Command{
	Use:   "stats <dir>",
	Short: "Warm up a directory and print the collected metrics",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	warmCmd.Flags().Bool("watch", false, "keep running and reparse files changed on disk")
}

func runWarm(cmd *cobra.Command, args []string) error {
	watching, _ := cmd.Flags().GetBool("watch")
	watching = watching || cfg.Watch.Enabled

	s, err := newSession(cmd, "")
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := warm(ctx, s, args[0]); err != nil {
		return err
	}
	if !watching {
		// Let in-flight parses finish before counting.
		s.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "%d translation units parsed\n", len(s.plugin.Accessor().Names()))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d translation units parsed\n", len(s.plugin.Accessor().Names()))

	w, err := watch.New(args[0], s.plugin.Accessor(), watch.Options{
		Debounce: cfg.Watch.Debounce(),
		Excluded: cfg.ExcludedDirectories,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	log.Info().Str("dir", args[0]).Msg("watching for changes, interrupt to stop")
	<-ctx.Done()
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, "")
	if err != nil {
		return err
	}
	if err := warm(cmd.Context(), s, args[0]); err != nil {
		s.Close()
		return err
	}
	s.Close()

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.OutOrStdout(), mf); err != nil {
			return err
		}
	}
	return nil
}

// warm queues dir and waits until the queue drains.
func warm(ctx context.Context, s *session, dir string) error {
	start := time.Now()
	sched := s.plugin.Accessor().Scheduler()
	n, err := sched.Warm(ctx, dir, cfg.ExcludedDirectories)
	if err != nil {
		return err
	}

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for sched.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	log.Info().Int("queued", n).Dur("took", time.Since(start)).Msg("warm-up queue drained")
	return nil
}
