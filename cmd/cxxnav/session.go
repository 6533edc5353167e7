package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xonecas/cxxnav/internal/access"
	"github.com/xonecas/cxxnav/internal/companion"
	"github.com/xonecas/cxxnav/internal/editor"
	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/plugin"
)

// session is one headless editor with a plugin attached.
type session struct {
	buf     *editor.Buffer
	term    *editor.Terminal
	plugin  *plugin.Plugin
	metrics *metrics.Metrics
}

// newSession opens name (which may be empty) in a terminal editor writing
// to the command's stdout.
func newSession(cmd *cobra.Command, name string) (*session, error) {
	var content []byte
	if name != "" {
		var err error
		content, err = os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
	}

	opts, err := editor.SplitOptions(cfg.UserOptions)
	if err != nil {
		return nil, err
	}
	buf := editor.NewBuffer(name, content)
	buf.SetOptions(opts)
	buf.SetExcludedDirectories(cfg.ExcludedDirectories)

	width, _ := cmd.Flags().GetInt("width")
	theme, _ := cmd.Flags().GetString("theme")
	term := editor.NewTerminal(buf, cmd.OutOrStdout(), width, theme)

	m := metrics.New(registry)
	p := plugin.New(term, access.Options{
		Workers: cfg.Workers,
		Companion: companion.Options{
			SearchLimit: cfg.Companion.SearchLimit,
			Similarity:  cfg.Companion.Similarity,
			Excluded:    cfg.ExcludedDirectories,
		},
		Metrics: m,
	})
	return &session{buf: buf, term: term, plugin: p, metrics: m}, nil
}

func (s *session) Close() {
	s.plugin.Terminate()
}

// parsePosition splits FILE:LINE:COL. COL defaults to 1.
func parsePosition(arg string) (string, int, int, error) {
	parts := strings.Split(arg, ":")
	nums := []int{}
	for len(parts) > 1 && len(nums) < 2 {
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			break
		}
		nums = append([]int{n}, nums...)
		parts = parts[:len(parts)-1]
	}
	file := strings.Join(parts, ":")
	switch {
	case file == "" || len(nums) == 0:
		return "", 0, 0, fmt.Errorf("position %q: want FILE:LINE[:COL]", arg)
	case len(nums) == 1:
		nums = append(nums, 1)
	}
	if nums[0] < 1 || nums[1] < 1 {
		return "", 0, 0, fmt.Errorf("position %q: line and column start at 1", arg)
	}
	return file, nums[0], nums[1], nil
}
