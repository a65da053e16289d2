// Package cli implements the dayplan command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"dayplan/internal/buildinfo"
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dayplan",
		Short: "Plan a day: choose which tasks to do and when",
		Long: `dayplan picks the subset of tasks that maximizes total priority inside
the day's available time windows, and orders them into a timetable.

Small task lists are solved exactly by branch-and-bound; large ones, or
searches that run out of time, fall back to a greedy heuristic.`,
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSolveCmd(), newVersionCmd(), newTokenCmd())
	return root
}

// Execute runs the root command. Called from main.go. Ctrl-C cancels a
// running solve, which then prints the best schedule found so far.
func Execute(version string) {
	if version != "" {
		buildinfo.Version = version
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
