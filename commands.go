package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"media-assistant/internal/fingerprint"
	"media-assistant/internal/startup"
)

// withApp loads the configuration, opens the app and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := startup.LoadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task to completion and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				start := time.Now()
				err := a.tasks.Run(ctx, args[0])

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = a.tasks.Shutdown(shutdownCtx)

				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s completed in %v\n", args[0], time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				tw := newTable("Task", "Description", "Schedule", "Last run")
				for _, st := range a.tasks.Status() {
					schedule := "manual"
					if st.Interval != "" {
						schedule = "every " + st.Interval
					}
					lastRun := "never"
					if !st.LastRun.IsZero() {
						lastRun = st.LastRun.Local().Format(time.DateTime)
					}
					tw.AppendRow(table.Row{st.Name, st.Description, schedule, lastRun})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
				return nil
			})
		},
	}
}

func newClearIntroCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-intro <id>...",
		Short: "Clear intro and credits markers of series or seasons",
		Long: "Clear intro and credits markers of every episode of the given series\n" +
			"or season ids. Ids may be separated by spaces, commas or semicolons.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := fingerprint.ClearIntroMarkers(ctx, a.db, a.expander, strings.Join(args, ","), nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d markers from %d episodes of %d shows\n",
					res.Markers, res.Episodes, len(res.Shows))
				return nil
			})
		},
	}
}

func newScopeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scope",
		Short: "Print the library scope of every pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				tw := newTable("Pipeline", "Scope", "Favorites", "Paths")
				for _, p := range a.selection.Pipelines() {
					res := p.Scope().Load()
					var paths []string
					favorites := false
					if res != nil {
						paths = res.PathPrefixes
						favorites = res.IncludesFavorites
					}
					tw.AppendRow(table.Row{p.Name, res.Description(), favorites, strings.Join(paths, "\n")})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
				return nil
			})
		},
	}
}

func newTable(headers ...interface{}) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(headers))
	return tw
}
