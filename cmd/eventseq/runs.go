package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/netra-systems/zen-sub295/internal/storage/sqlite"
)

var runsCmd = &cobra.Command{
	Use:   "runs [RUN_ID]",
	Short: "List stored runs or show one run's violations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			return showRun(cmd.Context(), store, args[0], jsonOut, cmd.OutOrStdout())
		}
		return listRuns(cmd.Context(), store, limit, jsonOut, cmd.OutOrStdout())
	},
}

func init() {
	runsCmd.Flags().IntP("limit", "n", 20, "Number of recent runs to list")
	runsCmd.Flags().Bool("json", false, "Print as JSON")
	rootCmd.AddCommand(runsCmd)
}

func listRuns(ctx context.Context, store *sqlite.Store, limit int, jsonOut bool, out io.Writer) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	for _, r := range runs {
		state := "active"
		if r.Finished() {
			state = r.Reason
		}
		s := r.Summary
		fmt.Fprintf(out, "%s  %s  %-8s %d/%d events, %d violations\n",
			r.StartedAt.Local().Format(time.DateTime), green(r.RunID), state,
			s.CompletedEvents, s.TotalEvents, s.ViolationsCount)
	}
	return nil
}

func showRun(ctx context.Context, store *sqlite.Store, runID string, jsonOut bool, out io.Writer) error {
	run, err := store.GetRunSummary(ctx, runID)
	if err != nil {
		return err
	}
	violations, err := store.GetViolations(ctx, runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(out, map[string]interface{}{
			"run":        run,
			"violations": violations,
		})
	}

	s := run.Summary
	fmt.Fprintf(out, "Run %s\n", run.RunID)
	fmt.Fprintf(out, "  Started:     %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.Finished() {
		fmt.Fprintf(out, "  Finished:    %s (%s)\n", run.FinishedAt.Local().Format(time.DateTime), run.Reason)
	}
	fmt.Fprintf(out, "  Completed:   %d/%d (%.0f%%)\n", s.CompletedEvents, s.TotalEvents, s.CompletionPercentage)
	fmt.Fprintf(out, "  Violations:  %d\n", len(violations))

	red := color.New(color.FgRed).SprintFunc()
	for i, v := range violations {
		fmt.Fprintf(out, "    %d. %s  %s\n", i+1, red(string(v.Kind)), v.Message())
	}
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
