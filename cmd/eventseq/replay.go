package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/netra-systems/zen-sub295/internal/config"
	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/source"
	"github.com/netra-systems/zen-sub295/internal/storage/sqlite"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

var replayCmd = &cobra.Command{
	Use:   "replay RUN_ID",
	Short: "Re-validate a stored run",
	Long: `Read a run's stored event log from --db and validate it again against the
current profile, in arrival order. Use --rate to pace the replay.

Exits with status 1 when the replayed run fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, _ := cmd.Flags().GetFloat64("rate")
		verbose, _ := cmd.Flags().GetBool("verbose")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return runReplay(cmd.Context(), profile, store, args[0], rate, verbose, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().Float64("rate", 0, "Events per second (0 = as fast as possible)")
	replayCmd.Flags().BoolP("verbose", "v", true, "Print every event, not only problems")
	rootCmd.AddCommand(replayCmd)
}

// runReplay validates a stored run with a fresh monitor
func runReplay(ctx context.Context, p *config.Profile, store *sqlite.Store, runID string, rate float64, verbose bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	stored, err := store.GetRunEvents(ctx, runID)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return fmt.Errorf("no stored events for run %s", runID)
	}

	monitor, err := newMonitor(p)
	if err != nil {
		return err
	}
	show := newDisplay(out, verbose)

	err = source.Replay(ctx, stored, rate, func(ctx context.Context, event *events.AgentEvent) error {
		outcome, err := monitor.Observe(ctx, event)
		if err != nil {
			return err
		}
		show.outcome(outcome)
		return nil
	})
	if err != nil {
		return err
	}

	report, err := monitor.EndRun(ctx, runID)
	if errors.Is(err, watchdog.ErrUnknownRun) {
		// finish_on_complete already finished it
		var ok bool
		if report, ok = monitor.Run(runID); !ok {
			return err
		}
	} else if err != nil {
		return err
	}
	fmt.Fprintln(out)
	show.report(report)

	if saved, err := store.GetRunSummary(ctx, runID); err == nil && saved.Finished() {
		if saved.Summary.ViolationsCount != report.Summary.ViolationsCount ||
			saved.Summary.IsComplete != report.Summary.IsComplete {
			fmt.Fprintf(out, "    recorded result differs: %d/%d events, %d violations\n",
				saved.Summary.CompletedEvents, saved.Summary.TotalEvents, saved.Summary.ViolationsCount)
		}
	}

	if !report.Passed() {
		return errCheckFailed
	}
	return nil
}
