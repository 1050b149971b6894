package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/repl"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive validation shell",
	Long: `Start an interactive shell over a single run. Send events one at a time
and inspect the expected next events, history and violations.

With --db, every event sent from the shell is appended to the run's stored
event log so it can be replayed later. reset starts a new run ID, so each
stored run holds only the events of one shell run.

Type 'help' in the shell for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run-id")

		graph, err := profile.Graph()
		if err != nil {
			return err
		}
		cfg := &repl.Config{
			Graph: graph,
			RunID: runID,
			Out:   cmd.OutOrStdout(),
		}

		if dbPath != "" {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			cfg.Observe = func(ctx context.Context, event *events.AgentEvent) error {
				return store.StoreEvent(ctx, event)
			}
		}

		r, err := repl.New(cfg)
		if err != nil {
			return err
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	shellCmd.Flags().String("run-id", "", "Run ID for the shell's events (default: generated)")
	rootCmd.AddCommand(shellCmd)
}
