package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netra-systems/zen-sub295/internal/config"
	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/metrics"
	"github.com/netra-systems/zen-sub295/internal/source"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Validate a live event feed",
	Long: `Validate events as they arrive, from a websocket feed (--ws) or a growing
JSONL file (--follow). Runs with no accepted event within the profile's
stall_timeout are reported as stalled.

Stops on Ctrl+C, when the websocket closes or when the followed file is
removed, then prints a summary of every run seen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := watchOptions{}
		opts.wsURL, _ = cmd.Flags().GetString("ws")
		opts.followPath, _ = cmd.Flags().GetString("follow")
		opts.headers, _ = cmd.Flags().GetStringArray("header")
		opts.metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		opts.runID, _ = cmd.Flags().GetString("run-id")
		opts.store, _ = cmd.Flags().GetBool("store")
		opts.verbose, _ = cmd.Flags().GetBool("verbose")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, profile, opts, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().String("ws", "", "Websocket URL to read events from")
	watchCmd.Flags().StringP("follow", "f", "", "JSONL file to follow")
	watchCmd.Flags().StringArrayP("header", "H", nil, "Websocket request header as 'Name: value' (repeatable)")
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().String("run-id", "live", "Run ID for records without one")
	watchCmd.Flags().Bool("store", false, "Persist events, violations and run summaries to --db")
	watchCmd.Flags().BoolP("verbose", "v", false, "Print every event, not only problems")
	rootCmd.AddCommand(watchCmd)
}

type watchOptions struct {
	wsURL       string
	followPath  string
	headers     []string
	metricsAddr string
	runID       string
	store       bool
	verbose     bool
}

// runWatch validates a live feed until ctx is cancelled or the feed ends
func runWatch(ctx context.Context, p *config.Profile, opts watchOptions, out io.Writer) error {
	if (opts.wsURL == "") == (opts.followPath == "") {
		return fmt.Errorf("exactly one of --ws or --follow is required")
	}
	header, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(nil)
	observers := []watchdog.Observer{collector}
	if opts.store {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		observers = append(observers, store)
	}

	monitor, err := newMonitor(p, observers...)
	if err != nil {
		return err
	}
	show := newDisplay(out, opts.verbose)

	if opts.metricsAddr != "" {
		shutdown, err := serveMetrics(opts.metricsAddr, collector.Handler())
		if err != nil {
			return err
		}
		defer shutdown()
	}

	stall, err := p.StallTimeout()
	if err != nil {
		return err
	}
	if stall > 0 {
		wd, err := watchdog.NewWatchdog(monitor, &watchdog.WatchdogConfig{OnStall: show.stall})
		if err != nil {
			return err
		}
		if err := wd.Start(ctx); err != nil {
			return err
		}
		defer wd.Stop()
	}

	handle := func(ctx context.Context, event *events.AgentEvent) error {
		outcome, err := monitor.Observe(ctx, event)
		if err != nil {
			// A live feed keeps going past unusable records
			logger.Warn("event ignored", "line", event.SourceLine, "error", err)
			return nil
		}
		show.outcome(outcome)
		return nil
	}
	srcOpts := []source.Option{
		source.WithDefaultRunID(opts.runID),
		source.WithParseErrorHandler(func(perr *events.ParseError) {
			show.parseError(feedName(opts), perr)
		}),
		source.WithLogger(logger),
	}

	if opts.wsURL != "" {
		err = source.WebSocket(ctx, opts.wsURL, header, handle, srcOpts...)
	} else {
		err = source.Follow(ctx, opts.followPath, handle, srcOpts...)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Finish with a fresh context so observers can flush after Ctrl+C
	reports := monitor.EndAll(context.Background())
	if len(reports) > 0 {
		fmt.Fprintln(out)
	}
	for _, r := range reports {
		show.report(r)
	}
	return nil
}

func feedName(opts watchOptions) string {
	if opts.wsURL != "" {
		return opts.wsURL
	}
	return opts.followPath
}

// parseHeaders parses "Name: value" pairs
func parseHeaders(raw []string) (http.Header, error) {
	header := http.Header{}
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return header, nil
}

// serveMetrics serves h on addr at /metrics and returns a shutdown func
func serveMetrics(addr string, h http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
