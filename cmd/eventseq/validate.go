package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/netra-systems/zen-sub295/internal/config"
	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
	"github.com/netra-systems/zen-sub295/internal/source"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate JSONL event streams",
	Long: `Validate one or more JSONL event streams. Reads stdin when no files are given.

Files are decoded in parallel and validated in argument order by a single
monitor, so a run split across files is checked in file order. Every run ID
is validated independently. Records without a run_id belong to a run named
after their file (or --run-id).

Exits with status 1 when any run has a violation, a payload error or is
incomplete (see --allow-incomplete), or when a record cannot be decoded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := validateOptions{files: args}
		opts.jsonOut, _ = cmd.Flags().GetBool("json")
		opts.store, _ = cmd.Flags().GetBool("store")
		opts.allowIncomplete, _ = cmd.Flags().GetBool("allow-incomplete")
		opts.verbose, _ = cmd.Flags().GetBool("verbose")
		opts.runID, _ = cmd.Flags().GetString("run-id")
		return runValidate(cmd.Context(), profile, opts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	validateCmd.Flags().Bool("json", false, "Print the result as JSON")
	validateCmd.Flags().Bool("store", false, "Persist events, violations and run summaries to --db")
	validateCmd.Flags().Bool("allow-incomplete", false, "Do not fail runs that are missing declared events")
	validateCmd.Flags().BoolP("verbose", "v", false, "Print every event, not only problems")
	validateCmd.Flags().String("run-id", "", "Run ID for records without one")
	rootCmd.AddCommand(validateCmd)
}

type validateOptions struct {
	files           []string
	jsonOut         bool
	store           bool
	allowIncomplete bool
	verbose         bool
	runID           string
}

// validateResult is the --json output
type validateResult struct {
	Passed        bool                  `json:"passed"`
	Runs          []*watchdog.RunReport `json:"runs"`
	ParseErrors   []string              `json:"parse_errors,omitempty"`
	InvalidEvents []string              `json:"invalid_events,omitempty"`
}

// reportCollector keeps every finished run report
type reportCollector struct {
	mu      sync.Mutex
	reports []*watchdog.RunReport
}

func (c *reportCollector) ObserveEvent(context.Context, watchdog.Outcome) error {
	return nil
}

func (c *reportCollector) ObserveRunFinished(_ context.Context, report watchdog.RunReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, &report)
	return nil
}

func (c *reportCollector) sorted() []*watchdog.RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]*watchdog.RunReport(nil), c.reports...)
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// runValidate validates every input and prints the result
func runValidate(ctx context.Context, p *config.Profile, opts validateOptions, stdin io.Reader, out io.Writer) error {
	if p == nil {
		p = config.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reports := &reportCollector{}
	observers := []watchdog.Observer{reports}
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

	var show *display
	if !opts.jsonOut {
		show = newDisplay(out, opts.verbose)
	}

	var (
		parseErrors []string
		invalid     []string
	)

	// Decoding runs in parallel; events reach the monitor one stream at a
	// time in argument order so a run split across files is seen in order.
	var streams []*decodedStream
	if len(opts.files) == 0 {
		stream, err := decodeStream(ctx, "stdin", stdin, opts.runID)
		if err != nil {
			return err
		}
		streams = append(streams, stream)
	} else {
		streams = make([]*decodedStream, len(opts.files))
		g, gctx := errgroup.WithContext(ctx)
		for i, path := range opts.files {
			g.Go(func() error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				stream, err := decodeStream(gctx, path, f, opts.runID)
				if err != nil {
					return err
				}
				streams[i] = stream
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, stream := range streams {
		for _, perr := range stream.parseErrors {
			parseErrors = append(parseErrors, fmt.Sprintf("%s:%d: %v", stream.name, perr.Line, perr.Err))
			if show != nil {
				show.parseError(stream.name, perr)
			}
		}
		for _, event := range stream.events {
			outcome, err := monitor.Observe(ctx, event)
			if err != nil {
				if errors.Is(err, sequence.ErrUnknownEventType) || errors.Is(err, watchdog.ErrMissingRunID) {
					invalid = append(invalid, fmt.Sprintf("%s:%d: %v", stream.name, event.SourceLine, err))
					continue
				}
				return fmt.Errorf("%s: line %d: %w", stream.name, event.SourceLine, err)
			}
			if show != nil {
				show.outcome(outcome)
			}
		}
	}

	monitor.EndAll(ctx)

	// Late events may have changed a run after it finished
	runs := reports.sorted()
	for i, r := range runs {
		if latest, ok := monitor.Run(r.RunID); ok {
			runs[i] = latest
		}
	}

	result := validateResult{
		Passed:        len(parseErrors) == 0 && len(invalid) == 0,
		Runs:          runs,
		ParseErrors:   parseErrors,
		InvalidEvents: invalid,
	}
	for _, r := range result.Runs {
		if !runPassed(r, opts.allowIncomplete) {
			result.Passed = false
		}
	}

	if opts.jsonOut {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		if len(result.Runs) > 0 {
			fmt.Fprintln(out)
		}
		for _, r := range result.Runs {
			show.report(r)
		}
		for _, msg := range invalid {
			fmt.Fprintf(out, "invalid event %s\n", msg)
		}
	}

	if !result.Passed {
		return errCheckFailed
	}
	return nil
}

// decodedStream holds one input's records in stream order
type decodedStream struct {
	name        string
	events      []*events.AgentEvent
	parseErrors []*events.ParseError
}

// decodeStream reads every record of r. Records without a run ID get
// runID, or name when runID is empty.
func decodeStream(ctx context.Context, name string, r io.Reader, runID string) (*decodedStream, error) {
	if runID == "" {
		runID = name
	}
	stream := &decodedStream{name: name}
	err := source.ReadJSONL(ctx, r,
		func(_ context.Context, event *events.AgentEvent) error {
			stream.events = append(stream.events, event)
			return nil
		},
		source.WithDefaultRunID(runID),
		source.WithParseErrorHandler(func(perr *events.ParseError) {
			stream.parseErrors = append(stream.parseErrors, perr)
		}),
		source.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stream, nil
}

// runPassed applies the exit policy to one run
func runPassed(r *watchdog.RunReport, allowIncomplete bool) bool {
	if r.Summary.ViolationsCount > 0 || r.PayloadErrors > 0 {
		return false
	}
	return allowIncomplete || r.Summary.IsComplete
}
