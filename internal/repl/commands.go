package repl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// parseSend splits "<type> [payload-json] [@timestamp]"
func parseSend(args string) (*events.AgentEvent, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil, fmt.Errorf("usage: send <type> [payload-json] [@timestamp]")
	}

	typeName, rest, _ := strings.Cut(args, " ")
	event := &events.AgentEvent{Type: events.EventType(typeName)}
	rest = strings.TrimSpace(rest)

	if i := strings.LastIndex(rest, "@"); i >= 0 && !strings.ContainsAny(rest[i:], " }") {
		ts, err := parseShellTimestamp(rest[i+1:])
		if err != nil {
			return nil, err
		}
		event.Timestamp = ts
		rest = strings.TrimSpace(rest[:i])
	}

	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &event.Payload); err != nil {
			return nil, fmt.Errorf("payload must be a JSON object: %w", err)
		}
	}
	return event, nil
}

func parseShellTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp after @")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return events.FromUnix(f)
	}
	return events.ParseTimestampString(s)
}

// cmdSend validates one event
func (r *REPL) cmdSend(args string) error {
	event, err := parseSend(args)
	if err != nil {
		return err
	}
	event.RunID = r.runID
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}

	accepted, violation, err := r.validator.Validate(event)
	if err != nil {
		return err
	}

	if accepted {
		green := color.New(color.FgGreen).SprintFunc()
		status := r.validator.CompletionStatus()
		fmt.Fprintf(r.out, "%s %s accepted (%d/%d)\n", green("✓"), event.Type, status.CompletedEvents, status.TotalEvents)
		if status.IsComplete {
			fmt.Fprintf(r.out, "%s sequence complete\n", green("✓"))
		}
	} else {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(r.out, "%s %s %s\n", red("✗"), red(string(violation.Kind)), violation.Message())
	}

	if r.observe != nil {
		if err := r.observe(r.ctx, event); err != nil {
			return fmt.Errorf("event validated but not recorded: %w", err)
		}
	}
	return nil
}

// cmdNext shows the frontier
func (r *REPL) cmdNext(string) error {
	next := r.validator.ExpectedNextEvents()
	if len(next) == 0 {
		fmt.Fprintln(r.out, "Nothing expected: every declared event has occurred")
		return nil
	}
	fmt.Fprintf(r.out, "Expected next: %s\n", joinTypes(next))
	return nil
}

// cmdStatus shows the completion summary
func (r *REPL) cmdStatus(string) error {
	s := r.validator.CompletionStatus()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(r.out, "\n%s %s\n\n", cyan("Run"), r.runID)
	fmt.Fprintf(r.out, "  Completed:   %d/%d (%.0f%%)\n", s.CompletedEvents, s.TotalEvents, s.CompletionPercentage)
	fmt.Fprintf(r.out, "  Complete:    %t\n", s.IsComplete)
	fmt.Fprintf(r.out, "  Next:        %s\n", joinTypes(s.NextExpected))
	fmt.Fprintf(r.out, "  Violations:  %d\n", s.ViolationsCount)
	if missing := r.validator.MissingEvents(); len(missing) > 0 {
		fmt.Fprintf(r.out, "  Missing:     %s\n", joinTypes(missing))
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdHistory lists accepted events
func (r *REPL) cmdHistory(string) error {
	history := r.validator.History()
	if len(history) == 0 {
		fmt.Fprintln(r.out, "No events accepted yet")
		return nil
	}
	for _, rec := range history {
		fmt.Fprintf(r.out, "  #%d  %s  %s", rec.ArrivalIndex, rec.Timestamp.Format(time.RFC3339Nano), rec.EventType)
		if len(rec.Payload) > 0 {
			payload, _ := json.Marshal(rec.Payload)
			fmt.Fprintf(r.out, "  %s", payload)
		}
		fmt.Fprintln(r.out)
	}
	return nil
}

// cmdViolations lists rejected events
func (r *REPL) cmdViolations(string) error {
	violations := r.validator.Violations()
	if len(violations) == 0 {
		fmt.Fprintln(r.out, "No violations")
		return nil
	}
	red := color.New(color.FgRed).SprintFunc()
	for i, v := range violations {
		fmt.Fprintf(r.out, "  %d. %s  %s\n", i+1, red(string(v.Kind)), v.Message())
	}
	return nil
}

// cmdGraph shows the dependency graph with each event's state
func (r *REPL) cmdGraph(string) error {
	g := r.validator.Graph()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	next := make(map[events.EventType]bool)
	for _, t := range r.validator.ExpectedNextEvents() {
		next[t] = true
	}

	for _, t := range g.TopologicalOrder() {
		marker := " "
		switch {
		case r.validator.HasOccurred(t):
			marker = green("✓")
		case next[t]:
			marker = yellow("→")
		}

		line := fmt.Sprintf("  %s %s", marker, t)
		if deps := g.Dependencies(t); len(deps) > 0 {
			line += " <- " + joinTypes(deps)
		}
		if g.Repeatable(t) {
			line += " (repeatable)"
		}
		fmt.Fprintln(r.out, line)
	}
	return nil
}

// cmdReset clears the validator and starts a new run, so a stored log
// never mixes events from before and after the reset
func (r *REPL) cmdReset(string) error {
	r.validator.Reset()
	r.runID = events.NewRunID()
	fmt.Fprintf(r.out, "Run reset, new run %s\n", r.runID)
	return nil
}

func joinTypes(types []events.EventType) string {
	if len(types) == 0 {
		return "-"
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
