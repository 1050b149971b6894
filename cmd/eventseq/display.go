package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

// display renders outcomes, stalls and run reports. Safe for concurrent use.
type display struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

func newDisplay(out io.Writer, verbose bool) *display {
	return &display{out: out, verbose: verbose}
}

// outcome prints one observed event in a two-line format. Clean accepted
// events are only printed in verbose mode.
func (d *display) outcome(o watchdog.Outcome) {
	if o.Event == nil {
		return
	}
	if o.Accepted && o.PayloadErr == nil && !d.verbose {
		return
	}

	var (
		message  string
		msgColor *color.Color
	)
	switch {
	case o.Violation != nil:
		message = fmt.Sprintf("%s: %s", o.Violation.Kind, o.Violation.Message())
		msgColor = color.New(color.FgRed)
	case o.PayloadErr != nil:
		message = fmt.Sprintf("accepted with payload error: %v", o.PayloadErr)
		msgColor = color.New(color.FgYellow)
	default:
		message = fmt.Sprintf("accepted (%d/%d)", o.Summary.CompletedEvents, o.Summary.TotalEvents)
		if o.Summary.IsComplete {
			message += ", sequence complete"
		}
		msgColor = color.New(color.FgCyan)
	}
	if o.Late {
		message += " (late)"
	}

	// Line 1: emoji + [timestamp] + run + event_type: message
	maxMessageLen := 90 - len(o.RunID) - len(string(o.Event.Type))
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "%s [%s] %s %s: %s\n",
		outcomeEmoji(o),
		o.Event.Timestamp.Format("15:04:05"),
		color.New(color.FgGreen).Sprint(o.RunID),
		color.New(color.FgMagenta).Sprint(o.Event.Type),
		msgColor.Sprint(truncateString(message, maxMessageLen)),
	)

	// Line 2: source line and payload fields
	if metadata := eventMetadata(o.Event); metadata != "" {
		fmt.Fprintf(d.out, "  %s\n", color.New(color.FgHiBlack).Sprint(metadata))
	}
}

// parseError prints a malformed record
func (d *display) parseError(source string, err *events.ParseError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "%s %s:%d %s\n", "🚫", source, err.Line, color.New(color.FgRed).Sprint(err.Err))
}

// stall prints a stalled-run warning
func (d *display) stall(info watchdog.StallInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "%s [%s] %s %s\n",
		"⏳",
		time.Now().Format("15:04:05"),
		color.New(color.FgGreen).Sprint(info.RunID),
		color.New(color.FgYellow).Sprintf("stalled: no accepted event for %s, expecting %s",
			info.Idle.Round(time.Second), joinTypes(info.NextExpected)),
	)
}

// report prints a finished run's summary
func (d *display) report(r *watchdog.RunReport) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := color.New(color.FgGreen, color.Bold).Sprint("PASS")
	if !r.Passed() {
		status = color.New(color.FgRed, color.Bold).Sprint("FAIL")
	}
	s := r.Summary
	fmt.Fprintf(d.out, "%s %s  %d/%d events (%.0f%%), %d violations, %d payload errors\n",
		status, r.RunID, s.CompletedEvents, s.TotalEvents, s.CompletionPercentage,
		s.ViolationsCount, r.PayloadErrors)

	if len(r.Missing) > 0 {
		fmt.Fprintf(d.out, "    missing: %s\n", joinTypes(r.Missing))
	}
	for _, v := range r.Violations {
		fmt.Fprintf(d.out, "    %s %s\n", color.New(color.FgRed).Sprint(v.Kind), v.Message())
	}
	if r.Stalled {
		fmt.Fprintf(d.out, "    %s\n", color.New(color.FgYellow).Sprint("stalled"))
	}
}

func outcomeEmoji(o watchdog.Outcome) string {
	switch {
	case o.Violation != nil:
		return "❌"
	case o.PayloadErr != nil:
		return "⚠️"
	case o.Summary.IsComplete:
		return "🏁"
	}

	switch o.Event.Type {
	case events.EventTypeAgentStarted:
		return "🚀"
	case events.EventTypeAgentThinking:
		return "🧠"
	case events.EventTypeToolExecuting:
		return "🔧"
	case events.EventTypeToolCompleted:
		return "✅"
	case events.EventTypeAgentCompleted:
		return "🏁"
	default:
		return "•"
	}
}

// eventMetadata extracts a few key payload fields for the second line
func eventMetadata(event *events.AgentEvent) string {
	var fields []string
	if event.SourceLine > 0 {
		fields = append(fields, fmt.Sprintf("line %d", event.SourceLine))
	}

	data := event.Payload
	switch event.Type {
	case events.EventTypeAgentStarted:
		// agent_started: agent_name | user_id
		fields = append(fields,
			getStringField(data, "agent_name", ""),
			getStringField(data, "user_id", ""))

	case events.EventTypeAgentThinking:
		// agent_thinking: step | thought
		if step := getIntField(data, "step", 0); step > 0 {
			fields = append(fields, fmt.Sprintf("step %d", step))
		}
		fields = append(fields, truncateString(getStringField(data, "thought", ""), 40))

	case events.EventTypeToolExecuting:
		// tool_executing: tool_name
		fields = append(fields, getStringField(data, "tool_name", ""))

	case events.EventTypeToolCompleted:
		// tool_completed: tool_name | success | duration
		success := ""
		if v, ok := data["success"].(bool); ok {
			success = "✓"
			if !v {
				success = "✗"
			}
		}
		duration := ""
		if ms := getIntField(data, "duration_ms", 0); ms > 0 {
			duration = formatDurationMs(ms)
		}
		fields = append(fields, getStringField(data, "tool_name", ""), success, duration)

	case events.EventTypeAgentCompleted:
		// agent_completed: agent_name
		fields = append(fields, getStringField(data, "agent_name", ""))
	}

	return truncateString(joinFields(fields), 70)
}

// Helper functions to safely extract typed fields from payloads
func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	if val, ok := data[key].(int); ok {
		return val
	}
	if val, ok := data[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

// formatDurationMs formats milliseconds into a human-readable duration
func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// joinFields joins the non-empty fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// truncateString truncates a string to maxLen, adding "..." if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
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
