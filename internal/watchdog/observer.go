package watchdog

import (
	"context"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
)

// Outcome is the result of observing one event.
type Outcome struct {
	// RunID is the run the event was routed to
	RunID string `json:"run_id"`
	// Event is the observed event. A zero timestamp is replaced by the
	// monitor's clock reading.
	Event *events.AgentEvent `json:"event"`
	// Accepted reports whether the sequence validator accepted the event
	Accepted bool `json:"accepted"`
	// Violation is set when the event was rejected
	Violation *sequence.Violation `json:"violation,omitempty"`
	// PayloadErr is set when the payload failed its shape checks.
	// It does not affect Accepted.
	PayloadErr error `json:"-"`
	// Summary is the run's completion status after the event
	Summary sequence.Summary `json:"summary"`
	// Late is set when the run had already been finished
	Late bool `json:"late,omitempty"`
}

// Finish reasons recorded in RunReport.Reason
const (
	ReasonComplete = "complete"
	ReasonEnded    = "ended"
	ReasonStalled  = "stalled"
)

// RunReport is a point-in-time view of one run.
type RunReport struct {
	RunID         string                 `json:"run_id"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Summary       sequence.Summary       `json:"summary"`
	Occurred      []events.EventType     `json:"occurred"`
	Missing       []events.EventType     `json:"missing"`
	Violations    []sequence.Violation   `json:"violations"`
	History       []sequence.EventRecord `json:"history"`
	PayloadErrors int                    `json:"payload_errors"`
	Stalled       bool                   `json:"stalled"`
}

// Passed reports whether the run finished every declared event without any
// violation or payload error.
func (r *RunReport) Passed() bool {
	return r.Summary.IsComplete && r.Summary.ViolationsCount == 0 && r.PayloadErrors == 0
}

// StallInfo describes an active run with no accepted event within the stall timeout.
type StallInfo struct {
	RunID        string             `json:"run_id"`
	LastEventAt  time.Time          `json:"last_event_at"`
	Idle         time.Duration      `json:"idle"`
	NextExpected []events.EventType `json:"next_expected"`
}

// Observer receives monitor outcomes. Implementations must be safe for
// concurrent use; events of different runs are observed concurrently.
// Errors are logged by the monitor and never change an outcome.
type Observer interface {
	ObserveEvent(ctx context.Context, outcome Outcome) error
	ObserveRunFinished(ctx context.Context, report RunReport) error
}
