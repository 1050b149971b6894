package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// ViolationKind classifies a rejected event. The set is closed.
type ViolationKind string

const (
	// ViolationDuplicate indicates the event type had already occurred in the run
	ViolationDuplicate ViolationKind = "DUPLICATE"
	// ViolationMissingDependency indicates one or more dependencies had not yet occurred
	ViolationMissingDependency ViolationKind = "MISSING_DEPENDENCY"
	// ViolationTemporalInconsistency indicates the event is timestamped before the last accepted event
	ViolationTemporalInconsistency ViolationKind = "TEMPORAL_INCONSISTENCY"
)

// ViolationKinds returns every violation kind.
func ViolationKinds() []ViolationKind {
	return []ViolationKind{
		ViolationDuplicate,
		ViolationMissingDependency,
		ViolationTemporalInconsistency,
	}
}

// IsValid reports whether k is a recognized violation kind.
func (k ViolationKind) IsValid() bool {
	switch k {
	case ViolationDuplicate, ViolationMissingDependency, ViolationTemporalInconsistency:
		return true
	default:
		return false
	}
}

// Context keys used in Violation.Context.
const (
	// ContextMissing holds []events.EventType for MISSING_DEPENDENCY
	ContextMissing = "missing"
	// ContextFirstArrivalIndex holds the arrival index of the original occurrence for DUPLICATE
	ContextFirstArrivalIndex = "first_arrival_index"
	// ContextEventTimestamp holds the rejected event's timestamp for TEMPORAL_INCONSISTENCY
	ContextEventTimestamp = "event_timestamp"
	// ContextLastTimestamp holds the last accepted timestamp for TEMPORAL_INCONSISTENCY
	ContextLastTimestamp = "last_timestamp"
	// ContextLastEventType holds the last accepted event type for TEMPORAL_INCONSISTENCY
	ContextLastEventType = "last_event_type"
)

// EventRecord is an accepted event in a run's history.
type EventRecord struct {
	EventType    events.EventType       `json:"event_type"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	ArrivalIndex int                    `json:"arrival_index"`
}

// Violation is a rejected validation attempt.
type Violation struct {
	EventType events.EventType       `json:"event_type"`
	Kind      ViolationKind          `json:"violation_kind"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context"`
}

// Missing returns the missing dependencies recorded for a MISSING_DEPENDENCY violation.
// Violations decoded from JSON carry the list as []interface{}; both forms are handled.
func (v *Violation) Missing() []events.EventType {
	switch missing := v.Context[ContextMissing].(type) {
	case []events.EventType:
		return missing
	case []interface{}:
		out := make([]events.EventType, 0, len(missing))
		for _, m := range missing {
			if s, ok := m.(string); ok {
				out = append(out, events.EventType(s))
			}
		}
		return out
	default:
		return nil
	}
}

// Message returns a one-line human-readable description.
func (v *Violation) Message() string {
	switch v.Kind {
	case ViolationDuplicate:
		return fmt.Sprintf("%s already occurred in this run", v.EventType)
	case ViolationMissingDependency:
		names := make([]string, 0, len(v.Missing()))
		for _, t := range v.Missing() {
			names = append(names, string(t))
		}
		return fmt.Sprintf("%s arrived before %s", v.EventType, strings.Join(names, ", "))
	case ViolationTemporalInconsistency:
		last := fmt.Sprint(v.Context[ContextLastEventType])
		return fmt.Sprintf("%s is timestamped before the last accepted event %s", v.EventType, last)
	default:
		return fmt.Sprintf("%s rejected (%s)", v.EventType, v.Kind)
	}
}

// Summary is the completion status of a run.
type Summary struct {
	TotalEvents          int                `json:"total_events"`
	CompletedEvents      int                `json:"completed_events"`
	CompletionPercentage float64            `json:"completion_percentage"`
	IsComplete           bool               `json:"is_complete"`
	NextExpected         []events.EventType `json:"next_expected"`
	ViolationsCount      int                `json:"violations_count"`
}
