package events

import (
	"context"
	"time"
)

// EventType represents the type of event emitted during a single agent run.
type EventType string

const (
	// EventTypeAgentStarted indicates the agent accepted the request and began the run
	EventTypeAgentStarted EventType = "agent_started"
	// EventTypeAgentThinking indicates the agent is reasoning about the request
	EventTypeAgentThinking EventType = "agent_thinking"
	// EventTypeToolExecuting indicates the agent invoked a tool
	EventTypeToolExecuting EventType = "tool_executing"
	// EventTypeToolCompleted indicates a tool invocation returned
	EventTypeToolCompleted EventType = "tool_completed"
	// EventTypeAgentCompleted indicates the agent produced its final answer
	EventTypeAgentCompleted EventType = "agent_completed"
)

// CanonicalEventTypes returns the five business events in their canonical order.
func CanonicalEventTypes() []EventType {
	return []EventType{
		EventTypeAgentStarted,
		EventTypeAgentThinking,
		EventTypeToolExecuting,
		EventTypeToolCompleted,
		EventTypeAgentCompleted,
	}
}

// IsCanonical reports whether t is one of the five canonical business events.
// Deployments may declare additional types; those are valid for their own graph
// but are not canonical.
func (t EventType) IsCanonical() bool {
	switch t {
	case EventTypeAgentStarted, EventTypeAgentThinking, EventTypeToolExecuting,
		EventTypeToolCompleted, EventTypeAgentCompleted:
		return true
	default:
		return false
	}
}

// String returns the wire name of the event type.
func (t EventType) String() string {
	return string(t)
}

// AgentEvent is one input record observed for a run.
// The payload is opaque to sequence validation; only the optional payload-shape
// layer (see ValidatePayload) looks inside it.
type AgentEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id,omitempty"`
	// Type is the declared event type
	Type EventType `json:"type"`
	// RunID identifies the run the event belongs to (caller-managed)
	RunID string `json:"run_id,omitempty"`
	// Timestamp is the wall-clock time of the event; zero means "now" at validation time
	Timestamp time.Time `json:"timestamp,omitempty"`
	// Payload carries event-specific data
	Payload map[string]interface{} `json:"payload,omitempty"`
	// SourceLine is the line number in the stream this event was decoded from (0 if not applicable)
	SourceLine int `json:"source_line,omitempty"`
}

// EventFilter is used to query stored events.
type EventFilter struct {
	// RunID filters events for a specific run
	RunID string
	// Type filters events by type
	Type EventType
	// AfterTime filters events after this time
	AfterTime time.Time
	// Limit limits the number of results (0 = no limit)
	Limit int
}

// EventStore defines the interface for persisting and reading run events.
type EventStore interface {
	// StoreEvent appends an event to the run's event log
	StoreEvent(ctx context.Context, event *AgentEvent) error
	// GetRunEvents returns a run's events in arrival order
	GetRunEvents(ctx context.Context, runID string) ([]*AgentEvent, error)
	// GetEvents returns events matching the filter
	GetEvents(ctx context.Context, filter EventFilter) ([]*AgentEvent, error)
}
