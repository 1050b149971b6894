package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType EventType, runID string, payload map[string]interface{}) *AgentEvent {
	return &AgentEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// NewEventAt creates an event with a fresh ID and an explicit timestamp.
func NewEventAt(eventType EventType, runID string, ts time.Time, payload map[string]interface{}) *AgentEvent {
	event := NewEvent(eventType, runID, payload)
	event.Timestamp = ts
	return event
}

// NewRunID returns a new random run identifier.
func NewRunID() string {
	return "run-" + uuid.New().String()
}

// NewAgentStartedEvent creates an agent_started event with type-safe data.
func NewAgentStartedEvent(runID string, data AgentStartedData) (*AgentEvent, error) {
	event := NewEvent(EventTypeAgentStarted, runID, nil)
	if err := event.SetAgentStartedData(data); err != nil {
		return nil, fmt.Errorf("failed to create agent_started event: %w", err)
	}
	return event, nil
}

// NewAgentThinkingEvent creates an agent_thinking event with type-safe data.
func NewAgentThinkingEvent(runID string, data AgentThinkingData) (*AgentEvent, error) {
	event := NewEvent(EventTypeAgentThinking, runID, nil)
	if err := event.SetAgentThinkingData(data); err != nil {
		return nil, fmt.Errorf("failed to create agent_thinking event: %w", err)
	}
	return event, nil
}

// NewToolExecutingEvent creates a tool_executing event with type-safe data.
func NewToolExecutingEvent(runID string, data ToolExecutingData) (*AgentEvent, error) {
	event := NewEvent(EventTypeToolExecuting, runID, nil)
	if err := event.SetToolExecutingData(data); err != nil {
		return nil, fmt.Errorf("failed to create tool_executing event: %w", err)
	}
	return event, nil
}

// NewToolCompletedEvent creates a tool_completed event with type-safe data.
func NewToolCompletedEvent(runID string, data ToolCompletedData) (*AgentEvent, error) {
	event := NewEvent(EventTypeToolCompleted, runID, nil)
	if err := event.SetToolCompletedData(data); err != nil {
		return nil, fmt.Errorf("failed to create tool_completed event: %w", err)
	}
	return event, nil
}

// NewAgentCompletedEvent creates an agent_completed event with type-safe data.
func NewAgentCompletedEvent(runID string, data AgentCompletedData) (*AgentEvent, error) {
	event := NewEvent(EventTypeAgentCompleted, runID, nil)
	if err := event.SetAgentCompletedData(data); err != nil {
		return nil, fmt.Errorf("failed to create agent_completed event: %w", err)
	}
	return event, nil
}
