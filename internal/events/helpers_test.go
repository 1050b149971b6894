package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONTagsSnakeCase(t *testing.T) {
	event := &AgentEvent{
		ID:         "evt-123",
		Type:       EventTypeToolExecuting,
		RunID:      "run-1",
		Timestamp:  time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC),
		Payload:    map[string]interface{}{"tool_name": "search"},
		SourceLine: 42,
	}

	jsonBytes, err := json.Marshal(event)
	require.NoError(t, err)
	jsonStr := string(jsonBytes)

	for _, field := range []string{`"id"`, `"type"`, `"run_id"`, `"timestamp"`, `"payload"`, `"source_line"`} {
		assert.True(t, strings.Contains(jsonStr, field), "JSON missing expected field %s: %s", field, jsonStr)
	}
}

func TestToolExecutingDataHelpers(t *testing.T) {
	event := NewEvent(EventTypeToolExecuting, "run-1", nil)

	err := event.SetToolExecutingData(ToolExecutingData{
		ToolName:  "web_search",
		Arguments: map[string]interface{}{"query": "weather"},
	})
	require.NoError(t, err)
	assert.Equal(t, "web_search", event.Payload["tool_name"])

	retrieved, err := event.GetToolExecutingData()
	require.NoError(t, err)
	assert.Equal(t, "web_search", retrieved.ToolName)
	assert.Equal(t, "weather", retrieved.Arguments["query"])
}

func TestToolCompletedDataHelpers(t *testing.T) {
	event, err := NewToolCompletedEvent("run-1", ToolCompletedData{
		ToolName:   "web_search",
		Success:    true,
		DurationMS: 1250,
	})
	require.NoError(t, err)
	assert.Equal(t, EventTypeToolCompleted, event.Type)
	assert.NotEmpty(t, event.ID)

	retrieved, err := event.GetToolCompletedData()
	require.NoError(t, err)
	assert.True(t, retrieved.Success)
	assert.Equal(t, int64(1250), retrieved.DurationMS)
}

func TestGetDataFromEmptyPayload(t *testing.T) {
	event := &AgentEvent{Type: EventTypeAgentStarted}

	data, err := event.GetAgentStartedData()
	require.NoError(t, err)
	assert.Empty(t, data.AgentName)
}

func TestConstructorsAssignRunAndType(t *testing.T) {
	started, err := NewAgentStartedEvent("run-9", AgentStartedData{AgentName: "triage"})
	require.NoError(t, err)
	thinking, err := NewAgentThinkingEvent("run-9", AgentThinkingData{Thought: "plan", Step: 1})
	require.NoError(t, err)
	completed, err := NewAgentCompletedEvent("run-9", AgentCompletedData{Result: "done"})
	require.NoError(t, err)

	for _, ev := range []*AgentEvent{started, thinking, completed} {
		assert.Equal(t, "run-9", ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.NotEqual(t, started.ID, thinking.ID)
	assert.True(t, strings.HasPrefix(NewRunID(), "run-"))
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name     string
		event    *AgentEvent
		rule     PayloadRule
		problems int
	}{
		{
			name:  "zero rule accepts anything",
			event: &AgentEvent{Type: EventTypeToolExecuting},
			rule:  PayloadRule{},
		},
		{
			name:     "typed tool_executing without tool_name",
			event:    &AgentEvent{Type: EventTypeToolExecuting, Payload: map[string]interface{}{}},
			rule:     PayloadRule{Typed: true},
			problems: 1,
		},
		{
			name: "typed tool_executing with tool_name",
			event: &AgentEvent{Type: EventTypeToolExecuting, Payload: map[string]interface{}{
				"tool_name": "search",
			}},
			rule: PayloadRule{Typed: true},
		},
		{
			name: "required keys missing",
			event: &AgentEvent{Type: EventTypeAgentThinking, Payload: map[string]interface{}{
				"thought": "x",
			}},
			rule:     PayloadRule{Required: []string{"thought", "run_id", "user_id"}},
			problems: 2,
		},
		{
			name:  "typed ignored for custom type",
			event: &AgentEvent{Type: EventType("agent_error")},
			rule:  PayloadRule{Typed: true},
		},
		{
			name: "negative duration rejected",
			event: &AgentEvent{Type: EventTypeToolCompleted, Payload: map[string]interface{}{
				"tool_name":   "search",
				"duration_ms": -5,
			}},
			rule:     PayloadRule{Typed: true},
			problems: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.event, tt.rule)
			if tt.problems == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			var perr *PayloadError
			require.ErrorAs(t, err, &perr)
			assert.Len(t, perr.Problems, tt.problems)
			assert.Equal(t, tt.event.Type, perr.EventType)
		})
	}
}

func TestValidatePayloadReportsJSONFieldNames(t *testing.T) {
	err := ValidatePayload(&AgentEvent{Type: EventTypeAgentStarted}, PayloadRule{Typed: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_name failed required")
}
