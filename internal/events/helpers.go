package events

import (
	"encoding/json"
	"fmt"
)

// AgentStartedData contains structured data for agent_started events.
type AgentStartedData struct {
	AgentName string `json:"agent_name" validate:"required"`
	UserID    string `json:"user_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// AgentThinkingData contains structured data for agent_thinking events.
type AgentThinkingData struct {
	Thought string `json:"thought,omitempty"`
	Step    int    `json:"step,omitempty" validate:"gte=0"`
}

// ToolExecutingData contains structured data for tool_executing events.
type ToolExecutingData struct {
	ToolName  string                 `json:"tool_name" validate:"required"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ToolCompletedData contains structured data for tool_completed events.
type ToolCompletedData struct {
	ToolName   string      `json:"tool_name" validate:"required"`
	Success    bool        `json:"success"`
	Result     interface{} `json:"result,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty" validate:"gte=0"`
}

// AgentCompletedData contains structured data for agent_completed events.
type AgentCompletedData struct {
	AgentName string      `json:"agent_name,omitempty"`
	Result    interface{} `json:"result,omitempty"`
}

// SetAgentStartedData sets the Payload field with AgentStartedData in a type-safe way.
func (e *AgentEvent) SetAgentStartedData(data AgentStartedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AgentStartedData: %w", err)
	}
	e.Payload = dataMap
	return nil
}

// GetAgentStartedData retrieves AgentStartedData from the Payload field.
func (e *AgentEvent) GetAgentStartedData() (*AgentStartedData, error) {
	var data AgentStartedData
	if err := mapToStruct(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AgentStartedData: %w", err)
	}
	return &data, nil
}

// SetAgentThinkingData sets the Payload field with AgentThinkingData in a type-safe way.
func (e *AgentEvent) SetAgentThinkingData(data AgentThinkingData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AgentThinkingData: %w", err)
	}
	e.Payload = dataMap
	return nil
}

// GetAgentThinkingData retrieves AgentThinkingData from the Payload field.
func (e *AgentEvent) GetAgentThinkingData() (*AgentThinkingData, error) {
	var data AgentThinkingData
	if err := mapToStruct(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AgentThinkingData: %w", err)
	}
	return &data, nil
}

// SetToolExecutingData sets the Payload field with ToolExecutingData in a type-safe way.
func (e *AgentEvent) SetToolExecutingData(data ToolExecutingData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ToolExecutingData: %w", err)
	}
	e.Payload = dataMap
	return nil
}

// GetToolExecutingData retrieves ToolExecutingData from the Payload field.
func (e *AgentEvent) GetToolExecutingData() (*ToolExecutingData, error) {
	var data ToolExecutingData
	if err := mapToStruct(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ToolExecutingData: %w", err)
	}
	return &data, nil
}

// SetToolCompletedData sets the Payload field with ToolCompletedData in a type-safe way.
func (e *AgentEvent) SetToolCompletedData(data ToolCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ToolCompletedData: %w", err)
	}
	e.Payload = dataMap
	return nil
}

// GetToolCompletedData retrieves ToolCompletedData from the Payload field.
func (e *AgentEvent) GetToolCompletedData() (*ToolCompletedData, error) {
	var data ToolCompletedData
	if err := mapToStruct(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ToolCompletedData: %w", err)
	}
	return &data, nil
}

// SetAgentCompletedData sets the Payload field with AgentCompletedData in a type-safe way.
func (e *AgentEvent) SetAgentCompletedData(data AgentCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AgentCompletedData: %w", err)
	}
	e.Payload = dataMap
	return nil
}

// GetAgentCompletedData retrieves AgentCompletedData from the Payload field.
func (e *AgentEvent) GetAgentCompletedData() (*AgentCompletedData, error) {
	var data AgentCompletedData
	if err := mapToStruct(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AgentCompletedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
