package events_test

import (
	"fmt"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// ExampleParseRecord demonstrates decoding an input record with a numeric timestamp.
func ExampleParseRecord() {
	event, err := events.ParseRecord([]byte(`{"type":"tool_executing","run_id":"run-1","payload":{"tool_name":"search"},"timestamp":1760529600}`))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(event.Type, event.RunID, event.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	// Output: tool_executing run-1 2025-10-15T12:00:00Z
}

// ExampleAgentEvent_SetToolExecutingData demonstrates type-safe payload handling.
func ExampleAgentEvent_SetToolExecutingData() {
	event := events.NewEvent(events.EventTypeToolExecuting, "run-1", nil)
	_ = event.SetToolExecutingData(events.ToolExecutingData{ToolName: "search"}) // Intentionally ignore error in example

	retrieved, _ := event.GetToolExecutingData()
	fmt.Printf("Tool: %s\n", retrieved.ToolName)
	// Output: Tool: search
}
