package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
	"github.com/netra-systems/zen-sub295/internal/storage/sqlite"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

// seededStore holds one finished run with a violation and one active run
func seededStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	started := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRunSummary(ctx, watchdog.RunReport{
		RunID:      "done",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Reason:     watchdog.ReasonEnded,
		Summary: sequence.Summary{
			TotalEvents:          5,
			CompletedEvents:      5,
			CompletionPercentage: 100,
			IsComplete:           true,
			ViolationsCount:      1,
		},
	}))
	require.NoError(t, store.RecordViolation(ctx, "done", sequence.Violation{
		EventType: events.EventTypeAgentCompleted,
		Kind:      sequence.ViolationDuplicate,
		Timestamp: started.Add(30 * time.Second),
		Context:   map[string]interface{}{sequence.ContextFirstArrivalIndex: 4},
	}))

	require.NoError(t, store.StoreEvent(ctx,
		events.NewEventAt(events.EventTypeAgentStarted, "live", started.Add(time.Hour), nil)))
	return store
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()

	empty, err := sqlite.New(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer empty.Close()

	var out bytes.Buffer
	require.NoError(t, listRuns(ctx, empty, 10, false, &out))
	assert.Equal(t, "No stored runs\n", out.String())

	store := seededStore(t)

	out.Reset()
	require.NoError(t, listRuns(ctx, store, 10, false, &out))
	assert.Contains(t, out.String(), "done  ended")
	assert.Contains(t, out.String(), "5/5 events, 1 violations")
	assert.Contains(t, out.String(), "live  active")
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))

	out.Reset()
	require.NoError(t, listRuns(ctx, store, 1, false, &out))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	out.Reset()
	require.NoError(t, listRuns(ctx, store, 10, true, &out))
	var runs []sqlite.RunRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs))
	require.Len(t, runs, 2)
	ids := []string{runs[0].RunID, runs[1].RunID}
	assert.ElementsMatch(t, []string{"done", "live"}, ids)
}

func TestShowRun(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	var out bytes.Buffer
	require.NoError(t, showRun(ctx, store, "done", false, &out))
	assert.Contains(t, out.String(), "Run done")
	assert.Contains(t, out.String(), "(ended)")
	assert.Contains(t, out.String(), "Completed:   5/5 (100%)")
	assert.Contains(t, out.String(), "Violations:  1")
	assert.Contains(t, out.String(), "1. DUPLICATE  agent_completed already occurred in this run")

	out.Reset()
	require.NoError(t, showRun(ctx, store, "live", false, &out))
	assert.NotContains(t, out.String(), "Finished:")
	assert.Contains(t, out.String(), "Violations:  0")

	out.Reset()
	require.NoError(t, showRun(ctx, store, "done", true, &out))
	var shown struct {
		Run        sqlite.RunRecord     `json:"run"`
		Violations []sequence.Violation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, "done", shown.Run.RunID)
	assert.True(t, shown.Run.Summary.IsComplete)
	require.Len(t, shown.Violations, 1)
	assert.Equal(t, sequence.ViolationDuplicate, shown.Violations[0].Kind)

	err := showRun(ctx, store, "missing", false, &out)
	require.Error(t, err)
	assert.True(t, sqlite.IsNotFound(err))
}
