package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "nested", "eventseq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var base = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func TestStoreAndGetRunEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started, err := events.NewAgentStartedEvent("run-1", events.AgentStartedData{AgentName: "triage"})
	require.NoError(t, err)
	started.Timestamp = base
	started.SourceLine = 3

	thinking := &events.AgentEvent{
		RunID:     "run-1",
		Type:      events.EventTypeAgentThinking,
		Timestamp: base.Add(500 * time.Millisecond),
	}
	other := &events.AgentEvent{RunID: "run-2", Type: events.EventTypeAgentStarted, Timestamp: base}

	for _, ev := range []*events.AgentEvent{started, thinking, other} {
		require.NoError(t, store.StoreEvent(ctx, ev))
	}
	assert.NotEmpty(t, thinking.ID, "missing IDs are assigned")

	got, err := store.GetRunEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, started.ID, got[0].ID)
	assert.Equal(t, events.EventTypeAgentStarted, got[0].Type)
	assert.True(t, base.Equal(got[0].Timestamp))
	assert.Equal(t, 3, got[0].SourceLine)
	data, err := got[0].GetAgentStartedData()
	require.NoError(t, err)
	assert.Equal(t, "triage", data.AgentName)

	assert.Equal(t, events.EventTypeAgentThinking, got[1].Type)
	assert.True(t, base.Add(500*time.Millisecond).Equal(got[1].Timestamp))
	assert.Nil(t, got[1].Payload)

	none, err := store.GetRunEvents(ctx, "run-404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreEventRequiresRunID(t *testing.T) {
	store := newTestStore(t)
	err := store.StoreEvent(context.Background(), &events.AgentEvent{Type: events.EventTypeAgentStarted})
	assert.Error(t, err)
}

func TestGetEventsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, et := range events.CanonicalEventTypes() {
		require.NoError(t, store.StoreEvent(ctx, &events.AgentEvent{
			RunID:     "run-1",
			Type:      et,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.StoreEvent(ctx, &events.AgentEvent{RunID: "run-2", Type: events.EventTypeAgentStarted, Timestamp: base}))

	tests := []struct {
		name   string
		filter events.EventFilter
		want   []events.EventType
	}{
		{
			name:   "by type",
			filter: events.EventFilter{Type: events.EventTypeAgentStarted},
			want:   []events.EventType{events.EventTypeAgentStarted, events.EventTypeAgentStarted},
		},
		{
			name:   "by run after time",
			filter: events.EventFilter{RunID: "run-1", AfterTime: base.Add(2 * time.Second)},
			want:   []events.EventType{events.EventTypeAgentCompleted, events.EventTypeToolCompleted},
		},
		{
			name:   "limit, most recent first",
			filter: events.EventFilter{RunID: "run-1", Limit: 1},
			want:   []events.EventType{events.EventTypeAgentCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetEvents(ctx, tt.filter)
			require.NoError(t, err)
			types := make([]events.EventType, len(got))
			for i, ev := range got {
				types[i] = ev.Type
			}
			assert.Equal(t, tt.want, types)
		})
	}
}

func TestViolations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := sequence.NewValidator(sequence.CanonicalGraph(), sequence.WithClock(func() time.Time { return base }))
	_, missing, err := v.ValidateEventOrder(events.EventTypeToolCompleted, nil, base)
	require.NoError(t, err)
	require.NotNil(t, missing)

	_, _, err = v.ValidateEventOrder(events.EventTypeAgentStarted, nil, base.Add(time.Second))
	require.NoError(t, err)
	_, temporal, err := v.ValidateEventOrder(events.EventTypeAgentThinking, nil, base)
	require.NoError(t, err)
	require.NotNil(t, temporal)

	require.NoError(t, store.RecordViolation(ctx, "run-1", *missing))
	require.NoError(t, store.RecordViolation(ctx, "run-1", *temporal))

	got, err := store.GetViolations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, sequence.ViolationMissingDependency, got[0].Kind)
	assert.Equal(t, events.EventTypeToolCompleted, got[0].EventType)
	assert.Equal(t, []events.EventType{events.EventTypeToolExecuting}, got[0].Missing())
	assert.True(t, base.Equal(got[0].Timestamp))

	assert.Equal(t, sequence.ViolationTemporalInconsistency, got[1].Kind)
	assert.Equal(t, "agent_started", got[1].Context[sequence.ContextLastEventType])

	// The violation alone creates the run row
	run, err := store.GetRunSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, run.Finished())
}

func TestRunSummaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetRunSummary(ctx, "missing")
	assert.True(t, IsNotFound(err))

	report := watchdog.RunReport{
		RunID:      "run-1",
		StartedAt:  base,
		FinishedAt: base.Add(time.Minute),
		Reason:     watchdog.ReasonStalled,
		Summary: sequence.Summary{
			TotalEvents:          5,
			CompletedEvents:      2,
			CompletionPercentage: 40,
			NextExpected:         []events.EventType{events.EventTypeToolExecuting},
			ViolationsCount:      1,
		},
		PayloadErrors: 2,
		Stalled:       true,
	}
	require.NoError(t, store.SaveRunSummary(ctx, report))

	// Saving again replaces the summary
	report.Reason = watchdog.ReasonEnded
	require.NoError(t, store.SaveRunSummary(ctx, report))

	got, err := store.GetRunSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.Finished())
	assert.Equal(t, watchdog.ReasonEnded, got.Reason)
	assert.Equal(t, report.Summary, got.Summary)
	assert.Equal(t, 2, got.PayloadErrors)
	assert.True(t, got.Stalled)
	assert.True(t, base.Equal(got.StartedAt))

	require.NoError(t, store.SaveRunSummary(ctx, watchdog.RunReport{
		RunID:     "run-2",
		StartedAt: base.Add(time.Hour),
		Summary:   sequence.Summary{TotalEvents: 5},
	}))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, []events.EventType{}, runs[0].Summary.NextExpected)

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStoreAsMonitorObserver(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	clock := base
	m := watchdog.NewMonitor(&watchdog.Config{
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observers:        []watchdog.Observer{store},
		FinishOnComplete: true,
		Now:              func() time.Time { return clock },
	})

	observe := func(et events.EventType) {
		clock = clock.Add(time.Second)
		_, err := m.Observe(ctx, &events.AgentEvent{RunID: "run-1", Type: et})
		require.NoError(t, err)
	}
	observe(events.EventTypeAgentStarted)
	observe(events.EventTypeToolExecuting) // missing agent_thinking
	observe(events.EventTypeAgentThinking)
	observe(events.EventTypeToolExecuting)
	observe(events.EventTypeToolCompleted)
	observe(events.EventTypeAgentCompleted)

	logged, err := store.GetRunEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, logged, 6, "rejected events are logged too")
	assert.True(t, base.Add(time.Second).Equal(logged[0].Timestamp), "zero timestamps are stored as observed")

	violations, err := store.GetViolations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, sequence.ViolationMissingDependency, violations[0].Kind)

	run, err := store.GetRunSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.Summary.IsComplete)
	assert.Equal(t, watchdog.ReasonComplete, run.Reason)
	assert.Equal(t, 1, run.Summary.ViolationsCount)

	// Re-validating the stored log reproduces the outcome
	v := sequence.NewValidator(sequence.CanonicalGraph())
	for _, ev := range logged {
		_, _, err := v.Validate(ev)
		require.NoError(t, err)
	}
	assert.Equal(t, run.Summary, v.CompletionStatus())
}
