package watchdog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingObserver captures everything the monitor reports
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
	finished []RunReport
	failWith error
}

func (r *recordingObserver) ObserveEvent(_ context.Context, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return r.failWith
}

func (r *recordingObserver) ObserveRunFinished(_ context.Context, report RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, report)
	return r.failWith
}

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func event(runID string, et events.EventType, ts time.Time) *events.AgentEvent {
	return &events.AgentEvent{RunID: runID, Type: et, Timestamp: ts}
}

func TestNewMonitor(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *Config
		wantWindow int
	}{
		{name: "default config", cfg: nil, wantWindow: 100},
		{name: "custom window size", cfg: &Config{WindowSize: 50}, wantWindow: 50},
		{name: "zero window size uses default", cfg: &Config{WindowSize: 0}, wantWindow: 100},
		{name: "negative window size uses default", cfg: &Config{WindowSize: -10}, wantWindow: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(tt.cfg)
			require.NotNil(t, m)
			assert.Equal(t, tt.wantWindow, m.cfg.WindowSize)
			assert.Equal(t, 5, m.Graph().Len())
			assert.Empty(t, m.ActiveRuns())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{WindowSize: -1}).Validate())
	assert.Error(t, (&Config{StallTimeout: -time.Second}).Validate())

	cfg := DefaultConfig()
	cfg.PayloadRules = map[events.EventType]events.PayloadRule{"nope": {Typed: true}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sequence.ErrUnknownEventType))
}

func TestMonitorCanonicalRun(t *testing.T) {
	obs := &recordingObserver{}
	m := NewMonitor(&Config{Logger: discardLogger(), Observers: []Observer{obs}})
	ctx := context.Background()
	base := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

	for i, et := range events.CanonicalEventTypes() {
		outcome, err := m.Observe(ctx, event("run-1", et, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.True(t, outcome.Accepted)
		assert.Equal(t, i+1, outcome.Summary.CompletedEvents)
	}

	assert.Equal(t, []string{"run-1"}, m.ActiveRuns())

	report, err := m.EndRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Equal(t, ReasonEnded, report.Reason)
	assert.Len(t, report.History, 5)
	assert.Empty(t, report.Missing)

	assert.Empty(t, m.ActiveRuns())
	require.Len(t, obs.outcomes, 5)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, "run-1", obs.finished[0].RunID)

	_, err = m.EndRun(ctx, "run-1")
	assert.True(t, errors.Is(err, ErrUnknownRun))
}

func TestMonitorRunsAreIsolated(t *testing.T) {
	m := NewMonitor(&Config{Logger: discardLogger()})
	ctx := context.Background()

	_, err := m.Observe(ctx, event("a", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)

	// Same event type, different run: not a duplicate
	outcome, err := m.Observe(ctx, event("b", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)

	outcome, err = m.Observe(ctx, event("a", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, sequence.ViolationDuplicate, outcome.Violation.Kind)

	a, ok := m.Run("a")
	require.True(t, ok)
	b, ok := m.Run("b")
	require.True(t, ok)
	assert.Len(t, a.Violations, 1)
	assert.Empty(t, b.Violations)
}

func TestMonitorConcurrentRuns(t *testing.T) {
	m := NewMonitor(&Config{Logger: discardLogger()})
	ctx := context.Background()
	base := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

	const runs = 20
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runID := fmt.Sprintf("run-%02d", i)
			for j, et := range events.CanonicalEventTypes() {
				_, err := m.Observe(ctx, event(runID, et, base.Add(time.Duration(j)*time.Second)))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	reports := m.EndAll(ctx)
	require.Len(t, reports, runs)
	for _, r := range reports {
		assert.True(t, r.Passed(), "run %s did not pass", r.RunID)
	}
	assert.Equal(t, "run-00", reports[0].RunID)
}

func TestMonitorInputErrors(t *testing.T) {
	m := NewMonitor(&Config{Logger: discardLogger()})
	ctx := context.Background()

	_, err := m.Observe(ctx, nil)
	assert.Error(t, err)

	_, err = m.Observe(ctx, event("", events.EventTypeAgentStarted, time.Time{}))
	assert.True(t, errors.Is(err, ErrMissingRunID))

	_, err = m.Observe(ctx, event("run-1", "agent_exploded", time.Time{}))
	assert.True(t, errors.Is(err, sequence.ErrUnknownEventType))
	assert.Empty(t, m.ActiveRuns(), "undeclared types must not start a run")
}

func TestMonitorFinishOnComplete(t *testing.T) {
	obs := &recordingObserver{}
	m := NewMonitor(&Config{Logger: discardLogger(), FinishOnComplete: true, Observers: []Observer{obs}})
	ctx := context.Background()

	for _, et := range events.CanonicalEventTypes() {
		_, err := m.Observe(ctx, event("run-1", et, time.Time{}))
		require.NoError(t, err)
	}
	assert.Empty(t, m.ActiveRuns())
	require.Len(t, obs.finished, 1)
	assert.Equal(t, ReasonComplete, obs.finished[0].Reason)

	// A late duplicate still goes to the same run's validator
	outcome, err := m.Observe(ctx, event("run-1", events.EventTypeAgentCompleted, time.Time{}))
	require.NoError(t, err)
	assert.True(t, outcome.Late)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, sequence.ViolationDuplicate, outcome.Violation.Kind)
	assert.Empty(t, m.ActiveRuns())
	assert.Len(t, obs.finished, 1, "late events do not finish a run twice")

	report, ok := m.Run("run-1")
	require.True(t, ok)
	assert.Equal(t, 1, report.Summary.ViolationsCount)
}

func TestMonitorSlidingWindow(t *testing.T) {
	m := NewMonitor(&Config{Logger: discardLogger(), WindowSize: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run-%d", i)
		_, err := m.Observe(ctx, event(id, events.EventTypeAgentStarted, time.Time{}))
		require.NoError(t, err)
		_, err = m.EndRun(ctx, id)
		require.NoError(t, err)
	}

	finished := m.FinishedRuns()
	require.Len(t, finished, 3)
	assert.Equal(t, "run-2", finished[0].RunID)
	assert.Equal(t, "run-4", finished[2].RunID)

	_, ok := m.Run("run-0")
	assert.False(t, ok)
	_, ok = m.Run("run-3")
	assert.True(t, ok)
}

func TestMonitorPayloadRules(t *testing.T) {
	m := NewMonitor(&Config{
		Logger: discardLogger(),
		PayloadRules: map[events.EventType]events.PayloadRule{
			events.EventTypeAgentStarted: {Required: []string{"agent_name"}},
		},
	})
	ctx := context.Background()

	outcome, err := m.Observe(ctx, event("run-1", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	assert.True(t, outcome.Accepted, "payload problems do not block sequence acceptance")
	require.Error(t, outcome.PayloadErr)
	assert.True(t, errors.Is(outcome.PayloadErr, events.ErrInvalidPayload))

	report, ok := m.Run("run-1")
	require.True(t, ok)
	assert.Equal(t, 1, report.PayloadErrors)
	assert.False(t, report.Passed())
}

func TestMonitorStallDetection(t *testing.T) {
	clock := newTestClock()
	m := NewMonitor(&Config{
		Logger:       discardLogger(),
		StallTimeout: 30 * time.Second,
		Now:          clock.Now,
	})
	ctx := context.Background()

	_, err := m.Observe(ctx, event("slow", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	_, err = m.Observe(ctx, event("fast", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	_, err = m.Observe(ctx, event("fast", events.EventTypeAgentThinking, time.Time{}))
	require.NoError(t, err)
	assert.Empty(t, m.StalledRuns(clock.Now()))

	clock.Advance(15 * time.Second)
	stalled := m.StalledRuns(clock.Now())
	require.Len(t, stalled, 1)
	assert.Equal(t, "slow", stalled[0].RunID)
	assert.Equal(t, 35*time.Second, stalled[0].Idle)
	assert.Equal(t, []events.EventType{events.EventTypeAgentThinking}, stalled[0].NextExpected)

	fresh := m.CheckStalls(ctx, clock.Now(), false)
	require.Len(t, fresh, 1)
	assert.Empty(t, m.CheckStalls(ctx, clock.Now(), false), "stalls are reported once")

	report, ok := m.Run("slow")
	require.True(t, ok)
	assert.True(t, report.Stalled)

	// Progress clears the stall flag; finishing removes the run
	clock.Advance(time.Second)
	_, err = m.Observe(ctx, event("slow", events.EventTypeAgentThinking, time.Time{}))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	fresh = m.CheckStalls(ctx, clock.Now(), true)
	assert.Len(t, fresh, 2)
	assert.Empty(t, m.ActiveRuns())
	for _, r := range m.FinishedRuns() {
		assert.Equal(t, ReasonStalled, r.Reason)
	}
}

func TestMonitorStallDetectionDisabled(t *testing.T) {
	m := NewMonitor(&Config{Logger: discardLogger()})
	_, err := m.Observe(context.Background(), event("r", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	assert.Nil(t, m.StalledRuns(time.Now().Add(24*time.Hour)))
}

func TestMonitorObserverErrorsDoNotChangeOutcome(t *testing.T) {
	obs := &recordingObserver{failWith: errors.New("disk full")}
	m := NewMonitor(&Config{Logger: discardLogger(), Observers: []Observer{obs}})

	outcome, err := m.Observe(context.Background(), event("r", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Len(t, obs.outcomes, 1)
}

func TestMonitorClear(t *testing.T) {
	m := NewMonitor(&Config{Logger: discardLogger()})
	ctx := context.Background()
	_, err := m.Observe(ctx, event("r", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	_, err = m.Observe(ctx, event("s", events.EventTypeAgentStarted, time.Time{}))
	require.NoError(t, err)
	_, err = m.EndRun(ctx, "s")
	require.NoError(t, err)

	m.Clear()
	assert.Empty(t, m.ActiveRuns())
	assert.Empty(t, m.FinishedRuns())
}
