package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
)

var (
	// ErrMissingRunID is returned when an event carries no run identifier
	ErrMissingRunID = errors.New("event has no run_id")
	// ErrUnknownRun is returned when a run ID is neither active nor finished
	ErrUnknownRun = errors.New("unknown run")
)

// runState is the monitor's bookkeeping for one run. Each run owns its own
// validator; validators are never shared between run IDs.
type runState struct {
	id        string
	validator *sequence.Validator
	startedAt time.Time

	// guarded by Monitor.mu
	finishedAt    time.Time
	reason        string
	payloadErrors int
	stallReported bool
}

// Monitor routes events to a per-run sequence validator keyed by run ID.
// It keeps active runs until they finish and a sliding window of finished runs.
type Monitor struct {
	mu sync.RWMutex

	cfg Config

	// active holds runs still receiving events
	active map[string]*runState
	// finished holds recently finished runs, oldest first (bounded by WindowSize)
	finished []*runState
	// finishedByID indexes finished
	finishedByID map[string]*runState
}

// NewMonitor creates a new run monitor
func NewMonitor(cfg *Config) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := cfg.withDefaults()

	return &Monitor{
		cfg:          c,
		active:       make(map[string]*runState),
		finished:     make([]*runState, 0, c.WindowSize),
		finishedByID: make(map[string]*runState),
	}
}

// Graph returns the dependency graph runs are validated against
func (m *Monitor) Graph() *sequence.Graph {
	return m.cfg.Graph
}

// Observe validates one event against its run's validator, creating the run
// on first sight. Domain violations are reported in the Outcome; the returned
// error is non-nil only for unusable input (no run ID, undeclared type).
func (m *Monitor) Observe(ctx context.Context, event *events.AgentEvent) (Outcome, error) {
	if event == nil {
		return Outcome{}, fmt.Errorf("event is nil")
	}
	if event.RunID == "" {
		return Outcome{}, ErrMissingRunID
	}
	if !m.cfg.Graph.Has(event.Type) {
		return Outcome{}, fmt.Errorf("run %s: %w: %q", event.RunID, sequence.ErrUnknownEventType, event.Type)
	}
	// Stamp a copy so observers see the time the validator used
	if event.Timestamp.IsZero() {
		stamped := *event
		stamped.Timestamp = m.cfg.Now()
		event = &stamped
	}

	run, late := m.getOrStartRun(event.RunID)

	outcome := Outcome{
		RunID: run.id,
		Event: event,
		Late:  late,
	}

	if rule, ok := m.cfg.PayloadRules[event.Type]; ok {
		if err := events.ValidatePayload(event, rule); err != nil {
			outcome.PayloadErr = err
			m.mu.Lock()
			run.payloadErrors++
			m.mu.Unlock()
			m.cfg.Logger.Warn("payload check failed",
				"run_id", run.id, "event_type", event.Type, "line", event.SourceLine, "error", err)
		}
	}

	accepted, violation, err := run.validator.Validate(event)
	if err != nil {
		return Outcome{}, fmt.Errorf("run %s: %w", run.id, err)
	}
	outcome.Accepted = accepted
	outcome.Violation = violation
	outcome.Summary = run.validator.CompletionStatus()

	if violation != nil {
		m.cfg.Logger.Warn("sequence violation",
			"run_id", run.id,
			"event_type", violation.EventType,
			"kind", violation.Kind,
			"line", event.SourceLine,
			"detail", violation.Message())
	} else {
		m.cfg.Logger.Debug("event accepted",
			"run_id", run.id, "event_type", event.Type,
			"completed", outcome.Summary.CompletedEvents, "total", outcome.Summary.TotalEvents)
		m.mu.Lock()
		run.stallReported = false
		m.mu.Unlock()
	}

	m.notifyEvent(ctx, outcome)

	if m.cfg.FinishOnComplete && outcome.Summary.IsComplete && !late {
		if _, err := m.finishRun(ctx, run.id, ReasonComplete); err != nil && !errors.Is(err, ErrUnknownRun) {
			return outcome, err
		}
	}

	return outcome, nil
}

// getOrStartRun returns the run for id. Events for a finished run that is
// still in the window go to that run's validator and are flagged late.
func (m *Monitor) getOrStartRun(id string) (*runState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run, ok := m.active[id]; ok {
		return run, false
	}
	if run, ok := m.finishedByID[id]; ok {
		return run, true
	}

	run := &runState{
		id:        id,
		validator: sequence.NewValidator(m.cfg.Graph, sequence.WithClock(m.cfg.Now)),
		startedAt: m.cfg.Now(),
	}
	m.active[id] = run
	m.cfg.Logger.Debug("run started", "run_id", id)
	return run, false
}

// EndRun finishes an active run and returns its final report
func (m *Monitor) EndRun(ctx context.Context, runID string) (*RunReport, error) {
	return m.finishRun(ctx, runID, ReasonEnded)
}

// EndAll finishes every active run, in run ID order
func (m *Monitor) EndAll(ctx context.Context) []*RunReport {
	ids := m.ActiveRuns()
	reports := make([]*RunReport, 0, len(ids))
	for _, id := range ids {
		report, err := m.finishRun(ctx, id, ReasonEnded)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

func (m *Monitor) finishRun(ctx context.Context, runID, reason string) (*RunReport, error) {
	m.mu.Lock()
	run, ok := m.active[runID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	delete(m.active, runID)
	run.finishedAt = m.cfg.Now()
	run.reason = reason

	m.finished = append(m.finished, run)
	m.finishedByID[runID] = run
	// Enforce sliding window
	if len(m.finished) > m.cfg.WindowSize {
		evicted := m.finished[:len(m.finished)-m.cfg.WindowSize]
		for _, old := range evicted {
			delete(m.finishedByID, old.id)
		}
		m.finished = append([]*runState(nil), m.finished[len(m.finished)-m.cfg.WindowSize:]...)
	}
	report := m.reportLocked(run)
	m.mu.Unlock()

	m.cfg.Logger.Info("run finished",
		"run_id", runID,
		"reason", reason,
		"complete", report.Summary.IsComplete,
		"violations", report.Summary.ViolationsCount,
		"missing", report.Missing)

	for _, obs := range m.cfg.Observers {
		if err := obs.ObserveRunFinished(ctx, *report); err != nil {
			m.cfg.Logger.Warn("observer failed on run finish", "run_id", runID, "error", err)
		}
	}
	return report, nil
}

func (m *Monitor) notifyEvent(ctx context.Context, outcome Outcome) {
	for _, obs := range m.cfg.Observers {
		if err := obs.ObserveEvent(ctx, outcome); err != nil {
			m.cfg.Logger.Warn("observer failed on event", "run_id", outcome.RunID, "error", err)
		}
	}
}

// reportLocked builds a report for run. Caller must hold m.mu.
func (m *Monitor) reportLocked(run *runState) *RunReport {
	v := run.validator
	return &RunReport{
		RunID:         run.id,
		StartedAt:     run.startedAt,
		FinishedAt:    run.finishedAt,
		Reason:        run.reason,
		Summary:       v.CompletionStatus(),
		Occurred:      v.Occurred(),
		Missing:       v.MissingEvents(),
		Violations:    v.Violations(),
		History:       v.History(),
		PayloadErrors: run.payloadErrors,
		Stalled:       run.stallReported,
	}
}

// Run returns a report for an active or recently finished run
func (m *Monitor) Run(runID string) (*RunReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if run, ok := m.active[runID]; ok {
		return m.reportLocked(run), true
	}
	if run, ok := m.finishedByID[runID]; ok {
		return m.reportLocked(run), true
	}
	return nil, false
}

// ActiveRuns returns the IDs of runs still receiving events, sorted
func (m *Monitor) ActiveRuns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FinishedRuns returns reports for the finished runs in the window, oldest first
func (m *Monitor) FinishedRuns() []*RunReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*RunReport, len(m.finished))
	for i, run := range m.finished {
		result[i] = m.reportLocked(run)
	}
	return result
}

// StalledRuns returns active runs whose last accepted event (or start, if
// none was accepted) is older than the stall timeout at now.
// It returns nil when stall detection is disabled.
func (m *Monitor) StalledRuns(now time.Time) []StallInfo {
	if m.cfg.StallTimeout <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var stalled []StallInfo
	for _, run := range m.active {
		last, ok := run.validator.LastEventTime()
		if !ok {
			last = run.startedAt
		}
		idle := now.Sub(last)
		if idle < m.cfg.StallTimeout {
			continue
		}
		stalled = append(stalled, StallInfo{
			RunID:        run.id,
			LastEventAt:  last,
			Idle:         idle,
			NextExpected: run.validator.ExpectedNextEvents(),
		})
	}
	sort.Slice(stalled, func(i, j int) bool { return stalled[i].RunID < stalled[j].RunID })
	return stalled
}

// CheckStalls reports runs that became stalled since the last check. A run is
// reported once until it accepts another event. When finish is true, stalled
// runs are also moved to the finished window with reason "stalled".
func (m *Monitor) CheckStalls(ctx context.Context, now time.Time, finish bool) []StallInfo {
	var fresh []StallInfo
	for _, info := range m.StalledRuns(now) {
		m.mu.Lock()
		run, ok := m.active[info.RunID]
		if !ok || run.stallReported {
			m.mu.Unlock()
			continue
		}
		run.stallReported = true
		m.mu.Unlock()

		fresh = append(fresh, info)
		m.cfg.Logger.Warn("run stalled",
			"run_id", info.RunID,
			"idle", info.Idle.Round(time.Millisecond),
			"next_expected", info.NextExpected)

		if finish {
			if _, err := m.finishRun(ctx, info.RunID, ReasonStalled); err != nil {
				m.cfg.Logger.Debug("stalled run already finished", "run_id", info.RunID, "error", err)
			}
		}
	}
	return fresh
}

// Clear resets the monitor state (useful for testing)
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[string]*runState)
	m.finished = make([]*runState, 0, m.cfg.WindowSize)
	m.finishedByID = make(map[string]*runState)
}

// Logger returns the monitor's logger
func (m *Monitor) Logger() *slog.Logger {
	return m.cfg.Logger
}
