package sequence

import (
	"fmt"
	"sync"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// Validator checks the event stream of a single run against a dependency graph.
//
// Every call is an atomic check-and-record: an accepted event is appended to
// the history and marked as occurred; a rejected event is appended to the
// violations and changes nothing else. Domain violations are returned as data.
// Only configuration mistakes (an event type the graph does not declare) are
// returned as errors.
//
// A Validator holds the state of exactly one run. Use one instance per run and
// call Reset (or build a new instance) before reusing it for another run.
// Calls are serialized by an internal mutex, but the order in which concurrent
// callers are served is unspecified, so a run's events should be fed by a
// single writer.
type Validator struct {
	mu sync.Mutex

	graph *Graph
	now   func() time.Time

	occurred   map[events.EventType]bool
	history    []EventRecord
	violations []Violation
	// firstArrival remembers where each event type first appeared in history
	firstArrival map[events.EventType]int
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces the clock used for default timestamps and violation
// timestamps. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator creates a validator for one run over graph.
// It panics if graph is nil, since a validator without a graph is a
// programming error that no caller can recover from.
func NewValidator(graph *Graph, opts ...Option) *Validator {
	if graph == nil {
		panic("sequence: NewValidator called with nil graph")
	}
	v := &Validator{
		graph: graph,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.resetLocked()
	return v
}

// Graph returns the dependency graph the validator was built with.
func (v *Validator) Graph() *Graph {
	return v.graph
}

// Validate checks an input record. It is shorthand for ValidateEventOrder
// with the record's type, payload and timestamp.
func (v *Validator) Validate(event *events.AgentEvent) (bool, *Violation, error) {
	if event == nil {
		return false, nil, fmt.Errorf("event is nil")
	}
	return v.ValidateEventOrder(event.Type, event.Payload, event.Timestamp)
}

// ValidateEventOrder checks one event and records the outcome.
//
// A zero ts means "now". Checks run in this order and the first failure wins:
//
//  1. DUPLICATE: the type already occurred (skipped for repeatable types)
//  2. MISSING_DEPENDENCY: some dependencies have not occurred; the violation
//     context lists all of them
//  3. TEMPORAL_INCONSISTENCY: ts is before the last accepted event's timestamp
//
// Equal timestamps are accepted. The error is non-nil only when eventType is
// not declared in the graph; in that case no state is touched.
func (v *Validator) ValidateEventOrder(eventType events.EventType, payload map[string]interface{}, ts time.Time) (bool, *Violation, error) {
	if !v.graph.Has(eventType) {
		return false, nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if ts.IsZero() {
		ts = v.now()
	}

	if violation := v.check(eventType, ts); violation != nil {
		v.violations = append(v.violations, *violation)
		return false, violation, nil
	}

	if !v.occurred[eventType] {
		v.occurred[eventType] = true
		v.firstArrival[eventType] = len(v.history)
	}
	v.history = append(v.history, EventRecord{
		EventType:    eventType,
		Payload:      payload,
		Timestamp:    ts,
		ArrivalIndex: len(v.history),
	})
	return true, nil, nil
}

// check returns the first failing check, or nil. Caller must hold v.mu.
func (v *Validator) check(eventType events.EventType, ts time.Time) *Violation {
	if v.occurred[eventType] && !v.graph.Repeatable(eventType) {
		return v.violation(eventType, ViolationDuplicate, map[string]interface{}{
			ContextFirstArrivalIndex: v.firstArrival[eventType],
		})
	}

	if missing := v.graph.missing(eventType, v.occurred); len(missing) > 0 {
		return v.violation(eventType, ViolationMissingDependency, map[string]interface{}{
			ContextMissing: missing,
		})
	}

	if n := len(v.history); n > 0 {
		last := v.history[n-1]
		if ts.Before(last.Timestamp) {
			return v.violation(eventType, ViolationTemporalInconsistency, map[string]interface{}{
				ContextEventTimestamp: ts,
				ContextLastTimestamp:  last.Timestamp,
				ContextLastEventType:  last.EventType,
			})
		}
	}

	return nil
}

func (v *Validator) violation(eventType events.EventType, kind ViolationKind, context map[string]interface{}) *Violation {
	return &Violation{
		EventType: eventType,
		Kind:      kind,
		Timestamp: v.now(),
		Context:   context,
	}
}

// ExpectedNextEvents returns the frontier: every type that has not occurred
// and whose dependencies have all occurred, in declaration order.
// For a linear chain this holds at most one type.
func (v *Validator) ExpectedNextEvents() []events.EventType {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph.frontier(v.occurred)
}

// CompletionStatus summarizes progress toward the full declared set.
// It is a pure query.
func (v *Validator) CompletionStatus() Summary {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := v.graph.Len()
	completed := len(v.occurred)
	return Summary{
		TotalEvents:          total,
		CompletedEvents:      completed,
		CompletionPercentage: float64(completed) / float64(total) * 100,
		IsComplete:           completed == total,
		NextExpected:         v.graph.frontier(v.occurred),
		ViolationsCount:      len(v.violations),
	}
}

// IsComplete reports whether every declared type has occurred.
func (v *Validator) IsComplete() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.occurred) == v.graph.Len()
}

// Reset clears occurred, history and violations, keeping the graph.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked()
}

func (v *Validator) resetLocked() {
	v.occurred = make(map[events.EventType]bool, v.graph.Len())
	v.firstArrival = make(map[events.EventType]int, v.graph.Len())
	v.history = nil
	v.violations = nil
}

// Occurred returns the types that have occurred, in declaration order.
func (v *Validator) Occurred() []events.EventType {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]events.EventType, 0, len(v.occurred))
	for _, t := range v.graph.declared {
		if v.occurred[t] {
			out = append(out, t)
		}
	}
	return out
}

// HasOccurred reports whether t has been accepted in this run.
func (v *Validator) HasOccurred(t events.EventType) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.occurred[t]
}

// MissingEvents returns the declared types that have not occurred, in declaration order.
func (v *Validator) MissingEvents() []events.EventType {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []events.EventType
	for _, t := range v.graph.declared {
		if !v.occurred[t] {
			out = append(out, t)
		}
	}
	return out
}

// History returns a copy of the accepted events in arrival order.
func (v *Validator) History() []EventRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]EventRecord(nil), v.history...)
}

// Violations returns a copy of the rejected attempts in arrival order.
func (v *Validator) Violations() []Violation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Violation(nil), v.violations...)
}

// LastEventTime returns the timestamp of the last accepted event.
// Callers use it to decide externally whether a run has stalled.
func (v *Validator) LastEventTime() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.history) == 0 {
		return time.Time{}, false
	}
	return v.history[len(v.history)-1].Timestamp, true
}
