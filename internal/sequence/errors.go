package sequence

import "errors"

// Configuration errors. These indicate a programmer or deployment mistake and
// are returned as errors, never recorded as violations.
var (
	// ErrUnknownEventType is returned when an event type is not declared in the graph
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrUndeclaredDependency is returned when the dependency map names an undeclared event type
	ErrUndeclaredDependency = errors.New("dependency references undeclared event type")
	// ErrCyclicDependency is returned when the dependency map contains a cycle
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrEmptyGraph is returned when no event types are declared
	ErrEmptyGraph = errors.New("no event types declared")
	// ErrDuplicateEventType is returned when an event type is declared more than once
	ErrDuplicateEventType = errors.New("event type declared more than once")
)
