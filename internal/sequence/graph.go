package sequence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// Graph is an immutable dependency graph over a closed set of event types.
// Each event type maps to the set of event types that must already have
// occurred before it is valid. A Graph is configuration: it is built once and
// shared by any number of validators.
type Graph struct {
	declared   []events.EventType
	index      map[events.EventType]int
	deps       map[events.EventType][]events.EventType
	repeatable map[events.EventType]bool
}

// GraphOption configures optional graph behavior.
type GraphOption func(*graphOptions)

type graphOptions struct {
	repeatable []events.EventType
}

// WithRepeatable marks event types that may occur more than once per run.
// Repeatable types skip the duplicate check but are still subject to the
// dependency and temporal checks.
func WithRepeatable(types ...events.EventType) GraphOption {
	return func(o *graphOptions) {
		o.repeatable = append(o.repeatable, types...)
	}
}

// NewGraph builds a dependency graph. declared fixes the closed event set and
// the order used for reporting. deps may omit event types with no
// dependencies. It fails if the declared set is empty or repeats a type, if
// deps mentions an undeclared type, or if deps contains a cycle.
func NewGraph(declared []events.EventType, deps map[events.EventType][]events.EventType, opts ...GraphOption) (*Graph, error) {
	if len(declared) == 0 {
		return nil, ErrEmptyGraph
	}

	var o graphOptions
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		declared:   make([]events.EventType, 0, len(declared)),
		index:      make(map[events.EventType]int, len(declared)),
		deps:       make(map[events.EventType][]events.EventType, len(declared)),
		repeatable: make(map[events.EventType]bool),
	}

	for _, t := range declared {
		if strings.TrimSpace(string(t)) == "" {
			return nil, fmt.Errorf("event type name is empty at position %d", len(g.declared))
		}
		if _, exists := g.index[t]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEventType, t)
		}
		g.index[t] = len(g.declared)
		g.declared = append(g.declared, t)
	}

	keys := make([]events.EventType, 0, len(deps))
	for t := range deps {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, t := range keys {
		required := deps[t]
		if _, ok := g.index[t]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndeclaredDependency, t)
		}
		seen := make(map[events.EventType]bool, len(required))
		list := make([]events.EventType, 0, len(required))
		for _, dep := range required {
			if _, ok := g.index[dep]; !ok {
				return nil, fmt.Errorf("%w: %s (required by %s)", ErrUndeclaredDependency, dep, t)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			list = append(list, dep)
		}
		g.sortDeclared(list)
		g.deps[t] = list
	}

	for _, t := range o.repeatable {
		if _, ok := g.index[t]; !ok {
			return nil, fmt.Errorf("%w: %s (marked repeatable)", ErrUnknownEventType, t)
		}
		g.repeatable[t] = true
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, formatPath(cycle))
	}

	return g, nil
}

// MustNewGraph is like NewGraph but panics on error.
// Intended for package-level graphs whose shape is known at compile time.
func MustNewGraph(declared []events.EventType, deps map[events.EventType][]events.EventType, opts ...GraphOption) *Graph {
	g, err := NewGraph(declared, deps, opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// CanonicalGraph returns the strict five-step chain
// agent_started -> agent_thinking -> tool_executing -> tool_completed -> agent_completed.
func CanonicalGraph() *Graph {
	return MustNewGraph(events.CanonicalEventTypes(), map[events.EventType][]events.EventType{
		events.EventTypeAgentThinking:  {events.EventTypeAgentStarted},
		events.EventTypeToolExecuting:  {events.EventTypeAgentThinking},
		events.EventTypeToolCompleted:  {events.EventTypeToolExecuting},
		events.EventTypeAgentCompleted: {events.EventTypeToolCompleted},
	})
}

// Declared returns the declared event types in declaration order.
func (g *Graph) Declared() []events.EventType {
	return append([]events.EventType(nil), g.declared...)
}

// Len returns the number of declared event types.
func (g *Graph) Len() int {
	return len(g.declared)
}

// Has reports whether t is declared.
func (g *Graph) Has(t events.EventType) bool {
	_, ok := g.index[t]
	return ok
}

// Dependencies returns the direct dependencies of t in declaration order.
func (g *Graph) Dependencies(t events.EventType) []events.EventType {
	return append([]events.EventType(nil), g.deps[t]...)
}

// Repeatable reports whether t may occur more than once per run.
func (g *Graph) Repeatable(t events.EventType) bool {
	return g.repeatable[t]
}

// TopologicalOrder returns every declared type ordered so that each type
// follows all of its dependencies. Ties are broken by declaration order.
func (g *Graph) TopologicalOrder() []events.EventType {
	indegree := make(map[events.EventType]int, len(g.declared))
	dependents := make(map[events.EventType][]events.EventType, len(g.declared))
	for _, t := range g.declared {
		indegree[t] = len(g.deps[t])
		for _, dep := range g.deps[t] {
			dependents[dep] = append(dependents[dep], t)
		}
	}

	var ready []events.EventType
	for _, t := range g.declared {
		if indegree[t] == 0 {
			ready = append(ready, t)
		}
	}

	order := make([]events.EventType, 0, len(g.declared))
	for len(ready) > 0 {
		g.sortDeclared(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return order
}

// frontier returns the types not in occurred whose dependencies are all in
// occurred, in declaration order.
func (g *Graph) frontier(occurred map[events.EventType]bool) []events.EventType {
	next := make([]events.EventType, 0)
	for _, t := range g.declared {
		if occurred[t] {
			continue
		}
		if len(g.missing(t, occurred)) == 0 {
			next = append(next, t)
		}
	}
	return next
}

// missing returns the dependencies of t not in occurred, in declaration order.
func (g *Graph) missing(t events.EventType, occurred map[events.EventType]bool) []events.EventType {
	var out []events.EventType
	for _, dep := range g.deps[t] {
		if !occurred[dep] {
			out = append(out, dep)
		}
	}
	return out
}

func (g *Graph) sortDeclared(list []events.EventType) {
	sort.SliceStable(list, func(i, j int) bool {
		return g.index[list[i]] < g.index[list[j]]
	})
}

// findCycle runs a three-colour DFS and returns the first cycle found as a
// path whose first and last elements are equal, or nil if the graph is acyclic.
func (g *Graph) findCycle() []events.EventType {
	const (
		white = iota
		grey
		black
	)
	color := make(map[events.EventType]int, len(g.declared))
	var stack []events.EventType

	var visit func(t events.EventType) []events.EventType
	visit = func(t events.EventType) []events.EventType {
		color[t] = grey
		stack = append(stack, t)
		for _, dep := range g.deps[t] {
			switch color[dep] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle := append([]events.EventType(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[t] = black
		return nil
	}

	for _, t := range g.declared {
		if color[t] == white {
			if cycle := visit(t); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func formatPath(path []events.EventType) string {
	parts := make([]string, len(path))
	for i, t := range path {
		parts[i] = string(t)
	}
	return strings.Join(parts, " -> ")
}
