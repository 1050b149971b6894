package sequence

import (
	"errors"
	"testing"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraphConfigurationErrors(t *testing.T) {
	a, b, c := events.EventType("a"), events.EventType("b"), events.EventType("c")

	tests := []struct {
		name     string
		declared []events.EventType
		deps     map[events.EventType][]events.EventType
		opts     []GraphOption
		wantErr  error
		contains string
	}{
		{
			name:    "empty declared set",
			wantErr: ErrEmptyGraph,
		},
		{
			name:     "duplicate declaration",
			declared: []events.EventType{a, b, a},
			wantErr:  ErrDuplicateEventType,
		},
		{
			name:     "undeclared key",
			declared: []events.EventType{a, b},
			deps:     map[events.EventType][]events.EventType{c: {a}},
			wantErr:  ErrUndeclaredDependency,
			contains: "c",
		},
		{
			name:     "undeclared dependency",
			declared: []events.EventType{a, b},
			deps:     map[events.EventType][]events.EventType{b: {c}},
			wantErr:  ErrUndeclaredDependency,
			contains: "required by b",
		},
		{
			name:     "self dependency",
			declared: []events.EventType{a},
			deps:     map[events.EventType][]events.EventType{a: {a}},
			wantErr:  ErrCyclicDependency,
			contains: "a -> a",
		},
		{
			name:     "three cycle",
			declared: []events.EventType{a, b, c},
			deps:     map[events.EventType][]events.EventType{a: {c}, b: {a}, c: {b}},
			wantErr:  ErrCyclicDependency,
			contains: "a -> c -> b -> a",
		},
		{
			name:     "undeclared repeatable",
			declared: []events.EventType{a},
			opts:     []GraphOption{WithRepeatable(b)},
			wantErr:  ErrUnknownEventType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.declared, tt.deps, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestNewGraphEmptyName(t *testing.T) {
	_, err := NewGraph([]events.EventType{"a", " "}, nil)
	assert.Error(t, err)
}

func TestCanonicalGraph(t *testing.T) {
	g := CanonicalGraph()

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, events.CanonicalEventTypes(), g.Declared())
	assert.Empty(t, g.Dependencies(events.EventTypeAgentStarted))
	assert.Equal(t, []events.EventType{events.EventTypeToolExecuting}, g.Dependencies(events.EventTypeToolCompleted))
	assert.Equal(t, events.CanonicalEventTypes(), g.TopologicalOrder())
	assert.True(t, g.Has(events.EventTypeAgentCompleted))
	assert.False(t, g.Has("agent_error"))
	assert.False(t, g.Repeatable(events.EventTypeToolExecuting))
}

func TestGraphDependenciesDeduplicatedAndOrdered(t *testing.T) {
	a, b, c := events.EventType("a"), events.EventType("b"), events.EventType("c")
	g, err := NewGraph([]events.EventType{a, b, c}, map[events.EventType][]events.EventType{
		c: {b, a, b},
	})
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{a, b}, g.Dependencies(c))

	// Returned slices are copies
	deps := g.Dependencies(c)
	deps[0] = "mutated"
	assert.Equal(t, []events.EventType{a, b}, g.Dependencies(c))
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	// Declared in reverse of the dependency order
	done, review, build, start := events.EventType("done"), events.EventType("review"), events.EventType("build"), events.EventType("start")
	g := MustNewGraph([]events.EventType{done, review, build, start}, map[events.EventType][]events.EventType{
		done:   {review, build},
		review: {build},
		build:  {start},
	})

	order := g.TopologicalOrder()
	require.Len(t, order, 4)
	assert.Equal(t, []events.EventType{start, build, review, done}, order)

	position := make(map[events.EventType]int)
	for i, et := range order {
		position[et] = i
	}
	for _, et := range g.Declared() {
		for _, dep := range g.Dependencies(et) {
			assert.Less(t, position[dep], position[et], "%s must follow %s", et, dep)
		}
	}
}

func TestMustNewGraphPanics(t *testing.T) {
	assert.Panics(t, func() { MustNewGraph(nil, nil) })
}
