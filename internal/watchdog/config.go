package watchdog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
)

// Config holds monitor configuration
type Config struct {
	// Graph is the dependency graph every run is validated against.
	// Default: sequence.CanonicalGraph()
	Graph *sequence.Graph

	// WindowSize is the number of finished runs to keep in memory
	// Default: 100
	WindowSize int

	// StallTimeout is how long an active run may go without an accepted event
	// before it is reported as stalled. 0 disables stall detection.
	// Default: 0
	StallTimeout time.Duration

	// PayloadRules holds the optional payload-shape checks per event type
	PayloadRules map[events.EventType]events.PayloadRule

	// FinishOnComplete moves a run to the finished window as soon as every
	// declared event has occurred
	// Default: false
	FinishOnComplete bool

	// Observers are notified of every outcome and every finished run
	Observers []Observer

	// Logger receives structured diagnostics. Default: slog.Default()
	Logger *slog.Logger

	// Now is the monitor's wall clock. Default: time.Now
	Now func() time.Time
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		Graph:      sequence.CanonicalGraph(),
		WindowSize: 100,
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.WindowSize < 0 {
		return fmt.Errorf("window_size must be non-negative, got %d", c.WindowSize)
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("stall_timeout must be non-negative, got %v", c.StallTimeout)
	}
	if c.Graph != nil {
		for t := range c.PayloadRules {
			if !c.Graph.Has(t) {
				return fmt.Errorf("payload rule for %w: %s", sequence.ErrUnknownEventType, t)
			}
		}
	}
	return nil
}

// withDefaults returns a copy with unset fields filled in
func (c *Config) withDefaults() Config {
	out := *c
	if out.Graph == nil {
		out.Graph = sequence.CanonicalGraph()
	}
	if out.WindowSize <= 0 {
		out.WindowSize = 100
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}
