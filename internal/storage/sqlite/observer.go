package sqlite

import (
	"context"
	"fmt"

	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

var _ watchdog.Observer = (*Store)(nil)

// ObserveEvent logs every observed event and any violation it caused
func (s *Store) ObserveEvent(ctx context.Context, outcome watchdog.Outcome) error {
	if outcome.Event == nil {
		return nil
	}
	event := *outcome.Event
	event.RunID = outcome.RunID
	if err := s.StoreEvent(ctx, &event); err != nil {
		return err
	}
	if outcome.Violation != nil {
		if err := s.RecordViolation(ctx, outcome.RunID, *outcome.Violation); err != nil {
			return fmt.Errorf("event %s stored but violation was not: %w", event.ID, err)
		}
	}
	return nil
}

// ObserveRunFinished saves the run's final summary
func (s *Store) ObserveRunFinished(ctx context.Context, report watchdog.RunReport) error {
	return s.SaveRunSummary(ctx, report)
}
