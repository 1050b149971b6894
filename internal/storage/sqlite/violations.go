package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
)

// RecordViolation stores a rejected event for a run
func (s *Store) RecordViolation(ctx context.Context, runID string, v sequence.Violation) error {
	vctx := v.Context
	if vctx == nil {
		vctx = map[string]interface{}{}
	}
	contextJSON, err := json.Marshal(vctx)
	if err != nil {
		return fmt.Errorf("failed to marshal violation context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureRun(ctx, tx, runID, formatTime(v.Timestamp)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO violations (run_id, event_type, kind, timestamp, context)
		VALUES (?, ?, ?, ?, ?)
	`, runID, string(v.EventType), string(v.Kind), formatTime(v.Timestamp), string(contextJSON))
	if err != nil {
		return fmt.Errorf("failed to record violation (kind=%s, run=%s): %w", v.Kind, runID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit violation: %w", err)
	}
	return nil
}

// GetViolations retrieves a run's violations in the order they were recorded
func (s *Store) GetViolations(ctx context.Context, runID string) ([]sequence.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, kind, timestamp, context
		FROM violations
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var result []sequence.Violation
	for rows.Next() {
		var eventType, kind, timestamp, contextJSON string
		if err := rows.Scan(&eventType, &kind, &timestamp, &contextJSON); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}

		v := sequence.Violation{
			EventType: events.EventType(eventType),
			Kind:      sequence.ViolationKind(kind),
		}
		if v.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(contextJSON), &v.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal violation context: %w", err)
		}
		result = append(result, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violation rows: %w", err)
	}
	return result, nil
}
