package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

// RunRecord is the stored summary of one run
type RunRecord struct {
	RunID         string           `json:"run_id"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Summary       sequence.Summary `json:"summary"`
	PayloadErrors int              `json:"payload_errors"`
	Stalled       bool             `json:"stalled"`
}

// Finished reports whether a summary was saved for the run
func (r *RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ensureRun inserts a run row if none exists
func ensureRun(ctx context.Context, db execer, runID, startedAt string) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs (run_id, started_at) VALUES (?, ?)
	`, runID, startedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// SaveRunSummary stores (or replaces) the final summary of a run
func (s *Store) SaveRunSummary(ctx context.Context, report watchdog.RunReport) error {
	nextExpected := report.Summary.NextExpected
	if nextExpected == nil {
		nextExpected = []events.EventType{}
	}
	nextJSON, err := json.Marshal(nextExpected)
	if err != nil {
		return fmt.Errorf("failed to marshal next_expected: %w", err)
	}

	var finishedAt interface{}
	if !report.FinishedAt.IsZero() {
		finishedAt = formatTime(report.FinishedAt)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, started_at, finished_at, reason, total_events, completed_events,
			completion_percentage, is_complete, next_expected, violations_count,
			payload_errors, stalled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			reason = excluded.reason,
			total_events = excluded.total_events,
			completed_events = excluded.completed_events,
			completion_percentage = excluded.completion_percentage,
			is_complete = excluded.is_complete,
			next_expected = excluded.next_expected,
			violations_count = excluded.violations_count,
			payload_errors = excluded.payload_errors,
			stalled = excluded.stalled
	`,
		report.RunID,
		formatTime(report.StartedAt),
		finishedAt,
		report.Reason,
		report.Summary.TotalEvents,
		report.Summary.CompletedEvents,
		report.Summary.CompletionPercentage,
		report.Summary.IsComplete,
		string(nextJSON),
		report.Summary.ViolationsCount,
		report.PayloadErrors,
		report.Stalled,
	)
	if err != nil {
		return fmt.Errorf("failed to save run summary %s: %w", report.RunID, err)
	}
	return nil
}

const runColumns = `
	run_id, started_at, finished_at, reason, total_events, completed_events,
	completion_percentage, is_complete, next_expected, violations_count,
	payload_errors, stalled
`

// GetRunSummary retrieves one run. It returns ErrNotFound for unknown runs.
func (s *Store) GetRunSummary(ctx context.Context, runID string) (*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return runs[0], nil
}

// ListRuns retrieves runs, most recently started first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]*RunRecord, error) {
	var result []*RunRecord

	for rows.Next() {
		var r RunRecord
		var startedAt, nextJSON string
		var finishedAt sql.NullString

		err := rows.Scan(
			&r.RunID,
			&startedAt,
			&finishedAt,
			&r.Reason,
			&r.Summary.TotalEvents,
			&r.Summary.CompletedEvents,
			&r.Summary.CompletionPercentage,
			&r.Summary.IsComplete,
			&nextJSON,
			&r.Summary.ViolationsCount,
			&r.PayloadErrors,
			&r.Stalled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			if r.FinishedAt, err = parseTime(finishedAt.String); err != nil {
				return nil, err
			}
		}
		if err := json.Unmarshal([]byte(nextJSON), &r.Summary.NextExpected); err != nil {
			return nil, fmt.Errorf("failed to unmarshal next_expected: %w", err)
		}

		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return result, nil
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
