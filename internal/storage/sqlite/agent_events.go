package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/netra-systems/zen-sub295/internal/events"
)

var _ events.EventStore = (*Store)(nil)

// StoreEvent appends an event to its run's event log, creating the run row
// on first sight. Events without an ID are assigned one.
func (s *Store) StoreEvent(ctx context.Context, event *events.AgentEvent) error {
	if event.RunID == "" {
		return fmt.Errorf("failed to store event (type=%s): run_id is empty", event.Type)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	// Marshal the Payload field to JSON
	payload := event.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureRun(ctx, tx, event.RunID, formatTime(event.Timestamp)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_events (id, run_id, type, timestamp, payload, source_line)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.RunID,
		string(event.Type),
		formatTime(event.Timestamp),
		string(payloadJSON),
		event.SourceLine,
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, run=%s): %w", event.Type, event.RunID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// GetRunEvents retrieves all events for a run in arrival order
func (s *Store) GetRunEvents(ctx context.Context, runID string) ([]*events.AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, type, timestamp, payload, source_line
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEvents retrieves events matching the given filter, most recent first
func (s *Store) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.AgentEvent, error) {
	query := `
		SELECT id, run_id, type, timestamp, payload, source_line
		FROM run_events
		WHERE 1=1
	`
	args := []interface{}{}

	// Apply filters
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, formatTime(filter.AfterTime))
	}

	query += " ORDER BY seq DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans rows into AgentEvent structs
func scanEvents(rows *sql.Rows) ([]*events.AgentEvent, error) {
	var result []*events.AgentEvent

	for rows.Next() {
		var event events.AgentEvent
		var eventType, timestamp, payloadJSON string

		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&eventType,
			&timestamp,
			&payloadJSON,
			&event.SourceLine,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = events.EventType(eventType)
		if event.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}

		if payloadJSON != "" && payloadJSON != "{}" {
			event.Payload = make(map[string]interface{})
			if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return result, nil
}
