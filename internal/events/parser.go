package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// maxLineSize bounds a single JSONL record
const maxLineSize = 4 * 1024 * 1024

// unixMillisThreshold separates numeric timestamps in seconds from milliseconds.
// 1e12 seconds is far in the future; 1e12 milliseconds is September 2001.
const unixMillisThreshold = 1e12

// ParseError describes a record that could not be decoded.
type ParseError struct {
	// Line is the 1-based line number in the stream (0 if unknown)
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// wireRecord is the external input record shape.
type wireRecord struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp json.RawMessage        `json:"timestamp"`
}

// ParseRecord decodes a single input record:
//
//	{"type": "agent_started", "payload": {...}, "timestamp": "2025-10-15T12:00:00Z"}
//
// The timestamp may be an RFC 3339 string or a JSON number of Unix seconds
// (fractional allowed; values above 1e12 are taken as Unix milliseconds).
// A missing or null timestamp leaves Timestamp zero. The run ID is read from
// the top-level "run_id", falling back to payload["run_id"].
func ParseRecord(data []byte) (*AgentEvent, error) {
	var rec wireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode event record: %w", err)
	}
	if strings.TrimSpace(rec.Type) == "" {
		return nil, errors.New("event record has no type")
	}

	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp for %s: %w", rec.Type, err)
	}

	runID := rec.RunID
	if runID == "" {
		if v, ok := rec.Payload["run_id"].(string); ok {
			runID = v
		}
	}

	return &AgentEvent{
		ID:        rec.ID,
		Type:      EventType(rec.Type),
		RunID:     runID,
		Timestamp: ts,
		Payload:   rec.Payload,
	}, nil
}

// parseTimestamp accepts an RFC 3339 string, a numeric Unix time, or null/absent.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		return ParseTimestampString(s)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	return FromUnix(f)
}

// ParseTimestampString parses an ISO-8601 timestamp. RFC 3339 (with or without
// fractional seconds) is accepted, as is the zone-less form Python's
// datetime.isoformat() emits, which is read as UTC.
func ParseTimestampString(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FromUnix converts a numeric Unix timestamp (seconds, or milliseconds above 1e12).
func FromUnix(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return time.Time{}, fmt.Errorf("timestamp %v out of range", v)
	}
	if v >= unixMillisThreshold {
		v /= 1000
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}

// Decoder reads newline-delimited event records from a stream.
type Decoder struct {
	scanner *bufio.Scanner
	// line is the current line number in the stream
	line int
	// defaultRunID is applied to records that carry no run ID
	defaultRunID string
	// readFailed is set once a read error has been reported
	readFailed bool
}

// NewDecoder creates a Decoder over r. Records without a run ID are assigned
// defaultRunID (which may be empty).
func NewDecoder(r io.Reader, defaultRunID string) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{
		scanner:      scanner,
		defaultRunID: defaultRunID,
	}
}

// Next returns the next event. Blank lines and lines starting with '#' are skipped.
// It returns io.EOF when the stream is exhausted. Malformed records are returned
// as *ParseError; the decoder remains usable after one.
func (d *Decoder) Next() (*AgentEvent, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		event, err := ParseRecord(line)
		if err != nil {
			return nil, &ParseError{Line: d.line, Err: err}
		}
		event.SourceLine = d.line
		if event.RunID == "" {
			event.RunID = d.defaultRunID
		}
		return event, nil
	}
	if err := d.scanner.Err(); err != nil && !d.readFailed {
		d.readFailed = true
		return nil, &ParseError{Line: d.line + 1, Err: err}
	}
	return nil, io.EOF
}

// Line returns the number of lines consumed so far.
func (d *Decoder) Line() int {
	return d.line
}
