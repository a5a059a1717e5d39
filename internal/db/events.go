package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Event values recorded in the phase_events table.
const (
	EventRunStarted     = "run_started"
	EventPhaseStarted   = "phase_started"
	EventPhaseCompleted = "phase_completed"
	EventPhaseWarned    = "phase_warned"
	EventPhaseFailed    = "phase_failed"
	EventRunCompleted   = "run_completed"
	EventRunAborted     = "run_aborted"
)

// PhaseEvent represents a row in the phase_events table.
type PhaseEvent struct {
	ID        int64  `json:"id"`
	RunID     string `json:"run_id"`
	IssueRef  string `json:"issue_ref"`
	Pipeline  string `json:"pipeline"`
	Phase     string `json:"phase,omitempty"`
	Event     string `json:"event"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// LogPhaseEvent inserts one event. Phase is empty for run-level events.
func (d *DB) LogPhaseEvent(runID, issueRef, pipeline, phase, event string, exitCode *int, detail string) error {
	_, err := d.conn.Exec(
		d.rebind(`INSERT INTO phase_events (run_id, issue_ref, pipeline, phase, event, exit_code, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		runID, issueRef, pipeline, phase, event, exitCode, detail, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("log phase event: %w", err)
	}
	return nil
}

// RunHistory returns all events for a run in the order they were logged.
func (d *DB) RunHistory(runID string) ([]PhaseEvent, error) {
	rows, err := d.conn.Query(
		d.rebind(`SELECT id, run_id, issue_ref, pipeline, phase, event, exit_code, detail, timestamp
		 FROM phase_events WHERE run_id = ? ORDER BY id ASC`),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var events []PhaseEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run history: %w", err)
	}
	return events, nil
}

// LatestEvent returns the most recent event for a run, or nil when the run
// has never logged one.
func (d *DB) LatestEvent(runID string) (*PhaseEvent, error) {
	row := d.conn.QueryRow(
		d.rebind(`SELECT id, run_id, issue_ref, pipeline, phase, event, exit_code, detail, timestamp
		 FROM phase_events WHERE run_id = ? ORDER BY id DESC LIMIT 1`),
		runID,
	)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (PhaseEvent, error) {
	var e PhaseEvent
	var phase, detail sql.NullString
	var exitCode sql.NullInt64
	err := row.Scan(&e.ID, &e.RunID, &e.IssueRef, &e.Pipeline, &phase, &e.Event, &exitCode, &detail, &e.Timestamp)
	if err == sql.ErrNoRows {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("scan phase event: %w", err)
	}
	if phase.Valid {
		e.Phase = phase.String
	}
	if detail.Valid {
		e.Detail = detail.String
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		e.ExitCode = &v
	}
	return e, nil
}
