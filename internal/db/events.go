package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types recorded in the audit trail.
const (
	EventTrackCreated   = "track_created"
	EventCommitRecorded = "commit_recorded"
	EventStatusChanged  = "status_changed"
	EventPhaseVerified  = "phase_verified"
	EventCommitReverted = "commit_reverted"
	EventRevertStarted  = "revert_started"
	EventRevertComplete = "revert_complete"
	EventRevertHalted   = "revert_halted"
	EventUnitReopened   = "unit_reopened"
)

// Event is one row of the audit trail.
type Event struct {
	ID        int64
	TrackID   string
	Unit      string
	EventType string
	Commit    string // empty for non-commit events
	Data      any    // JSON marshaled to TEXT
	CreatedAt time.Time
}

// QueryOptions filters the audit trail.
type QueryOptions struct {
	TrackID    string
	UnitPrefix string // slash-path prefix, matches the unit and its subtree
	EventTypes []string
	Since      *time.Time
	Limit      int
}

const createdAtLayout = "2006-01-02 15:04:05.000000000"

// SaveEvent appends an event.
func (d *DB) SaveEvent(ctx context.Context, e *Event) error {
	var detail *string
	if e.Data != nil {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshal event detail: %w", err)
		}
		s := string(b)
		detail = &s
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var commit *string
	if e.Commit != "" {
		commit = &e.Commit
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO events (track_id, unit, event_type, commit_sha, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TrackID, e.Unit, e.EventType, commit, detail, createdAt.UTC().Format(createdAtLayout))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get event id: %w", err)
	}
	e.ID = id
	return nil
}

// QueryEvents returns matching events, newest first.
func (d *DB) QueryEvents(ctx context.Context, opts QueryOptions) ([]Event, error) {
	var query strings.Builder
	var args []any

	query.WriteString(`
		SELECT id, track_id, unit, event_type, commit_sha, detail, created_at
		FROM events
		WHERE 1=1
	`)

	if opts.TrackID != "" {
		query.WriteString(" AND track_id = ?")
		args = append(args, opts.TrackID)
	}
	if opts.UnitPrefix != "" {
		// A unit matches itself and anything below it in the slash path.
		query.WriteString(" AND (unit = ? OR unit LIKE ?)")
		args = append(args, opts.UnitPrefix, opts.UnitPrefix+"/%")
	}
	if len(opts.EventTypes) > 0 {
		query.WriteString(" AND event_type IN (?" + strings.Repeat(", ?", len(opts.EventTypes)-1) + ")")
		for _, t := range opts.EventTypes {
			args = append(args, t)
		}
	}
	if opts.Since != nil {
		query.WriteString(" AND created_at >= ?")
		args = append(args, opts.Since.UTC().Format(createdAtLayout))
	}

	query.WriteString(" ORDER BY id DESC")
	if opts.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ReplaceTrackEvents atomically replaces all events for one track. Used when
// rebuilding the mirror from the JSONL ledger after the database file was
// lost or diverged.
func (d *DB) ReplaceTrackEvents(ctx context.Context, trackID string, events []Event) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE track_id = ?", trackID); err != nil {
		return fmt.Errorf("clear track events: %w", err)
	}

	for i := range events {
		e := &events[i]
		var detail *string
		if e.Data != nil {
			b, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("marshal event detail: %w", err)
			}
			s := string(b)
			detail = &s
		}
		var commit *string
		if e.Commit != "" {
			commit = &e.Commit
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (track_id, unit, event_type, commit_sha, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, trackID, e.Unit, e.EventType, commit, detail, e.CreatedAt.UTC().Format(createdAtLayout)); err != nil {
			return fmt.Errorf("insert rebuilt event: %w", err)
		}
	}

	return tx.Commit()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var commit, detail sql.NullString
	var createdAt string

	if err := rows.Scan(&e.ID, &e.TrackID, &e.Unit, &e.EventType, &commit, &detail, &createdAt); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	if commit.Valid {
		e.Commit = commit.String
	}
	if detail.Valid {
		var data any
		if err := json.Unmarshal([]byte(detail.String), &data); err == nil {
			e.Data = data
		}
	}
	t, err := time.Parse(createdAtLayout, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parse event timestamp: %w", err)
	}
	e.CreatedAt = t.UTC()
	return e, nil
}
