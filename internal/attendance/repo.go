package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status of one student at one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid reports whether s is a known attendance status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Record is the attendance ledger row, unique per (session, student).
// StudentName is joined from users for stable display ordering.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes"`
	MarkedBy    string    `json:"marked_by"`
	MarkedAt    time.Time `json:"marked_at"`
}

// TrackAssignment identifies who is assigned to a session's track for
// grading authorization.
type TrackAssignment struct {
	TrackID       string
	InstructorID  string
	CoordinatorID string
}

// Repository persists attendance records.
type Repository interface {
	Upsert(ctx context.Context, rec *Record) error
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	SessionTrack(ctx context.Context, sessionID string) (*TrackAssignment, error)
}

// PostgresRepository backs the ledger with the attendance_records table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes one attendance record idempotently: marking the same
// (session, student) pair again updates status, notes and the grading
// audit fields in place, never a second row.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *Record) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, status, notes, marked_by, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			marked_by = EXCLUDED.marked_by,
			marked_at = NOW()
		RETURNING id, marked_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.Status, rec.Notes, rec.MarkedBy)
	if err := row.Scan(&rec.ID, &rec.MarkedAt); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// ListBySession returns a session's records sorted by student name
// ascending for stable display.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.session_id, a.student_id, u.name, a.status, a.notes, a.marked_by, a.marked_at
		FROM attendance_records a
		JOIN users u ON u.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY u.name
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.Status, &rec.Notes, &rec.MarkedBy, &rec.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionTrack resolves the track assignment behind a session, or nil
// when the session does not exist.
func (r *PostgresRepository) SessionTrack(ctx context.Context, sessionID string) (*TrackAssignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT t.id, COALESCE(t.instructor_id::text, ''), COALESCE(t.coordinator_id::text, '')
		FROM live_sessions ls
		JOIN tracks t ON t.id = ls.track_id
		WHERE ls.id = $1
	`, sessionID)
	var ta TrackAssignment
	if err := row.Scan(&ta.TrackID, &ta.InstructorID, &ta.CoordinatorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve session track: %w", err)
	}
	return &ta, nil
}
