package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned by Create when an identical slot position
// already exists for the instructor.
var ErrDuplicate = errors.New("slot already published for this position")

// Repository persists availability slots.
type Repository interface {
	Create(ctx context.Context, slot *Slot) error
	GetByID(ctx context.Context, id string) (*Slot, error)
	Confirm(ctx context.Context, id string) error
	ListAvailable(ctx context.Context, trackID string, weekStart *time.Time, windowFrom, windowTo time.Time) ([]Slot, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]Slot, error)
}

// PostgresRepository backs slots with the availability_slots table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const slotColumns = `id, instructor_id, track_id, week_start, day_of_week, start_hour, end_hour, is_confirmed, is_booked, created_at`

func scanSlot(row interface{ Scan(...any) error }) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.InstructorID,
		&s.TrackID,
		&s.WeekStart,
		&s.DayOfWeek,
		&s.StartHour,
		&s.EndHour,
		&s.Confirmed,
		&s.Booked,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new unconfirmed slot. The unique index on
// (instructor, track, week, day, start_hour) turns duplicate publishes
// into ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, slot *Slot) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO availability_slots (id, instructor_id, track_id, week_start, day_of_week, start_hour, end_hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, slot.ID, slot.InstructorID, slot.TrackID, slot.WeekStart, slot.DayOfWeek, slot.StartHour, slot.EndHour)
	if err := row.Scan(&slot.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// GetByID returns a slot or nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Slot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+slotColumns+` FROM availability_slots WHERE id = $1
	`, id)
	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}
	return slot, nil
}

// Confirm publishes the slot to students.
func (r *PostgresRepository) Confirm(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE availability_slots SET is_confirmed = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("confirm slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAvailable returns confirmed, unbooked slots for a track ordered
// by (week, day, start hour) — earliest-in-week first. With weekStart
// set the listing is pinned to that week; otherwise occurrences are
// trimmed to the policy's bookable window.
func (r *PostgresRepository) ListAvailable(ctx context.Context, trackID string, weekStart *time.Time, windowFrom, windowTo time.Time) ([]Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE track_id = $1 AND is_confirmed AND NOT is_booked`
	args := []any{trackID}
	if weekStart != nil {
		query += ` AND week_start = $2`
		args = append(args, *weekStart)
	} else {
		query += ` AND week_start + day_of_week * interval '1 day' + start_hour * interval '1 hour' BETWEEN $2 AND $3`
		args = append(args, windowFrom, windowTo)
	}
	query += ` ORDER BY week_start, day_of_week, start_hour`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	defer rows.Close()
	return collectSlots(rows)
}

// ListByInstructor returns all of an instructor's slots regardless of
// state, newest week first within the same ordering contract.
func (r *PostgresRepository) ListByInstructor(ctx context.Context, instructorID string) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE instructor_id = $1
		ORDER BY week_start, day_of_week, start_hour
	`, instructorID)
	if err != nil {
		return nil, fmt.Errorf("list slots by instructor: %w", err)
	}
	defer rows.Close()
	return collectSlots(rows)
}

func collectSlots(rows *sql.Rows) ([]Slot, error) {
	var out []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, *slot)
	}
	return out, rows.Err()
}
