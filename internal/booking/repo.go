package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scheduler/internal/slots"
)

var (
	// ErrSlotTaken means the conditional claim lost the race: the slot
	// was unbooked when read but not when written.
	ErrSlotTaken = errors.New("slot is no longer available")

	// ErrNotCancellable means the booking was already cancelled.
	ErrNotCancellable = errors.New("booking is already cancelled")
)

// ListQuery narrows the repository listing. Empty fields are skipped.
type ListQuery struct {
	StudentID    string
	InstructorID string
	TrackID      string
	Status       *Status
}

// Repository persists bookings and live sessions.
type Repository interface {
	ClaimAndCreate(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	CancelAndRelease(ctx context.Context, bookingID string) error
	UpdateNotes(ctx context.Context, id string, studentNotes, instructorNotes *string) error
	List(ctx context.Context, q ListQuery) ([]Booking, error)
	CreateSession(ctx context.Context, s *LiveSession) error
	LinkSession(ctx context.Context, s *LiveSession) (int64, error)
	GetSession(ctx context.Context, id string) (*LiveSession, error)
}

// PostgresRepository backs bookings with Postgres. The claim is a
// conditional update gated on the slot's current is_booked value — two
// concurrent claims cannot both see an affected row.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ClaimAndCreate atomically flips the slot to booked and inserts the
// booking. Losing the conditional update returns ErrSlotTaken with no
// booking row created.
func (r *PostgresRepository) ClaimAndCreate(ctx context.Context, b *Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE availability_slots
		SET is_booked = TRUE
		WHERE id = $1 AND is_confirmed AND NOT is_booked
	`, b.SlotID)
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSlotTaken
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO bookings (id, slot_id, student_id, track_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, b.ID, b.SlotID, b.StudentID, b.TrackID, b.Status)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim tx: %w", err)
	}
	return nil
}

// CancelAndRelease marks the booking cancelled and frees its slot in
// one transaction.
func (r *PostgresRepository) CancelAndRelease(ctx context.Context, bookingID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback()

	var slotID string
	row := tx.QueryRowContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'
		RETURNING slot_id
	`, bookingID)
	if err := row.Scan(&slotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotCancellable
		}
		return fmt.Errorf("cancel booking: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE availability_slots SET is_booked = FALSE WHERE id = $1
	`, slotID); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	return nil
}

// UpdateNotes overwrites whichever note fields are provided.
func (r *PostgresRepository) UpdateNotes(ctx context.Context, id string, studentNotes, instructorNotes *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET student_notes = COALESCE($2, student_notes),
		    instructor_notes = COALESCE($3, instructor_notes),
		    updated_at = NOW()
		WHERE id = $1
	`, id, studentNotes, instructorNotes)
	if err != nil {
		return fmt.Errorf("update booking notes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const bookingColumns = `
	b.id, b.slot_id, b.student_id, b.track_id, b.status, b.student_notes, b.instructor_notes,
	b.live_session_id, b.created_at, b.updated_at,
	s.id, s.instructor_id, s.track_id, s.week_start, s.day_of_week, s.start_hour, s.end_hour,
	s.is_confirmed, s.is_booked, s.created_at,
	ls.id, ls.track_id, ls.title, ls.session_date, ls.start_hour, ls.end_hour, ls.external_link,
	ls.status, ls.created_at`

const bookingFrom = `
	FROM bookings b
	JOIN availability_slots s ON s.id = b.slot_id
	LEFT JOIN live_sessions ls ON ls.id = b.live_session_id`

func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	var (
		b    Booking
		slot slots.Slot
		ls   struct {
			id, trackID, title, link, status sql.NullString
			date                             sql.NullTime
			startHour, endHour               sql.NullInt64
			createdAt                        sql.NullTime
		}
	)
	err := row.Scan(
		&b.ID, &b.SlotID, &b.StudentID, &b.TrackID, &b.Status, &b.StudentNotes, &b.InstructorNotes,
		&b.LiveSessionID, &b.CreatedAt, &b.UpdatedAt,
		&slot.ID, &slot.InstructorID, &slot.TrackID, &slot.WeekStart, &slot.DayOfWeek, &slot.StartHour,
		&slot.EndHour, &slot.Confirmed, &slot.Booked, &slot.CreatedAt,
		&ls.id, &ls.trackID, &ls.title, &ls.date, &ls.startHour, &ls.endHour, &ls.link,
		&ls.status, &ls.createdAt,
	)
	if err != nil {
		return nil, err
	}
	b.Slot = &slot
	if ls.id.Valid {
		b.Session = &LiveSession{
			ID:           ls.id.String,
			TrackID:      ls.trackID.String,
			Title:        ls.title.String,
			Date:         ls.date.Time,
			StartHour:    int(ls.startHour.Int64),
			EndHour:      int(ls.endHour.Int64),
			ExternalLink: ls.link.String,
			Status:       ls.status.String,
			CreatedAt:    ls.createdAt.Time,
		}
	}
	return &b, nil
}

// GetByID returns a booking with its slot (and session when linked),
// or nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}
	return b, nil
}

// List returns bookings ordered by (week, day, start hour) — the same
// fairness ordering the slot listing uses.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + bookingFrom + ` WHERE 1=1`
	args := []any{}
	if q.StudentID != "" {
		args = append(args, q.StudentID)
		query += fmt.Sprintf(" AND b.student_id = $%d", len(args))
	}
	if q.InstructorID != "" {
		args = append(args, q.InstructorID)
		query += fmt.Sprintf(" AND s.instructor_id = $%d", len(args))
	}
	if q.TrackID != "" {
		args = append(args, q.TrackID)
		query += fmt.Sprintf(" AND b.track_id = $%d", len(args))
	}
	if q.Status != nil {
		args = append(args, *q.Status)
		query += fmt.Sprintf(" AND b.status = $%d", len(args))
	}
	query += ` ORDER BY s.week_start, s.day_of_week, s.start_hour`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// CreateSession inserts a live session row.
func (r *PostgresRepository) CreateSession(ctx context.Context, s *LiveSession) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO live_sessions (id, track_id, title, session_date, start_hour, end_hour, external_link, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, s.ID, s.TrackID, s.Title, s.Date, s.StartHour, s.EndHour, s.ExternalLink, s.Status)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("create live session: %w", err)
	}
	return nil
}

// LinkSession attaches the session to confirmed bookings whose slot
// occurrence matches the session's track, date and start hour. Returns
// how many bookings were linked.
func (r *PostgresRepository) LinkSession(ctx context.Context, s *LiveSession) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings b
		SET live_session_id = $1, updated_at = NOW()
		FROM availability_slots sl
		WHERE sl.id = b.slot_id
		  AND b.status = 'confirmed'
		  AND b.live_session_id IS NULL
		  AND b.track_id = $2
		  AND sl.week_start + sl.day_of_week * interval '1 day' = $3
		  AND sl.start_hour = $4
	`, s.ID, s.TrackID, s.Date, s.StartHour)
	if err != nil {
		return 0, fmt.Errorf("link session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetSession returns a live session or nil when absent.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*LiveSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, track_id, title, session_date, start_hour, end_hour, external_link, status, created_at
		FROM live_sessions WHERE id = $1
	`, id)
	var s LiveSession
	err := row.Scan(&s.ID, &s.TrackID, &s.Title, &s.Date, &s.StartHour, &s.EndHour, &s.ExternalLink, &s.Status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get live session: %w", err)
	}
	return &s, nil
}
