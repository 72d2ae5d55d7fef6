package schedule

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository persists the settings singleton.
type Repository interface {
	GetOrCreate(ctx context.Context) (Settings, error)
	Update(ctx context.Context, s Settings, updatedBy string) (Settings, error)
}

// PostgresRepository stores settings in the schedule_settings row.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate reads the singleton row, materializing it with defaults
// first if absent. The insert is a no-op when the row already exists,
// so concurrent first reads are safe.
func (r *PostgresRepository) GetOrCreate(ctx context.Context) (Settings, error) {
	def := DefaultSettings()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_settings (id, week_reset_day, week_reset_hour, availability_open_hours)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, def.WeekResetDay, def.WeekResetHour, def.AvailabilityOpenHours)
	if err != nil {
		return Settings{}, fmt.Errorf("seed settings: %w", err)
	}

	var s Settings
	row := r.db.QueryRowContext(ctx, `
		SELECT week_reset_day, week_reset_hour, availability_open_hours, updated_at
		FROM schedule_settings WHERE id = 1
	`)
	if err := row.Scan(&s.WeekResetDay, &s.WeekResetHour, &s.AvailabilityOpenHours, &s.UpdatedAt); err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Update overwrites the singleton row.
func (r *PostgresRepository) Update(ctx context.Context, s Settings, updatedBy string) (Settings, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE schedule_settings
		SET week_reset_day = $1, week_reset_hour = $2, availability_open_hours = $3,
		    updated_by = $4, updated_at = NOW()
		WHERE id = 1
		RETURNING week_reset_day, week_reset_hour, availability_open_hours, updated_at
	`, s.WeekResetDay, s.WeekResetHour, s.AvailabilityOpenHours, updatedBy)
	var out Settings
	if err := row.Scan(&out.WeekResetDay, &out.WeekResetHour, &out.AvailabilityOpenHours, &out.UpdatedAt); err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return out, nil
}
