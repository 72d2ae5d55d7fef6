package schedule

import (
	"time"

	"scheduler/internal/apperr"
)

// Default policy: week rolls over Sunday 22:00 with the whole week
// (168h) open for booking.
const (
	DefaultWeekResetDay          = 0
	DefaultWeekResetHour         = 22
	DefaultAvailabilityOpenHours = 168
)

// Settings is the process-wide scheduling policy. A single row backs
// it; it is materialized with defaults on first read.
type Settings struct {
	WeekResetDay          int       `json:"week_reset_day"`
	WeekResetHour         int       `json:"week_reset_hour"`
	AvailabilityOpenHours int       `json:"availability_open_hours"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultSettings returns the policy used when no row exists yet.
func DefaultSettings() Settings {
	return Settings{
		WeekResetDay:          DefaultWeekResetDay,
		WeekResetHour:         DefaultWeekResetHour,
		AvailabilityOpenHours: DefaultAvailabilityOpenHours,
	}
}

// Patch carries a partial settings update; nil fields are left as-is.
type Patch struct {
	WeekResetDay          *int `json:"week_reset_day"`
	WeekResetHour         *int `json:"week_reset_hour"`
	AvailabilityOpenHours *int `json:"availability_open_hours"`
}

// Apply validates the patch and merges it over cur.
func (p Patch) Apply(cur Settings) (Settings, error) {
	var fields []apperr.FieldError
	if p.WeekResetDay != nil {
		if *p.WeekResetDay < 0 || *p.WeekResetDay > 6 {
			fields = append(fields, apperr.FieldError{Field: "week_reset_day", Error: "must be between 0 and 6"})
		} else {
			cur.WeekResetDay = *p.WeekResetDay
		}
	}
	if p.WeekResetHour != nil {
		if *p.WeekResetHour < 0 || *p.WeekResetHour > 23 {
			fields = append(fields, apperr.FieldError{Field: "week_reset_hour", Error: "must be between 0 and 23"})
		} else {
			cur.WeekResetHour = *p.WeekResetHour
		}
	}
	if p.AvailabilityOpenHours != nil {
		if *p.AvailabilityOpenHours <= 0 {
			fields = append(fields, apperr.FieldError{Field: "availability_open_hours", Error: "must be positive"})
		} else {
			cur.AvailabilityOpenHours = *p.AvailabilityOpenHours
		}
	}
	if len(fields) > 0 {
		return Settings{}, apperr.Validation("invalid schedule settings", fields...)
	}
	return cur, nil
}
