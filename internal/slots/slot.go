package slots

import "time"

// Slot is one recurring weekly availability window published by an
// instructor for a track. WeekStart anchors the week; DayOfWeek and
// the hour pair position the occurrence inside it.
type Slot struct {
	ID           string    `json:"id"`
	InstructorID string    `json:"instructor_id"`
	TrackID      string    `json:"track_id"`
	WeekStart    time.Time `json:"week_start"`
	DayOfWeek    int       `json:"day_of_week"`
	StartHour    int       `json:"start_hour"`
	EndHour      int       `json:"end_hour"`
	Confirmed    bool      `json:"is_confirmed"`
	Booked       bool      `json:"is_booked"`
	CreatedAt    time.Time `json:"created_at"`
}
