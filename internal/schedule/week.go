package schedule

import "time"

// The recurring-week model stores no absolute timestamps; everything
// below derives concrete instants from (weekStart, dayOfWeek, hour)
// triples. Hours are whole hours of day, end-exclusive, within-day
// only.

// OccurrenceTime resolves a recurring slot position to the concrete
// instant it starts in the week anchored at weekStart.
func OccurrenceTime(weekStart time.Time, dayOfWeek, hour int) time.Time {
	y, m, d := weekStart.Date()
	return time.Date(y, m, d+dayOfWeek, hour, 0, 0, 0, weekStart.Location())
}

// OccurrenceDate resolves the calendar date of a slot occurrence.
func OccurrenceDate(weekStart time.Time, dayOfWeek int) time.Time {
	y, m, d := weekStart.Date()
	return time.Date(y, m, d+dayOfWeek, 0, 0, 0, 0, weekStart.Location())
}

// LastReset returns the most recent week rollover at or before now per
// the policy's reset day/hour.
func (s Settings) LastReset(now time.Time) time.Time {
	daysBack := (int(now.Weekday()) - s.WeekResetDay + 7) % 7
	y, m, d := now.Date()
	reset := time.Date(y, m, d-daysBack, s.WeekResetHour, 0, 0, 0, now.Location())
	if reset.After(now) {
		reset = reset.AddDate(0, 0, -7)
	}
	return reset
}

// BookableWindow returns the time range currently open for claims,
// both endpoints inclusive: AvailabilityOpenHours hours starting at
// the last reset.
func (s Settings) BookableWindow(now time.Time) (from, to time.Time) {
	from = s.LastReset(now)
	to = from.Add(time.Duration(s.AvailabilityOpenHours) * time.Hour)
	return from, to
}

// ActiveAt reports whether a slot occurrence is running at now: the
// occurrence falls on today's calendar date and now's hour is inside
// [startHour, endHour).
func ActiveAt(now, weekStart time.Time, dayOfWeek, startHour, endHour int) bool {
	occ := OccurrenceDate(weekStart, dayOfWeek)
	ny, nm, nd := now.Date()
	oy, om, od := occ.Date()
	if ny != oy || nm != om || nd != od {
		return false
	}
	h := now.Hour()
	return h >= startHour && h < endHour
}

// SameDate reports whether two instants share a calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
