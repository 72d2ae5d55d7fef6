package booking

import (
	"time"

	"scheduler/internal/slots"
)

// Status of a booking. The only transitions are none -> confirmed (via
// the claim) and confirmed -> cancelled; completion is implicit once
// attendance exists for the occurrence.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is a student's claim on one slot. Slot is populated from a
// join on reads; Session is set once a live session has been
// materialized for the occurrence.
type Booking struct {
	ID              string       `json:"id"`
	SlotID          string       `json:"slot_id"`
	StudentID       string       `json:"student_id"`
	TrackID         string       `json:"track_id"`
	Status          Status       `json:"status"`
	StudentNotes    string       `json:"student_notes"`
	InstructorNotes string       `json:"instructor_notes"`
	LiveSessionID   *string      `json:"live_session_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Slot            *slots.Slot  `json:"slot,omitempty"`
	Session         *LiveSession `json:"session,omitempty"`
}

// LiveSession is the materialization of one concrete calendar
// occurrence of a recurring slot.
type LiveSession struct {
	ID           string    `json:"id"`
	TrackID      string    `json:"track_id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	StartHour    int       `json:"start_hour"`
	EndHour      int       `json:"end_hour"`
	ExternalLink string    `json:"external_link"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotesPatch is a partial notes update. Which fields an actor may set
// depends on its role; violations fail before any write.
type NotesPatch struct {
	StudentNotes    *string `json:"student_notes"`
	InstructorNotes *string `json:"instructor_notes"`
}

// ListFilter narrows booking listings.
type ListFilter struct {
	Status   *Status
	TrackID  string
	Upcoming bool
}
