package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/auth"
	"scheduler/internal/metrics"
	"scheduler/internal/queue"
	"scheduler/internal/schedule"
	"scheduler/internal/slots"
)

// Service is the booking ledger plus the live-session projector.
type Service struct {
	repo     Repository
	slotRepo slots.Repository
	policy   *schedule.Service
	events   queue.Queue
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, slotRepo slots.Repository, policy *schedule.Service, events queue.Queue, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		slotRepo: slotRepo,
		policy:   policy,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Book claims a slot for the student actor. The slot flip and the
// booking insert happen in one transaction; losing the conditional
// flip surfaces as Conflict and the caller is expected to re-fetch
// available slots.
func (s *Service) Book(ctx context.Context, actor auth.Actor, slotID, trackID string) (*Booking, error) {
	if actor.Role != auth.RoleStudent {
		return nil, apperr.Forbidden("only students book slots")
	}
	if slotID == "" {
		return nil, apperr.Validationf("slot_id", "slot_id is required")
	}

	slot, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return nil, apperr.Internal("load slot", err)
	}
	if slot == nil {
		return nil, apperr.NotFound("slot")
	}
	if trackID != "" && trackID != slot.TrackID {
		return nil, apperr.Validationf("track_id", "track does not match slot")
	}
	if slot.Booked {
		return nil, apperr.Conflict("slot is already booked")
	}
	if !slot.Confirmed {
		return nil, apperr.Conflict("slot is not confirmed")
	}

	settings, err := s.policy.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	occ := schedule.OccurrenceTime(slot.WeekStart, slot.DayOfWeek, slot.StartHour)
	if !occ.After(now) {
		return nil, apperr.Validationf("slot_id", "slot occurrence is in the past")
	}
	from, to := settings.BookableWindow(now)
	if occ.Before(from) || occ.After(to) {
		return nil, apperr.Validationf("slot_id", "slot occurrence is outside the open booking window")
	}

	b := &Booking{
		ID:        uuid.NewString(),
		SlotID:    slot.ID,
		StudentID: actor.ID,
		TrackID:   slot.TrackID,
		Status:    StatusConfirmed,
	}
	metrics.ClaimAttempts.Inc()
	if err := s.repo.ClaimAndCreate(ctx, b); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			metrics.ClaimConflicts.Inc()
			return nil, apperr.Conflict("slot was claimed by another student; re-fetch available slots")
		}
		return nil, apperr.Internal("book slot", err)
	}

	slot.Booked = true
	b.Slot = slot
	s.publish(ctx, "booking.created", map[string]string{
		"booking_id": b.ID,
		"slot_id":    b.SlotID,
		"student_id": b.StudentID,
		"track_id":   b.TrackID,
	})
	s.logger.Info("slot booked",
		zap.String("booking_id", b.ID),
		zap.String("slot_id", b.SlotID),
		zap.String("student_id", b.StudentID),
	)
	return b, nil
}

// Cancel reverses a booking and frees its slot. Allowed for the owning
// student, the slot's instructor, and the admin tier.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, bookingID string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Internal("load booking", err)
	}
	if b == nil {
		return nil, apperr.NotFound("booking")
	}
	if !s.mayTouch(actor, b) {
		return nil, apperr.Forbidden("not your booking")
	}
	if b.Status == StatusCancelled {
		return nil, apperr.Conflict("booking is already cancelled")
	}

	if err := s.repo.CancelAndRelease(ctx, bookingID); err != nil {
		if errors.Is(err, ErrNotCancellable) {
			return nil, apperr.Conflict("booking is already cancelled")
		}
		return nil, apperr.Internal("cancel booking", err)
	}

	b.Status = StatusCancelled
	if b.Slot != nil {
		b.Slot.Booked = false
	}
	metrics.BookingsCancelled.Inc()
	s.publish(ctx, "booking.cancelled", map[string]string{
		"booking_id":   b.ID,
		"slot_id":      b.SlotID,
		"cancelled_by": actor.ID,
	})
	s.logger.Info("booking cancelled",
		zap.String("booking_id", b.ID),
		zap.String("cancelled_by", actor.ID),
	)
	return b, nil
}

// UpdateNotes applies a role-partitioned notes change: students may
// only write student_notes on their own booking, instructors only
// instructor_notes on their slots' bookings, and the admin tier both.
// Violations fail before any write.
func (s *Service) UpdateNotes(ctx context.Context, actor auth.Actor, bookingID string, patch NotesPatch) (*Booking, error) {
	if patch.StudentNotes == nil && patch.InstructorNotes == nil {
		return nil, apperr.Validation("no note fields provided")
	}

	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Internal("load booking", err)
	}
	if b == nil {
		return nil, apperr.NotFound("booking")
	}

	switch {
	case actor.Role.AdminTier():
		// may set both fields
	case actor.Role == auth.RoleStudent:
		if b.StudentID != actor.ID {
			return nil, apperr.Forbidden("not your booking")
		}
		if patch.InstructorNotes != nil {
			return nil, apperr.Forbidden("students may not set instructor notes")
		}
	case actor.Role == auth.RoleInstructor:
		if b.Slot == nil || b.Slot.InstructorID != actor.ID {
			return nil, apperr.Forbidden("not your booking")
		}
		if patch.StudentNotes != nil {
			return nil, apperr.Forbidden("instructors may not set student notes")
		}
	default:
		return nil, apperr.Forbidden("role may not annotate bookings")
	}

	if err := s.repo.UpdateNotes(ctx, bookingID, patch.StudentNotes, patch.InstructorNotes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("booking")
		}
		return nil, apperr.Internal("update booking notes", err)
	}
	if patch.StudentNotes != nil {
		b.StudentNotes = *patch.StudentNotes
	}
	if patch.InstructorNotes != nil {
		b.InstructorNotes = *patch.InstructorNotes
	}
	return b, nil
}

// List returns the actor's bookings: students see their own,
// instructors the bookings on their slots, the admin tier everything.
func (s *Service) List(ctx context.Context, actor auth.Actor, filter ListFilter) ([]Booking, error) {
	q := ListQuery{TrackID: filter.TrackID, Status: filter.Status}
	switch {
	case actor.Role == auth.RoleStudent:
		q.StudentID = actor.ID
	case actor.Role == auth.RoleInstructor:
		q.InstructorID = actor.ID
	case actor.Role.AdminTier():
		// unrestricted
	default:
		return nil, apperr.Forbidden("role may not list bookings")
	}

	out, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, apperr.Internal("list bookings", err)
	}
	if filter.Upcoming {
		now := s.now()
		kept := out[:0]
		for _, b := range out {
			if b.Slot != nil && schedule.OccurrenceTime(b.Slot.WeekStart, b.Slot.DayOfWeek, b.Slot.StartHour).After(now) {
				kept = append(kept, b)
			}
		}
		out = kept
	}
	return out, nil
}

// Next returns the student's earliest confirmed booking whose computed
// occurrence is strictly after now, or nil when none remain. The
// comparison is derived from the recurring slot fields, never stored.
func (s *Service) Next(ctx context.Context, actor auth.Actor) (*Booking, error) {
	if actor.Role != auth.RoleStudent {
		return nil, apperr.Forbidden("next booking is a student query")
	}
	confirmed := StatusConfirmed
	list, err := s.repo.List(ctx, ListQuery{StudentID: actor.ID, Status: &confirmed})
	if err != nil {
		return nil, apperr.Internal("list bookings", err)
	}

	now := s.now()
	var best *Booking
	var bestAt time.Time
	for i := range list {
		b := &list[i]
		if b.Slot == nil {
			continue
		}
		at := schedule.OccurrenceTime(b.Slot.WeekStart, b.Slot.DayOfWeek, b.Slot.StartHour)
		if !at.After(now) {
			continue
		}
		if best == nil || at.Before(bestAt) {
			best, bestAt = b, at
		}
	}
	return best, nil
}

// ActiveNow projects which of the actor's confirmed bookings are
// running right now. One wall-clock snapshot is taken per call so a
// booking cannot flap across the evaluation. When a live session has
// been materialized for the occurrence its date and hours win over the
// recurring slot fields.
func (s *Service) ActiveNow(ctx context.Context, actor auth.Actor) ([]Booking, error) {
	q := ListQuery{}
	confirmed := StatusConfirmed
	q.Status = &confirmed
	switch actor.Role {
	case auth.RoleStudent:
		q.StudentID = actor.ID
	case auth.RoleInstructor:
		q.InstructorID = actor.ID
	default:
		return nil, apperr.Forbidden("active-now is a student or instructor query")
	}

	list, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, apperr.Internal("list bookings", err)
	}

	now := s.now()
	var active []Booking
	for _, b := range list {
		if s.isActiveAt(now, &b) {
			active = append(active, b)
		}
	}
	return active, nil
}

func (s *Service) isActiveAt(now time.Time, b *Booking) bool {
	if b.Session != nil {
		if !schedule.SameDate(now, b.Session.Date) {
			return false
		}
		h := now.Hour()
		return h >= b.Session.StartHour && h < b.Session.EndHour
	}
	if b.Slot == nil {
		return false
	}
	return schedule.ActiveAt(now, b.Slot.WeekStart, b.Slot.DayOfWeek, b.Slot.StartHour, b.Slot.EndHour)
}

// SessionInput describes a live session to materialize.
type SessionInput struct {
	TrackID      string    `json:"track_id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	StartHour    int       `json:"start_hour"`
	EndHour      int       `json:"end_hour"`
	ExternalLink string    `json:"external_link"`
}

// CreateSession materializes one calendar occurrence and links the
// confirmed bookings whose slot resolves to it.
func (s *Service) CreateSession(ctx context.Context, actor auth.Actor, in SessionInput) (*LiveSession, error) {
	if actor.Role != auth.RoleInstructor && !actor.Role.AdminTier() {
		return nil, apperr.Forbidden("only instructors and managers create sessions")
	}
	var fields []apperr.FieldError
	if in.TrackID == "" {
		fields = append(fields, apperr.FieldError{Field: "track_id", Error: "required"})
	}
	if in.Title == "" {
		fields = append(fields, apperr.FieldError{Field: "title", Error: "required"})
	}
	if in.Date.IsZero() {
		fields = append(fields, apperr.FieldError{Field: "date", Error: "required"})
	}
	if in.StartHour < 0 || in.StartHour > 23 {
		fields = append(fields, apperr.FieldError{Field: "start_hour", Error: "must be between 0 and 23"})
	}
	if in.EndHour < 1 || in.EndHour > 24 || in.StartHour >= in.EndHour {
		fields = append(fields, apperr.FieldError{Field: "end_hour", Error: "must be after start_hour within the same day"})
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid session", fields...)
	}

	y, m, d := in.Date.Date()
	session := &LiveSession{
		ID:           uuid.NewString(),
		TrackID:      in.TrackID,
		Title:        in.Title,
		Date:         time.Date(y, m, d, 0, 0, 0, 0, in.Date.Location()),
		StartHour:    in.StartHour,
		EndHour:      in.EndHour,
		ExternalLink: in.ExternalLink,
		Status:       "scheduled",
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, apperr.Internal("create session", err)
	}
	linked, err := s.repo.LinkSession(ctx, session)
	if err != nil {
		return nil, apperr.Internal("link session", err)
	}

	s.publish(ctx, "session.created", map[string]string{
		"session_id": session.ID,
		"track_id":   session.TrackID,
		"created_by": actor.ID,
	})
	s.logger.Info("live session created",
		zap.String("session_id", session.ID),
		zap.Int64("bookings_linked", linked),
	)
	return session, nil
}

// GetSession returns a materialized session.
func (s *Service) GetSession(ctx context.Context, id string) (*LiveSession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load session", err)
	}
	if session == nil {
		return nil, apperr.NotFound("session")
	}
	return session, nil
}

func (s *Service) mayTouch(actor auth.Actor, b *Booking) bool {
	if actor.Role.AdminTier() {
		return true
	}
	if actor.Role == auth.RoleStudent && b.StudentID == actor.ID {
		return true
	}
	if actor.Role == auth.RoleInstructor && b.Slot != nil && b.Slot.InstructorID == actor.ID {
		return true
	}
	return false
}

func (s *Service) publish(ctx context.Context, kind string, payload map[string]string) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Kind: kind, Body: raw}); err != nil {
		s.logger.Warn("event publish failed", zap.String("kind", kind), zap.Error(err))
	}
}
