package slots

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/auth"
	"scheduler/internal/metrics"
	"scheduler/internal/schedule"
)

// PublishInput describes a candidate slot.
type PublishInput struct {
	TrackID   string    `json:"track_id"`
	WeekStart time.Time `json:"week_start"`
	DayOfWeek int       `json:"day_of_week"`
	StartHour int       `json:"start_hour"`
	EndHour   int       `json:"end_hour"`
}

// Service owns the availability slot lifecycle up to (but not
// including) the claim, which belongs to the booking transaction.
type Service struct {
	repo   Repository
	policy *schedule.Service
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, policy *schedule.Service, logger *zap.Logger) *Service {
	return &Service{repo: repo, policy: policy, logger: logger, now: time.Now}
}

func validatePublish(in PublishInput) error {
	var fields []apperr.FieldError
	if in.TrackID == "" {
		fields = append(fields, apperr.FieldError{Field: "track_id", Error: "required"})
	}
	if in.WeekStart.IsZero() {
		fields = append(fields, apperr.FieldError{Field: "week_start", Error: "required"})
	}
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		fields = append(fields, apperr.FieldError{Field: "day_of_week", Error: "must be between 0 and 6"})
	}
	if in.StartHour < 0 || in.StartHour > 23 {
		fields = append(fields, apperr.FieldError{Field: "start_hour", Error: "must be between 0 and 23"})
	}
	if in.EndHour < 1 || in.EndHour > 24 {
		fields = append(fields, apperr.FieldError{Field: "end_hour", Error: "must be between 1 and 24"})
	}
	if in.StartHour >= in.EndHour {
		// midnight-crossing windows are a known limitation of the
		// hour-of-day model and are rejected outright
		fields = append(fields, apperr.FieldError{Field: "end_hour", Error: "must be after start_hour; sessions may not cross midnight"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid slot", fields...)
	}
	return nil
}

// Publish creates an unconfirmed slot owned by the instructor actor.
func (s *Service) Publish(ctx context.Context, actor auth.Actor, in PublishInput) (*Slot, error) {
	if actor.Role != auth.RoleInstructor {
		return nil, apperr.Forbidden("only instructors publish slots")
	}
	if err := validatePublish(in); err != nil {
		return nil, err
	}

	slot := &Slot{
		ID:           uuid.NewString(),
		InstructorID: actor.ID,
		TrackID:      in.TrackID,
		WeekStart:    truncateToDate(in.WeekStart),
		DayOfWeek:    in.DayOfWeek,
		StartHour:    in.StartHour,
		EndHour:      in.EndHour,
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperr.Conflict("a slot already exists at this position")
		}
		return nil, apperr.Internal("publish slot", err)
	}

	metrics.SlotsPublished.Inc()
	s.logger.Info("slot published",
		zap.String("slot_id", slot.ID),
		zap.String("instructor_id", actor.ID),
		zap.String("track_id", slot.TrackID),
	)
	return slot, nil
}

// Confirm publishes the slot to students. Only the owning instructor
// may confirm.
func (s *Service) Confirm(ctx context.Context, actor auth.Actor, slotID string) (*Slot, error) {
	slot, err := s.repo.GetByID(ctx, slotID)
	if err != nil {
		return nil, apperr.Internal("load slot", err)
	}
	if slot == nil {
		return nil, apperr.NotFound("slot")
	}
	if actor.Role != auth.RoleInstructor || slot.InstructorID != actor.ID {
		return nil, apperr.Forbidden("only the owning instructor confirms a slot")
	}
	if slot.Confirmed {
		return slot, nil
	}
	if err := s.repo.Confirm(ctx, slotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("slot")
		}
		return nil, apperr.Internal("confirm slot", err)
	}
	slot.Confirmed = true
	return slot, nil
}

// ListAvailable returns bookable slots for a track. Without an explicit
// week filter the listing is limited to the policy's open window.
func (s *Service) ListAvailable(ctx context.Context, trackID string, weekStart *time.Time) ([]Slot, error) {
	if trackID == "" {
		return nil, apperr.Validationf("track_id", "track_id is required")
	}
	var from, to time.Time
	if weekStart == nil {
		settings, err := s.policy.Get(ctx)
		if err != nil {
			return nil, err
		}
		from, to = settings.BookableWindow(s.now())
	} else {
		ws := truncateToDate(*weekStart)
		weekStart = &ws
	}
	out, err := s.repo.ListAvailable(ctx, trackID, weekStart, from, to)
	if err != nil {
		return nil, apperr.Internal("list available slots", err)
	}
	return out, nil
}

// ListMine returns all slots owned by the instructor actor.
func (s *Service) ListMine(ctx context.Context, actor auth.Actor) ([]Slot, error) {
	if actor.Role != auth.RoleInstructor {
		return nil, apperr.Forbidden("only instructors have slots")
	}
	out, err := s.repo.ListByInstructor(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Internal("list instructor slots", err)
	}
	return out, nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
