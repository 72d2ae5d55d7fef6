package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/auth"
	"scheduler/internal/metrics"
	"scheduler/internal/queue"
)

// Entry is one student's attendance input within a Mark call.
type Entry struct {
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
	Notes     string `json:"notes"`
}

// Service is the attendance ledger.
type Service struct {
	repo   Repository
	events queue.Queue
	logger *zap.Logger
}

func NewService(repo Repository, events queue.Queue, logger *zap.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

// Mark upserts attendance for a batch of students at one session. The
// whole batch is validated and authorized before any write; each upsert
// is then idempotent per (session, student). Graders must be admin
// tier, or the coordinator/instructor assigned to the session's track.
func (s *Service) Mark(ctx context.Context, actor auth.Actor, sessionID string, entries []Entry) ([]Record, error) {
	if sessionID == "" {
		return nil, apperr.Validationf("session_id", "session_id is required")
	}
	if len(entries) == 0 {
		return nil, apperr.Validation("no attendance entries provided")
	}
	var fields []apperr.FieldError
	for i, e := range entries {
		if e.StudentID == "" {
			fields = append(fields, apperr.FieldError{Field: entryField(i, "student_id"), Error: "required"})
		}
		if !e.Status.Valid() {
			fields = append(fields, apperr.FieldError{Field: entryField(i, "status"), Error: "must be present, absent, late or excused"})
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid attendance entries", fields...)
	}

	if err := s.authorize(ctx, actor, sessionID); err != nil {
		return nil, err
	}

	marked := make(map[string]bool, len(entries))
	for _, e := range entries {
		rec := &Record{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			StudentID: e.StudentID,
			Status:    e.Status,
			Notes:     e.Notes,
			MarkedBy:  actor.ID,
		}
		if err := s.repo.Upsert(ctx, rec); err != nil {
			return nil, apperr.Internal("mark attendance", err)
		}
		marked[e.StudentID] = true
		metrics.AttendanceUpserts.Inc()
	}

	all, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Internal("list attendance", err)
	}
	out := make([]Record, 0, len(marked))
	for _, rec := range all {
		if marked[rec.StudentID] {
			out = append(out, rec)
		}
	}

	s.publishMarked(ctx, actor.ID, sessionID, len(out))
	s.logger.Info("attendance marked",
		zap.String("session_id", sessionID),
		zap.String("marked_by", actor.ID),
		zap.Int("records", len(out)),
	)
	return out, nil
}

// ListBySession returns a session's attendance, same authorization as
// marking.
func (s *Service) ListBySession(ctx context.Context, actor auth.Actor, sessionID string) ([]Record, error) {
	if err := s.authorize(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Internal("list attendance", err)
	}
	return out, nil
}

// authorize enforces the track-scoped grading rule: admin tier always,
// instructor/coordinator only when assigned to the session's track by
// id, not role alone.
func (s *Service) authorize(ctx context.Context, actor auth.Actor, sessionID string) error {
	assignment, err := s.repo.SessionTrack(ctx, sessionID)
	if err != nil {
		return apperr.Internal("resolve session", err)
	}
	if assignment == nil {
		return apperr.NotFound("session")
	}
	if actor.Role.AdminTier() {
		return nil
	}
	switch actor.Role {
	case auth.RoleInstructor:
		if assignment.InstructorID == actor.ID {
			return nil
		}
	case auth.RoleCoordinator:
		if assignment.CoordinatorID == actor.ID {
			return nil
		}
	}
	return apperr.Forbidden("not assigned to this session's track")
}

func (s *Service) publishMarked(ctx context.Context, graderID, sessionID string, count int) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"marked_by":  graderID,
		"records":    strconv.Itoa(count),
	})
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Kind: "attendance.marked", Body: raw}); err != nil {
		s.logger.Warn("event publish failed", zap.String("kind", "attendance.marked"), zap.Error(err))
	}
}

func entryField(i int, name string) string {
	return fmt.Sprintf("records[%d].%s", i, name)
}
