package slots

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/auth"
	"scheduler/internal/schedule"
)

// fakeRepo keeps slots in memory with the same uniqueness rule the DB
// index enforces.
type fakeRepo struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{slots: make(map[string]*Slot)}
}

func (f *fakeRepo) Create(ctx context.Context, slot *Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.InstructorID == slot.InstructorID && s.TrackID == slot.TrackID &&
			s.WeekStart.Equal(slot.WeekStart) && s.DayOfWeek == slot.DayOfWeek && s.StartHour == slot.StartHour {
			return ErrDuplicate
		}
	}
	slot.CreatedAt = time.Now()
	cp := *slot
	f.slots[slot.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) Confirm(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil
	}
	s.Confirmed = true
	return nil
}

func (f *fakeRepo) ListAvailable(ctx context.Context, trackID string, weekStart *time.Time, windowFrom, windowTo time.Time) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Slot
	for _, s := range f.slots {
		if s.TrackID != trackID || !s.Confirmed || s.Booked {
			continue
		}
		if weekStart != nil {
			if !s.WeekStart.Equal(*weekStart) {
				continue
			}
		} else {
			occ := schedule.OccurrenceTime(s.WeekStart, s.DayOfWeek, s.StartHour)
			if occ.Before(windowFrom) || occ.After(windowTo) {
				continue
			}
		}
		out = append(out, *s)
	}
	sortSlots(out)
	return out, nil
}

func (f *fakeRepo) ListByInstructor(ctx context.Context, instructorID string) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Slot
	for _, s := range f.slots {
		if s.InstructorID == instructorID {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func sortSlots(list []Slot) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].WeekStart.Equal(list[j].WeekStart) {
			return list[i].WeekStart.Before(list[j].WeekStart)
		}
		if list[i].DayOfWeek != list[j].DayOfWeek {
			return list[i].DayOfWeek < list[j].DayOfWeek
		}
		return list[i].StartHour < list[j].StartHour
	})
}

type settingsRepo struct{ s schedule.Settings }

func (r *settingsRepo) GetOrCreate(ctx context.Context) (schedule.Settings, error) { return r.s, nil }
func (r *settingsRepo) Update(ctx context.Context, s schedule.Settings, updatedBy string) (schedule.Settings, error) {
	r.s = s
	return s, nil
}

func newTestService(repo Repository) *Service {
	policy := schedule.NewService(&settingsRepo{s: schedule.DefaultSettings()}, nil, time.Minute, zap.NewNop())
	return NewService(repo, policy, zap.NewNop())
}

var (
	instructor = auth.Actor{ID: "inst-1", Role: auth.RoleInstructor}
	student    = auth.Actor{ID: "stud-1", Role: auth.RoleStudent}
)

func validInput() PublishInput {
	return PublishInput{
		TrackID:   "track-1",
		WeekStart: time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC),
		DayOfWeek: 2,
		StartHour: 10,
		EndHour:   11,
	}
}

func TestPublish(t *testing.T) {
	svc := newTestService(newFakeRepo())

	slot, err := svc.Publish(context.Background(), instructor, validInput())
	require.NoError(t, err)
	assert.Equal(t, instructor.ID, slot.InstructorID)
	assert.False(t, slot.Confirmed)
	assert.False(t, slot.Booked)
}

func TestPublishRejectsStudents(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.Publish(context.Background(), student, validInput())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestPublishValidation(t *testing.T) {
	svc := newTestService(newFakeRepo())

	tests := []struct {
		name   string
		mutate func(*PublishInput)
	}{
		{"missing track", func(in *PublishInput) { in.TrackID = "" }},
		{"day out of range", func(in *PublishInput) { in.DayOfWeek = 7 }},
		{"start hour out of range", func(in *PublishInput) { in.StartHour = 24 }},
		{"end before start", func(in *PublishInput) { in.StartHour = 12; in.EndHour = 12 }},
		{"midnight crossing", func(in *PublishInput) { in.StartHour = 23; in.EndHour = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Publish(context.Background(), instructor, in)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestPublishDuplicateIsConflict(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.Publish(context.Background(), instructor, validInput())
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), instructor, validInput())
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestConfirmOwnership(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	slot, err := svc.Publish(context.Background(), instructor, validInput())
	require.NoError(t, err)

	other := auth.Actor{ID: "inst-2", Role: auth.RoleInstructor}
	_, err = svc.Confirm(context.Background(), other, slot.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	confirmed, err := svc.Confirm(context.Background(), instructor, slot.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)

	_, err = svc.Confirm(context.Background(), instructor, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListAvailableFiltersAndOrders(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	week := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	mk := func(day, hour int) *Slot {
		in := validInput()
		in.DayOfWeek = day
		in.StartHour = hour
		in.EndHour = hour + 1
		slot, err := svc.Publish(context.Background(), instructor, in)
		require.NoError(t, err)
		return slot
	}

	later := mk(4, 9)
	early := mk(1, 8)
	unconfirmed := mk(0, 7)

	for _, s := range []*Slot{later, early} {
		_, err := svc.Confirm(context.Background(), instructor, s.ID)
		require.NoError(t, err)
	}
	_ = unconfirmed

	list, err := svc.ListAvailable(context.Background(), "track-1", &week)
	require.NoError(t, err)
	require.Len(t, list, 2, "unconfirmed slots must stay hidden")
	assert.Equal(t, early.ID, list[0].ID, "earliest-in-week slots surface first")
	assert.Equal(t, later.ID, list[1].ID)
}

func TestListAvailableTrimsToWindow(t *testing.T) {
	repo := newFakeRepo()
	short := schedule.DefaultSettings()
	short.AvailabilityOpenHours = 48
	policy := schedule.NewService(&settingsRepo{s: short}, nil, time.Minute, zap.NewNop())
	svc := NewService(repo, policy, zap.NewNop())
	// Monday noon; the 48h window runs Sunday 22:00 to Tuesday 22:00
	svc.now = func() time.Time { return time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC) }

	mk := func(day, hour int) *Slot {
		in := validInput()
		in.DayOfWeek = day
		in.StartHour = hour
		in.EndHour = hour + 1
		slot, err := svc.Publish(context.Background(), instructor, in)
		require.NoError(t, err)
		_, err = svc.Confirm(context.Background(), instructor, slot.ID)
		require.NoError(t, err)
		return slot
	}

	inside := mk(1, 10)  // Tuesday June 4 10:00
	outside := mk(4, 10) // Friday June 7 10:00
	_ = outside

	// without a week filter the listing trims to the open window
	list, err := svc.ListAvailable(context.Background(), "track-1", nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inside.ID, list[0].ID)

	// an explicit week filter bypasses the trim
	week := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	list, err = svc.ListAvailable(context.Background(), "track-1", &week)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListAvailableRequiresTrack(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.ListAvailable(context.Background(), "", nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
