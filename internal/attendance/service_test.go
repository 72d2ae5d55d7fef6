package attendance

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/auth"
)

// fakeRepo keys records by (session, student) so a second mark updates
// in place, like the unique index does.
type fakeRepo struct {
	records  map[string]*Record
	names    map[string]string
	sessions map[string]*TrackAssignment
	upserts  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:  make(map[string]*Record),
		names:    make(map[string]string),
		sessions: make(map[string]*TrackAssignment),
	}
}

func (f *fakeRepo) key(sessionID, studentID string) string {
	return sessionID + "/" + studentID
}

func (f *fakeRepo) Upsert(ctx context.Context, rec *Record) error {
	f.upserts++
	k := f.key(rec.SessionID, rec.StudentID)
	if prev, ok := f.records[k]; ok {
		rec.ID = prev.ID
	}
	rec.MarkedAt = time.Now()
	cp := *rec
	f.records[k] = &cp
	return nil
}

func (f *fakeRepo) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	var out []Record
	for _, rec := range f.records {
		if rec.SessionID != sessionID {
			continue
		}
		cp := *rec
		cp.StudentName = f.names[rec.StudentID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func (f *fakeRepo) SessionTrack(ctx context.Context, sessionID string) (*TrackAssignment, error) {
	return f.sessions[sessionID], nil
}

var (
	assignedInstructor  = auth.Actor{ID: "inst-1", Role: auth.RoleInstructor}
	otherInstructor     = auth.Actor{ID: "inst-2", Role: auth.RoleInstructor}
	assignedCoordinator = auth.Actor{ID: "coord-1", Role: auth.RoleCoordinator}
	otherCoordinator    = auth.Actor{ID: "coord-2", Role: auth.RoleCoordinator}
	ceo                 = auth.Actor{ID: "ceo-1", Role: auth.RoleCEO}
	student             = auth.Actor{ID: "stud-1", Role: auth.RoleStudent}
)

const sessionID = "sess-1"

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	repo.sessions[sessionID] = &TrackAssignment{
		TrackID:       "track-1",
		InstructorID:  assignedInstructor.ID,
		CoordinatorID: assignedCoordinator.ID,
	}
	repo.names["stud-1"] = "Alice"
	repo.names["stud-2"] = "Bob"
	repo.names["stud-3"] = "Carol"
	return NewService(repo, nil, zap.NewNop()), repo
}

func TestMarkBatch(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.Mark(context.Background(), assignedInstructor, sessionID, []Entry{
		{StudentID: "stud-2", Status: StatusAbsent},
		{StudentID: "stud-1", Status: StatusPresent, Notes: "on time"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	// name-sorted regardless of input order
	assert.Equal(t, "Alice", out[0].StudentName)
	assert.Equal(t, StatusPresent, out[0].Status)
	assert.Equal(t, "on time", out[0].Notes)
	assert.Equal(t, "Bob", out[1].StudentName)
	assert.Equal(t, assignedInstructor.ID, out[0].MarkedBy)
}

func TestMarkIsIdempotentPerStudent(t *testing.T) {
	svc, repo := newTestService(t)

	first, err := svc.Mark(context.Background(), assignedInstructor, sessionID, []Entry{
		{StudentID: "stud-1", Status: StatusAbsent},
	})
	require.NoError(t, err)

	// a correction overwrites the same record, never a second row
	second, err := svc.Mark(context.Background(), assignedCoordinator, sessionID, []Entry{
		{StudentID: "stud-1", Status: StatusLate, Notes: "arrived 10 min in"},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, StatusLate, second[0].Status)
	assert.Equal(t, assignedCoordinator.ID, second[0].MarkedBy)
	assert.Len(t, repo.records, 1)
}

func TestMarkValidatesBeforeWriting(t *testing.T) {
	svc, repo := newTestService(t)

	// one bad entry fails the whole batch with no writes
	_, err := svc.Mark(context.Background(), assignedInstructor, sessionID, []Entry{
		{StudentID: "stud-1", Status: StatusPresent},
		{StudentID: "stud-2", Status: Status("attending")},
		{StudentID: "", Status: StatusAbsent},
	})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Len(t, appErr.Fields, 2)
	assert.Zero(t, repo.upserts)

	_, err = svc.Mark(context.Background(), assignedInstructor, sessionID, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Mark(context.Background(), assignedInstructor, "", []Entry{{StudentID: "stud-1", Status: StatusPresent}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMarkAuthz(t *testing.T) {
	svc, repo := newTestService(t)
	entries := []Entry{{StudentID: "stud-1", Status: StatusPresent}}

	tests := []struct {
		name    string
		actor   auth.Actor
		allowed bool
	}{
		{"assigned instructor", assignedInstructor, true},
		{"assigned coordinator", assignedCoordinator, true},
		{"admin tier", ceo, true},
		{"instructor on another track", otherInstructor, false},
		{"coordinator on another track", otherCoordinator, false},
		{"student", student, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Mark(context.Background(), tt.actor, sessionID, entries)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindForbidden))
			}
		})
	}

	// unauthorized attempts wrote nothing
	before := repo.upserts
	_, _ = svc.Mark(context.Background(), otherInstructor, sessionID, entries)
	assert.Equal(t, before, repo.upserts)
}

func TestMarkUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Mark(context.Background(), ceo, "missing", []Entry{{StudentID: "stud-1", Status: StatusPresent}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListBySession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Mark(context.Background(), assignedInstructor, sessionID, []Entry{
		{StudentID: "stud-3", Status: StatusPresent},
		{StudentID: "stud-1", Status: StatusExcused},
	})
	require.NoError(t, err)

	out, err := svc.ListBySession(context.Background(), assignedCoordinator, sessionID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Alice", out[0].StudentName)
	assert.Equal(t, "Carol", out[1].StudentName)

	_, err = svc.ListBySession(context.Background(), otherInstructor, sessionID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("here").Valid())
}
