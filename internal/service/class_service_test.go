package service

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

func newClassServiceFixture(t *testing.T) (*ClassService, *memStore, sqlmock.Sqlmock, *memCache) {
	store := newMemStore()
	tx, mock := newTxProviderMock(t)
	cache := newMemCache()
	rosters := NewRosterCache(cache, nil, 0, zap.NewNop(), true)
	svc := NewClassService(memClasses{store}, memSlots{store}, memEnrollments{store}, memCoaches{store}, memDojaangs{store}, tx, rosters, NewMetricsService(), nil, zap.NewNop())
	return svc, store, mock, cache
}

func slotReq(day int, start, end string) dto.ScheduleSlotRequest {
	return dto.ScheduleSlotRequest{DayOfWeek: &day, StartTime: start, EndTime: end}
}

func classReq(coachID string, slots ...dto.ScheduleSlotRequest) dto.UpsertClassRequest {
	return dto.UpsertClassRequest{DojaangID: "dj-1", CoachID: coachID, Name: "Little Tigers", Schedules: slots}
}

func TestClassServiceCreate(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	detail, err := svc.Create(context.Background(), classReq("coach-1", slotReq(1, "18:00", "19:00"), slotReq(3, "18:00", "19:00")))
	require.NoError(t, err)
	assert.NotEmpty(t, detail.ID)
	assert.Len(t, detail.Schedules, 2)
	assert.Equal(t, models.TimeOfDay(18*60), detail.Schedules[0].StartTime)
	assert.Equal(t, []string{"coach-1"}, store.coachLocks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassServiceCreateAdjacentToExistingClass(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	store.seedClass("c-existing", "coach-1", "Adults", nil, interval(t, 1, "18:00", "19:00"))
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.Create(context.Background(), classReq("coach-1", slotReq(1, "19:00", "20:00")))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassServiceCreateConflict(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	store.seedClass("c-existing", "coach-1", "Adults", nil, interval(t, 1, "18:00", "19:00"))
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), classReq("coach-1", slotReq(1, "18:30", "19:30")))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	payload, ok := appErr.Details.(dto.ScheduleConflictPayload)
	require.True(t, ok)
	require.Len(t, payload.Conflicts, 1)
	assert.Equal(t, "c-existing", payload.Conflicts[0].ConflictingClassID)

	conflict, ok := AsScheduleConflict(err)
	require.True(t, ok)
	assert.Equal(t, "coach-1", conflict.CoachID)

	assert.Len(t, store.classes, 1, "nothing is persisted on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassServiceCreateOtherCoachIsFree(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	store.seedClass("c-existing", "coach-2", "Adults", nil, interval(t, 1, "18:00", "19:00"))
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.Create(context.Background(), classReq("coach-1", slotReq(1, "18:00", "19:00")))
	require.NoError(t, err)
}

func TestClassServiceCreateValidation(t *testing.T) {
	svc, _, mock, _ := newClassServiceFixture(t)

	cases := map[string]dto.UpsertClassRequest{
		"no_slots":        classReq("coach-1"),
		"start_after_end": classReq("coach-1", slotReq(1, "19:00", "18:00")),
		"bad_clock":       classReq("coach-1", slotReq(1, "7pm", "20:00")),
		"bad_weekday":     classReq("coach-1", slotReq(9, "18:00", "19:00")),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet(), "validation failures never open a transaction")
}

func TestClassServiceCreateOverlappingSlotsInRequest(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), classReq("coach-1", slotReq(2, "18:00", "19:00"), slotReq(2, "18:30", "19:30")))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err))

	conflict, ok := AsScheduleConflict(err)
	require.True(t, ok)
	require.Len(t, conflict.Conflicts, 1)
	require.NotNil(t, conflict.Conflicts[0].ConflictingCandidateIndex)
	assert.Equal(t, 1, *conflict.Conflicts[0].ConflictingCandidateIndex)
	assert.Empty(t, store.classes)
}

func TestClassServiceCreateUnknownReferences(t *testing.T) {
	svc, _, _, _ := newClassServiceFixture(t)

	_, err := svc.Create(context.Background(), classReq("coach-404", slotReq(1, "18:00", "19:00")))
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))

	req := classReq("coach-1", slotReq(1, "18:00", "19:00"))
	req.DojaangID = "dj-404"
	_, err = svc.Create(context.Background(), req)
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))
}

func TestClassServiceUpdateExcludesOwnSlots(t *testing.T) {
	svc, store, mock, cache := newClassServiceFixture(t)
	store.seedClass("c1", "coach-1", "Little Tigers", nil, interval(t, 1, "18:00", "19:00"))
	mock.ExpectBegin()
	mock.ExpectCommit()

	detail, err := svc.Update(context.Background(), "c1", classReq("coach-1", slotReq(1, "18:00", "19:30")))
	require.NoError(t, err)
	assert.Equal(t, "c1", store.lastExclude)
	require.Len(t, detail.Schedules, 1)
	assert.Equal(t, models.TimeOfDay(19*60+30), detail.Schedules[0].EndTime)
	assert.Contains(t, cache.deleted, RosterKey("c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassServiceUpdateConflictsWithOtherClass(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	store.seedClass("c1", "coach-1", "Little Tigers", nil, interval(t, 1, "17:00", "18:00"))
	store.seedClass("c2", "coach-1", "Adults", nil, interval(t, 1, "18:00", "19:00"))
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), "c1", classReq("coach-1", slotReq(1, "17:00", "18:30")))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err))
	assert.Equal(t, models.TimeOfDay(18*60), store.slots["c1"][0].EndTime, "original schedule kept")
}

func TestClassServiceUpdateCapacityBelowRoster(t *testing.T) {
	svc, store, mock, _ := newClassServiceFixture(t)
	store.seedClass("c1", "coach-1", "Little Tigers", nil, interval(t, 1, "17:00", "18:00"))
	store.seedEnrollment("e1", "c1", "stu-1", true)
	store.seedEnrollment("e2", "c1", "stu-2", true)
	mock.ExpectBegin()
	mock.ExpectRollback()

	req := classReq("coach-1", slotReq(1, "17:00", "18:00"))
	req.Capacity = intPtr(1)
	_, err := svc.Update(context.Background(), "c1", req)
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))
}

func TestClassServiceUpdateMissingClass(t *testing.T) {
	svc, _, mock, _ := newClassServiceFixture(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), "nope", classReq("coach-1", slotReq(1, "17:00", "18:00")))
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))
}

func TestClassServiceDelete(t *testing.T) {
	svc, store, mock, cache := newClassServiceFixture(t)
	store.seedClass("c1", "coach-1", "Little Tigers", nil, interval(t, 1, "17:00", "18:00"))
	store.seedEnrollment("e1", "c1", "stu-1", true)
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.False(t, store.enrollments["e1"].Active)
	assert.NotNil(t, store.enrollments["e1"].WithdrawnAt)
	assert.Empty(t, store.slots["c1"])
	assert.Contains(t, cache.deleted, RosterKey("c1"))

	_, err := svc.Get(context.Background(), "c1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))

	// the freed time can be booked again
	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Create(context.Background(), classReq("coach-1", slotReq(1, "17:00", "18:00")))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassServiceDeleteMissing(t *testing.T) {
	svc, _, mock, _ := newClassServiceFixture(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(svc.Delete(context.Background(), "nope")))
}

func TestClassServiceListAndCoachSchedule(t *testing.T) {
	svc, store, _, _ := newClassServiceFixture(t)
	store.seedClass("c1", "coach-1", "Adults", nil, interval(t, 3, "19:00", "20:00"))
	store.seedClass("c2", "coach-1", "Little Tigers", intPtr(12), interval(t, 1, "17:00", "18:00"))
	store.seedClass("c3", "coach-2", "Sparring", nil, interval(t, 1, "17:00", "18:00"))

	classes, pagination, err := svc.List(context.Background(), models.TrainingClassFilter{CoachID: "coach-1"})
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, "Adults", classes[0].Name)
	assert.Len(t, classes[0].Schedules, 1)

	slots, err := svc.CoachSchedule(context.Background(), "coach-1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "c2", slots[0].ClassID)

	_, err = svc.CoachSchedule(context.Background(), "coach-404")
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))
}
