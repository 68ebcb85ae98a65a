package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// memStore backs the in-memory repository fakes below.
type memStore struct {
	seq         int
	classes     map[string]*models.TrainingClass
	slots       map[string][]models.ScheduleSlot
	enrollments map[string]*models.Enrollment
	records     map[string]*models.AttendanceRecord
	students    map[string]string
	coaches     map[string]string
	dojaangs    map[string]string

	coachLocks  []string
	lastExclude string
	upsertErr   error
	createErr   error
}

func newMemStore() *memStore {
	return &memStore{
		classes:     map[string]*models.TrainingClass{},
		slots:       map[string][]models.ScheduleSlot{},
		enrollments: map[string]*models.Enrollment{},
		records:     map[string]*models.AttendanceRecord{},
		students:    map[string]string{"stu-1": "Ahn Soo", "stu-2": "Baek Min", "stu-3": "Choi Ha"},
		coaches:     map[string]string{"coach-1": "Master Kim", "coach-2": "Master Park"},
		dojaangs:    map[string]string{"dj-1": "Central Dojaang"},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) liveClass(id string) (*models.TrainingClass, bool) {
	class, ok := m.classes[id]
	if !ok || class.DeletedAt != nil {
		return nil, false
	}
	return class, true
}

func (m *memStore) activeCount(classID string) int {
	count := 0
	for _, e := range m.enrollments {
		if e.ClassID == classID && e.Active {
			count++
		}
	}
	return count
}

// seedClass stores a class with the given slots directly.
func (m *memStore) seedClass(id, coachID, name string, capacity *int, intervals ...models.TimeInterval) {
	m.classes[id] = &models.TrainingClass{ID: id, DojaangID: "dj-1", CoachID: coachID, Name: name, Capacity: capacity}
	slots := make([]models.ScheduleSlot, 0, len(intervals))
	for _, iv := range intervals {
		slots = append(slots, models.ScheduleSlot{ID: m.nextID("slot"), ClassID: id, DayOfWeek: iv.Day, StartTime: iv.Start, EndTime: iv.End})
	}
	m.slots[id] = slots
}

func (m *memStore) seedEnrollment(id, classID, studentID string, active bool) *models.Enrollment {
	e := &models.Enrollment{ID: id, ClassID: classID, StudentID: studentID, Active: active, EnrolledOn: time.Now().UTC()}
	if !active {
		at := time.Now().UTC()
		e.WithdrawnAt = &at
	}
	m.enrollments[id] = e
	return e
}

type memClasses struct{ s *memStore }

func (r memClasses) List(ctx context.Context, filter models.TrainingClassFilter) ([]models.TrainingClassDetail, int, error) {
	var out []models.TrainingClassDetail
	for _, class := range r.s.classes {
		if class.DeletedAt != nil {
			continue
		}
		if filter.CoachID != "" && class.CoachID != filter.CoachID {
			continue
		}
		out = append(out, models.TrainingClassDetail{TrainingClass: *class, ActiveEnrollments: r.s.activeCount(class.ID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r memClasses) FindByID(ctx context.Context, id string) (*models.TrainingClass, error) {
	class, ok := r.s.liveClass(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *class
	return &copied, nil
}

func (r memClasses) FindDetailByID(ctx context.Context, id string) (*models.TrainingClassDetail, error) {
	class, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	coach := r.s.coaches[class.CoachID]
	return &models.TrainingClassDetail{TrainingClass: *class, CoachName: &coach, ActiveEnrollments: r.s.activeCount(id)}, nil
}

func (r memClasses) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error) {
	return r.FindByID(ctx, id)
}

func (r memClasses) Create(ctx context.Context, exec sqlx.ExtContext, class *models.TrainingClass) error {
	class.ID = r.s.nextID("class")
	copied := *class
	r.s.classes[class.ID] = &copied
	return nil
}

func (r memClasses) Update(ctx context.Context, exec sqlx.ExtContext, class *models.TrainingClass) error {
	copied := *class
	r.s.classes[class.ID] = &copied
	return nil
}

func (r memClasses) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	if class, ok := r.s.classes[id]; ok {
		class.DeletedAt = &at
	}
	return nil
}

type memSlots struct{ s *memStore }

func (r memSlots) LockCoach(ctx context.Context, exec sqlx.ExtContext, coachID string) error {
	r.s.coachLocks = append(r.s.coachLocks, coachID)
	return nil
}

func (r memSlots) ListByCoach(ctx context.Context, exec sqlx.ExtContext, coachID, excludeClassID string) ([]models.CoachSlot, error) {
	r.s.lastExclude = excludeClassID
	var out []models.CoachSlot
	for id, class := range r.s.classes {
		if class.DeletedAt != nil || class.CoachID != coachID || id == excludeClassID {
			continue
		}
		for _, slot := range r.s.slots[id] {
			out = append(out, models.CoachSlot{SlotID: slot.ID, ClassID: id, ClassName: class.Name, DojaangID: class.DojaangID, DayOfWeek: slot.DayOfWeek, StartTime: slot.StartTime, EndTime: slot.EndTime})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r memSlots) ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error) {
	return append([]models.ScheduleSlot(nil), r.s.slots[classID]...), nil
}

func (r memSlots) ListByClassIDs(ctx context.Context, classIDs []string) (map[string][]models.ScheduleSlot, error) {
	out := map[string][]models.ScheduleSlot{}
	for _, id := range classIDs {
		if slots, ok := r.s.slots[id]; ok {
			out[id] = append([]models.ScheduleSlot(nil), slots...)
		}
	}
	return out, nil
}

func (r memSlots) ReplaceForClass(ctx context.Context, exec sqlx.ExtContext, classID string, slots []models.ScheduleSlot) error {
	stored := make([]models.ScheduleSlot, 0, len(slots))
	for _, slot := range slots {
		slot.ID = r.s.nextID("slot")
		slot.ClassID = classID
		stored = append(stored, slot)
	}
	r.s.slots[classID] = stored
	return nil
}

func (r memSlots) DeleteByClass(ctx context.Context, exec sqlx.ExtContext, classID string) error {
	delete(r.s.slots, classID)
	return nil
}

type memEnrollments struct{ s *memStore }

func (r memEnrollments) detail(e *models.Enrollment) models.EnrollmentDetail {
	name := r.s.students[e.StudentID]
	detail := models.EnrollmentDetail{Enrollment: *e, StudentName: &name}
	if class, ok := r.s.classes[e.ClassID]; ok {
		detail.ClassName = &class.Name
	}
	return detail
}

func (r memEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range r.s.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		if filter.Active != nil && e.Active != *filter.Active {
			continue
		}
		out = append(out, r.detail(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r memEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (r memEnrollments) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := r.detail(e)
	return &detail, nil
}

func (r memEnrollments) FindActive(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.Enrollment, error) {
	for _, e := range r.s.enrollments {
		if e.ClassID == classID && e.StudentID == studentID && e.Active {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memEnrollments) FindLatestWithdrawn(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.Enrollment, error) {
	var latest *models.Enrollment
	for _, e := range r.s.enrollments {
		if e.ClassID != classID || e.StudentID != studentID || e.Active {
			continue
		}
		if latest == nil || (e.WithdrawnAt != nil && latest.WithdrawnAt != nil && e.WithdrawnAt.After(*latest.WithdrawnAt)) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r memEnrollments) CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	return r.s.activeCount(classID), nil
}

func (r memEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if r.s.createErr != nil {
		return r.s.createErr
	}
	if _, err := r.FindActive(ctx, exec, enrollment.ClassID, enrollment.StudentID); err == nil {
		return fmt.Errorf("create enrollment: %w", &pq.Error{Code: "23505"})
	}
	enrollment.ID = r.s.nextID("enr")
	copied := *enrollment
	r.s.enrollments[enrollment.ID] = &copied
	return nil
}

func (r memEnrollments) Reactivate(ctx context.Context, exec sqlx.ExtContext, id string, enrolledOn time.Time) error {
	if e, ok := r.s.enrollments[id]; ok && !e.Active {
		e.Active = true
		e.WithdrawnAt = nil
		e.EnrolledOn = enrolledOn
	}
	return nil
}

func (r memEnrollments) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	e, ok := r.s.enrollments[id]
	if !ok || !e.Active {
		return false, nil
	}
	e.Active = false
	e.WithdrawnAt = &at
	return true, nil
}

func (r memEnrollments) DeactivateByClass(ctx context.Context, exec sqlx.ExtContext, classID string, at time.Time) (int64, error) {
	var changed int64
	for _, e := range r.s.enrollments {
		if e.ClassID == classID && e.Active {
			e.Active = false
			stamp := at
			e.WithdrawnAt = &stamp
			changed++
		}
	}
	return changed, nil
}

func (r memEnrollments) ListActiveByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range r.s.enrollments {
		if e.ClassID == classID && e.Active {
			out = append(out, r.detail(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].StudentName < *out[j].StudentName })
	return out, nil
}

func (r memEnrollments) ListByClassAndStudents(ctx context.Context, classID string, studentIDs []string) ([]models.Enrollment, error) {
	wanted := map[string]bool{}
	for _, id := range studentIDs {
		wanted[id] = true
	}
	var out []models.Enrollment
	for _, e := range r.s.enrollments {
		if e.ClassID == classID && wanted[e.StudentID] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memAttendance struct{ s *memStore }

func attendanceKey(enrollmentID string, date time.Time) string {
	return enrollmentID + "|" + date.Format(models.DateLayout)
}

func (r memAttendance) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if r.s.upsertErr != nil {
		return nil, r.s.upsertErr
	}
	key := attendanceKey(record.EnrollmentID, record.AttendedOn)
	if existing, ok := r.s.records[key]; ok {
		existing.Status = record.Status
		existing.Notes = record.Notes
		existing.RecordedBy = record.RecordedBy
		copied := *existing
		return &copied, nil
	}
	stored := *record
	stored.ID = r.s.nextID("att")
	r.s.records[key] = &stored
	copied := stored
	return &copied, nil
}

func (r memAttendance) ListByEnrollment(ctx context.Context, enrollmentID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	for _, rec := range r.s.records {
		if rec.EnrollmentID != enrollmentID {
			continue
		}
		if from != nil && rec.AttendedOn.Before(*from) {
			continue
		}
		if to != nil && rec.AttendedOn.After(*to) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttendedOn.Before(out[j].AttendedOn) })
	return out, nil
}

func (r memAttendance) ClassSheet(ctx context.Context, classID string, date time.Time) ([]models.AttendanceSheetRow, error) {
	var out []models.AttendanceSheetRow
	for _, e := range r.s.enrollments {
		if e.ClassID != classID {
			continue
		}
		rec, recorded := r.s.records[attendanceKey(e.ID, date)]
		if !e.Active && !recorded {
			continue
		}
		name := r.s.students[e.StudentID]
		row := models.AttendanceSheetRow{EnrollmentID: e.ID, StudentID: e.StudentID, StudentName: &name, Active: e.Active}
		if recorded {
			status := rec.Status
			row.RecordID = &rec.ID
			row.Status = &status
			row.Notes = rec.Notes
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].StudentName < *out[j].StudentName })
	return out, nil
}

func (r memAttendance) SummaryByEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	summary := &models.AttendanceSummary{EnrollmentID: enrollmentID}
	for _, rec := range r.s.records {
		if rec.EnrollmentID == enrollmentID {
			summary.Add(rec.Status, 1)
		}
	}
	return summary, nil
}

type memStudents struct{ s *memStore }

func (r memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	name, ok := r.s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Student{ID: id, FullName: name, Active: true}, nil
}

type memCoaches struct{ s *memStore }

func (r memCoaches) FindByID(ctx context.Context, id string) (*models.Coach, error) {
	name, ok := r.s.coaches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Coach{ID: id, FullName: name, Active: true}, nil
}

type memDojaangs struct{ s *memStore }

func (r memDojaangs) FindByID(ctx context.Context, id string) (*models.Dojaang, error) {
	name, ok := r.s.dojaangs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Dojaang{ID: id, Name: name}, nil
}

// memCache stores JSON payloads like the Redis repository does.
type memCache struct {
	values  map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{values: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func interval(t *testing.T, day int, start, end string) models.TimeInterval {
	t.Helper()
	s, err := models.ParseTimeOfDay(start)
	require.NoError(t, err)
	e, err := models.ParseTimeOfDay(end)
	require.NoError(t, err)
	return models.TimeInterval{Day: models.Weekday(day), Start: s, End: e}
}

func intPtr(v int) *int { return &v }

func appCode(err error) string {
	if err == nil {
		return ""
	}
	return appErrors.FromError(err).Code
}
