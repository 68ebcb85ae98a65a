package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

type attendanceServiceMock struct {
	lastRecordedBy string
	lastQuery      dto.AttendanceHistoryQuery
	lastFormat     dto.ExportFormat
	historyCalled  bool
	recordErr      error
}

func (m *attendanceServiceMock) Record(ctx context.Context, enrollmentID string, req dto.RecordAttendanceRequest, recordedBy string) (*models.AttendanceRecord, error) {
	m.lastRecordedBy = recordedBy
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	return &models.AttendanceRecord{ID: "rec-1", EnrollmentID: enrollmentID, Status: models.AttendanceStatus(req.Status)}, nil
}

func (m *attendanceServiceMock) RecordBatch(ctx context.Context, classID string, req dto.RecordBatchRequest, recordedBy string) (*dto.AttendanceBatchResult, error) {
	m.lastRecordedBy = recordedBy
	result := &dto.AttendanceBatchResult{ClassID: classID, Date: req.Date}
	for _, entry := range req.Entries {
		result.Results = append(result.Results, dto.AttendanceItemResult{StudentID: entry.StudentID, Outcome: dto.OutcomeSuccess})
		result.SuccessCount++
	}
	return result, nil
}

func (m *attendanceServiceMock) History(ctx context.Context, enrollmentID string, query dto.AttendanceHistoryQuery) ([]models.AttendanceRecord, error) {
	m.historyCalled = true
	m.lastQuery = query
	return []models.AttendanceRecord{}, nil
}

func (m *attendanceServiceMock) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{EnrollmentID: enrollmentID, Present: 3, Total: 4, Percent: 75}, nil
}

func (m *attendanceServiceMock) ClassDay(ctx context.Context, classID, rawDate string) (*dto.ClassDaySheet, error) {
	return &dto.ClassDaySheet{ClassID: classID, Date: rawDate, Rows: []models.AttendanceSheetRow{}}, nil
}

func (m *attendanceServiceMock) Export(ctx context.Context, classID, rawDate string, format dto.ExportFormat) (*dto.ExportedFile, error) {
	m.lastFormat = format
	return &dto.ExportedFile{Filename: "attendance_" + classID + "_" + rawDate + ".csv", ContentType: "text/csv", Content: []byte("Student,Status\n")}, nil
}

func TestAttendanceHandlerRecordUsesPrincipal(t *testing.T) {
	svc := &attendanceServiceMock{}
	handler := NewAttendanceHandler(svc, &enrollmentServiceMock{})
	coach := &models.JWTClaims{UserID: "coach-1", Role: models.RoleCoach}
	c, w := newTestContext(http.MethodPut, "/enrollments/enr-1/attendance", `{"date":"2024-03-04","status":"PRESENT"}`, coach, gin.Param{Key: "id", Value: "enr-1"})
	handler.Record(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "coach-1", svc.lastRecordedBy)
}

func TestAttendanceHandlerRecordWithdrawnConflict(t *testing.T) {
	svc := &attendanceServiceMock{recordErr: appErrors.Clone(appErrors.ErrConflict, "enrollment is not active")}
	handler := NewAttendanceHandler(svc, &enrollmentServiceMock{})
	c, w := newTestContext(http.MethodPut, "/enrollments/enr-1/attendance", `{"date":"2024-03-04","status":"PRESENT"}`, admin, gin.Param{Key: "id", Value: "enr-1"})
	handler.Record(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAttendanceHandlerRecordBatch(t *testing.T) {
	handler := NewAttendanceHandler(&attendanceServiceMock{}, &enrollmentServiceMock{})
	body := `{"date":"2024-03-04","entries":[{"student_id":"stu-1","status":"PRESENT"},{"student_id":"stu-2","status":"LATE"}]}`
	c, w := newTestContext(http.MethodPost, "/classes/class-1/attendance", body, admin, gin.Param{Key: "id", Value: "class-1"})
	handler.RecordBatch(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"success_count":2`)
}

func TestAttendanceHandlerHistoryParsesRange(t *testing.T) {
	svc := &attendanceServiceMock{}
	handler := NewAttendanceHandler(svc, &enrollmentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/enrollments/enr-1/attendance?from=2024-03-01&to=2024-03-31", "", admin, gin.Param{Key: "id", Value: "enr-1"})
	handler.History(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastQuery.From)
	require.NotNil(t, svc.lastQuery.To)
	assert.Equal(t, "2024-03-01", svc.lastQuery.From.Format("2006-01-02"))
	assert.Equal(t, "2024-03-31", svc.lastQuery.To.Format("2006-01-02"))
}

func TestAttendanceHandlerHistoryRejectsBadDate(t *testing.T) {
	svc := &attendanceServiceMock{}
	handler := NewAttendanceHandler(svc, &enrollmentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/enrollments/enr-1/attendance?from=03/01/2024", "", admin, gin.Param{Key: "id", Value: "enr-1"})
	handler.History(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.historyCalled)
}

func TestAttendanceHandlerStudentOwnership(t *testing.T) {
	enrollments := &enrollmentServiceMock{detail: &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1"}}}

	owner := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	svc := &attendanceServiceMock{}
	c, w := newTestContext(http.MethodGet, "/enrollments/enr-1/attendance", "", owner, gin.Param{Key: "id", Value: "enr-1"})
	NewAttendanceHandler(svc, enrollments).History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.historyCalled)

	stranger := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	svc = &attendanceServiceMock{}
	c, w = newTestContext(http.MethodGet, "/enrollments/enr-1/attendance", "", stranger, gin.Param{Key: "id", Value: "enr-1"})
	NewAttendanceHandler(svc, enrollments).History(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, svc.historyCalled)

	c, w = newTestContext(http.MethodGet, "/enrollments/enr-1/attendance/summary", "", stranger, gin.Param{Key: "id", Value: "enr-1"})
	NewAttendanceHandler(svc, enrollments).Summary(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttendanceHandlerSummary(t *testing.T) {
	handler := NewAttendanceHandler(&attendanceServiceMock{}, &enrollmentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/enrollments/enr-1/attendance/summary", "", admin, gin.Param{Key: "id", Value: "enr-1"})
	handler.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"percent":75`)
}

func TestAttendanceHandlerClassDay(t *testing.T) {
	handler := NewAttendanceHandler(&attendanceServiceMock{}, &enrollmentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/classes/class-1/attendance?date=2024-03-04", "", admin, gin.Param{Key: "id", Value: "class-1"})
	handler.ClassDay(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"date":"2024-03-04"`)
}

func TestAttendanceHandlerExport(t *testing.T) {
	svc := &attendanceServiceMock{}
	handler := NewAttendanceHandler(svc, &enrollmentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/classes/class-1/attendance/export?date=2024-03-04", "", admin, gin.Param{Key: "id", Value: "class-1"})
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportFormatCSV, svc.lastFormat)
	assert.Equal(t, `attachment; filename="attendance_class-1_2024-03-04.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "Student,Status\n", w.Body.String())
}
