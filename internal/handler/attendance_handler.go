package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
	"github.com/noah-isme/dojaang-api/pkg/response"
)

type attendanceService interface {
	Record(ctx context.Context, enrollmentID string, req dto.RecordAttendanceRequest, recordedBy string) (*models.AttendanceRecord, error)
	RecordBatch(ctx context.Context, classID string, req dto.RecordBatchRequest, recordedBy string) (*dto.AttendanceBatchResult, error)
	History(ctx context.Context, enrollmentID string, query dto.AttendanceHistoryQuery) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error)
	ClassDay(ctx context.Context, classID, rawDate string) (*dto.ClassDaySheet, error)
	Export(ctx context.Context, classID, rawDate string, format dto.ExportFormat) (*dto.ExportedFile, error)
}

type enrollmentReader interface {
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

// AttendanceHandler exposes the attendance ledger.
type AttendanceHandler struct {
	attendance  attendanceService
	enrollments enrollmentReader
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService, enrollments enrollmentReader) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, enrollments: enrollments}
}

// Record godoc
// @Summary Record attendance for one enrollment
// @Description Writing the same date twice replaces the earlier status.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.RecordAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/attendance [put]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req dto.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	record, err := h.attendance.Record(c.Request.Context(), c.Param("id"), req, recordedBy(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// RecordBatch godoc
// @Summary Record attendance for a class
// @Description Each entry succeeds or fails on its own; the response lists per-student outcomes.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.RecordBatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendance [post]
func (h *AttendanceHandler) RecordBatch(c *gin.Context) {
	var req dto.RecordBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.attendance.RecordBatch(c.Request.Context(), c.Param("id"), req, recordedBy(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary Attendance history of an enrollment
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/attendance [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	id := c.Param("id")
	if err := h.authorizeEnrollment(c, id); err != nil {
		response.Error(c, err)
		return
	}
	var query dto.AttendanceHistoryQuery
	var err error
	if query.From, err = optionalDate(c.Query("from"), "from"); err != nil {
		response.Error(c, err)
		return
	}
	if query.To, err = optionalDate(c.Query("to"), "to"); err != nil {
		response.Error(c, err)
		return
	}

	records, err := h.attendance.History(c.Request.Context(), id, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Attendance summary of an enrollment
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	id := c.Param("id")
	if err := h.authorizeEnrollment(c, id); err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.attendance.Summary(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ClassDay godoc
// @Summary Attendance sheet of a class for one date
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendance [get]
func (h *AttendanceHandler) ClassDay(c *gin.Context) {
	sheet, err := h.attendance.ClassDay(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Export godoc
// @Summary Export the attendance sheet of a class
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /classes/{id}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	format := dto.ExportFormat(c.DefaultQuery("format", string(dto.ExportFormatCSV)))
	file, err := h.attendance.Export(c.Request.Context(), c.Param("id"), c.Query("date"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// authorizeEnrollment limits students to their own enrollments. Other roles pass through.
func (h *AttendanceHandler) authorizeEnrollment(c *gin.Context, enrollmentID string) error {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleStudent {
		return nil
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), enrollmentID)
	if err != nil {
		return err
	}
	if enrollment.StudentID != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	return nil
}

func optionalDate(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be a date in YYYY-MM-DD format")
	}
	return &parsed, nil
}
