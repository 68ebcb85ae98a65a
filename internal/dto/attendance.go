package dto

import (
	"time"

	"github.com/noah-isme/dojaang-api/internal/models"
)

// Batch item outcomes other than the error codes of pkg/errors.
const OutcomeSuccess = "SUCCESS"

// RecordAttendanceRequest records a single enrollment's attendance for a day.
type RecordAttendanceRequest struct {
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status string  `json:"status" validate:"required,attendance_status"`
	Notes  *string `json:"notes" validate:"omitempty,max=500"`
}

// AttendanceEntry is one line of a batch submission.
type AttendanceEntry struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Notes     *string `json:"notes" validate:"omitempty,max=500"`
}

// RecordBatchRequest records attendance for many students of one class on one day.
// Entries are validated individually so one bad line does not reject the batch.
type RecordBatchRequest struct {
	Date    string            `json:"date" validate:"required,datetime=2006-01-02"`
	Entries []AttendanceEntry `json:"entries" validate:"required,min=1"`
}

// AttendanceItemResult reports the outcome of one batch entry.
type AttendanceItemResult struct {
	StudentID    string                   `json:"student_id"`
	Outcome      string                   `json:"outcome"`
	Message      string                   `json:"message,omitempty"`
	EnrollmentID string                   `json:"enrollment_id,omitempty"`
	Record       *models.AttendanceRecord `json:"record,omitempty"`
}

// Succeeded reports whether the entry was written.
func (r AttendanceItemResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// AttendanceBatchResult summarises a batch; successful items stay committed regardless of failures.
type AttendanceBatchResult struct {
	ClassID      string                 `json:"class_id"`
	Date         string                 `json:"date"`
	Results      []AttendanceItemResult `json:"results"`
	SuccessCount int                    `json:"success_count"`
	FailureCount int                    `json:"failure_count"`
}

// AttendanceHistoryQuery bounds a history read.
type AttendanceHistoryQuery struct {
	From *time.Time
	To   *time.Time
}

// ClassDaySheet is the roster-ordered attendance of a class on one date.
type ClassDaySheet struct {
	ClassID   string                      `json:"class_id"`
	ClassName string                      `json:"class_name"`
	Date      string                      `json:"date"`
	Rows      []models.AttendanceSheetRow `json:"rows"`
}

// ExportFormat selects the attendance export renderer.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportedFile carries rendered export content.
type ExportedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
