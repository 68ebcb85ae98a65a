package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
	"github.com/noah-isme/dojaang-api/pkg/export"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	ListByEnrollment(ctx context.Context, enrollmentID string, from, to *time.Time) ([]models.AttendanceRecord, error)
	ClassSheet(ctx context.Context, classID string, date time.Time) ([]models.AttendanceSheetRow, error)
	SummaryByEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error)
}

type enrollmentGate interface {
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	RequireActive(ctx context.Context, id string) (*models.Enrollment, error)
	ResolveStudents(ctx context.Context, classID string, studentIDs []string) (map[string]models.Enrollment, error)
}

type attendanceClassReader interface {
	FindByID(ctx context.Context, id string) (*models.TrainingClass, error)
}

// AttendanceConfig bounds batch writes and labels exports.
type AttendanceConfig struct {
	BatchMax    int
	ExportTitle string
}

// AttendanceService is the attendance ledger. Records are keyed by (enrollment, date) and
// only active enrollments accept writes.
type AttendanceService struct {
	repo        attendanceRepository
	enrollments enrollmentGate
	classes     attendanceClassReader
	renderers   map[dto.ExportFormat]export.Renderer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         AttendanceConfig
}

// NewAttendanceService constructs the service. CSV and PDF renderers are used when none are given.
func NewAttendanceService(repo attendanceRepository, enrollments enrollmentGate, classes attendanceClassReader, renderers map[dto.ExportFormat]export.Renderer, metrics *MetricsService, cfg AttendanceConfig, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 200
	}
	if cfg.ExportTitle == "" {
		cfg.ExportTitle = "Attendance sheet"
	}
	if renderers == nil {
		renderers = map[dto.ExportFormat]export.Renderer{
			dto.ExportFormatCSV: export.NewCSVExporter(),
			dto.ExportFormatPDF: export.NewPDFExporter(),
		}
	}
	return &AttendanceService{
		repo:        repo,
		enrollments: enrollments,
		classes:     classes,
		renderers:   renderers,
		metrics:     metrics,
		validator:   registerDomainValidations(validate),
		logger:      logger,
		cfg:         cfg,
	}
}

// Record stores the status of one enrollment on one date, replacing any earlier record for that date.
func (s *AttendanceService) Record(ctx context.Context, enrollmentID string, req dto.RecordAttendanceRequest, recordedBy string) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	record, err := s.record(ctx, enrollmentID, date, req.Status, req.Notes, recordedBy)
	if err != nil {
		s.metrics.RecordAttendanceWrite(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.RecordAttendanceWrite(dto.OutcomeSuccess)
	return record, nil
}

// RecordBatch records attendance for many students of one class on one date.
// Each entry succeeds or fails on its own; failures never roll back other entries.
func (s *AttendanceService) RecordBatch(ctx context.Context, classID string, req dto.RecordBatchRequest, recordedBy string) (*dto.AttendanceBatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance batch payload")
	}
	if len(req.Entries) > s.cfg.BatchMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds %d entries", s.cfg.BatchMax))
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}

	studentIDs := make([]string, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if entry.StudentID != "" {
			studentIDs = append(studentIDs, entry.StudentID)
		}
	}
	resolved, err := s.enrollments.ResolveStudents(ctx, classID, studentIDs)
	if err != nil {
		return nil, err
	}

	result := &dto.AttendanceBatchResult{ClassID: classID, Date: req.Date, Results: make([]dto.AttendanceItemResult, 0, len(req.Entries))}
	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		item := s.recordEntry(ctx, entry, date, resolved, seen, recordedBy)
		s.metrics.RecordAttendanceWrite(item.Outcome)
		if item.Succeeded() {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
		result.Results = append(result.Results, item)
	}

	if result.FailureCount > 0 {
		s.logger.Warn("attendance batch partially failed", zap.String("class_id", classID), zap.String("date", req.Date), zap.Int("failed", result.FailureCount), zap.Int("succeeded", result.SuccessCount))
	} else {
		s.logger.Info("attendance batch recorded", zap.String("class_id", classID), zap.String("date", req.Date), zap.Int("entries", result.SuccessCount))
	}
	return result, nil
}

func (s *AttendanceService) recordEntry(ctx context.Context, entry dto.AttendanceEntry, date time.Time, resolved map[string]models.Enrollment, seen map[string]struct{}, recordedBy string) dto.AttendanceItemResult {
	item := dto.AttendanceItemResult{StudentID: entry.StudentID}
	fail := func(err error) dto.AttendanceItemResult {
		appErr := appErrors.FromError(err)
		item.Outcome = appErr.Code
		item.Message = appErr.Message
		return item
	}

	if err := s.validator.Struct(entry); err != nil {
		return fail(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance entry"))
	}
	if _, dup := seen[entry.StudentID]; dup {
		return fail(appErrors.Clone(appErrors.ErrValidation, "student appears more than once in the batch"))
	}
	seen[entry.StudentID] = struct{}{}

	enrollment, ok := resolved[entry.StudentID]
	if !ok {
		return fail(appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this class"))
	}
	item.EnrollmentID = enrollment.ID

	record, err := s.record(ctx, enrollment.ID, date, entry.Status, entry.Notes, recordedBy)
	if err != nil {
		return fail(err)
	}
	item.Outcome = dto.OutcomeSuccess
	item.Record = record
	return item
}

func (s *AttendanceService) record(ctx context.Context, enrollmentID string, date time.Time, rawStatus string, notes *string, recordedBy string) (*models.AttendanceRecord, error) {
	status, err := models.ParseAttendanceStatus(rawStatus)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance status")
	}
	if _, err := s.enrollments.RequireActive(ctx, enrollmentID); err != nil {
		return nil, err
	}

	record := &models.AttendanceRecord{EnrollmentID: enrollmentID, AttendedOn: date, Status: status, Notes: trimNotes(notes)}
	if recordedBy != "" {
		record.RecordedBy = &recordedBy
	}
	saved, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return saved, nil
}

// History returns the enrollment's records in date order, optionally bounded by an inclusive range.
// Withdrawn enrollments stay readable.
func (s *AttendanceService) History(ctx context.Context, enrollmentID string, query dto.AttendanceHistoryQuery) ([]models.AttendanceRecord, error) {
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	if _, err := s.enrollments.Get(ctx, enrollmentID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByEnrollment(ctx, enrollmentID, query.From, query.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

// Summary counts the enrollment's records per status.
func (s *AttendanceService) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	if _, err := s.enrollments.Get(ctx, enrollmentID); err != nil {
		return nil, err
	}
	summary, err := s.repo.SummaryByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	summary.EnrollmentID = enrollmentID
	return summary, nil
}

// ClassDay returns the roster of a class on a date with whatever was recorded for each enrollment.
func (s *AttendanceService) ClassDay(ctx context.Context, classID, rawDate string) (*dto.ClassDaySheet, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	rows, err := s.repo.ClassSheet(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance sheet")
	}
	if rows == nil {
		rows = []models.AttendanceSheetRow{}
	}
	return &dto.ClassDaySheet{ClassID: class.ID, ClassName: class.Name, Date: date.Format(models.DateLayout), Rows: rows}, nil
}

// Export renders the class-day sheet in the requested format.
func (s *AttendanceService) Export(ctx context.Context, classID, rawDate string, format dto.ExportFormat) (*dto.ExportedFile, error) {
	renderer, ok := s.renderers[dto.ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	sheet, err := s.ClassDay(ctx, classID, rawDate)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title:    s.cfg.ExportTitle,
		Subtitle: fmt.Sprintf("%s, %s", sheet.ClassName, sheet.Date),
		Columns: []export.Column{
			{Header: "Student", Width: 3},
			{Header: "Student ID", Width: 2},
			{Header: "Status", Width: 1.5},
			{Header: "Notes", Width: 3},
		},
	}
	for _, row := range sheet.Rows {
		name := row.StudentID
		if row.StudentName != nil {
			name = *row.StudentName
		}
		status := ""
		if row.Status != nil {
			status = string(*row.Status)
		}
		notes := ""
		if row.Notes != nil {
			notes = *row.Notes
		}
		table.Rows = append(table.Rows, []string{name, row.StudentID, status, notes})
	}

	content, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance export")
	}
	return &dto.ExportedFile{
		Filename:    fmt.Sprintf("attendance_%s_%s.%s", classID, sheet.Date, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	return date, nil
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
