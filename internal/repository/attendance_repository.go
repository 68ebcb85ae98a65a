package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dojaang-api/internal/models"
)

const attendanceColumns = `id, enrollment_id, attended_on, status, notes, recorded_by, created_at, updated_at`

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts a record or overwrites status/notes of the existing one for the same enrollment and day.
// Concurrent writers resolve to the last committed write through the (enrollment_id, attended_on) constraint.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance_records (` + attendanceColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (enrollment_id, attended_on)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceColumns
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.EnrollmentID, record.AttendedOn, record.Status, record.Notes, record.RecordedBy, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &stored, nil
}

// ListByEnrollment returns an enrollment's records in chronological order.
func (r *AttendanceRepository) ListByEnrollment(ctx context.Context, enrollmentID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	where := []string{"enrollment_id = $1"}
	args := []interface{}{enrollmentID}
	if from != nil {
		where = append(where, fmt.Sprintf("attended_on >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("attended_on <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY attended_on ASC`, attendanceColumns, strings.Join(where, " AND "))
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollment attendance: %w", err)
	}
	return rows, nil
}

// ClassSheet returns the roster of a class on a date: every active enrollment plus any
// withdrawn enrollment that already has a record that day, ordered by student name.
func (r *AttendanceRepository) ClassSheet(ctx context.Context, classID string, date time.Time) ([]models.AttendanceSheetRow, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, s.full_name AS student_name, e.active,
       ar.id AS record_id, ar.status, ar.notes
FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN attendance_records ar ON ar.enrollment_id = e.id AND ar.attended_on = $2
WHERE e.class_id = $1 AND (e.active OR ar.id IS NOT NULL)
ORDER BY s.full_name ASC NULLS LAST, e.enrolled_on ASC, e.id ASC`
	var rows []models.AttendanceSheetRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, date); err != nil {
		return nil, fmt.Errorf("class attendance sheet: %w", err)
	}
	return rows, nil
}

// SummaryByEnrollment aggregates status counts for an enrollment.
func (r *AttendanceRepository) SummaryByEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	const query = `SELECT status, COUNT(*) AS cnt FROM attendance_records WHERE enrollment_id = $1 GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	summary := &models.AttendanceSummary{EnrollmentID: enrollmentID}
	for _, row := range rows {
		summary.Add(models.AttendanceStatus(row.Status), row.Count)
	}
	return summary, nil
}
