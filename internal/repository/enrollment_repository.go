package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/dojaang-api/internal/models"
)

const enrollmentColumns = `id, student_id, class_id, enrolled_on, active, withdrawn_at, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN training_classes c ON c.id = e.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("e.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_on":  "e.enrolled_on",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	orderBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		orderBy = "e.enrolled_on"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.enrolled_on, e.active, e.withdrawn_at, e.created_at, e.updated_at,
        s.full_name AS student_name, c.name AS class_name
        %s ORDER BY %s %s, e.id ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.enrolled_on, e.active, e.withdrawn_at, e.created_at, e.updated_at,
        s.full_name AS student_name, c.name AS class_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN training_classes c ON c.id = e.class_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActive returns the active enrollment for a (class, student) pair or sql.ErrNoRows.
func (r *EnrollmentRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE class_id = $1 AND student_id = $2 AND active LIMIT 1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, classID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindLatestWithdrawn returns the most recently withdrawn enrollment for a pair, or nil when none exists.
func (r *EnrollmentRepository) FindLatestWithdrawn(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE class_id = $1 AND student_id = $2 AND NOT active
ORDER BY withdrawn_at DESC NULLS LAST, created_at DESC LIMIT 1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, classID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find withdrawn enrollment: %w", err)
	}
	return &enrollment, nil
}

// CountActiveByClass counts active enrollments of a class.
func (r *EnrollmentRepository) CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND active`, classID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledOn.IsZero() {
		enrollment.EnrolledOn = now.Truncate(24 * time.Hour)
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, class_id, enrolled_on, active, withdrawn_at, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :enrolled_on, :active, :withdrawn_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Reactivate flips a withdrawn enrollment back to active.
func (r *EnrollmentRepository) Reactivate(ctx context.Context, exec sqlx.ExtContext, id string, enrolledOn time.Time) error {
	const query = `UPDATE enrollments SET active = TRUE, withdrawn_at = NULL, enrolled_on = $2, updated_at = $3 WHERE id = $1 AND NOT active`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, enrolledOn, time.Now().UTC()); err != nil {
		return fmt.Errorf("reactivate enrollment: %w", err)
	}
	return nil
}

// Deactivate withdraws an active enrollment. It reports whether a row changed state.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	const query = `UPDATE enrollments SET active = FALSE, withdrawn_at = $2, updated_at = $2 WHERE id = $1 AND active`
	res, err := r.exec(exec).ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("deactivate enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate enrollment rows: %w", err)
	}
	return affected > 0, nil
}

// DeactivateByClass withdraws every active enrollment of a class and returns how many changed.
func (r *EnrollmentRepository) DeactivateByClass(ctx context.Context, exec sqlx.ExtContext, classID string, at time.Time) (int64, error) {
	const query = `UPDATE enrollments SET active = FALSE, withdrawn_at = $2, updated_at = $2 WHERE class_id = $1 AND active`
	res, err := r.exec(exec).ExecContext(ctx, query, classID, at)
	if err != nil {
		return 0, fmt.Errorf("deactivate class enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate class enrollments rows: %w", err)
	}
	return affected, nil
}

// ListActiveByClass returns the active roster of a class ordered by student name.
func (r *EnrollmentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.enrolled_on, e.active, e.withdrawn_at, e.created_at, e.updated_at,
        s.full_name AS student_name, c.name AS class_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN training_classes c ON c.id = e.class_id
        WHERE e.class_id = $1 AND e.active
        ORDER BY s.full_name ASC NULLS LAST, e.enrolled_on ASC, e.id ASC`
	var roster []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return roster, nil
}

// ListByClassAndStudents returns every enrollment, active or not, of the given students in a class.
// Active rows come first for each student.
func (r *EnrollmentRepository) ListByClassAndStudents(ctx context.Context, classID string, studentIDs []string) ([]models.Enrollment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE class_id = $1 AND student_id = ANY($2)
ORDER BY student_id ASC, active DESC, updated_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list enrollments by students: %w", err)
	}
	return enrollments, nil
}
