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

const trainingClassColumns = `c.id, c.dojaang_id, c.coach_id, c.name, c.description, c.capacity, c.created_at, c.updated_at, c.deleted_at`

// TrainingClassRepository manages persistence for training classes.
type TrainingClassRepository struct {
	db *sqlx.DB
}

// NewTrainingClassRepository constructs a new class repository.
func NewTrainingClassRepository(db *sqlx.DB) *TrainingClassRepository {
	return &TrainingClassRepository{db: db}
}

func (r *TrainingClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns live classes matching filter criteria with their active enrollment counts.
func (r *TrainingClassRepository) List(ctx context.Context, filter models.TrainingClassFilter) ([]models.TrainingClassDetail, int, error) {
	base := `FROM training_classes c
LEFT JOIN dojaangs d ON d.id = c.dojaang_id
LEFT JOIN coaches co ON co.id = c.coach_id
WHERE c.deleted_at IS NULL`
	var conditions []string
	var args []interface{}

	if filter.DojaangID != "" {
		conditions = append(conditions, fmt.Sprintf("c.dojaang_id = $%d", len(args)+1))
		args = append(args, filter.DojaangID)
	}
	if filter.CoachID != "" {
		conditions = append(conditions, fmt.Sprintf("c.coach_id = $%d", len(args)+1))
		args = append(args, filter.CoachID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"created_at": "c.created_at",
		"updated_at": "c.updated_at",
	}
	sortColumn, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortColumn = "c.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT %s, d.name AS dojaang_name, co.full_name AS coach_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.active) AS active_enrollments
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, trainingClassColumns, base, sortColumn, order, size, offset)
	var classes []models.TrainingClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list training classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count training classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a live class record by ID.
func (r *TrainingClassRepository) FindByID(ctx context.Context, id string) (*models.TrainingClass, error) {
	query := `SELECT ` + trainingClassColumns + ` FROM training_classes c WHERE c.id = $1 AND c.deleted_at IS NULL`
	var class models.TrainingClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a live class with reference names and its active enrollment count.
func (r *TrainingClassRepository) FindDetailByID(ctx context.Context, id string) (*models.TrainingClassDetail, error) {
	query := `SELECT ` + trainingClassColumns + `, d.name AS dojaang_name, co.full_name AS coach_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.active) AS active_enrollments
        FROM training_classes c
        LEFT JOIN dojaangs d ON d.id = c.dojaang_id
        LEFT JOIN coaches co ON co.id = c.coach_id
        WHERE c.id = $1 AND c.deleted_at IS NULL`
	var detail models.TrainingClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockByID loads a live class and holds a row lock until the surrounding transaction ends.
func (r *TrainingClassRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error) {
	query := `SELECT ` + trainingClassColumns + ` FROM training_classes c WHERE c.id = $1 AND c.deleted_at IS NULL FOR UPDATE`
	var class models.TrainingClass
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a class row. Slots are stored separately.
func (r *TrainingClassRepository) Create(ctx context.Context, exec sqlx.ExtContext, class *models.TrainingClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO training_classes (id, dojaang_id, coach_id, name, description, capacity, created_at, updated_at)
VALUES (:id, :dojaang_id, :coach_id, :name, :description, :capacity, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class); err != nil {
		return fmt.Errorf("create training class: %w", err)
	}
	return nil
}

// Update modifies the mutable columns of a class.
func (r *TrainingClassRepository) Update(ctx context.Context, exec sqlx.ExtContext, class *models.TrainingClass) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE training_classes SET dojaang_id = :dojaang_id, coach_id = :coach_id, name = :name, description = :description, capacity = :capacity, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class); err != nil {
		return fmt.Errorf("update training class: %w", err)
	}
	return nil
}

// SoftDelete hides a class from catalog reads while keeping its id referencable by enrollments.
func (r *TrainingClassRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE training_classes SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("delete training class: %w", err)
	}
	return nil
}
