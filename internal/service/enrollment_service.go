package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindActive(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.Enrollment, error)
	FindLatestWithdrawn(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.Enrollment, error)
	CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Reactivate(ctx context.Context, exec sqlx.ExtContext, id string, enrolledOn time.Time) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error)
	ListActiveByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error)
	ListByClassAndStudents(ctx context.Context, classID string, studentIDs []string) ([]models.Enrollment, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentClassReader interface {
	FindByID(ctx context.Context, id string) (*models.TrainingClass, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error)
}

// EnrollmentService manages student membership of classes.
// A student holds at most one active enrollment per class; withdrawals keep the row for history.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	classes   enrollmentClassReader
	tx        txProvider
	rosters   *RosterCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, classes enrollmentClassReader, tx txProvider, rosters *RosterCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		classes:   classes,
		tx:        tx,
		rosters:   rosters,
		metrics:   metrics,
		validator: registerDomainValidations(validate),
		logger:    logger,
	}
}

// List returns enrollments with pagination.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an enrollment detail, active or withdrawn.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	return detail, nil
}

// Enroll adds the student to the class roster. A previously withdrawn enrollment of the same pair is
// reactivated so its attendance history continues under the same id.
func (s *EnrollmentService) Enroll(ctx context.Context, classID string, req dto.EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}

	var enrollmentID string
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		class, err := s.classes.LockByID(ctx, tx, classID)
		if err != nil {
			return notFoundOr(err, "class not found", "failed to load class")
		}

		if _, err := s.repo.FindActive(ctx, tx, classID, req.StudentID); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this class")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}

		if class.Capacity != nil {
			active, err := s.repo.CountActiveByClass(ctx, tx, classID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
			}
			if !class.HasCapacityFor(active) {
				return appErrors.Clone(appErrors.ErrCapacity, "class is full")
			}
		}

		today := time.Now().UTC().Truncate(24 * time.Hour)
		withdrawn, err := s.repo.FindLatestWithdrawn(ctx, tx, classID, req.StudentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
		}
		if withdrawn != nil {
			if err := s.repo.Reactivate(ctx, tx, withdrawn.ID, today); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
			}
			enrollmentID = withdrawn.ID
			return nil
		}

		enrollment := &models.Enrollment{StudentID: req.StudentID, ClassID: classID, EnrolledOn: today, Active: true}
		if err := s.repo.Create(ctx, tx, enrollment); err != nil {
			if isUniqueViolation(err) {
				return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student is already enrolled in this class")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		enrollmentID = enrollment.ID
		return nil
	})
	if err != nil {
		s.metrics.RecordEnrollment("enroll", appErrors.FromError(err).Code)
		return nil, err
	}

	s.metrics.RecordEnrollment("enroll", dto.OutcomeSuccess)
	s.rosters.Invalidate(ctx, classID)
	s.logger.Info("student enrolled", zap.String("enrollment_id", enrollmentID), zap.String("class_id", classID), zap.String("student_id", req.StudentID))
	return s.Get(ctx, enrollmentID)
}

// Withdraw deactivates an enrollment. Withdrawing an inactive enrollment is a no-op.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	if enrollment.Active {
		changed, err := s.repo.Deactivate(ctx, nil, id, time.Now().UTC())
		if err != nil {
			s.metrics.RecordEnrollment("withdraw", appErrors.ErrInternal.Code)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
		}
		if changed {
			s.rosters.Invalidate(ctx, enrollment.ClassID)
			s.logger.Info("student withdrawn", zap.String("enrollment_id", id), zap.String("class_id", enrollment.ClassID))
		}
	}
	s.metrics.RecordEnrollment("withdraw", dto.OutcomeSuccess)
	return s.Get(ctx, id)
}

// Roster lists the active enrollments of a live class. The boolean reports a cache hit.
func (s *EnrollmentService) Roster(ctx context.Context, classID string) ([]models.EnrollmentDetail, bool, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, false, notFoundOr(err, "class not found", "failed to load class")
	}
	if roster, hit := s.rosters.Get(ctx, classID); hit {
		return roster, true, nil
	}
	roster, err := s.repo.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if roster == nil {
		roster = []models.EnrollmentDetail{}
	}
	s.rosters.Set(ctx, classID, roster)
	return roster, false, nil
}

// RequireActive returns the enrollment when it exists and is active.
func (s *EnrollmentService) RequireActive(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	if !enrollment.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not active")
	}
	return enrollment, nil
}

// ResolveStudents maps each student to its enrollment in the class, preferring the active one.
// Students never enrolled in the class are absent from the result.
func (s *EnrollmentService) ResolveStudents(ctx context.Context, classID string, studentIDs []string) (map[string]models.Enrollment, error) {
	rows, err := s.repo.ListByClassAndStudents(ctx, classID, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollments")
	}
	resolved := make(map[string]models.Enrollment, len(rows))
	for _, row := range rows {
		current, seen := resolved[row.StudentID]
		if !seen || (row.Active && !current.Active) {
			resolved[row.StudentID] = row
		}
	}
	return resolved, nil
}
