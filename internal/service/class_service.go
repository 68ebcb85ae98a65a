package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

type trainingClassRepository interface {
	List(ctx context.Context, filter models.TrainingClassFilter) ([]models.TrainingClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.TrainingClass, error)
	FindDetailByID(ctx context.Context, id string) (*models.TrainingClassDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error)
	Create(ctx context.Context, exec sqlx.ExtContext, class *models.TrainingClass) error
	Update(ctx context.Context, exec sqlx.ExtContext, class *models.TrainingClass) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
}

type scheduleSlotRepository interface {
	coachSlotLoader
	LockCoach(ctx context.Context, exec sqlx.ExtContext, coachID string) error
	ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error)
	ListByClassIDs(ctx context.Context, classIDs []string) (map[string][]models.ScheduleSlot, error)
	ReplaceForClass(ctx context.Context, exec sqlx.ExtContext, classID string, slots []models.ScheduleSlot) error
	DeleteByClass(ctx context.Context, exec sqlx.ExtContext, classID string) error
}

type classEnrollmentRepository interface {
	CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	DeactivateByClass(ctx context.Context, exec sqlx.ExtContext, classID string, at time.Time) (int64, error)
}

type coachReader interface {
	FindByID(ctx context.Context, id string) (*models.Coach, error)
}

type dojaangReader interface {
	FindByID(ctx context.Context, id string) (*models.Dojaang, error)
}

// ClassService is the class catalog: it owns classes and their weekly schedules and
// refuses any write that would double-book the class's coach.
type ClassService struct {
	classes     trainingClassRepository
	slots       scheduleSlotRepository
	enrollments classEnrollmentRepository
	coaches     coachReader
	dojaangs    dojaangReader
	checker     *ScheduleConflictChecker
	tx          txProvider
	rosters     *RosterCache
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(classes trainingClassRepository, slots scheduleSlotRepository, enrollments classEnrollmentRepository, coaches coachReader, dojaangs dojaangReader, tx txProvider, rosters *RosterCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		classes:     classes,
		slots:       slots,
		enrollments: enrollments,
		coaches:     coaches,
		dojaangs:    dojaangs,
		checker:     NewScheduleConflictChecker(slots),
		tx:          tx,
		rosters:     rosters,
		metrics:     metrics,
		validator:   registerDomainValidations(validate),
		logger:      logger,
	}
}

// List returns live classes with their schedules and pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.TrainingClassFilter) ([]models.TrainingClassDetail, *models.Pagination, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	ids := make([]string, 0, len(classes))
	for _, class := range classes {
		ids = append(ids, class.ID)
	}
	slots, err := s.slots.ListByClassIDs(ctx, ids)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class schedules")
	}
	for i := range classes {
		classes[i].Schedules = nonNilSlots(slots[classes[i].ID])
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a live class with its schedule.
func (s *ClassService) Get(ctx context.Context, id string) (*models.TrainingClassDetail, error) {
	detail, err := s.classes.FindDetailByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	slots, err := s.slots.ListByClass(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class schedule")
	}
	detail.Schedules = nonNilSlots(slots)
	return detail, nil
}

// Create validates the schedule against the coach's classes and persists the class atomically.
func (s *ClassService) Create(ctx context.Context, req dto.UpsertClassRequest) (*models.TrainingClassDetail, error) {
	candidates, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	class := &models.TrainingClass{
		DojaangID:   req.DojaangID,
		CoachID:     req.CoachID,
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
	}
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.ensureCoachFree(ctx, tx, req.CoachID, candidates, ""); err != nil {
			return err
		}
		if err := s.classes.Create(ctx, tx, class); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
		}
		if err := s.slots.ReplaceForClass(ctx, tx, class.ID, toSlots(candidates)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store class schedule")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("coach_id", class.CoachID), zap.Int("slots", len(candidates)))
	return s.Get(ctx, class.ID)
}

// Update replaces the class fields and schedule. The class's own current slots never count as conflicts.
func (s *ClassService) Update(ctx context.Context, id string, req dto.UpsertClassRequest) (*models.TrainingClassDetail, error) {
	candidates, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		existing, err := s.classes.LockByID(ctx, tx, id)
		if err != nil {
			return notFoundOr(err, "class not found", "failed to load class")
		}
		if req.Capacity != nil {
			active, err := s.enrollments.CountActiveByClass(ctx, tx, id)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
			}
			if active > *req.Capacity {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("capacity %d is below the %d active enrollments", *req.Capacity, active))
			}
		}
		if err := s.ensureCoachFree(ctx, tx, req.CoachID, candidates, id); err != nil {
			return err
		}

		existing.DojaangID = req.DojaangID
		existing.CoachID = req.CoachID
		existing.Name = req.Name
		existing.Description = req.Description
		existing.Capacity = req.Capacity
		if err := s.classes.Update(ctx, tx, existing); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
		}
		if err := s.slots.ReplaceForClass(ctx, tx, id, toSlots(candidates)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store class schedule")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rosters.Invalidate(ctx, id)
	s.logger.Info("class updated", zap.String("class_id", id), zap.String("coach_id", req.CoachID))
	return s.Get(ctx, id)
}

// Delete retires a class: its slots are released and its enrollments deactivated in one transaction.
// Attendance history stays readable through the enrollment ids.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	var withdrawn int64
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.classes.LockByID(ctx, tx, id); err != nil {
			return notFoundOr(err, "class not found", "failed to load class")
		}
		now := time.Now().UTC()
		var err error
		if withdrawn, err = s.enrollments.DeactivateByClass(ctx, tx, id, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate enrollments")
		}
		if err := s.slots.DeleteByClass(ctx, tx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release class schedule")
		}
		if err := s.classes.SoftDelete(ctx, tx, id, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.rosters.Invalidate(ctx, id)
	s.logger.Info("class deleted", zap.String("class_id", id), zap.Int64("enrollments_deactivated", withdrawn))
	return nil
}

// CoachSchedule lists every slot the coach currently teaches, ordered by day and start.
func (s *ClassService) CoachSchedule(ctx context.Context, coachID string) ([]models.CoachSlot, error) {
	if _, err := s.coaches.FindByID(ctx, coachID); err != nil {
		return nil, notFoundOr(err, "coach not found", "failed to load coach")
	}
	slots, err := s.slots.ListByCoach(ctx, nil, coachID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach schedule")
	}
	if slots == nil {
		slots = []models.CoachSlot{}
	}
	return slots, nil
}

func (s *ClassService) prepare(ctx context.Context, req dto.UpsertClassRequest) ([]models.TimeInterval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	candidates, err := parseSlotRequests(req.Schedules)
	if err != nil {
		return nil, err
	}
	if _, err := s.dojaangs.FindByID(ctx, req.DojaangID); err != nil {
		return nil, notFoundOr(err, "dojaang not found", "failed to load dojaang")
	}
	if _, err := s.coaches.FindByID(ctx, req.CoachID); err != nil {
		return nil, notFoundOr(err, "coach not found", "failed to load coach")
	}
	return candidates, nil
}

// ensureCoachFree takes the coach lock, then checks candidates against the coach's other classes.
func (s *ClassService) ensureCoachFree(ctx context.Context, tx *sqlx.Tx, coachID string, candidates []models.TimeInterval, excludeClassID string) error {
	if err := s.slots.LockCoach(ctx, tx, coachID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock coach schedule")
	}
	conflicts, err := s.checker.FindConflicts(ctx, tx, coachID, candidates, excludeClassID)
	if err != nil {
		return err
	}
	s.metrics.RecordScheduleCheck(len(conflicts))
	if len(conflicts) == 0 {
		return nil
	}
	s.logger.Info("schedule conflict", zap.String("coach_id", coachID), zap.Int("conflicts", len(conflicts)))
	return scheduleConflictError(coachID, conflicts)
}

func scheduleConflictError(coachID string, conflicts []models.ScheduleConflict) error {
	cause := &models.ScheduleConflictError{CoachID: coachID, Conflicts: conflicts}
	wrapped := appErrors.Wrap(cause, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "schedule conflicts with the coach's existing classes")
	return appErrors.WithDetails(wrapped, dto.ScheduleConflictPayload{CoachID: coachID, Conflicts: conflicts})
}

// AsScheduleConflict extracts the conflict list from an error returned by Create or Update.
func AsScheduleConflict(err error) (*models.ScheduleConflictError, bool) {
	var conflict *models.ScheduleConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

func parseSlotRequests(requests []dto.ScheduleSlotRequest) ([]models.TimeInterval, error) {
	intervals := make([]models.TimeInterval, 0, len(requests))
	for i, req := range requests {
		if req.DayOfWeek == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("schedule slot %d is missing day_of_week", i))
		}
		start, err := models.ParseTimeOfDay(req.StartTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("schedule slot %d has an invalid start_time", i))
		}
		end, err := models.ParseTimeOfDay(req.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("schedule slot %d has an invalid end_time", i))
		}
		intervals = append(intervals, models.TimeInterval{Day: models.Weekday(*req.DayOfWeek), Start: start, End: end})
	}
	return intervals, validateCandidates(intervals)
}

func toSlots(intervals []models.TimeInterval) []models.ScheduleSlot {
	slots := make([]models.ScheduleSlot, 0, len(intervals))
	for _, interval := range intervals {
		slots = append(slots, models.ScheduleSlot{DayOfWeek: interval.Day, StartTime: interval.Start, EndTime: interval.End})
	}
	return slots
}

func nonNilSlots(slots []models.ScheduleSlot) []models.ScheduleSlot {
	if slots == nil {
		return []models.ScheduleSlot{}
	}
	return slots
}
