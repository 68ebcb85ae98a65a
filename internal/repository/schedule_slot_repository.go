package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/dojaang-api/internal/models"
)

const scheduleSlotColumns = `id, class_id, day_of_week, start_minute, end_minute, created_at`

// ScheduleSlotRepository manages the weekly slots of training classes.
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository builds repository.
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

func (r *ScheduleSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockCoach serialises schedule mutations for one coach until the transaction ends.
func (r *ScheduleSlotRepository) LockCoach(ctx context.Context, exec sqlx.ExtContext, coachID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "coach-schedule:"+coachID); err != nil {
		return fmt.Errorf("lock coach schedule: %w", err)
	}
	return nil
}

// ListByCoach returns every slot of the coach's live classes, skipping excludeClassID when set.
func (r *ScheduleSlotRepository) ListByCoach(ctx context.Context, exec sqlx.ExtContext, coachID, excludeClassID string) ([]models.CoachSlot, error) {
	query := `SELECT s.id AS slot_id, s.class_id, c.name AS class_name, c.dojaang_id, s.day_of_week, s.start_minute, s.end_minute
FROM schedule_slots s
JOIN training_classes c ON c.id = s.class_id
WHERE c.coach_id = $1 AND c.deleted_at IS NULL`
	args := []interface{}{coachID}
	if excludeClassID != "" {
		query += " AND c.id <> $2"
		args = append(args, excludeClassID)
	}
	query += " ORDER BY s.day_of_week ASC, s.start_minute ASC"

	var slots []models.CoachSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list coach schedule slots: %w", err)
	}
	return slots, nil
}

// ListByClass returns slots ordered by day/start for a class.
func (r *ScheduleSlotRepository) ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error) {
	query := `SELECT ` + scheduleSlotColumns + ` FROM schedule_slots WHERE class_id = $1 ORDER BY day_of_week ASC, start_minute ASC`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, classID); err != nil {
		return nil, fmt.Errorf("list class schedule slots: %w", err)
	}
	return slots, nil
}

// ListByClassIDs returns slots for many classes keyed by class id.
func (r *ScheduleSlotRepository) ListByClassIDs(ctx context.Context, classIDs []string) (map[string][]models.ScheduleSlot, error) {
	result := make(map[string][]models.ScheduleSlot, len(classIDs))
	if len(classIDs) == 0 {
		return result, nil
	}
	query := `SELECT ` + scheduleSlotColumns + ` FROM schedule_slots WHERE class_id = ANY($1) ORDER BY class_id ASC, day_of_week ASC, start_minute ASC`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, pq.Array(classIDs)); err != nil {
		return nil, fmt.Errorf("list schedule slots by classes: %w", err)
	}
	for _, slot := range slots {
		result[slot.ClassID] = append(result[slot.ClassID], slot)
	}
	return result, nil
}

// ReplaceForClass swaps the whole slot set of a class. Callers run it inside a transaction.
func (r *ScheduleSlotRepository) ReplaceForClass(ctx context.Context, exec sqlx.ExtContext, classID string, slots []models.ScheduleSlot) error {
	target := r.exec(exec)
	if err := r.DeleteByClass(ctx, target, classID); err != nil {
		return err
	}

	const query = `INSERT INTO schedule_slots (id, class_id, day_of_week, start_minute, end_minute, created_at)
VALUES (:id, :class_id, :day_of_week, :start_minute, :end_minute, :created_at)`
	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.ClassID = classID
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert schedule slot: %w", err)
		}
	}
	return nil
}

// DeleteByClass removes every slot of a class.
func (r *ScheduleSlotRepository) DeleteByClass(ctx context.Context, exec sqlx.ExtContext, classID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM schedule_slots WHERE class_id = $1`, classID); err != nil {
		return fmt.Errorf("delete schedule slots: %w", err)
	}
	return nil
}
