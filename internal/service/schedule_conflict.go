package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

type coachSlotLoader interface {
	ListByCoach(ctx context.Context, exec sqlx.ExtContext, coachID, excludeClassID string) ([]models.CoachSlot, error)
}

// ScheduleConflictChecker detects overlaps between proposed slots and a coach's existing commitments.
type ScheduleConflictChecker struct {
	slots coachSlotLoader
}

// NewScheduleConflictChecker constructs the checker.
func NewScheduleConflictChecker(slots coachSlotLoader) *ScheduleConflictChecker {
	return &ScheduleConflictChecker{slots: slots}
}

// FindConflicts loads the coach's slots through exec, skipping excludeClassID, and compares the candidates against them.
// Pass the transaction that will persist the candidates so the check observes the same snapshot.
func (c *ScheduleConflictChecker) FindConflicts(ctx context.Context, exec sqlx.ExtContext, coachID string, candidates []models.TimeInterval, excludeClassID string) ([]models.ScheduleConflict, error) {
	if err := validateCandidates(candidates); err != nil {
		return nil, err
	}
	existing, err := c.slots.ListByCoach(ctx, exec, coachID, excludeClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach schedule")
	}
	return FindConflicts(candidates, existing)
}

// FindConflicts reports every overlap among candidates and between candidates and existing slots.
// Results are ordered by candidate index, candidate pairs before existing slots.
func FindConflicts(candidates []models.TimeInterval, existing []models.CoachSlot) ([]models.ScheduleConflict, error) {
	if err := validateCandidates(candidates); err != nil {
		return nil, err
	}

	sorted := make([]models.CoachSlot, len(existing))
	copy(sorted, existing)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.SlotID < b.SlotID
	})

	conflicts := make([]models.ScheduleConflict, 0)
	for i, candidate := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if !candidate.Overlaps(candidates[j]) {
				continue
			}
			other := j
			conflicts = append(conflicts, models.ScheduleConflict{
				CandidateIndex:            i,
				Candidate:                 candidate,
				ConflictingCandidateIndex: &other,
				ConflictingSlot:           candidates[j],
			})
		}
		for _, slot := range sorted {
			if !candidate.Overlaps(slot.Interval()) {
				continue
			}
			conflicts = append(conflicts, models.ScheduleConflict{
				CandidateIndex:       i,
				Candidate:            candidate,
				ConflictingClassID:   slot.ClassID,
				ConflictingClassName: slot.ClassName,
				ConflictingSlotID:    slot.SlotID,
				ConflictingSlot:      slot.Interval(),
			})
		}
	}
	return conflicts, nil
}

func validateCandidates(candidates []models.TimeInterval) error {
	if len(candidates) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one schedule slot is required")
	}
	for i, candidate := range candidates {
		if !candidate.WellFormed() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("schedule slot %d is invalid: start must be before end on a day 0-6", i))
		}
	}
	return nil
}
