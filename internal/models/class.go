package models

import "time"

// TrainingClass is a recurring class offering at a dojaang, taught by one coach.
type TrainingClass struct {
	ID          string         `db:"id" json:"id"`
	DojaangID   string         `db:"dojaang_id" json:"dojaang_id"`
	CoachID     string         `db:"coach_id" json:"coach_id"`
	Name        string         `db:"name" json:"name"`
	Description *string        `db:"description" json:"description,omitempty"`
	Capacity    *int           `db:"capacity" json:"capacity,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time     `db:"deleted_at" json:"-"`
	Schedules   []ScheduleSlot `db:"-" json:"schedules"`
}

// HasCapacityFor reports whether another active enrollment fits given the current count.
func (c TrainingClass) HasCapacityFor(activeCount int) bool {
	if c.Capacity == nil {
		return true
	}
	return activeCount < *c.Capacity
}

// TrainingClassDetail extends TrainingClass with roster and reference names.
type TrainingClassDetail struct {
	TrainingClass
	DojaangName       *string `db:"dojaang_name" json:"dojaang_name,omitempty"`
	CoachName         *string `db:"coach_name" json:"coach_name,omitempty"`
	ActiveEnrollments int     `db:"active_enrollments" json:"active_enrollments"`
}

// TrainingClassFilter defines filter criteria for listing classes.
type TrainingClassFilter struct {
	DojaangID string
	CoachID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
