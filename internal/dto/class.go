package dto

import "github.com/noah-isme/dojaang-api/internal/models"

// ScheduleSlotRequest is a proposed (day, start, end) slot. Times are HH:MM.
type ScheduleSlotRequest struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,weekday"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

// UpsertClassRequest is the payload for creating or updating a training class.
type UpsertClassRequest struct {
	DojaangID   string                `json:"dojaang_id" validate:"required"`
	CoachID     string                `json:"coach_id" validate:"required"`
	Name        string                `json:"name" validate:"required,max=120"`
	Description *string               `json:"description" validate:"omitempty,max=2000"`
	Capacity    *int                  `json:"capacity" validate:"omitempty,min=1"`
	Schedules   []ScheduleSlotRequest `json:"schedules" validate:"required,min=1,dive"`
}

// ScheduleConflictPayload is the structured body returned on schedule collisions.
type ScheduleConflictPayload struct {
	CoachID   string                    `json:"coach_id"`
	Conflicts []models.ScheduleConflict `json:"conflicts"`
}
