package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MinutesPerDay is the exclusive upper bound for a slot start and the inclusive bound for its end.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses an HH:MM string. "24:00" is accepted so a slot may end at midnight.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	var hour, minute int
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	if _, err := fmt.Sscanf(raw, "%02d:%02d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("invalid time %q, out of range", raw)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// Valid reports whether the value lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

// String renders the value as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON encodes the value as an HH:MM string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an HH:MM string.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Weekday is a day of the week, 0 = Sunday through 6 = Saturday.
type Weekday int

// Valid reports whether the day is within 0..6.
func (d Weekday) Valid() bool {
	return d >= 0 && d <= 6
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return time.Weekday(d).String()
}

// TimeInterval is a half-open [Start, End) interval on a given weekday.
type TimeInterval struct {
	Day   Weekday   `json:"day_of_week"`
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// WellFormed reports whether the interval has a valid day and Start < End within one day.
func (i TimeInterval) WellFormed() bool {
	return i.Day.Valid() && i.Start.Valid() && i.End.Valid() && i.Start < i.End && i.Start < MinutesPerDay
}

// Overlaps reports whether two intervals share any instant. Touching ends do not overlap.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Day == other.Day && i.Start < other.End && other.Start < i.End
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("%s %s-%s", i.Day, i.Start, i.End)
}

// ScheduleSlot is a recurring weekly commitment owned by a training class.
type ScheduleSlot struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	DayOfWeek Weekday   `db:"day_of_week" json:"day_of_week"`
	StartTime TimeOfDay `db:"start_minute" json:"start_time"`
	EndTime   TimeOfDay `db:"end_minute" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Interval returns the slot as a comparable interval.
func (s ScheduleSlot) Interval() TimeInterval {
	return TimeInterval{Day: s.DayOfWeek, Start: s.StartTime, End: s.EndTime}
}

// CoachSlot is a value descriptor of an existing slot taught by a coach, loaded for conflict checks.
type CoachSlot struct {
	SlotID    string    `db:"slot_id" json:"slot_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	ClassName string    `db:"class_name" json:"class_name"`
	DojaangID string    `db:"dojaang_id" json:"dojaang_id"`
	DayOfWeek Weekday   `db:"day_of_week" json:"day_of_week"`
	StartTime TimeOfDay `db:"start_minute" json:"start_time"`
	EndTime   TimeOfDay `db:"end_minute" json:"end_time"`
}

// Interval returns the descriptor as a comparable interval.
func (s CoachSlot) Interval() TimeInterval {
	return TimeInterval{Day: s.DayOfWeek, Start: s.StartTime, End: s.EndTime}
}

// ScheduleConflict describes one collision between a candidate slot and another commitment.
// Exactly one of ConflictingClassID or ConflictingCandidateIndex is set.
type ScheduleConflict struct {
	CandidateIndex            int          `json:"candidate_index"`
	Candidate                 TimeInterval `json:"candidate"`
	ConflictingCandidateIndex *int         `json:"conflicting_candidate_index,omitempty"`
	ConflictingClassID        string       `json:"conflicting_class_id,omitempty"`
	ConflictingClassName      string       `json:"conflicting_class_name,omitempty"`
	ConflictingSlotID         string       `json:"conflicting_slot_id,omitempty"`
	ConflictingSlot           TimeInterval `json:"conflicting_slot"`
}

// ScheduleConflictError is returned when a proposed schedule collides with a coach's commitments.
type ScheduleConflictError struct {
	CoachID   string             `json:"coach_id"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d schedule conflict(s) for coach %s", len(e.Conflicts), e.CoachID)
}
