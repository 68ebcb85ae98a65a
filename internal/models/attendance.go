package models

import (
	"fmt"
	"strings"
	"time"
)

// AttendanceStatus is the closed set of attendance outcomes.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts toward presence.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// ParseAttendanceStatus normalises case and rejects unknown statuses.
func ParseAttendanceStatus(raw string) (AttendanceStatus, error) {
	status := AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown attendance status %q", raw)
	}
	return status, nil
}

// DateLayout is the calendar date format used for attendance days.
const DateLayout = "2006-01-02"

// AttendanceRecord is a dated status entry against one enrollment.
// At most one record exists per (enrollment, attended_on).
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	AttendedOn   time.Time        `db:"attended_on" json:"attended_on"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	RecordedBy   *string          `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceSheetRow is one roster line of a class on a given day.
type AttendanceSheetRow struct {
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string            `db:"student_id" json:"student_id"`
	StudentName  *string           `db:"student_name" json:"student_name,omitempty"`
	Active       bool              `db:"active" json:"active"`
	RecordID     *string           `db:"record_id" json:"record_id,omitempty"`
	Status       *AttendanceStatus `db:"status" json:"status,omitempty"`
	Notes        *string           `db:"notes" json:"notes,omitempty"`
}

// AttendanceSummary aggregates counts for one enrollment.
type AttendanceSummary struct {
	EnrollmentID string  `json:"enrollment_id"`
	Present      int     `json:"present"`
	Absent       int     `json:"absent"`
	Late         int     `json:"late"`
	Excused      int     `json:"excused"`
	Total        int     `json:"total"`
	Percent      float64 `json:"percent"`
}

// Add folds count records of the given status into the summary.
func (s *AttendanceSummary) Add(status AttendanceStatus, count int) {
	switch status {
	case AttendanceStatusPresent:
		s.Present += count
	case AttendanceStatusAbsent:
		s.Absent += count
	case AttendanceStatusLate:
		s.Late += count
	case AttendanceStatusExcused:
		s.Excused += count
	default:
		return
	}
	s.Total += count
	if s.Total > 0 {
		s.Percent = float64(s.Present+s.Late) / float64(s.Total) * 100
	}
}
