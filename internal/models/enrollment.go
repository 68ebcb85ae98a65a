package models

import "time"

// Enrollment is the relationship between a student and a training class.
// Rows are deactivated on withdrawal and never deleted, so attendance history survives.
type Enrollment struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	ClassID     string     `db:"class_id" json:"class_id"`
	EnrolledOn  time.Time  `db:"enrolled_on" json:"enrolled_on"`
	Active      bool       `db:"active" json:"active"`
	WithdrawnAt *time.Time `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName *string `db:"student_name" json:"student_name,omitempty"`
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
