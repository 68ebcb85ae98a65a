package dto

// EnrollStudentRequest describes an enrollment of a student into a class.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}
