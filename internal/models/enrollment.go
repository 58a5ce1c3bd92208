package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "active"
	EnrollmentStatusInactive EnrollmentStatus = "inactive"
)

// Enrollment registers a student to a class section for one evaluation period.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	ClassSectionID     string           `db:"class_section_id" json:"class_section_id"`
	EvaluationPeriodID string           `db:"evaluation_period_id" json:"evaluation_period_id"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentKey identifies an enrollment within a single period.
type EnrollmentKey struct {
	StudentID      string `db:"student_id"`
	ClassSectionID string `db:"class_section_id"`
}

// Key returns the per-period identity of the enrollment.
func (e Enrollment) Key() EnrollmentKey {
	return EnrollmentKey{StudentID: e.StudentID, ClassSectionID: e.ClassSectionID}
}
