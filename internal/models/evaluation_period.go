package models

import "time"

// PeriodStatus represents the lifecycle state of an evaluation period.
type PeriodStatus string

const (
	PeriodStatusDraft  PeriodStatus = "draft"
	PeriodStatusActive PeriodStatus = "active"
	PeriodStatusClosed PeriodStatus = "closed"
)

// EvaluationPeriod is a window (usually one semester) in which course feedback is collected.
type EvaluationPeriod struct {
	ID           string       `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Semester     string       `db:"semester" json:"semester"`
	AcademicYear string       `db:"academic_year" json:"academic_year"`
	Status       PeriodStatus `db:"status" json:"status"`
	StartDate    time.Time    `db:"start_date" json:"start_date"`
	EndDate      time.Time    `db:"end_date" json:"end_date"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// CanBeTransitionSource reports whether enrollments may be copied out of the period.
func (p EvaluationPeriod) CanBeTransitionSource() bool {
	return p.Status == PeriodStatusActive || p.Status == PeriodStatusClosed
}

// AcceptsEnrollments reports whether the period may receive new enrollments.
func (p EvaluationPeriod) AcceptsEnrollments() bool {
	return p.Status == PeriodStatusDraft || p.Status == PeriodStatusActive
}
