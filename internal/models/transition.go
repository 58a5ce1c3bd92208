package models

// StagedEnrollment is an enrollment planned for the target period.
type StagedEnrollment struct {
	StudentID          string `json:"student_id"`
	ClassSectionID     string `json:"class_section_id"`
	SourceEnrollmentID string `json:"source_enrollment_id"`
}

// TransitionSummary is the outcome of copying enrollments into the next period.
type TransitionSummary struct {
	FromPeriodID       string              `json:"from_period_id"`
	ToPeriodID         string              `json:"to_period_id"`
	DryRun             bool                `json:"dry_run"`
	Written            bool                `json:"written"`
	NewAcademicYear    bool                `json:"new_academic_year"`
	StudentsAffected   int                 `json:"students_affected"`
	EnrollmentsCreated int                 `json:"enrollments_created"`
	EnrollmentsSkipped int                 `json:"enrollments_skipped"`
	StudentsAdvanced   int                 `json:"students_advanced"`
	Staged             []StagedEnrollment  `json:"staged"`
	Advancement        *AdvancementSummary `json:"advancement,omitempty"`
}
