package models

// YearLevelChange records one student's intended or applied advancement.
type YearLevelChange struct {
	StudentID string `json:"student_id"`
	ProgramID string `json:"program_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
}

// StudentError reports a per-student failure during execute mode.
type StudentError struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// AdvancementSummary is the outcome of a year-end advancement run. Advanced counts the changes
// applied, or in dry-run mode the changes that would be applied.
type AdvancementSummary struct {
	DryRun           bool              `json:"dry_run"`
	Written          bool              `json:"written"`
	Eligible         int               `json:"eligible"`
	Advanced         int               `json:"advanced"`
	Skipped          int               `json:"skipped"`
	Changes          []YearLevelChange `json:"changes"`
	TerminalStudents []string          `json:"terminal_students,omitempty"`
	AlreadyAdvanced  []string          `json:"already_advanced,omitempty"`
	Errors           []StudentError    `json:"errors,omitempty"`
}
