package models

import "time"

// Year levels a student can hold. FinalYearLevel is terminal and never advanced.
const (
	FirstYearLevel = 1
	FinalYearLevel = 4
)

// Student represents a learner registered in a program.
type Student struct {
	ID            string    `db:"id" json:"id"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	FullName      string    `db:"full_name" json:"full_name"`
	ProgramID     string    `db:"program_id" json:"program_id"`
	YearLevel     int       `db:"year_level" json:"year_level"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsTerminalYear reports whether the student is in the graduating year.
func (s Student) IsTerminalYear() bool {
	return s.YearLevel >= FinalYearLevel
}

// StudentFilter narrows the students loaded for advancement. Only active students are returned.
type StudentFilter struct {
	ProgramID  string
	YearLevel  *int
	StudentIDs []string
}
