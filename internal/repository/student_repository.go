package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/database"
)

// ErrStaleStudent signals the student changed (year level or active flag) since it was read.
var ErrStaleStudent = errors.New("student changed since it was loaded")

// ErrAlreadyAdvanced signals the student was already advanced for the period.
var ErrAlreadyAdvanced = errors.New("student already advanced for period")

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListForAdvancement returns active students matching the filter ordered by program, year and number.
func (r *StudentRepository) ListForAdvancement(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	conditions := []string{"is_active = TRUE"}
	var args []interface{}

	if filter.ProgramID != "" {
		args = append(args, filter.ProgramID)
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)))
	}
	if filter.YearLevel != nil {
		args = append(args, *filter.YearLevel)
		conditions = append(conditions, fmt.Sprintf("year_level = $%d", len(args)))
	}
	if filter.StudentIDs != nil {
		if len(filter.StudentIDs) == 0 {
			return []models.Student{}, nil
		}
		args = append(args, pq.Array(filter.StudentIDs))
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	query := fmt.Sprintf(`SELECT id, student_number, full_name, program_id, year_level, is_active, created_at, updated_at
        FROM students WHERE %s ORDER BY program_id, year_level, student_number`, strings.Join(conditions, " AND "))

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students for advancement: %w", err)
	}
	return students, nil
}

// AdvanceYearLevel moves a student from one year level to the next in a single guarded statement.
// ErrStaleStudent is returned when no row matched the expected current state.
func (r *StudentRepository) AdvanceYearLevel(ctx context.Context, id string, from, to int) error {
	return advanceYearLevel(ctx, r.db, id, from, to, time.Now().UTC())
}

// ListAdvancedForPeriod returns the ids of students already advanced for a period.
func (r *StudentRepository) ListAdvancedForPeriod(ctx context.Context, periodID string) ([]string, error) {
	const query = `SELECT student_id FROM year_advancements WHERE evaluation_period_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, periodID); err != nil {
		return nil, fmt.Errorf("list recorded advancements: %w", err)
	}
	return ids, nil
}

// AdvanceYearLevelForPeriod records the advancement against periodID and applies it in one
// transaction. ErrAlreadyAdvanced is returned, and nothing changes, when the pair is already recorded.
func (r *StudentRepository) AdvanceYearLevelForPeriod(ctx context.Context, id string, from, to int, periodID string) error {
	const record = `INSERT INTO year_advancements (student_id, evaluation_period_id, from_level, to_level, advanced_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (student_id, evaluation_period_id) DO NOTHING`

	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, record, id, periodID, from, to, now)
		if err != nil {
			return fmt.Errorf("record student advancement: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("record student advancement rows affected: %w", err)
		}
		if affected == 0 {
			return ErrAlreadyAdvanced
		}
		return advanceYearLevel(ctx, tx, id, from, to, now)
	})
}

func advanceYearLevel(ctx context.Context, exec sqlx.ExecerContext, id string, from, to int, now time.Time) error {
	const query = `UPDATE students SET year_level = $1, updated_at = $2 WHERE id = $3 AND year_level = $4 AND is_active = TRUE`
	res, err := exec.ExecContext(ctx, query, to, now, id, from)
	if err != nil {
		return fmt.Errorf("advance student year level: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance student rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleStudent
	}
	return nil
}
