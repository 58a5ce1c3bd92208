package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/database"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveByPeriod returns the active enrollments of a period.
func (r *EnrollmentRepository) ListActiveByPeriod(ctx context.Context, periodID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, class_section_id, evaluation_period_id, status, created_at FROM enrollments WHERE evaluation_period_id = $1 AND status = $2 ORDER BY student_id, class_section_id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, periodID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list period enrollments: %w", err)
	}
	return enrollments, nil
}

// ListKeysByPeriod returns the (student, class section) pairs already enrolled in a period, in any status.
func (r *EnrollmentRepository) ListKeysByPeriod(ctx context.Context, periodID string) ([]models.EnrollmentKey, error) {
	const query = `SELECT student_id, class_section_id FROM enrollments WHERE evaluation_period_id = $1`
	var keys []models.EnrollmentKey
	if err := r.db.SelectContext(ctx, &keys, query, periodID); err != nil {
		return nil, fmt.Errorf("list period enrollment keys: %w", err)
	}
	return keys, nil
}

// CreateBatch inserts all enrollments in one transaction and returns how many rows were written.
// Rows hitting the (student, class section, period) unique index are ignored; any other error rolls
// the whole batch back.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, enrollments []models.Enrollment) (int, error) {
	if len(enrollments) == 0 {
		return 0, nil
	}
	const query = `INSERT INTO enrollments (id, student_id, class_section_id, evaluation_period_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (student_id, class_section_id, evaluation_period_id) DO NOTHING`

	now := time.Now().UTC()
	inserted := 0
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range enrollments {
			e := &enrollments[i]
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			if e.Status == "" {
				e.Status = models.EnrollmentStatusActive
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			res, err := tx.ExecContext(ctx, query, e.ID, e.StudentID, e.ClassSectionID, e.EvaluationPeriodID, e.Status, e.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert enrollment for student %s: %w", e.StudentID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert enrollment rows affected: %w", err)
			}
			inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
