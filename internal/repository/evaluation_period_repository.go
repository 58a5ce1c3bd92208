package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-feedback-api/internal/models"
)

// EvaluationPeriodRepository handles persistence for evaluation periods.
type EvaluationPeriodRepository struct {
	db *sqlx.DB
}

// NewEvaluationPeriodRepository instantiates the repository.
func NewEvaluationPeriodRepository(db *sqlx.DB) *EvaluationPeriodRepository {
	return &EvaluationPeriodRepository{db: db}
}

// FindByID loads a period by identifier. sql.ErrNoRows is returned unwrapped when missing.
func (r *EvaluationPeriodRepository) FindByID(ctx context.Context, id string) (*models.EvaluationPeriod, error) {
	const query = `SELECT id, name, semester, academic_year, status, start_date, end_date, created_at, updated_at FROM evaluation_periods WHERE id = $1`
	var period models.EvaluationPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}
