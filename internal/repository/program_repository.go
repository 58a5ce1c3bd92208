package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ProgramRepository reads degree programs.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository instantiates a program repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// Exists reports whether a program with the identifier exists.
func (r *ProgramRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM programs WHERE id = $1 LIMIT 1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check program: %w", err)
	}
	return true, nil
}
