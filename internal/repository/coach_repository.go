package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dojaang-api/internal/models"
)

// CoachRepository reads coach identities owned by the staff module.
type CoachRepository struct {
	db *sqlx.DB
}

// NewCoachRepository creates a new coach repository.
func NewCoachRepository(db *sqlx.DB) *CoachRepository {
	return &CoachRepository{db: db}
}

// FindByID returns a coach by id.
func (r *CoachRepository) FindByID(ctx context.Context, id string) (*models.Coach, error) {
	const query = `SELECT id, full_name, active FROM coaches WHERE id = $1`
	var coach models.Coach
	if err := r.db.GetContext(ctx, &coach, query, id); err != nil {
		return nil, err
	}
	return &coach, nil
}
