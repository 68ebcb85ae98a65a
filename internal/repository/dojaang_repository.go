package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dojaang-api/internal/models"
)

// DojaangRepository reads branch locations.
type DojaangRepository struct {
	db *sqlx.DB
}

// NewDojaangRepository creates a new dojaang repository.
func NewDojaangRepository(db *sqlx.DB) *DojaangRepository {
	return &DojaangRepository{db: db}
}

// FindByID returns a dojaang by id.
func (r *DojaangRepository) FindByID(ctx context.Context, id string) (*models.Dojaang, error) {
	const query = `SELECT id, name FROM dojaangs WHERE id = $1`
	var dojaang models.Dojaang
	if err := r.db.GetContext(ctx, &dojaang, query, id); err != nil {
		return nil, err
	}
	return &dojaang, nil
}
