package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// CatalogRepository persists categories and locations.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category *domain.Category) error
	ListLocations(ctx context.Context) ([]domain.Location, error)
	CreateLocation(ctx context.Context, location *domain.Location) error
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository builds repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *catalogRepository) CreateCategory(ctx context.Context, c *domain.Category) error {
	const query = `
        INSERT INTO categories (name, description) VALUES ($1,$2)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, c.Name, c.Description).Scan(&c.ID, &c.CreatedAt)
}

func (r *catalogRepository) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at FROM locations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *catalogRepository) CreateLocation(ctx context.Context, l *domain.Location) error {
	const query = `
        INSERT INTO locations (name, description) VALUES ($1,$2)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, l.Name, l.Description).Scan(&l.ID, &l.CreatedAt)
}
