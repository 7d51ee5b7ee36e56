package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/category"
)

const (
	categoryColumns = `id, name, description, created_at`

	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name, id`
	getCategorySQL    = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	createCategorySQL = `INSERT INTO categories (` + categoryColumns + `) VALUES ($1, $2, $3, $4)`
	updateCategorySQL = `UPDATE categories SET name = $2, description = $3 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns every category ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// Get returns the category with the given id or category.ErrNotFound.
func (r *CategoryRepository) Get(ctx context.Context, id string) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	return &c, nil
}

// Create inserts c, failing with category.ErrExists when the ID is taken.
func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	if _, err := r.pool.Exec(ctx, createCategorySQL, c.ID, c.Name, c.Description, c.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return category.ErrExists
		}
		return fmt.Errorf("creating category %q: %w", c.ID, err)
	}
	return nil
}

// Update stores the name and description of c.
func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL, c.ID, c.Name, c.Description)
	if err != nil {
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// Delete removes the category with the given id.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	return c, err
}
