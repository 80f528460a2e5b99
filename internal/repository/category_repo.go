package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/company-wiki-api/internal/models"
)

const categoryColumns = `SELECT id, name, slug, is_active, created_by, updated_by, created_at, updated_at FROM categories`

// categoryRepo is the concrete implementation of CategoryRepository
type categoryRepo struct {
	db DBTX
}

// NewCategoryRepo creates a new category repository
func NewCategoryRepo(db DBTX) CategoryRepository {
	return &categoryRepo{db: db}
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.IsActive, &c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new category and fills in its id
func (r *categoryRepo) Create(ctx context.Context, category *models.Category) error {
	query := `
		INSERT INTO categories (name, slug, is_active, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		category.Name, category.Slug, category.IsActive, category.CreatedBy, category.UpdatedBy,
		category.CreatedAt, category.UpdatedAt,
	).Scan(&category.ID)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetByID retrieves a category by ID
func (r *categoryRepo) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	category, err := scanCategory(r.db.QueryRowContext(ctx, categoryColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return category, nil
}

// Lock takes a FOR UPDATE lock on the row
func (r *categoryRepo) Lock(ctx context.Context, id int64) error {
	return lockRow(ctx, r.db, "categories", id)
}

// Update writes name, slug, state and the updated_* stamp
func (r *categoryRepo) Update(ctx context.Context, category *models.Category) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE categories SET name = $1, slug = $2, is_active = $3, updated_by = $4, updated_at = $5
		WHERE id = $6
	`, category.Name, category.Slug, category.IsActive, category.UpdatedBy, category.UpdatedAt, category.ID)
	if err != nil {
		return fmt.Errorf("update category %d: %w", category.ID, err)
	}
	return requireAffected(result)
}

// Delete removes the category row
func (r *categoryRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return requireAffected(result)
}

// StreamAll streams every category for reindexing
func (r *categoryRepo) StreamAll(ctx context.Context, callback func(*models.Category) error) error {
	rows, err := r.db.QueryContext(ctx, categoryColumns+` ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return err
		}
		if err := callback(category); err != nil {
			return err
		}
	}
	return rows.Err()
}
