package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/company-wiki-api/internal/models"
	"github.com/lib/pq"
)

const tagColumns = `SELECT id, name, slug, is_active, created_by, updated_by, created_at, updated_at FROM tags`

// tagRepo is the concrete implementation of TagRepository
type tagRepo struct {
	db DBTX
}

// NewTagRepo creates a new tag repository
func NewTagRepo(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

func scanTag(row rowScanner) (*models.Tag, error) {
	var t models.Tag
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.IsActive, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new tag and fills in its id
func (r *tagRepo) Create(ctx context.Context, tag *models.Tag) error {
	query := `
		INSERT INTO tags (name, slug, is_active, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		tag.Name, tag.Slug, tag.IsActive, tag.CreatedBy, tag.UpdatedBy, tag.CreatedAt, tag.UpdatedAt,
	).Scan(&tag.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// GetByID retrieves a tag by ID
func (r *tagRepo) GetByID(ctx context.Context, id int64) (*models.Tag, error) {
	tag, err := scanTag(r.db.QueryRowContext(ctx, tagColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	return tag, nil
}

// Lock takes a FOR UPDATE lock on the row
func (r *tagRepo) Lock(ctx context.Context, id int64) error {
	return lockRow(ctx, r.db, "tags", id)
}

// Update writes name, slug, state and the updated_* stamp
func (r *tagRepo) Update(ctx context.Context, tag *models.Tag) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tags SET name = $1, slug = $2, is_active = $3, updated_by = $4, updated_at = $5
		WHERE id = $6
	`, tag.Name, tag.Slug, tag.IsActive, tag.UpdatedBy, tag.UpdatedAt, tag.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update tag %d: %w", tag.ID, err)
	}
	return requireAffected(result)
}

// Delete removes the tag row; article links cascade
func (r *tagRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag %d: %w", id, err)
	}
	return requireAffected(result)
}

// StreamAll streams every tag for reindexing
func (r *tagRepo) StreamAll(ctx context.Context, callback func(*models.Tag) error) error {
	rows, err := r.db.QueryContext(ctx, tagColumns+` ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return err
		}
		if err := callback(tag); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FindByNames returns the tags whose name is in names
func (r *tagRepo) FindByNames(ctx context.Context, names []string) ([]*models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, tagColumns+` WHERE name = ANY($1) ORDER BY id`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("find tags by name: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// InsertMissing bulk-inserts tags in a single statement. RETURNING maps every
// created row to its generated id, so nothing is derived from a first-insert
// id. Names taken by a concurrent writer are skipped and not returned.
func (r *tagRepo) InsertMissing(ctx context.Context, tags []*models.Tag) ([]*models.Tag, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO tags (name, slug, is_active, created_by, updated_by, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(tags)*7)
	for i, t := range tags {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args, t.Name, t.Slug, t.IsActive, t.CreatedBy, t.UpdatedBy, t.CreatedAt, t.UpdatedAt)
	}
	sb.WriteString(` ON CONFLICT (name) DO NOTHING RETURNING id, name, slug, is_active, created_by, updated_by, created_at, updated_at`)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert tags: %w", err)
	}
	defer rows.Close()

	var created []*models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		created = append(created, tag)
	}
	return created, rows.Err()
}
