package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/company-wiki-api/internal/models"
	"github.com/lib/pq"
)

// articleColumns selects an article with its tags aggregated into two
// parallel arrays ordered by tag name.
const articleColumns = `
	SELECT a.id, a.title, a.content, a.category_id, a.author_id, a.created_by, a.updated_by,
		a.is_active, a.created_at, a.updated_at,
		COALESCE(array_agg(t.id ORDER BY t.name) FILTER (WHERE t.id IS NOT NULL), '{}') AS tag_ids,
		COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.id IS NOT NULL), '{}') AS tag_names
	FROM articles a
	LEFT JOIN article_tags at ON at.article_id = a.id
	LEFT JOIN tags t ON t.id = at.tag_id
`

// articleRepo is the concrete implementation of ArticleRepository
type articleRepo struct {
	db DBTX
}

// NewArticleRepo creates a new article repository
func NewArticleRepo(db DBTX) ArticleRepository {
	return &articleRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var article models.Article
	var categoryID sql.NullInt64
	var tagIDs []int64
	var tagNames []string

	err := row.Scan(
		&article.ID, &article.Title, &article.Content, &categoryID, &article.AuthorID,
		&article.CreatedBy, &article.UpdatedBy, &article.IsActive, &article.CreatedAt, &article.UpdatedAt,
		pq.Array(&tagIDs), pq.Array(&tagNames),
	)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		id := categoryID.Int64
		article.CategoryID = &id
	}
	article.Tags = make([]models.TagRef, 0, len(tagIDs))
	for i := range tagIDs {
		article.Tags = append(article.Tags, models.TagRef{ID: tagIDs[i], Name: tagNames[i]})
	}
	return &article, nil
}

// Create inserts a new article and fills in its id
func (r *articleRepo) Create(ctx context.Context, article *models.Article) error {
	query := `
		INSERT INTO articles (title, content, category_id, author_id, created_by, updated_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		article.Title, article.Content, nullInt64(article.CategoryID), article.AuthorID,
		article.CreatedBy, article.UpdatedBy, article.IsActive, article.CreatedAt, article.UpdatedAt,
	).Scan(&article.ID)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// GetByID retrieves an article with its tags
func (r *articleRepo) GetByID(ctx context.Context, id int64) (*models.Article, error) {
	row := r.db.QueryRowContext(ctx, articleColumns+` WHERE a.id = $1 GROUP BY a.id`, id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	return article, nil
}

// Lock takes a FOR UPDATE lock on the row
func (r *articleRepo) Lock(ctx context.Context, id int64) error {
	return lockRow(ctx, r.db, "articles", id)
}

// Update writes every mutable column. author_id and created_* never change.
func (r *articleRepo) Update(ctx context.Context, article *models.Article) error {
	query := `
		UPDATE articles SET title = $1, content = $2, category_id = $3, is_active = $4,
			updated_by = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		article.Title, article.Content, nullInt64(article.CategoryID), article.IsActive,
		article.UpdatedBy, article.UpdatedAt, article.ID,
	)
	if err != nil {
		return fmt.Errorf("update article %d: %w", article.ID, err)
	}
	return requireAffected(result)
}

// Delete removes the article row together with its tag links
func (r *articleRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = $1`, id); err != nil {
		return fmt.Errorf("delete article tags %d: %w", id, err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	return requireAffected(result)
}

// ReplaceTags deletes every link of the article then inserts the given set
func (r *articleRepo) ReplaceTags(ctx context.Context, articleID int64, tagIDs []int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("clear article tags %d: %w", articleID, err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO article_tags (article_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, articleID, pq.Array(tagIDs)); err != nil {
		return fmt.Errorf("link article tags %d: %w", articleID, err)
	}
	return nil
}

// CountActiveByCategory counts active articles filed under the category
func (r *articleRepo) CountActiveByCategory(ctx context.Context, categoryID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE category_id = $1 AND is_active`, categoryID,
	).Scan(&count)
	return count, err
}

// CountActiveByTag counts active articles carrying the tag
func (r *articleRepo) CountActiveByTag(ctx context.Context, tagID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM article_tags at
		JOIN articles a ON a.id = at.article_id
		WHERE at.tag_id = $1 AND a.is_active
	`, tagID).Scan(&count)
	return count, err
}

// IDsByTag returns the ids of articles linked to the tag
func (r *articleRepo) IDsByTag(ctx context.Context, tagID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id FROM article_tags WHERE tag_id = $1 ORDER BY article_id`, tagID)
	if err != nil {
		return nil, fmt.Errorf("list articles for tag %d: %w", tagID, err)
	}
	return collectIDs(rows)
}

// DetachCategory clears the category from every article that references it
func (r *articleRepo) DetachCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE articles SET category_id = NULL WHERE category_id = $1 RETURNING id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("detach category %d: %w", categoryID, err)
	}
	return collectIDs(rows)
}

// DetachTag removes the tag from every article that carries it
func (r *articleRepo) DetachTag(ctx context.Context, tagID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM article_tags WHERE tag_id = $1 RETURNING article_id`, tagID)
	if err != nil {
		return nil, fmt.Errorf("detach tag %d: %w", tagID, err)
	}
	return collectIDs(rows)
}

// StreamAll streams every article, active or not, for reindexing
func (r *articleRepo) StreamAll(ctx context.Context, callback func(*models.Article) error) error {
	rows, err := r.db.QueryContext(ctx, articleColumns+` GROUP BY a.id ORDER BY a.id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return err
		}
		if err := callback(article); err != nil {
			return err
		}
	}

	return rows.Err()
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
