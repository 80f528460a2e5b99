package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/company-wiki-api/internal/database"
	"github.com/company-wiki-api/internal/models"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned on a unique constraint violation
	ErrConflict = errors.New("record already exists")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every repository can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// ArticleRepository defines the interface for article data operations.
// Articles are always returned with their tags attached.
type ArticleRepository interface {
	Create(ctx context.Context, article *models.Article) error
	GetByID(ctx context.Context, id int64) (*models.Article, error)
	// Lock takes the row lock until the enclosing transaction ends.
	Lock(ctx context.Context, id int64) error
	Update(ctx context.Context, article *models.Article) error
	Delete(ctx context.Context, id int64) error
	ReplaceTags(ctx context.Context, articleID int64, tagIDs []int64) error
	CountActiveByCategory(ctx context.Context, categoryID int64) (int, error)
	CountActiveByTag(ctx context.Context, tagID int64) (int, error)
	// IDsByTag lists the articles carrying the tag, active or not.
	IDsByTag(ctx context.Context, tagID int64) ([]int64, error)
	// DetachCategory and DetachTag strip associations and return the ids of
	// the articles that lost them.
	DetachCategory(ctx context.Context, categoryID int64) ([]int64, error)
	DetachTag(ctx context.Context, tagID int64) ([]int64, error)
	StreamAll(ctx context.Context, callback func(*models.Article) error) error
}

// CategoryRepository defines the interface for category data operations
type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	Lock(ctx context.Context, id int64) error
	Update(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id int64) error
	StreamAll(ctx context.Context, callback func(*models.Category) error) error
}

// TagRepository defines the interface for tag data operations
type TagRepository interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, id int64) (*models.Tag, error)
	Lock(ctx context.Context, id int64) error
	Update(ctx context.Context, tag *models.Tag) error
	Delete(ctx context.Context, id int64) error
	StreamAll(ctx context.Context, callback func(*models.Tag) error) error
	// FindByNames matches names exactly (case-sensitive).
	FindByNames(ctx context.Context, names []string) ([]*models.Tag, error)
	// InsertMissing inserts tags in one statement, skipping names that
	// already exist, and returns only the rows it created with their ids.
	InsertMissing(ctx context.Context, tags []*models.Tag) ([]*models.Tag, error)
}

// AuditRepository appends to and reads the per-entity log tables
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByTarget(ctx context.Context, entity models.EntityType, targetID int64) ([]*models.AuditEntry, error)
}

// JobRepository defines the interface for job data operations
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Job, error)
	GetPendingJobs(ctx context.Context) ([]*models.Job, error)
	MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error)
	AddErrors(ctx context.Context, jobID string, errors []models.JobError) error
	GetErrors(ctx context.Context, jobID string, limit int) ([]models.JobError, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	User     UserRepository
	Article  ArticleRepository
	Category CategoryRepository
	Tag      TagRepository
	Audit    AuditRepository
	Job      JobRepository
}

// TxManager runs a unit of work against repositories bound to one
// transaction. fn's error rolls the transaction back; nil commits it.
type TxManager interface {
	Do(ctx context.Context, fn func(repos *Repositories) error) error
}

// New creates all repositories over the given executor
func New(db DBTX) *Repositories {
	return &Repositories{
		User:     NewUserRepo(db),
		Article:  NewArticleRepo(db),
		Category: NewCategoryRepo(db),
		Tag:      NewTagRepo(db),
		Audit:    NewAuditRepo(db),
		Job:      NewJobRepo(db),
	}
}

type txManager struct {
	db *database.DB
}

// NewTxManager returns a TxManager backed by PostgreSQL transactions
func NewTxManager(db *database.DB) TxManager {
	return &txManager{db: db}
}

func (m *txManager) Do(ctx context.Context, fn func(repos *Repositories) error) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(New(tx))
	})
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// lockRow blocks until no other transaction holds the row, then holds it
// until the caller's transaction ends. Outside a transaction the lock is
// released immediately.
func lockRow(ctx context.Context, db DBTX, table string, id int64) error {
	var locked int64
	err := db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock %s %d: %w", table, id, err)
	}
	return nil
}

// requireAffected maps a zero-row UPDATE/DELETE to ErrNotFound
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
