package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/company-wiki-api/internal/models"
)

// userRepo is the concrete implementation of UserRepository
type userRepo struct {
	db DBTX
}

// NewUserRepo creates a new user repository
func NewUserRepo(db DBTX) UserRepository {
	return &userRepo{db: db}
}

// Create inserts a new user and fills in its id
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, nullString(user.Email), user.Role, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, username, email, role, created_at, updated_at FROM users WHERE id = $1`

	var user models.User
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &email, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	user.Email = email.String
	return &user, nil
}
