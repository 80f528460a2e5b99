package models

import (
	"time"
)

// Article represents a wiki article. AuthorID is fixed at creation while
// UpdatedBy follows the last actor.
type Article struct {
	ID         int64     `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	CategoryID *int64    `json:"category_id" db:"category_id"`
	AuthorID   int64     `json:"author_id" db:"author_id"`
	CreatedBy  int64     `json:"created_by" db:"created_by"`
	UpdatedBy  int64     `json:"updated_by" db:"updated_by"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	Tags       []TagRef  `json:"tags" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func (a *Article) EntityID() int64 { return a.ID }
func (a *Article) Active() bool    { return a.IsActive }

// MarkActive flips the soft-delete flag and stamps the actor
func (a *Article) MarkActive(active bool, actorID int64, at time.Time) {
	a.IsActive = active
	a.UpdatedBy = actorID
	a.UpdatedAt = at
}

// TagNames returns the names of the attached tags
func (a *Article) TagNames() []string {
	names := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		names = append(names, t.Name)
	}
	return names
}

// ArticleInput is the create payload for an article
type ArticleInput struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	CategoryID *int64   `json:"category_id"`
	Tags       []string `json:"tags"`
}

// ArticlePatch holds the fields present in an update payload. A nil field
// keeps its stored value; SetCategory distinguishes "clear" from "omitted".
type ArticlePatch struct {
	Title       *string
	Content     *string
	SetCategory bool
	CategoryID  *int64
	Tags        *[]string
	IsActive    *bool
}

// ArticleUpdateFields is the whitelist of updatable article fields
var ArticleUpdateFields = map[string]bool{
	"title":       true,
	"content":     true,
	"category_id": true,
	"tags":        true,
	"is_active":   true,
}
