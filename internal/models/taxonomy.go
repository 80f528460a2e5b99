package models

import (
	"time"
)

// Category groups articles. Name is the label, Slug is derived from it.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	UpdatedBy int64     `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (c *Category) EntityID() int64 { return c.ID }
func (c *Category) Active() bool    { return c.IsActive }

func (c *Category) MarkActive(active bool, actorID int64, at time.Time) {
	c.IsActive = active
	c.UpdatedBy = actorID
	c.UpdatedAt = at
}

// Tag is a free-form label attached to articles. Names are unique and
// compared case-sensitively.
type Tag struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	UpdatedBy int64     `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (t *Tag) EntityID() int64 { return t.ID }
func (t *Tag) Active() bool    { return t.IsActive }

func (t *Tag) MarkActive(active bool, actorID int64, at time.Time) {
	t.IsActive = active
	t.UpdatedBy = actorID
	t.UpdatedAt = at
}

// TagRef is the id/name pair attached to an article
type TagRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TaxonomyInput is the create payload shared by categories and tags
type TaxonomyInput struct {
	Name string `json:"name"`
}

// TaxonomyPatch holds the fields present in a category or tag update
type TaxonomyPatch struct {
	Name     *string
	IsActive *bool
}

// TaxonomyUpdateFields is the whitelist of updatable category/tag fields
var TaxonomyUpdateFields = map[string]bool{
	"name":      true,
	"is_active": true,
}
