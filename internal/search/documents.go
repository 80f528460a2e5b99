package search

import (
	"time"

	"github.com/company-wiki-api/internal/models"
)

// ArticleDocument is the denormalized article held in the index. Tags are
// names, and user ids carry their display names alongside.
type ArticleDocument struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	CategoryID    *int64    `json:"category_id"`
	Tags          []string  `json:"tags"`
	AuthorID      int64     `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	CreatedBy     int64     `json:"created_by"`
	CreatedByName string    `json:"created_by_name"`
	UpdatedBy     int64     `json:"updated_by"`
	UpdatedByName string    `json:"updated_by_name"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TaxonomyDocument is a category or tag held in the index
type TaxonomyDocument struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	IsActive      bool      `json:"is_active"`
	CreatedBy     int64     `json:"created_by"`
	CreatedByName string    `json:"created_by_name"`
	UpdatedBy     int64     `json:"updated_by"`
	UpdatedByName string    `json:"updated_by_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ActivePatch is the partial document written by soft delete and restore
func ActivePatch(active bool, updatedBy int64, updatedByName string, at time.Time) map[string]any {
	return map[string]any{
		"is_active":       active,
		"updated_by":      updatedBy,
		"updated_by_name": updatedByName,
		"updated_at":      at,
	}
}

var keyword = map[string]any{"type": "keyword"}

func userFields(props map[string]any) map[string]any {
	for _, f := range []string{"created_by", "updated_by"} {
		props[f] = map[string]any{"type": "long"}
		props[f+"_name"] = keyword
	}
	props["is_active"] = map[string]any{"type": "boolean"}
	props["created_at"] = map[string]any{"type": "date"}
	props["updated_at"] = map[string]any{"type": "date"}
	return props
}

// ArticleMapping is the explicit mapping of the article index. Tags are
// keywords so tag filters are exact.
func ArticleMapping() map[string]any {
	return map[string]any{
		"properties": userFields(map[string]any{
			"id":          map[string]any{"type": "long"},
			"title":       map[string]any{"type": "text", "fields": map[string]any{"raw": keyword}},
			"content":     map[string]any{"type": "text"},
			"category_id": map[string]any{"type": "long"},
			"tags":        keyword,
			"author_id":   map[string]any{"type": "long"},
			"author_name": keyword,
		}),
	}
}

// TaxonomyMapping is shared by the category and tag indices
func TaxonomyMapping() map[string]any {
	return map[string]any{
		"properties": userFields(map[string]any{
			"id":   map[string]any{"type": "long"},
			"name": map[string]any{"type": "text", "fields": map[string]any{"raw": keyword}},
			"slug": map[string]any{"type": "text"},
		}),
	}
}

// MappingFor returns the index mapping of the entity type
func MappingFor(entity models.EntityType) map[string]any {
	if entity == models.EntityArticle {
		return ArticleMapping()
	}
	return TaxonomyMapping()
}
