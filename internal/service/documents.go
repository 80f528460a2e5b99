package service

import (
	"context"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/search"
)

// projector builds index documents from relational rows
type projector struct {
	names *nameResolver
}

func (p *projector) article(ctx context.Context, a *models.Article) search.ArticleDocument {
	return search.ArticleDocument{
		ID:            a.ID,
		Title:         a.Title,
		Content:       a.Content,
		CategoryID:    a.CategoryID,
		Tags:          a.TagNames(),
		AuthorID:      a.AuthorID,
		AuthorName:    p.names.name(ctx, a.AuthorID),
		CreatedBy:     a.CreatedBy,
		CreatedByName: p.names.name(ctx, a.CreatedBy),
		UpdatedBy:     a.UpdatedBy,
		UpdatedByName: p.names.name(ctx, a.UpdatedBy),
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (p *projector) category(ctx context.Context, c *models.Category) search.TaxonomyDocument {
	return search.TaxonomyDocument{
		ID:            c.ID,
		Name:          c.Name,
		Slug:          c.Slug,
		IsActive:      c.IsActive,
		CreatedBy:     c.CreatedBy,
		CreatedByName: p.names.name(ctx, c.CreatedBy),
		UpdatedBy:     c.UpdatedBy,
		UpdatedByName: p.names.name(ctx, c.UpdatedBy),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (p *projector) tag(ctx context.Context, t *models.Tag) search.TaxonomyDocument {
	return search.TaxonomyDocument{
		ID:            t.ID,
		Name:          t.Name,
		Slug:          t.Slug,
		IsActive:      t.IsActive,
		CreatedBy:     t.CreatedBy,
		CreatedByName: p.names.name(ctx, t.CreatedBy),
		UpdatedBy:     t.UpdatedBy,
		UpdatedByName: p.names.name(ctx, t.UpdatedBy),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
