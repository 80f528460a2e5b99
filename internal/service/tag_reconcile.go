package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/validation"
)

// normalizeTagNames trims names, drops empties and duplicates, and keeps
// first-seen order. Names stay case-sensitive.
func normalizeTagNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ensureTags resolves tag names to rows inside the caller's transaction,
// inserting the missing ones in a single statement. It returns the refs in
// input order plus the tags it created.
//
// Ids of new rows come from the insert's RETURNING clause. Rows a concurrent
// writer inserted first are skipped by the insert and re-read by name.
// Soft-deleted tags are not reused: naming one is a validation error on
// tags, as for an inactive category.
func ensureTags(ctx context.Context, repos *repository.Repositories, names []string, actorID int64, at time.Time) ([]models.TagRef, []*models.Tag, error) {
	names = normalizeTagNames(names)
	if len(names) == 0 {
		return []models.TagRef{}, nil, nil
	}

	existing, err := repos.Tag.FindByNames(ctx, names)
	if err != nil {
		return nil, nil, err
	}
	if err := rejectInactive(existing); err != nil {
		return nil, nil, err
	}
	byName := make(map[string]int64, len(names))
	for _, t := range existing {
		byName[t.Name] = t.ID
	}

	var missing []*models.Tag
	for _, n := range names {
		if _, ok := byName[n]; ok {
			continue
		}
		missing = append(missing, &models.Tag{
			Name:      n,
			Slug:      slug.Make(n),
			IsActive:  true,
			CreatedBy: actorID,
			UpdatedBy: actorID,
			CreatedAt: at,
			UpdatedAt: at,
		})
	}

	var created []*models.Tag
	if len(missing) > 0 {
		created, err = repos.Tag.InsertMissing(ctx, missing)
		if err != nil {
			return nil, nil, err
		}
		for _, t := range created {
			byName[t.Name] = t.ID
		}

		if len(created) < len(missing) {
			var raced []string
			for _, t := range missing {
				if _, ok := byName[t.Name]; !ok {
					raced = append(raced, t.Name)
				}
			}
			found, err := repos.Tag.FindByNames(ctx, raced)
			if err != nil {
				return nil, nil, err
			}
			if err := rejectInactive(found); err != nil {
				return nil, nil, err
			}
			for _, t := range found {
				byName[t.Name] = t.ID
			}
		}
	}

	refs := make([]models.TagRef, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, nil, fmt.Errorf("tag %q could not be resolved", n)
		}
		refs = append(refs, models.TagRef{ID: id, Name: n})
	}
	return refs, created, nil
}

func rejectInactive(tags []*models.Tag) error {
	var fields []validation.ValidationError
	for _, t := range tags {
		if !t.IsActive {
			fields = append(fields, validation.ValidationError{Field: "tags", Message: "tag is not active", Value: t.Name})
		}
	}
	if len(fields) > 0 {
		return invalid(models.EntityArticle, fields)
	}
	return nil
}

func tagIDs(refs []models.TagRef) []int64 {
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
