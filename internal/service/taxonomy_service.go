package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/validation"
)

// CategoryService manages the category lifecycle. Every mutation is
// admin-only.
type CategoryService interface {
	Create(ctx context.Context, actor models.Actor, in *models.TaxonomyInput) (*models.Category, error)
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	Update(ctx context.Context, actor models.Actor, id int64, patch map[string]json.RawMessage) (*models.Category, error)
	// SoftDelete refuses a category used by active articles unless force is
	// set, in which case those articles lose the category first.
	SoftDelete(ctx context.Context, actor models.Actor, id int64, force bool) (*models.Category, error)
	Restore(ctx context.Context, actor models.Actor, id int64) (*models.Category, error)
	HardDelete(ctx context.Context, actor models.Actor, id int64, force bool) error
	History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error)
}

// TagService manages the tag lifecycle. Every mutation is admin-only; tags
// created through article tag lists bypass it.
type TagService interface {
	Create(ctx context.Context, actor models.Actor, in *models.TaxonomyInput) (*models.Tag, error)
	GetByID(ctx context.Context, id int64) (*models.Tag, error)
	Update(ctx context.Context, actor models.Actor, id int64, patch map[string]json.RawMessage) (*models.Tag, error)
	SoftDelete(ctx context.Context, actor models.Actor, id int64, force bool) (*models.Tag, error)
	Restore(ctx context.Context, actor models.Actor, id int64) (*models.Tag, error)
	HardDelete(ctx context.Context, actor models.Actor, id int64, force bool) error
	History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error)
}

func adminOnly[T entity](kind models.EntityType, action string) func(models.Actor, T) error {
	return func(actor models.Actor, _ T) error {
		if actor.IsAdmin() {
			return nil
		}
		return forbidden(kind, action)
	}
}

// deactivating reports whether a patch turns an active entity inactive;
// such updates obey the same reference rule as a non-forced soft delete.
func deactivating(patch *models.TaxonomyPatch, e entity) bool {
	return patch.IsActive != nil && !*patch.IsActive && e.Active()
}

type categoryService struct {
	*lifecycle[*models.Category]
}

func newCategoryService(c *core, resync func(context.Context, []int64), log zerolog.Logger) *categoryService {
	return &categoryService{&lifecycle[*models.Category]{
		policy: policy[*models.Category]{
			kind: models.EntityCategory,
			lock: func(ctx context.Context, repos *repository.Repositories, id int64) error {
				return repos.Category.Lock(ctx, id)
			},
			load: func(ctx context.Context, repos *repository.Repositories, id int64) (*models.Category, error) {
				return repos.Category.GetByID(ctx, id)
			},
			save: func(ctx context.Context, repos *repository.Repositories, cat *models.Category) error {
				return repos.Category.Update(ctx, cat)
			},
			purge: func(ctx context.Context, repos *repository.Repositories, id int64) error {
				return repos.Category.Delete(ctx, id)
			},
			mutate: adminOnly[*models.Category](models.EntityCategory, "modify"),
			delete: adminOnly[*models.Category](models.EntityCategory, "permanently delete"),
			references: func(ctx context.Context, repos *repository.Repositories, id int64) (int, error) {
				return repos.Article.CountActiveByCategory(ctx, id)
			},
			detach: func(ctx context.Context, repos *repository.Repositories, id int64) ([]int64, error) {
				return repos.Article.DetachCategory(ctx, id)
			},
			document: func(ctx context.Context, cat *models.Category) any {
				return c.docs.category(ctx, cat)
			},
		},
		tx:     c.tx,
		reads:  c.reads,
		sync:   c.sync,
		names:  c.names,
		resync: resync,
		log:    log,
	}}
}

func (s *categoryService) Create(ctx context.Context, actor models.Actor, in *models.TaxonomyInput) (*models.Category, error) {
	if !actor.IsAdmin() {
		return nil, forbidden(models.EntityCategory, "create")
	}
	if errs := validation.ValidateTaxonomyInput(in); len(errs) > 0 {
		return nil, invalid(models.EntityCategory, errs)
	}

	return s.create(ctx, actor, func(repos *repository.Repositories) (*models.Category, error) {
		at := now()
		cat := &models.Category{
			Name:      in.Name,
			Slug:      slug.Make(in.Name),
			IsActive:  true,
			CreatedBy: actor.ID,
			UpdatedBy: actor.ID,
			CreatedAt: at,
			UpdatedAt: at,
		}
		if err := repos.Category.Create(ctx, cat); err != nil {
			return nil, err
		}
		return cat, nil
	})
}

// GetByID returns the category whatever its state
func (s *categoryService) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	cat, err := s.reads.Category.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(models.EntityCategory, err)
	}
	return cat, nil
}

func (s *categoryService) Update(ctx context.Context, actor models.Actor, id int64, raw map[string]json.RawMessage) (*models.Category, error) {
	patch, errs := validation.DecodeTaxonomyPatch(raw)
	if len(errs) > 0 {
		return nil, invalid(models.EntityCategory, errs)
	}
	return s.update(ctx, actor, id, func(repos *repository.Repositories, cat *models.Category) error {
		if deactivating(patch, cat) {
			if _, err := s.clearReferences(ctx, repos, id, false, false); err != nil {
				return err
			}
		}
		if patch.Name != nil {
			cat.Name = *patch.Name
			cat.Slug = slug.Make(*patch.Name)
		}
		if patch.IsActive != nil {
			cat.IsActive = *patch.IsActive
		}
		return nil
	})
}

func (s *categoryService) SoftDelete(ctx context.Context, actor models.Actor, id int64, force bool) (*models.Category, error) {
	return s.softDelete(ctx, actor, id, force)
}

func (s *categoryService) Restore(ctx context.Context, actor models.Actor, id int64) (*models.Category, error) {
	return s.restore(ctx, actor, id)
}

func (s *categoryService) HardDelete(ctx context.Context, actor models.Actor, id int64, force bool) error {
	return s.hardDelete(ctx, actor, id, force)
}

func (s *categoryService) History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error) {
	if !actor.IsAdmin() {
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.history(ctx, id)
}

type tagService struct {
	*lifecycle[*models.Tag]
}

func newTagService(c *core, resync func(context.Context, []int64), log zerolog.Logger) *tagService {
	return &tagService{&lifecycle[*models.Tag]{
		policy: policy[*models.Tag]{
			kind: models.EntityTag,
			lock: func(ctx context.Context, repos *repository.Repositories, id int64) error {
				return repos.Tag.Lock(ctx, id)
			},
			load: func(ctx context.Context, repos *repository.Repositories, id int64) (*models.Tag, error) {
				return repos.Tag.GetByID(ctx, id)
			},
			save: func(ctx context.Context, repos *repository.Repositories, t *models.Tag) error {
				return repos.Tag.Update(ctx, t)
			},
			purge: func(ctx context.Context, repos *repository.Repositories, id int64) error {
				return repos.Tag.Delete(ctx, id)
			},
			mutate: adminOnly[*models.Tag](models.EntityTag, "modify"),
			delete: adminOnly[*models.Tag](models.EntityTag, "permanently delete"),
			references: func(ctx context.Context, repos *repository.Repositories, id int64) (int, error) {
				return repos.Article.CountActiveByTag(ctx, id)
			},
			detach: func(ctx context.Context, repos *repository.Repositories, id int64) ([]int64, error) {
				return repos.Article.DetachTag(ctx, id)
			},
			document: func(ctx context.Context, t *models.Tag) any {
				return c.docs.tag(ctx, t)
			},
		},
		tx:     c.tx,
		reads:  c.reads,
		sync:   c.sync,
		names:  c.names,
		resync: resync,
		log:    log,
	}}
}

func duplicateTag(name string) *Error {
	return conflict(models.EntityTag, "tag %q already exists", name)
}

func (s *tagService) Create(ctx context.Context, actor models.Actor, in *models.TaxonomyInput) (*models.Tag, error) {
	if !actor.IsAdmin() {
		return nil, forbidden(models.EntityTag, "create")
	}
	if errs := validation.ValidateTaxonomyInput(in); len(errs) > 0 {
		return nil, invalid(models.EntityTag, errs)
	}

	return s.create(ctx, actor, func(repos *repository.Repositories) (*models.Tag, error) {
		at := now()
		t := &models.Tag{
			Name:      in.Name,
			Slug:      slug.Make(in.Name),
			IsActive:  true,
			CreatedBy: actor.ID,
			UpdatedBy: actor.ID,
			CreatedAt: at,
			UpdatedAt: at,
		}
		err := repos.Tag.Create(ctx, t)
		if errors.Is(err, repository.ErrConflict) {
			return nil, duplicateTag(in.Name)
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}

// GetByID returns the tag whatever its state
func (s *tagService) GetByID(ctx context.Context, id int64) (*models.Tag, error) {
	t, err := s.reads.Tag.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(models.EntityTag, err)
	}
	return t, nil
}

// Update renames or toggles a tag. A rename re-projects every article that
// carries the tag, since article documents hold tag names.
func (s *tagService) Update(ctx context.Context, actor models.Actor, id int64, raw map[string]json.RawMessage) (*models.Tag, error) {
	patch, errs := validation.DecodeTaxonomyPatch(raw)
	if len(errs) > 0 {
		return nil, invalid(models.EntityTag, errs)
	}

	renamed := false
	t, err := s.update(ctx, actor, id, func(repos *repository.Repositories, t *models.Tag) error {
		if deactivating(patch, t) {
			if _, err := s.clearReferences(ctx, repos, id, false, false); err != nil {
				return err
			}
		}
		if patch.Name != nil && *patch.Name != t.Name {
			t.Name = *patch.Name
			t.Slug = slug.Make(*patch.Name)
			renamed = true
		}
		if patch.IsActive != nil {
			t.IsActive = *patch.IsActive
		}
		return nil
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, duplicateTag(*patch.Name)
	}
	if err != nil {
		return nil, err
	}

	if renamed {
		ids, err := s.reads.Article.IDsByTag(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Int64("tag_id", id).Msg("Failed to list articles for renamed tag")
		} else {
			s.resyncArticles(ctx, ids)
		}
	}
	return t, nil
}

func (s *tagService) SoftDelete(ctx context.Context, actor models.Actor, id int64, force bool) (*models.Tag, error) {
	return s.softDelete(ctx, actor, id, force)
}

func (s *tagService) Restore(ctx context.Context, actor models.Actor, id int64) (*models.Tag, error) {
	return s.restore(ctx, actor, id)
}

func (s *tagService) HardDelete(ctx context.Context, actor models.Actor, id int64, force bool) error {
	return s.hardDelete(ctx, actor, id, force)
}

func (s *tagService) History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error) {
	if !actor.IsAdmin() {
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.history(ctx, id)
}
