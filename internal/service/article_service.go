package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/validation"
)

// ArticleService manages the article lifecycle
type ArticleService interface {
	Create(ctx context.Context, actor models.Actor, in *models.ArticleInput) (*models.Article, error)
	// GetByID returns inactive articles only to their author or an admin;
	// anyone else gets ErrForbiddenView.
	GetByID(ctx context.Context, actor models.Actor, id int64) (*models.Article, error)
	// Update applies a raw JSON patch. Omitted fields keep their values;
	// tags, when present, replace the whole set.
	Update(ctx context.Context, actor models.Actor, id int64, patch map[string]json.RawMessage) (*models.Article, error)
	SoftDelete(ctx context.Context, actor models.Actor, id int64) (*models.Article, error)
	Restore(ctx context.Context, actor models.Actor, id int64) (*models.Article, error)
	HardDelete(ctx context.Context, actor models.Actor, id int64) error
	History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error)
}

type articleService struct {
	*lifecycle[*models.Article]
	docs *projector
}

func newArticleService(c *core, log zerolog.Logger) *articleService {
	s := &articleService{docs: c.docs}
	s.lifecycle = &lifecycle[*models.Article]{
		policy: policy[*models.Article]{
			kind: models.EntityArticle,
			lock: func(ctx context.Context, repos *repository.Repositories, id int64) error {
				return repos.Article.Lock(ctx, id)
			},
			load: func(ctx context.Context, repos *repository.Repositories, id int64) (*models.Article, error) {
				return repos.Article.GetByID(ctx, id)
			},
			save: func(ctx context.Context, repos *repository.Repositories, a *models.Article) error {
				return repos.Article.Update(ctx, a)
			},
			purge: func(ctx context.Context, repos *repository.Repositories, id int64) error {
				return repos.Article.Delete(ctx, id)
			},
			mutate: func(actor models.Actor, a *models.Article) error {
				if actor.IsAdmin() || actor.ID == a.AuthorID {
					return nil
				}
				return forbidden(models.EntityArticle, "modify")
			},
			delete: func(actor models.Actor, a *models.Article) error {
				if actor.IsAdmin() {
					return nil
				}
				return forbidden(models.EntityArticle, "permanently delete")
			},
			document: func(ctx context.Context, a *models.Article) any {
				return c.docs.article(ctx, a)
			},
		},
		tx:    c.tx,
		reads: c.reads,
		sync:  c.sync,
		names: c.names,
		log:   log,
	}
	return s
}

func (s *articleService) Create(ctx context.Context, actor models.Actor, in *models.ArticleInput) (*models.Article, error) {
	if !actor.CanAuthor() {
		return nil, forbidden(models.EntityArticle, "create")
	}
	if errs := validation.ValidateArticleInput(in); len(errs) > 0 {
		return nil, invalid(models.EntityArticle, errs)
	}

	var createdTags []*models.Tag
	article, err := s.create(ctx, actor, func(repos *repository.Repositories) (*models.Article, error) {
		if err := checkCategory(ctx, repos, in.CategoryID); err != nil {
			return nil, err
		}

		at := now()
		a := &models.Article{
			Title:      in.Title,
			Content:    in.Content,
			CategoryID: in.CategoryID,
			AuthorID:   actor.ID,
			CreatedBy:  actor.ID,
			UpdatedBy:  actor.ID,
			IsActive:   true,
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		if err := repos.Article.Create(ctx, a); err != nil {
			return nil, err
		}

		refs, created, err := ensureTags(ctx, repos, in.Tags, actor.ID, at)
		if err != nil {
			return nil, err
		}
		if err := repos.Article.ReplaceTags(ctx, a.ID, tagIDs(refs)); err != nil {
			return nil, err
		}
		a.Tags = sortRefs(refs)
		createdTags = created
		return a, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("article_id", article.ID).Int64("actor_id", actor.ID).Msg("Article created")
	s.indexTags(ctx, createdTags)
	return article, nil
}

func (s *articleService) GetByID(ctx context.Context, actor models.Actor, id int64) (*models.Article, error) {
	a, err := s.reads.Article.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(models.EntityArticle, err)
	}
	if !canView(actor, a) {
		return nil, forbiddenView(models.EntityArticle)
	}
	return a, nil
}

func canView(actor models.Actor, a *models.Article) bool {
	return a.IsActive || actor.IsAdmin() || actor.ID == a.AuthorID
}

func (s *articleService) Update(ctx context.Context, actor models.Actor, id int64, raw map[string]json.RawMessage) (*models.Article, error) {
	patch, errs := validation.DecodeArticlePatch(raw)
	if len(errs) > 0 {
		return nil, invalid(models.EntityArticle, errs)
	}

	var createdTags []*models.Tag
	article, err := s.update(ctx, actor, id, func(repos *repository.Repositories, a *models.Article) error {
		if patch.Title != nil {
			a.Title = *patch.Title
		}
		if patch.Content != nil {
			a.Content = *patch.Content
		}
		if patch.SetCategory {
			if err := checkCategory(ctx, repos, patch.CategoryID); err != nil {
				return err
			}
			a.CategoryID = patch.CategoryID
		}
		if patch.IsActive != nil {
			a.IsActive = *patch.IsActive
		}
		if patch.Tags != nil {
			refs, created, err := ensureTags(ctx, repos, *patch.Tags, actor.ID, now())
			if err != nil {
				return err
			}
			if err := repos.Article.ReplaceTags(ctx, a.ID, tagIDs(refs)); err != nil {
				return err
			}
			a.Tags = sortRefs(refs)
			createdTags = created
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.indexTags(ctx, createdTags)
	return article, nil
}

func (s *articleService) SoftDelete(ctx context.Context, actor models.Actor, id int64) (*models.Article, error) {
	return s.softDelete(ctx, actor, id, false)
}

func (s *articleService) Restore(ctx context.Context, actor models.Actor, id int64) (*models.Article, error) {
	return s.restore(ctx, actor, id)
}

func (s *articleService) HardDelete(ctx context.Context, actor models.Actor, id int64) error {
	if err := s.hardDelete(ctx, actor, id, false); err != nil {
		return err
	}
	s.log.Info().Int64("article_id", id).Int64("actor_id", actor.ID).Msg("Article purged")
	return nil
}

// History follows the getById visibility rule. The log of a purged article
// is visible to admins only.
func (s *articleService) History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error) {
	a, err := s.reads.Article.GetByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if !actor.IsAdmin() {
			return nil, ErrArticleNotFound
		}
		entries, err := s.history(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, ErrArticleNotFound
		}
		return entries, nil
	case err != nil:
		return nil, err
	case !canView(actor, a):
		return nil, forbiddenView(models.EntityArticle)
	}
	return s.history(ctx, id)
}

// reproject re-reads articles after commit and indexes them in full. Used
// when a taxonomy transition changed what the article documents carry.
func (s *articleService) reproject(ctx context.Context, ids []int64) {
	for _, id := range ids {
		a, err := s.reads.Article.GetByID(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Int64("article_id", id).Msg("Failed to load article for reindex")
			continue
		}
		s.sync.Index(ctx, models.EntityArticle, id, s.docs.article(ctx, a))
	}
}

// indexTags mirrors tags created implicitly by tag reconciliation
func (s *articleService) indexTags(ctx context.Context, tags []*models.Tag) {
	for _, t := range tags {
		s.sync.Index(ctx, models.EntityTag, t.ID, s.docs.tag(ctx, t))
	}
}

// checkCategory rejects references to missing or inactive categories
func checkCategory(ctx context.Context, repos *repository.Repositories, id *int64) error {
	if id == nil {
		return nil
	}
	c, err := repos.Category.GetByID(ctx, *id)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid(models.EntityArticle, []validation.ValidationError{
			{Field: "category_id", Message: "category does not exist", Value: *id},
		})
	}
	if err != nil {
		return err
	}
	if !c.IsActive {
		return invalid(models.EntityArticle, []validation.ValidationError{
			{Field: "category_id", Message: "category is not active", Value: *id},
		})
	}
	return nil
}

func sortRefs(refs []models.TagRef) []models.TagRef {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}
