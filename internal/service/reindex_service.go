package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/search"
)

const reindexBatchSize = 500

// ReindexReport summarizes one reindex sweep
type ReindexReport struct {
	Total    int
	Indexed  int
	Failures []models.JobError
	Duration time.Duration
}

// ReindexService rebuilds the index from the relational store. It is the
// recovery path for index drift.
type ReindexService interface {
	// EnsureIndices creates missing indices with their mappings
	EnsureIndices(ctx context.Context) error
	// Reindex rebuilds the indices of the given entity types concurrently.
	// Each gets a fresh index that replaces the live one only once it is
	// fully filled.
	Reindex(ctx context.Context, entities []models.EntityType) (*ReindexReport, error)
}

type reindexService struct {
	index search.Index
	names search.Names
	reads *repository.Repositories
	docs  *projector
	log   zerolog.Logger
}

func newReindexService(index search.Index, names search.Names, reads *repository.Repositories, docs *projector, log zerolog.Logger) *reindexService {
	return &reindexService{
		index: index,
		names: names,
		reads: reads,
		docs:  docs,
		log:   log.With().Str("service", "reindex").Logger(),
	}
}

func (s *reindexService) EnsureIndices(ctx context.Context) error {
	for _, entity := range models.EntityTypes {
		if err := s.index.EnsureIndex(ctx, s.names.For(entity), search.MappingFor(entity)); err != nil {
			return fmt.Errorf("ensure %s index: %w", entity, err)
		}
	}
	return nil
}

func (s *reindexService) Reindex(ctx context.Context, entities []models.EntityType) (*ReindexReport, error) {
	start := time.Now()
	report := &ReindexReport{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, entity := range entities {
		g.Go(func() error {
			sweep, err := s.sweep(ctx, entity)
			if err != nil {
				return fmt.Errorf("reindex %s: %w", entity, err)
			}
			mu.Lock()
			report.Total += sweep.Total
			report.Indexed += sweep.Indexed
			report.Failures = append(report.Failures, sweep.Failures...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	s.log.Info().
		Int("total", report.Total).
		Int("indexed", report.Indexed).
		Int("failed", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("Reindex completed")
	return report, nil
}

// sweep builds a new version of one index from the relational store, then
// switches the alias to it and drops the versions it replaced. Searches are
// served by the old version until the switch.
func (s *reindexService) sweep(ctx context.Context, entity models.EntityType) (*ReindexReport, error) {
	alias := s.names.For(entity)
	target := search.VersionedName(alias, time.Now().UnixNano())
	if err := s.index.CreateIndex(ctx, target, search.MappingFor(entity)); err != nil {
		return nil, err
	}

	report, err := s.fill(ctx, entity, target)
	if err != nil {
		s.discard(ctx, target)
		return nil, err
	}
	previous, err := s.index.SwapAlias(ctx, alias, target)
	if err != nil {
		// the swap may have been applied before the error; keep the index
		s.log.Error().Err(err).Str("alias", alias).Str("index", target).Msg("Alias switch failed")
		return nil, err
	}
	if err := s.index.DeleteIndex(ctx, previous...); err != nil {
		s.log.Warn().Err(err).Strs("indices", previous).Msg("Failed to drop replaced index")
	}

	s.log.Info().
		Str("entity", string(entity)).
		Str("index", target).
		Int("total", report.Total).
		Int("indexed", report.Indexed).
		Msg("Index rebuilt")
	return report, nil
}

// discard drops a half-built version. The live alias never pointed at it.
func (s *reindexService) discard(ctx context.Context, name string) {
	if err := s.index.DeleteIndex(context.WithoutCancel(ctx), name); err != nil {
		s.log.Warn().Err(err).Str("index", name).Msg("Failed to drop unfinished index")
	}
}

// fill streams every row of the entity type into index in batches
func (s *reindexService) fill(ctx context.Context, entity models.EntityType, name string) (*ReindexReport, error) {
	report := &ReindexReport{}
	batch := make([]search.BulkDocument, 0, reindexBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := s.index.BulkIndex(ctx, name, batch)
		if err != nil {
			return err
		}
		report.Indexed += res.Indexed
		for _, f := range res.Failures {
			report.Failures = append(report.Failures, models.JobError{Entity: entity, DocumentID: f.ID, Message: f.Reason})
		}
		batch = batch[:0]
		return nil
	}
	add := func(id int64, doc any) error {
		report.Total++
		batch = append(batch, search.BulkDocument{ID: search.DocumentID(id), Body: doc})
		if len(batch) >= reindexBatchSize {
			return flush()
		}
		return nil
	}

	var err error
	switch entity {
	case models.EntityArticle:
		err = s.reads.Article.StreamAll(ctx, func(a *models.Article) error {
			return add(a.ID, s.docs.article(ctx, a))
		})
	case models.EntityCategory:
		err = s.reads.Category.StreamAll(ctx, func(c *models.Category) error {
			return add(c.ID, s.docs.category(ctx, c))
		})
	case models.EntityTag:
		err = s.reads.Tag.StreamAll(ctx, func(t *models.Tag) error {
			return add(t.ID, s.docs.tag(ctx, t))
		})
	default:
		err = fmt.Errorf("unknown entity type %q", entity)
	}
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return report, nil
}
