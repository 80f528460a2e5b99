// Package service holds the write-path orchestration (transactional
// mutation, audit log, best-effort index sync) and the search read path.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/search"
)

// Services holds all service interfaces
type Services struct {
	Articles   ArticleService
	Categories CategoryService
	Tags       TagService
	Search     SearchService
	Reindex    ReindexService
	Job        JobService
}

// core is what every lifecycle service shares
type core struct {
	tx    repository.TxManager
	reads *repository.Repositories
	sync  *search.Syncer
	names *nameResolver
	docs  *projector
}

// NewServices creates all services. reads must be bound to the connection
// pool, not to a transaction; tx opens the units of work.
func NewServices(reads *repository.Repositories, tx repository.TxManager, index search.Index, cfg *config.Config, log zerolog.Logger) *Services {
	names := newNameResolver(reads.User, cfg.Cache.UserCacheSize, cfg.Cache.UserCacheTTL, log.With().Str("component", "names").Logger())
	indexNames := search.Names{Prefix: cfg.Search.IndexPrefix}
	c := &core{
		tx:    tx,
		reads: reads,
		sync:  search.NewSyncer(index, indexNames, cfg.Search.SyncTimeout, log),
		names: names,
		docs:  &projector{names: names},
	}

	articles := newArticleService(c, log.With().Str("service", "article").Logger())
	resync := func(ctx context.Context, ids []int64) { articles.reproject(ctx, ids) }
	reindex := newReindexService(index, indexNames, reads, c.docs, log)

	return &Services{
		Articles:   articles,
		Categories: newCategoryService(c, resync, log.With().Str("service", "category").Logger()),
		Tags:       newTagService(c, resync, log.With().Str("service", "tag").Logger()),
		Search:     newSearchService(index, &cfg.Search, log),
		Reindex:    reindex,
		Job:        newJobService(reads.Job, reindex, &cfg.Jobs, log),
	}
}
