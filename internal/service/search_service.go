package service

import (
	"context"
	"math"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/search"
)

var searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "wiki_search_duration_seconds",
	Help:    "Latency of search queries against the index.",
	Buckets: prometheus.DefBuckets,
}, []string{"entity", "outcome"})

// SearchService runs paginated queries against the index. Results never
// include inactive entities, whoever asks.
type SearchService interface {
	SearchArticles(ctx context.Context, params models.SearchParams) (*models.Page[search.ArticleDocument], error)
	SearchCategories(ctx context.Context, params models.TaxonomySearchParams) (*models.Page[search.TaxonomyDocument], error)
	SearchTags(ctx context.Context, params models.TaxonomySearchParams) (*models.Page[search.TaxonomyDocument], error)
}

type searchService struct {
	index       search.Index
	names       search.Names
	defaultSize int
	maxSize     int
	window      int
	log         zerolog.Logger
}

func newSearchService(index search.Index, cfg *config.SearchConfig, log zerolog.Logger) *searchService {
	return &searchService{
		index:       index,
		names:       search.Names{Prefix: cfg.IndexPrefix},
		defaultSize: cfg.DefaultPageSize,
		maxSize:     cfg.MaxPageSize,
		window:      cfg.MaxResultWindow,
		log:         log.With().Str("service", "search").Logger(),
	}
}

// pageBounds clamps page to >= 1 and size to [1, max]
func (s *searchService) pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.defaultSize
	}
	if size > s.maxSize {
		size = s.maxSize
	}
	return page, size
}

// offset returns the zero-based offset of page. ok is false when the page
// lies beyond the index's result window (or would overflow), in which case
// only the total can be asked for.
func (s *searchService) offset(page, size int) (from int, ok bool) {
	if page-1 > (math.MaxInt-size)/size {
		return 0, false
	}
	from = (page - 1) * size
	if s.window > 0 && from+size > s.window {
		return 0, false
	}
	return from, true
}

// ArticleQuery builds the article query: free text over title, tags and
// content plus exact filters. is_active=true is always applied.
func ArticleQuery(params models.SearchParams) *types.Query {
	filters := []types.Query{search.Term("is_active", true)}
	if params.CategoryID != nil {
		filters = append(filters, search.Term("category_id", *params.CategoryID))
	}
	if tags := normalizeTagNames(params.Tags); len(tags) > 0 {
		filters = append(filters, search.Terms("tags", tags...))
	}
	if params.AuthorID != nil {
		filters = append(filters, search.Term("author_id", *params.AuthorID))
	}
	return search.BuildQuery(params.Query, search.ArticleText, filters...)
}

// TaxonomyQuery builds the category/tag query
func TaxonomyQuery(params models.TaxonomySearchParams) *types.Query {
	filters := []types.Query{search.Term("is_active", true)}
	if params.CreatedBy != nil {
		filters = append(filters, search.Term("created_by", *params.CreatedBy))
	}
	return search.BuildQuery(params.Query, search.TaxonomyText, filters...)
}

func (s *searchService) SearchArticles(ctx context.Context, params models.SearchParams) (*models.Page[search.ArticleDocument], error) {
	page, size := s.pageBounds(params.Page, params.PageSize)
	return run[search.ArticleDocument](ctx, s, models.EntityArticle, ArticleQuery(params), page, size)
}

func (s *searchService) SearchCategories(ctx context.Context, params models.TaxonomySearchParams) (*models.Page[search.TaxonomyDocument], error) {
	page, size := s.pageBounds(params.Page, params.PageSize)
	return run[search.TaxonomyDocument](ctx, s, models.EntityCategory, TaxonomyQuery(params), page, size)
}

func (s *searchService) SearchTags(ctx context.Context, params models.TaxonomySearchParams) (*models.Page[search.TaxonomyDocument], error) {
	page, size := s.pageBounds(params.Page, params.PageSize)
	return run[search.TaxonomyDocument](ctx, s, models.EntityTag, TaxonomyQuery(params), page, size)
}

func run[T any](ctx context.Context, s *searchService, entity models.EntityType, q *types.Query, page, size int) (*models.Page[T], error) {
	req := &search.Request{Query: q, Size: size, Sort: search.RelevanceSort}
	from, ok := s.offset(page, size)
	if ok {
		req.From = from
	} else {
		// Past the window: count only, the page itself is empty
		req.Size = 0
	}

	start := time.Now()
	res, err := s.index.Search(ctx, s.names.For(entity), req)
	if err != nil {
		searchDuration.WithLabelValues(string(entity), "error").Observe(time.Since(start).Seconds())
		s.log.Error().Err(err).Str("entity", string(entity)).Msg("Search failed")
		return nil, err
	}
	searchDuration.WithLabelValues(string(entity), "ok").Observe(time.Since(start).Seconds())

	data, err := search.DecodeHits[T](res.Hits)
	if err != nil {
		return nil, err
	}
	return &models.Page[T]{Meta: models.NewPageMeta(res.Total, page, size), Data: data}, nil
}
