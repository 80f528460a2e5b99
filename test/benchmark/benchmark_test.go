package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/mocks"
	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/search"
	"github.com/company-wiki-api/internal/service"
	"github.com/company-wiki-api/internal/validation"
)

func benchConfig() *config.Config {
	return &config.Config{
		Search: config.SearchConfig{
			IndexPrefix:     "bench_",
			SyncTimeout:     time.Second,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			MaxResultWindow: 10000,
		},
		Jobs:  config.JobConfig{PollInterval: time.Hour, MaxWorkers: 1},
		Cache: config.CacheConfig{UserCacheSize: 64, UserCacheTTL: time.Minute},
	}
}

func setup(b *testing.B) (*service.Services, models.Actor) {
	b.Helper()
	store := mocks.NewStore()
	svc := service.NewServices(store.Repositories(), store, mocks.NewSearchIndex(), benchConfig(), zerolog.Nop())
	u := store.AddUser("bench", models.RoleEditor)
	if err := svc.Reindex.EnsureIndices(context.Background()); err != nil {
		b.Fatal(err)
	}
	return svc, models.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

// BenchmarkCreateArticle measures the full write path: transaction, tag
// reconciliation, audit row and index sync
func BenchmarkCreateArticle(b *testing.B) {
	svc, actor := setup(b)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, err := svc.Articles.Create(ctx, actor, &models.ArticleInput{
			Title:   fmt.Sprintf("Article %06d", i),
			Content: "Benchmark body",
			Tags:    []string{"bench", fmt.Sprintf("tag-%d", i%50)},
		})
		if err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkSearchArticles runs a fuzzy text query with a tag filter over
// 1000 indexed articles
func BenchmarkSearchArticles(b *testing.B) {
	svc, actor := setup(b)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_, err := svc.Articles.Create(ctx, actor, &models.ArticleInput{
			Title:   fmt.Sprintf("Onboarding guide %04d", i),
			Content: "How to get started on the platform team",
			Tags:    []string{fmt.Sprintf("team-%d", i%10)},
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	params := models.SearchParams{Query: "onbaording", Tags: []string{"team-3"}, Page: 1, PageSize: 20}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		page, err := svc.Search.SearchArticles(ctx, params)
		if err != nil {
			b.Fatal(err)
		}
		if page.Meta.Total != 100 {
			b.Fatalf("expected 100 hits, got %d", page.Meta.Total)
		}
	}

	b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkBuildQuery benchmarks query construction and serialization
func BenchmarkBuildQuery(b *testing.B) {
	category := int64(7)
	params := models.SearchParams{Query: "release notes*", CategoryID: &category, Tags: []string{"go", "api"}}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		q := service.ArticleQuery(params)
		if _, err := json.Marshal(q); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeArticlePatch benchmarks patch validation
func BenchmarkDecodeArticlePatch(b *testing.B) {
	var raw map[string]json.RawMessage
	body := `{"title":"New title","content":"Body","category_id":null,"tags":["go","sql"],"is_active":true}`
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, errs := validation.DecodeArticlePatch(raw); len(errs) > 0 {
			b.Fatal(errs)
		}
	}
}

// BenchmarkDecodeHits benchmarks hit decoding for a full result page
func BenchmarkDecodeHits(b *testing.B) {
	hits := make([]search.Hit, 100)
	for i := range hits {
		src, _ := json.Marshal(search.ArticleDocument{ID: int64(i), Title: "T", Tags: []string{"go"}, IsActive: true})
		hits[i] = search.Hit{ID: fmt.Sprint(i), Source: src}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := search.DecodeHits[search.ArticleDocument](hits); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(100*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkWorkerPoolParallel benchmarks the processor's semaphore under contention
func BenchmarkWorkerPoolParallel(b *testing.B) {
	sem := make(chan struct{}, 4)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sem <- struct{}{}
			<-sem
		}
	})
}
