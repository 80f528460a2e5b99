package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/search"
	"github.com/company-wiki-api/internal/service"
)

func TestReindexService_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat := f.createCategory(t, "Guides")
	a := f.createArticle(t, f.editor, "Setup", &cat.ID, "dev")
	b := f.createArticle(t, f.editor, "Teardown", nil)

	// Simulate missed syncs: one document lost, one stale, one orphaned.
	f.index.FailOn("IndexDocument", errors.New("index down"))
	_, err := f.svc.Articles.Update(ctx, f.editor, b.ID, patch(t, `{"title":"Teardown v2"}`))
	require.NoError(t, err)
	f.index.FailOn("IndexDocument", nil)
	require.NoError(t, f.index.DeleteDocument(ctx, articlesIndex, search.DocumentID(a.ID)))
	require.NoError(t, f.index.IndexDocument(ctx, articlesIndex, "999", map[string]any{"id": 999, "title": "ghost"}))

	report, err := f.svc.Reindex.Reindex(ctx, models.EntityTypes)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total, "two articles, one category, one tag")
	assert.Equal(t, 4, report.Indexed)
	assert.Empty(t, report.Failures)

	assert.Equal(t, 2, f.index.Count(articlesIndex))
	_, ok := f.index.Document(articlesIndex, "999")
	assert.False(t, ok)
	doc, ok := f.index.Document(articlesIndex, search.DocumentID(b.ID))
	require.True(t, ok)
	assert.Equal(t, "Teardown v2", doc["title"])
	doc, ok = f.index.Document(articlesIndex, search.DocumentID(a.ID))
	require.True(t, ok)
	assert.Equal(t, []any{"dev"}, doc["tags"])
}

func TestReindexService_KeepsInactiveDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createArticle(t, f.editor, "Retired", nil)
	_, err := f.svc.Articles.SoftDelete(ctx, f.editor, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Reindex.Reindex(ctx, []models.EntityType{models.EntityArticle})
	require.NoError(t, err)

	doc, ok := f.index.Document(articlesIndex, search.DocumentID(a.ID))
	require.True(t, ok)
	assert.Equal(t, false, doc["is_active"])
}

func TestReindexService_DocumentFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createArticle(t, f.editor, "One", nil)
	f.createArticle(t, f.editor, "Two", nil)
	f.index.FailOn("BulkIndex:2", errors.New("mapper_parsing_exception"))

	report, err := f.svc.Reindex.Reindex(ctx, []models.EntityType{models.EntityArticle})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Indexed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, models.JobError{
		Entity:     models.EntityArticle,
		DocumentID: "2",
		Message:    "mapper_parsing_exception",
	}, report.Failures[0])
}

func TestReindexService_SwapsAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createArticle(t, f.editor, "Rebuilt", nil)

	live := f.index.AliasTarget(articlesIndex)
	require.Equal(t, search.VersionedName(articlesIndex, 1), live)

	_, err := f.svc.Reindex.Reindex(ctx, []models.EntityType{models.EntityArticle})
	require.NoError(t, err)

	rebuilt := f.index.AliasTarget(articlesIndex)
	assert.NotEqual(t, live, rebuilt)
	assert.True(t, strings.HasPrefix(rebuilt, articlesIndex+"_v"))
	assert.False(t, f.index.HasIndex(live), "the replaced version is dropped")
	assert.Equal(t, 1, f.index.Count(articlesIndex))
	assert.Equal(t, search.VersionedName(tagsIndex, 1), f.index.AliasTarget(tagsIndex), "other types are untouched")

	page, err := f.svc.Search.SearchArticles(ctx, models.SearchParams{Query: "Rebuilt"})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

// observingIndex runs a search through the alias before every bulk write,
// capturing what readers see while a rebuild is in flight.
type observingIndex struct {
	search.Index
	alias string
	seen  []int
}

func (o *observingIndex) BulkIndex(ctx context.Context, index string, docs []search.BulkDocument) (*search.BulkResult, error) {
	all := search.MatchAll()
	res, err := o.Index.Search(ctx, o.alias, &search.Request{Query: &all, Size: 10})
	if err != nil {
		return nil, err
	}
	o.seen = append(o.seen, res.Total)
	return o.Index.BulkIndex(ctx, index, docs)
}

func TestReindexService_LiveIndexServesDuringRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createArticle(t, f.editor, "One", nil)
	f.createArticle(t, f.editor, "Two", nil)

	observer := &observingIndex{Index: f.index, alias: articlesIndex}
	svc := service.NewServices(f.store.Repositories(), f.store, observer, testConfig(), zerolog.Nop())

	_, err := svc.Reindex.Reindex(ctx, []models.EntityType{models.EntityArticle})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, observer.seen, "readers keep every document while the new version fills")
}

func TestReindexService_FailedRebuildKeepsLiveIndex(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		leftovers int
	}{
		{"create fails", "CreateIndex", 0},
		{"bulk fails", "BulkIndex", 0},
		{"swap fails", "SwapAlias", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.createArticle(t, f.editor, "Survivor", nil)
			live := f.index.AliasTarget(articlesIndex)
			before := len(f.index.Indices())

			f.index.FailOn(tt.method, errors.New("forbidden"))
			_, err := f.svc.Reindex.Reindex(ctx, []models.EntityType{models.EntityArticle})
			require.Error(t, err)
			f.index.FailOn(tt.method, nil)

			assert.Equal(t, live, f.index.AliasTarget(articlesIndex))
			_, ok := f.index.Document(articlesIndex, search.DocumentID(a.ID))
			assert.True(t, ok, "the live version still holds its documents")
			assert.Len(t, f.index.Indices(), before+tt.leftovers)
		})
	}
}

func TestJobService_CreateReindexJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("admin only", func(t *testing.T) {
		_, _, err := f.svc.Job.CreateReindexJob(ctx, f.editor, "all", "")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, _, err := f.svc.Job.CreateReindexJob(ctx, f.admin, "comments", "")
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("empty resource means all", func(t *testing.T) {
		job, created, err := f.svc.Job.CreateReindexJob(ctx, f.admin, "", "")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.ReindexAll, job.Resource)
		assert.Equal(t, models.JobStatusPending, job.Status)
	})

	t.Run("idempotency key", func(t *testing.T) {
		first, created, err := f.svc.Job.CreateReindexJob(ctx, f.admin, "tag", "key-1")
		require.NoError(t, err)
		require.True(t, created)

		again, created, err := f.svc.Job.CreateReindexJob(ctx, f.admin, "tag", "key-1")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := f.svc.Job.GetJob(ctx, "3f1c6f0e-0000-4000-8000-000000000000")
		assert.ErrorIs(t, err, service.ErrJobNotFound)
	})
}

func TestJobService_Processor(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.createArticle(t, f.editor, "Indexed", nil, "x")
	f.createArticle(t, f.editor, "Rejected", nil)
	f.index.FailOn("BulkIndex:2", errors.New("document too large"))

	f.svc.Job.StartProcessor(ctx)
	t.Cleanup(f.svc.Job.StopProcessor)

	job, _, err := f.svc.Job.CreateReindexJob(context.Background(), f.admin, "article", "")
	require.NoError(t, err)

	var got *models.JobResponse
	require.Eventually(t, func() bool {
		got, err = f.svc.Job.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, got.TotalRecords)
	assert.Equal(t, 1, got.SuccessfulCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "2", got.Errors[0].DocumentID)

	t.Run("failed sweep marks the job failed", func(t *testing.T) {
		f.index.FailOn("CreateIndex", errors.New("cluster read-only"))
		job, _, err := f.svc.Job.CreateReindexJob(context.Background(), f.admin, "tag", "")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, err = f.svc.Job.GetJob(context.Background(), job.ID)
			return err == nil && got.Status == models.JobStatusFailed
		}, 2*time.Second, 10*time.Millisecond)
		assert.Contains(t, got.ErrorMessage, "cluster read-only")
	})
}

func TestJobService_StopRightAfterStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f.svc.Job.StartProcessor(ctx)
		f.svc.Job.StopProcessor()
	}
	f.svc.Job.StopProcessor()

	job, _, err := f.svc.Job.CreateReindexJob(ctx, f.admin, "tag", "")
	require.NoError(t, err)
	assert.Never(t, func() bool {
		got, err := f.svc.Job.GetJob(ctx, job.ID)
		return err != nil || got.Status != models.JobStatusPending
	}, 100*time.Millisecond, 10*time.Millisecond, "a stopped processor claims nothing")

	t.Run("restart picks the job up", func(t *testing.T) {
		f.svc.Job.StartProcessor(ctx)
		f.svc.Job.StartProcessor(ctx)
		t.Cleanup(f.svc.Job.StopProcessor)

		require.Eventually(t, func() bool {
			got, err := f.svc.Job.GetJob(ctx, job.ID)
			return err == nil && got.Status == models.JobStatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	})
}
