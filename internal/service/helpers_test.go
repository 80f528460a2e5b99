package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/mocks"
	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/service"
)

const (
	articlesIndex   = "test_articles"
	categoriesIndex = "test_categories"
	tagsIndex       = "test_tags"
)

type fixture struct {
	store  *mocks.Store
	index  *mocks.SearchIndex
	svc    *service.Services
	admin  models.Actor
	editor models.Actor
	other  models.Actor
	viewer models.Actor
}

func testConfig() *config.Config {
	return &config.Config{
		Search: config.SearchConfig{
			IndexPrefix:     "test_",
			SyncTimeout:     time.Second,
			DefaultPageSize: 10,
			MaxPageSize:     100,
			MaxResultWindow: 10000,
		},
		Jobs:  config.JobConfig{PollInterval: 10 * time.Millisecond, MaxWorkers: 1},
		Cache: config.CacheConfig{UserCacheSize: 16, UserCacheTTL: time.Minute},
	}
}

func actorOf(u *models.User) models.Actor {
	return models.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mocks.NewStore()
	index := mocks.NewSearchIndex()
	f := &fixture{
		store:  store,
		index:  index,
		svc:    service.NewServices(store.Repositories(), store, index, testConfig(), zerolog.Nop()),
		admin:  actorOf(store.AddUser("alice", models.RoleAdmin)),
		editor: actorOf(store.AddUser("bob", models.RoleEditor)),
		other:  actorOf(store.AddUser("carol", models.RoleEditor)),
		viewer: actorOf(store.AddUser("dave", models.RoleViewer)),
	}
	require.NoError(t, f.svc.Reindex.EnsureIndices(context.Background()))
	return f
}

func patch(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func (f *fixture) createArticle(t *testing.T, actor models.Actor, title string, categoryID *int64, tags ...string) *models.Article {
	t.Helper()
	a, err := f.svc.Articles.Create(context.Background(), actor, &models.ArticleInput{
		Title:      title,
		Content:    "Content of " + title,
		CategoryID: categoryID,
		Tags:       tags,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) createCategory(t *testing.T, name string) *models.Category {
	t.Helper()
	c, err := f.svc.Categories.Create(context.Background(), f.admin, &models.TaxonomyInput{Name: name})
	require.NoError(t, err)
	return c
}

func (f *fixture) history(t *testing.T, entity models.EntityType, id int64) []*models.AuditEntry {
	t.Helper()
	entries, err := f.store.Repositories().Audit.ListByTarget(context.Background(), entity, id)
	require.NoError(t, err)
	return entries
}

func tagSet(a *models.Article) map[string]bool {
	set := make(map[string]bool, len(a.Tags))
	for _, t := range a.Tags {
		set[t.Name] = true
	}
	return set
}

func ptr[T any](v T) *T {
	return &v
}
