package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/company-wiki-api/internal/api"
	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/mocks"
	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/service"
)

type testServer struct {
	router *gin.Engine
	store  *mocks.Store
	index  *mocks.SearchIndex
	admin  *models.User
	editor *models.User
	viewer *models.User
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *models.PageMeta
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Fields  []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	} `json:"error"`
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewStore()
	index := mocks.NewSearchIndex()
	cfg := &config.Config{
		Search: config.SearchConfig{IndexPrefix: "api_", SyncTimeout: time.Second, DefaultPageSize: 10, MaxPageSize: 50, MaxResultWindow: 10000},
		Jobs:   config.JobConfig{PollInterval: time.Hour, MaxWorkers: 1},
		Cache:  config.CacheConfig{UserCacheSize: 8, UserCacheTTL: time.Minute},
	}
	services := service.NewServices(store.Repositories(), store, index, cfg, zerolog.Nop())
	require.NoError(t, services.Reindex.EnsureIndices(context.Background()))

	return &testServer{
		router: api.NewRouter(services, zerolog.Nop()),
		store:  store,
		index:  index,
		admin:  store.AddUser("alice", models.RoleAdmin),
		editor: store.AddUser("bob", models.RoleEditor),
		viewer: store.AddUser("dave", models.RoleViewer),
	}
}

func (s *testServer) do(t *testing.T, as *models.User, method, path, body string, headers ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("X-User-ID", fmt.Sprint(as.ID))
		req.Header.Set("X-User-Name", as.Username)
		req.Header.Set("X-User-Role", string(as.Role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var res response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	}
	return w, res
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	s := setupTestServer(t)

	w, _ := s.do(t, nil, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "company-wiki-api", body["service"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)

	w, _ := s.do(t, nil, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestActorHeaders(t *testing.T) {
	s := setupTestServer(t)

	w, res := s.do(t, nil, http.MethodGet, "/v1/articles", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, res.Success)
	assert.Equal(t, "unauthorized", res.Error.Code)

	w, _ = s.do(t, nil, http.MethodGet, "/v1/articles", "", "X-User-ID", "1", "X-User-Role", "root")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, nil, http.MethodGet, "/v1/articles", "", "X-User-ID", "1", "X-User-Role", "Viewer")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestArticleLifecycle(t *testing.T) {
	s := setupTestServer(t)

	w, res := s.do(t, s.editor, http.MethodPost, "/v1/articles",
		`{"title":"Onboarding Guide","content":"Welcome aboard","tags":["hr","people"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, res.Success)
	created := decode[models.Article](t, res.Data)
	assert.Len(t, created.Tags, 2)
	path := fmt.Sprintf("/v1/articles/%d", created.ID)

	w, res = s.do(t, s.viewer, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Onboarding Guide", decode[models.Article](t, res.Data).Title)

	w, res = s.do(t, s.editor, http.MethodPatch, path, `{"content":"Welcome aboard, again"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Welcome aboard, again", decode[models.Article](t, res.Data).Content)

	w, _ = s.do(t, s.editor, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, res = s.do(t, s.viewer, http.MethodGet, path, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden_view", res.Error.Code)

	w, res = s.do(t, s.admin, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.Article](t, res.Data).IsActive)

	w, res = s.do(t, s.editor, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_deleted", res.Error.Code)

	w, _ = s.do(t, s.editor, http.MethodPost, path+"/restore", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, res = s.do(t, s.editor, http.MethodDelete, path+"/purge", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", res.Error.Code)

	w, _ = s.do(t, s.admin, http.MethodDelete, path+"/purge", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, res = s.do(t, s.admin, http.MethodGet, path+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]models.AuditEntry](t, res.Data)
	require.Len(t, entries, 5)
	assert.Equal(t, models.ActionDelete, entries[4].Action)

	w, res = s.do(t, s.viewer, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", res.Error.Code)
}

func TestArticleValidation(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		fields []string
	}{
		{name: "missing fields", method: http.MethodPost, path: "/v1/articles", body: `{}`, status: http.StatusBadRequest, fields: []string{"title", "content"}},
		{name: "tags not an array", method: http.MethodPost, path: "/v1/articles", body: `{"title":"t","content":"c","tags":"x"}`, status: http.StatusBadRequest, fields: []string{"tags"}},
		{name: "not an object", method: http.MethodPost, path: "/v1/articles", body: `[1,2]`, status: http.StatusBadRequest, fields: []string{"body"}},
		{name: "bad id", method: http.MethodGet, path: "/v1/articles/abc", status: http.StatusBadRequest},
		{name: "unknown article", method: http.MethodGet, path: "/v1/articles/99", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, res := s.do(t, s.editor, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			require.NotNil(t, res.Error)
			var fields []string
			for _, f := range res.Error.Fields {
				fields = append(fields, f.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}

	t.Run("unknown update field", func(t *testing.T) {
		w, res := s.do(t, s.editor, http.MethodPost, "/v1/articles", `{"title":"t","content":"c"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		id := decode[models.Article](t, res.Data).ID

		w, res = s.do(t, s.editor, http.MethodPatch, fmt.Sprintf("/v1/articles/%d", id), `{"author_id":3}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation", res.Error.Code)
	})
}

func TestSearchEndpoint(t *testing.T) {
	s := setupTestServer(t)

	for i := 1; i <= 12; i++ {
		w, _ := s.do(t, s.editor, http.MethodPost, "/v1/articles",
			fmt.Sprintf(`{"title":"Onboarding step %d","content":"Read this","tags":["hr"]}`, i))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, res := s.do(t, s.viewer, http.MethodGet, "/v1/search?q=onboard&tags=hr&page=2&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, res.Meta)
	assert.Equal(t, models.PageMeta{Total: 12, Page: 2, TotalPages: 3, Limit: 5}, *res.Meta)
	assert.Len(t, decode[[]map[string]any](t, res.Data), 5)

	w, res = s.do(t, s.viewer, http.MethodGet, "/v1/articles?tags=missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(res.Data))

	w, _ = s.do(t, s.viewer, http.MethodGet, "/v1/search?category_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCategoryEndpoints(t *testing.T) {
	s := setupTestServer(t)

	w, res := s.do(t, s.editor, http.MethodPost, "/v1/categories", `{"name":"Engineering"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", res.Error.Code)

	w, res = s.do(t, s.admin, http.MethodPost, "/v1/categories", `{"name":"Engineering"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	cat := decode[models.Category](t, res.Data)
	assert.Equal(t, "engineering", cat.Slug)
	path := fmt.Sprintf("/v1/categories/%d", cat.ID)

	w, _ = s.do(t, s.editor, http.MethodPost, "/v1/articles",
		fmt.Sprintf(`{"title":"Style guide","content":"Use gofmt","category_id":%d}`, cat.ID))
	require.Equal(t, http.StatusCreated, w.Code)

	w, res = s.do(t, s.admin, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", res.Error.Code)

	w, _ = s.do(t, s.admin, http.MethodDelete, path+"?force=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res = s.do(t, s.admin, http.MethodDelete, path+"?force=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.Category](t, res.Data).IsActive)

	w, res = s.do(t, s.viewer, http.MethodGet, "/v1/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, res.Meta.Total)

	w, res = s.do(t, s.admin, http.MethodPost, "/v1/tags", `{"name":"go"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w, res = s.do(t, s.admin, http.MethodPost, "/v1/tags", `{"name":"go"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReindexEndpoints(t *testing.T) {
	s := setupTestServer(t)

	w, res := s.do(t, s.editor, http.MethodPost, "/v1/admin/reindex", `{"resource":"all"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, res = s.do(t, s.admin, http.MethodPost, "/v1/admin/reindex", `{"resource":"comments"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", res.Error.Code)

	w, res = s.do(t, s.admin, http.MethodPost, "/v1/admin/reindex?resource=article", "", "Idempotency-Key", "abc")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decode[models.Job](t, res.Data)
	assert.Equal(t, "article", job.Resource)
	assert.Equal(t, models.JobStatusPending, job.Status)

	w, res = s.do(t, s.admin, http.MethodPost, "/v1/admin/reindex?resource=article", "", "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.ID, decode[models.Job](t, res.Data).ID)

	w, res = s.do(t, s.admin, http.MethodGet, "/v1/admin/reindex/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.ID, decode[models.JobResponse](t, res.Data).ID)

	w, _ = s.do(t, s.admin, http.MethodGet, "/v1/admin/reindex/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	s := setupTestServer(t)
	s.store.FailOn("Article.GetByID", errors.New("pq: connection reset by peer"))

	w, res := s.do(t, s.viewer, http.MethodGet, "/v1/articles/1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", res.Error.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(t)

	w, _ := s.do(t, nil, http.MethodOptions, "/v1/articles", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := mocks.NewStore()
	cfg := &config.Config{Search: config.SearchConfig{DefaultPageSize: 10, MaxPageSize: 10}}
	services := service.NewServices(store.Repositories(), store, mocks.NewSearchIndex(), cfg, zerolog.Nop())
	router := api.NewRouter(services, zerolog.Nop(),
		api.Dependency{Name: "database", Check: func(context.Context) error { return nil }},
		api.Dependency{Name: "search", Check: func(context.Context) error { return errors.New("no route to host") }},
	)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "search": "unavailable"}, body.Checks)
}
