package search_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/search"
)

type reply struct {
	status int
	body   string
}

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

// fakeCluster answers Elasticsearch REST calls from a fixed route table
type fakeCluster struct {
	mu       sync.Mutex
	routes   map[string]reply
	requests []recorded
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
	rep, ok := c.routes[r.Method+" "+r.URL.Path]
	c.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		rep = reply{status: http.StatusOK, body: `{}`}
	}
	w.WriteHeader(rep.status)
	_, _ = io.WriteString(w, rep.body)
}

func (c *fakeCluster) find(method, path string) (recorded, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.requests {
		if r.method == method && r.path == path {
			return r, true
		}
	}
	return recorded{}, false
}

func newElastic(t *testing.T, routes map[string]reply) (*search.ElasticIndex, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{routes: routes}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	idx, err := search.NewElasticIndex(&config.SearchConfig{
		Addresses:      []string{srv.URL},
		Refresh:        "wait_for",
		BulkWorkers:    1,
		BulkFlushBytes: 1 << 20,
	}, zerolog.Nop())
	require.NoError(t, err)
	return idx, cluster
}

func TestElasticIndex_EnsureIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the first version behind the alias", func(t *testing.T) {
		idx, cluster := newElastic(t, map[string]reply{
			"HEAD /wiki_tags":   {status: http.StatusNotFound},
			"PUT /wiki_tags_v1": {status: http.StatusOK, body: `{"acknowledged":true}`},
		})
		require.NoError(t, idx.EnsureIndex(ctx, "wiki_tags", search.TaxonomyMapping()))

		req, ok := cluster.find(http.MethodPut, "/wiki_tags_v1")
		require.True(t, ok)
		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(req.body), &body))
		assert.Contains(t, body, "mappings")
		assert.Equal(t, map[string]any{"wiki_tags": map[string]any{}}, body["aliases"])
		_, direct := cluster.find(http.MethodPut, "/wiki_tags")
		assert.False(t, direct, "documents never live in an index named like the alias")
	})

	t.Run("existing alias is left alone", func(t *testing.T) {
		idx, cluster := newElastic(t, map[string]reply{
			"HEAD /wiki_tags": {status: http.StatusOK},
		})
		require.NoError(t, idx.EnsureIndex(ctx, "wiki_tags", search.TaxonomyMapping()))
		_, created := cluster.find(http.MethodPut, "/wiki_tags_v1")
		assert.False(t, created)
	})

	t.Run("lost creation race", func(t *testing.T) {
		idx, _ := newElastic(t, map[string]reply{
			"HEAD /wiki_tags": {status: http.StatusNotFound},
			"PUT /wiki_tags_v1": {status: http.StatusBadRequest, body: `{"error":{"type":"resource_already_exists_exception","reason":"index [wiki_tags_v1] already exists"},"status":400}`},
		})
		assert.NoError(t, idx.EnsureIndex(ctx, "wiki_tags", search.TaxonomyMapping()))
	})

	t.Run("unexpected status", func(t *testing.T) {
		idx, _ := newElastic(t, map[string]reply{
			"HEAD /wiki_tags": {status: http.StatusForbidden},
		})
		assert.Error(t, idx.EnsureIndex(ctx, "wiki_tags", search.TaxonomyMapping()))
	})
}

func TestElasticIndex_SwapAlias(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		routes   map[string]reply
		previous []string
		actions  string
	}{
		{
			name: "moves the alias off every old version",
			routes: map[string]reply{
				"GET /_alias/wiki_tags": {status: http.StatusOK, body: `{"wiki_tags_v1":{"aliases":{"wiki_tags":{}}},"wiki_tags_v0":{"aliases":{"wiki_tags":{}}}}`},
			},
			previous: []string{"wiki_tags_v0", "wiki_tags_v1"},
			actions: `[
				{"add":{"index":"wiki_tags_v2","alias":"wiki_tags"}},
				{"remove":{"index":"wiki_tags_v0","alias":"wiki_tags"}},
				{"remove":{"index":"wiki_tags_v1","alias":"wiki_tags"}}
			]`,
		},
		{
			name: "creates a missing alias",
			routes: map[string]reply{
				"GET /_alias/wiki_tags": {status: http.StatusNotFound, body: `{"error":"alias [wiki_tags] missing","status":404}`},
				"HEAD /wiki_tags":       {status: http.StatusNotFound},
			},
			actions: `[{"add":{"index":"wiki_tags_v2","alias":"wiki_tags"}}]`,
		},
		{
			name: "replaces a concrete index holding the alias name",
			routes: map[string]reply{
				"GET /_alias/wiki_tags": {status: http.StatusNotFound, body: `{"error":"alias [wiki_tags] missing","status":404}`},
				"HEAD /wiki_tags":       {status: http.StatusOK},
			},
			actions: `[
				{"add":{"index":"wiki_tags_v2","alias":"wiki_tags"}},
				{"remove_index":{"index":"wiki_tags"}}
			]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.routes["POST /_aliases"] = reply{status: http.StatusOK, body: `{"acknowledged":true}`}
			idx, cluster := newElastic(t, tt.routes)

			previous, err := idx.SwapAlias(ctx, "wiki_tags", "wiki_tags_v2")
			require.NoError(t, err)
			assert.Equal(t, tt.previous, previous)

			req, ok := cluster.find(http.MethodPost, "/_aliases")
			require.True(t, ok)
			var body struct {
				Actions json.RawMessage `json:"actions"`
			}
			require.NoError(t, json.Unmarshal([]byte(req.body), &body))
			assert.JSONEq(t, tt.actions, string(body.Actions))
		})
	}

	t.Run("rejected swap", func(t *testing.T) {
		idx, _ := newElastic(t, map[string]reply{
			"GET /_alias/wiki_tags": {status: http.StatusOK, body: `{"wiki_tags_v1":{"aliases":{"wiki_tags":{}}}}`},
			"POST /_aliases":        {status: http.StatusNotFound, body: `{"error":{"type":"index_not_found_exception","reason":"no such index [wiki_tags_v2]"},"status":404}`},
		})
		_, err := idx.SwapAlias(ctx, "wiki_tags", "wiki_tags_v2")
		var rerr *search.ResponseError
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, "index_not_found_exception", rerr.Type)
	})
}

func TestElasticIndex_DeleteIndex(t *testing.T) {
	ctx := context.Background()
	idx, cluster := newElastic(t, map[string]reply{
		"DELETE /wiki_tags_v1,wiki_tags_v2": {status: http.StatusOK, body: `{"acknowledged":true}`},
	})

	require.NoError(t, idx.DeleteIndex(ctx))
	assert.Empty(t, cluster.requests, "nothing to delete sends nothing")

	require.NoError(t, idx.DeleteIndex(ctx, "wiki_tags_v1", "wiki_tags_v2"))
	req, ok := cluster.find(http.MethodDelete, "/wiki_tags_v1,wiki_tags_v2")
	require.True(t, ok)
	assert.Contains(t, req.query, "ignore_unavailable=true")
}

func TestElasticIndex_DocumentWrites(t *testing.T) {
	ctx := context.Background()
	idx, cluster := newElastic(t, map[string]reply{
		"PUT /wiki_articles/_doc/7":     {status: http.StatusCreated, body: `{"result":"created"}`},
		"POST /wiki_articles/_update/8": {status: http.StatusNotFound, body: `{"error":{"type":"document_missing_exception","reason":"[8]: document missing"},"status":404}`},
		"DELETE /wiki_articles/_doc/9":  {status: http.StatusNotFound, body: `{"result":"not_found"}`},
		"DELETE /wiki_articles/_doc/10": {status: http.StatusInternalServerError, body: `{"error":"boom"}`},
	})

	require.NoError(t, idx.IndexDocument(ctx, "wiki_articles", "7", map[string]any{"title": "Hello"}))
	req, ok := cluster.find(http.MethodPut, "/wiki_articles/_doc/7")
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"Hello"}`, req.body)
	assert.Contains(t, req.query, "refresh=wait_for")

	err := idx.UpdateDocument(ctx, "wiki_articles", "8", map[string]any{"is_active": false})
	require.ErrorIs(t, err, search.ErrDocumentNotFound)
	var rerr *search.ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "document_missing_exception", rerr.Type)
	req, _ = cluster.find(http.MethodPost, "/wiki_articles/_update/8")
	assert.JSONEq(t, `{"doc":{"is_active":false}}`, req.body)

	assert.NoError(t, idx.DeleteDocument(ctx, "wiki_articles", "9"), "deleting a missing document succeeds")

	err = idx.DeleteDocument(ctx, "wiki_articles", "10")
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusInternalServerError, rerr.Status)
	assert.Equal(t, "boom", rerr.Reason)
}

func TestElasticIndex_Search(t *testing.T) {
	idx, cluster := newElastic(t, map[string]reply{
		"POST /wiki_articles/_search": {status: http.StatusOK, body: `{
			"hits":{
				"total":{"value":42,"relation":"eq"},
				"hits":[
					{"_id":"3","_score":2.5,"_source":{"id":3,"title":"Three"}},
					{"_id":"1","_score":null,"_source":{"id":1,"title":"One"}}
				]
			}
		}`},
	})

	all := search.MatchAll()
	res, err := idx.Search(context.Background(), "wiki_articles", &search.Request{
		Query: &all,
		From:  20,
		Size:  10,
		Sort:  search.RelevanceSort,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res.Total)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "3", res.Hits[0].ID)
	assert.Equal(t, 2.5, res.Hits[0].Score)
	assert.Zero(t, res.Hits[1].Score)

	req, ok := cluster.find(http.MethodPost, "/wiki_articles/_search")
	require.True(t, ok)
	assert.JSONEq(t, `{
		"query":{"match_all":{}},
		"from":20,
		"size":10,
		"sort":[{"_score":{"order":"desc"}},{"id":{"order":"desc"}}],
		"track_total_hits":true,
		"track_scores":true
	}`, req.body)
}

func TestElasticIndex_SearchError(t *testing.T) {
	idx, _ := newElastic(t, map[string]reply{
		"POST /wiki_articles/_search": {status: http.StatusNotFound, body: `{"error":{"type":"index_not_found_exception","reason":"no such index [wiki_articles]"},"status":404}`},
	})
	all := search.MatchAll()
	_, err := idx.Search(context.Background(), "wiki_articles", &search.Request{Query: &all, Size: 10})
	var rerr *search.ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "index_not_found_exception", rerr.Type)
}

func TestElasticIndex_BulkIndex(t *testing.T) {
	idx, cluster := newElastic(t, map[string]reply{
		"POST /wiki_tags/_bulk": {status: http.StatusOK, body: `{
			"took":3,
			"errors":true,
			"items":[
				{"index":{"_index":"wiki_tags","_id":"1","status":201,"result":"created"}},
				{"index":{"_index":"wiki_tags","_id":"2","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [id]"}}}
			]
		}`},
		"POST /wiki_tags/_refresh": {status: http.StatusOK, body: `{"_shards":{"total":1,"successful":1,"failed":0}}`},
	})

	res, err := idx.BulkIndex(context.Background(), "wiki_tags", []search.BulkDocument{
		{ID: "1", Body: map[string]any{"id": 1, "name": "go"}},
		{ID: "2", Body: map[string]any{"id": "two", "name": "rust"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "2", res.Failures[0].ID)
	assert.True(t, strings.HasPrefix(res.Failures[0].Reason, "mapper_parsing_exception"))

	req, ok := cluster.find(http.MethodPost, "/wiki_tags/_bulk")
	require.True(t, ok)
	assert.Equal(t, 4, strings.Count(req.body, "\n"), "action and source line per document")
	_, refreshed := cluster.find(http.MethodPost, "/wiki_tags/_refresh")
	assert.True(t, refreshed)
}
