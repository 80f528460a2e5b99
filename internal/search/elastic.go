package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/config"
)

// ResponseError is a non-2xx answer from Elasticsearch
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

// Is reports 404 answers as ErrDocumentNotFound
func (e *ResponseError) Is(target error) bool {
	return target == ErrDocumentNotFound && e.Status == http.StatusNotFound
}

// ElasticIndex implements Index on Elasticsearch 8
type ElasticIndex struct {
	client     *elasticsearch.Client
	refresh    string
	workers    int
	flushBytes int
	log        zerolog.Logger
}

// NewElasticIndex creates a client for the configured cluster. It does not
// contact the cluster; call Ping for that.
func NewElasticIndex(cfg *config.SearchConfig, log zerolog.Logger) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return NewElasticIndexWithClient(client, cfg, log), nil
}

// NewElasticIndexWithClient wraps an existing client
func NewElasticIndexWithClient(client *elasticsearch.Client, cfg *config.SearchConfig, log zerolog.Logger) *ElasticIndex {
	return &ElasticIndex{
		client:     client,
		refresh:    cfg.Refresh,
		workers:    cfg.BulkWorkers,
		flushBytes: cfg.BulkFlushBytes,
		log:        log.With().Str("component", "elasticsearch").Logger(),
	}
}

// Ping checks that the cluster answers
func (e *ElasticIndex) Ping(ctx context.Context) error {
	return e.check(e.client.Info(e.client.Info.WithContext(ctx)))
}

func (e *ElasticIndex) EnsureIndex(ctx context.Context, alias string, mapping map[string]any) error {
	exists, err := e.exists(ctx, alias)
	if err != nil || exists {
		return err
	}

	err = e.create(ctx, VersionedName(alias, 1), mapping, alias)
	var rerr *ResponseError
	if errors.As(err, &rerr) && rerr.Type == "resource_already_exists_exception" {
		return nil
	}
	return err
}

func (e *ElasticIndex) CreateIndex(ctx context.Context, name string, mapping map[string]any) error {
	return e.create(ctx, name, mapping)
}

// SwapAlias moves alias onto index with one _aliases request. A concrete
// index still occupying the alias name is dropped in the same request.
func (e *ElasticIndex) SwapAlias(ctx context.Context, alias, index string) ([]string, error) {
	current, err := e.aliasTargets(ctx, alias)
	if err != nil {
		return nil, err
	}

	actions := []types.IndicesAction{{Add: &types.AddAction{Index: &index, Alias: &alias}}}
	var previous []string
	for _, old := range current {
		if old == index {
			continue
		}
		actions = append(actions, types.IndicesAction{Remove: &types.RemoveAction{Index: &old, Alias: &alias}})
		previous = append(previous, old)
	}
	if len(current) == 0 {
		concrete, err := e.exists(ctx, alias)
		if err != nil {
			return nil, err
		}
		if concrete {
			actions = append(actions, types.IndicesAction{RemoveIndex: &types.RemoveIndexAction{Index: &alias}})
		}
	}

	body, err := encode(map[string]any{"actions": actions})
	if err != nil {
		return nil, err
	}
	if err := e.check(e.client.Indices.UpdateAliases(body, e.client.Indices.UpdateAliases.WithContext(ctx))); err != nil {
		return nil, fmt.Errorf("swap alias %s: %w", alias, err)
	}
	e.log.Info().Str("alias", alias).Str("index", index).Strs("previous", previous).Msg("Alias switched")
	return previous, nil
}

func (e *ElasticIndex) DeleteIndex(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	err := e.check(e.client.Indices.Delete(names,
		e.client.Indices.Delete.WithContext(ctx),
		e.client.Indices.Delete.WithIgnoreUnavailable(true),
	))
	if err != nil {
		return fmt.Errorf("delete indices %v: %w", names, err)
	}
	e.log.Info().Strs("indices", names).Msg("Deleted indices")
	return nil
}

// exists reports whether name is an index or an alias
func (e *ElasticIndex) exists(ctx context.Context, name string) (bool, error) {
	res, err := e.client.Indices.Exists([]string{name}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, &ResponseError{Status: res.StatusCode}
}

// aliasTargets lists the indices alias points at, sorted. An unknown alias
// has none.
func (e *ElasticIndex) aliasTargets(ctx context.Context, alias string) ([]string, error) {
	res, err := e.client.Indices.GetAlias(
		e.client.Indices.GetAlias.WithContext(ctx),
		e.client.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return nil, fmt.Errorf("get alias %s: %w", alias, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, decodeError(res)
	}

	var byIndex map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&byIndex); err != nil {
		return nil, fmt.Errorf("decode alias %s: %w", alias, err)
	}
	indices := make([]string, 0, len(byIndex))
	for name := range byIndex {
		indices = append(indices, name)
	}
	sort.Strings(indices)
	return indices, nil
}

// create makes a concrete index, optionally pointing aliases at it in the
// same request
func (e *ElasticIndex) create(ctx context.Context, name string, mapping map[string]any, aliases ...string) error {
	settings := map[string]any{"mappings": mapping}
	if len(aliases) > 0 {
		byName := make(map[string]types.Alias, len(aliases))
		for _, a := range aliases {
			byName[a] = types.Alias{}
		}
		settings["aliases"] = byName
	}
	body, err := encode(settings)
	if err != nil {
		return err
	}
	if err := e.check(e.client.Indices.Create(name,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(body),
	)); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	e.log.Info().Str("index", name).Strs("aliases", aliases).Msg("Created index")
	return nil
}

func (e *ElasticIndex) IndexDocument(ctx context.Context, index, id string, doc any) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	opts := []func(*esapi.IndexRequest){
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(id),
	}
	if e.refresh != "false" && e.refresh != "" {
		opts = append(opts, e.client.Index.WithRefresh(e.refresh))
	}
	return e.check(e.client.Index(index, body, opts...))
}

func (e *ElasticIndex) UpdateDocument(ctx context.Context, index, id string, partial map[string]any) error {
	body, err := encode(map[string]any{"doc": partial})
	if err != nil {
		return err
	}
	opts := []func(*esapi.UpdateRequest){e.client.Update.WithContext(ctx)}
	if e.refresh != "false" && e.refresh != "" {
		opts = append(opts, e.client.Update.WithRefresh(e.refresh))
	}
	return e.check(e.client.Update(index, id, body, opts...))
}

// DeleteDocument removes a document. A missing document is not an error.
func (e *ElasticIndex) DeleteDocument(ctx context.Context, index, id string) error {
	opts := []func(*esapi.DeleteRequest){e.client.Delete.WithContext(ctx)}
	if e.refresh != "false" && e.refresh != "" {
		opts = append(opts, e.client.Delete.WithRefresh(e.refresh))
	}
	err := e.check(e.client.Delete(index, id, opts...))
	if errors.Is(err, ErrDocumentNotFound) {
		return nil
	}
	return err
}

// BulkIndex streams documents through a bulk indexer and refreshes the
// index once all are flushed. Per-document rejections are returned in the
// result, not as an error.
func (e *ElasticIndex) BulkIndex(ctx context.Context, index string, docs []BulkDocument) (*BulkResult, error) {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     e.client,
		Index:      index,
		NumWorkers: e.workers,
		FlushBytes: e.flushBytes,
		OnError: func(ctx context.Context, err error) {
			e.log.Error().Err(err).Str("index", index).Msg("Bulk indexer error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bulk indexer: %w", err)
	}

	result := &BulkResult{}
	var mu sync.Mutex
	fail := func(id, reason string) {
		mu.Lock()
		result.Failures = append(result.Failures, BulkFailure{ID: id, Reason: reason})
		mu.Unlock()
	}

	for _, doc := range docs {
		b, err := json.Marshal(doc.Body)
		if err != nil {
			fail(doc.ID, err.Error())
			continue
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(b),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					fail(item.DocumentID, err.Error())
					return
				}
				fail(item.DocumentID, res.Error.Type+": "+res.Error.Reason)
			},
		})
		if err != nil {
			bi.Close(ctx)
			return nil, fmt.Errorf("add bulk item: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, fmt.Errorf("close bulk indexer: %w", err)
	}
	result.Indexed = int(bi.Stats().NumIndexed)

	if err := e.check(e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithContext(ctx),
		e.client.Indices.Refresh.WithIndex(index),
	)); err != nil {
		return result, fmt.Errorf("refresh index %s: %w", index, err)
	}
	return result, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticIndex) Search(ctx context.Context, index string, req *Request) (*Response, error) {
	sorts := make([]map[string]any, 0, len(req.Sort))
	for _, s := range req.Sort {
		order := "asc"
		if s.Desc {
			order = "desc"
		}
		sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": order}})
	}
	body, err := encode(map[string]any{
		"query":            req.Query,
		"from":             req.From,
		"size":             req.Size,
		"sort":             sorts,
		"track_total_hits": true,
		"track_scores":     true,
	})
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(body),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, decodeError(res)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &Response{Total: parsed.Hits.Total.Value, Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		hit := Hit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// check closes the response body and converts error statuses
func (e *ElasticIndex) check(res *esapi.Response, err error) error {
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return decodeError(res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func decodeError(res *esapi.Response) error {
	rerr := &ResponseError{Status: res.StatusCode}
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.NewDecoder(res.Body).Decode(&body) != nil || len(body.Error) == 0 {
		return rerr
	}
	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body.Error, &detail) == nil {
		rerr.Type, rerr.Reason = detail.Type, detail.Reason
	} else {
		_ = json.Unmarshal(body.Error, &rerr.Reason)
	}
	return rerr
}

func encode(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(b), nil
}
