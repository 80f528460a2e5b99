// Package search mirrors relational entities into a full-text index and
// queries it. The index is a derived, rebuildable read model: writes to it
// happen after the relational commit and never decide an operation's outcome.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"

	"github.com/company-wiki-api/internal/models"
)

// ErrDocumentNotFound is returned when a partial update or delete targets a
// document the index does not hold.
var ErrDocumentNotFound = errors.New("search document not found")

// Index is the document store contract the core depends on. Each entity
// type is read and written through an alias that points at exactly one
// versioned index, so a rebuild fills a fresh index while the old one keeps
// serving.
type Index interface {
	// EnsureIndex creates the first version behind alias, with the mapping,
	// if alias does not exist.
	EnsureIndex(ctx context.Context, alias string, mapping map[string]any) error
	// CreateIndex creates a concrete index no alias points at yet.
	CreateIndex(ctx context.Context, name string, mapping map[string]any) error
	// SwapAlias points alias at index alone in one atomic step and returns
	// the indices it pointed at before.
	SwapAlias(ctx context.Context, alias, index string) ([]string, error)
	// DeleteIndex drops concrete indices. Missing ones are ignored.
	DeleteIndex(ctx context.Context, names ...string) error
	IndexDocument(ctx context.Context, index, id string, doc any) error
	UpdateDocument(ctx context.Context, index, id string, partial map[string]any) error
	DeleteDocument(ctx context.Context, index, id string) error
	BulkIndex(ctx context.Context, index string, docs []BulkDocument) (*BulkResult, error)
	Search(ctx context.Context, index string, req *Request) (*Response, error)
}

// BulkDocument is one document of a bulk request
type BulkDocument struct {
	ID   string
	Body any
}

// BulkResult reports the outcome of a bulk request
type BulkResult struct {
	Indexed  int
	Failures []BulkFailure
}

// BulkFailure is a document the index rejected
type BulkFailure struct {
	ID     string
	Reason string
}

// SortField orders hits. Field "_score" sorts by relevance.
type SortField struct {
	Field string
	Desc  bool
}

// Request is a paginated query against one index
type Request struct {
	Query *types.Query
	From  int
	Size  int
	Sort  []SortField
}

// Response carries the reported total hit count and one page of hits.
// Total may be approximate for very large result sets.
type Response struct {
	Total int
	Hits  []Hit
}

// Hit is one matching document
type Hit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

// VersionedName is the concrete index behind alias for one build
func VersionedName(alias string, version int64) string {
	return alias + "_v" + strconv.FormatInt(version, 10)
}

// Names resolves entity types to their alias names
type Names struct {
	Prefix string
}

// For returns the alias serving documents of the entity type
func (n Names) For(entity models.EntityType) string {
	switch entity {
	case models.EntityArticle:
		return n.Prefix + "articles"
	case models.EntityCategory:
		return n.Prefix + "categories"
	case models.EntityTag:
		return n.Prefix + "tags"
	}
	panic(fmt.Sprintf("search: unknown entity type %q", entity))
}

// DocumentID is the index id of a relational row: its primary key as a string
func DocumentID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// DecodeHits unmarshals hit sources into T. Data is never nil.
func DecodeHits[T any](hits []Hit) ([]T, error) {
	out := make([]T, 0, len(hits))
	for _, h := range hits {
		var v T
		if err := json.Unmarshal(h.Source, &v); err != nil {
			return nil, fmt.Errorf("decode hit %s: %w", h.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
