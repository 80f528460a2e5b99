package search

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
)

// Operation names an index write
type Operation string

const (
	OpIndex  Operation = "index"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

var syncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wiki_index_sync_total",
	Help: "Index writes issued after a relational commit, by outcome.",
}, []string{"entity", "operation", "outcome"})

// Syncer propagates committed changes to the index. Every call is best
// effort: a failure is logged and counted but never returned, because the
// relational write it follows is already durable. Failures are not retried;
// a reindex run repairs drift.
type Syncer struct {
	index   Index
	names   Names
	timeout time.Duration
	log     zerolog.Logger
}

// NewSyncer creates a syncer. A zero timeout means calls are bounded only
// by the index client.
func NewSyncer(index Index, names Names, timeout time.Duration, log zerolog.Logger) *Syncer {
	return &Syncer{
		index:   index,
		names:   names,
		timeout: timeout,
		log:     log.With().Str("component", "index_sync").Logger(),
	}
}

// Index writes the full document
func (s *Syncer) Index(ctx context.Context, entity models.EntityType, id int64, doc any) {
	s.run(ctx, entity, id, OpIndex, func(ctx context.Context, index, docID string) error {
		return s.index.IndexDocument(ctx, index, docID, doc)
	})
}

// Update merges a partial document into the stored one
func (s *Syncer) Update(ctx context.Context, entity models.EntityType, id int64, partial map[string]any) {
	s.run(ctx, entity, id, OpUpdate, func(ctx context.Context, index, docID string) error {
		return s.index.UpdateDocument(ctx, index, docID, partial)
	})
}

// Delete removes the document
func (s *Syncer) Delete(ctx context.Context, entity models.EntityType, id int64) {
	s.run(ctx, entity, id, OpDelete, func(ctx context.Context, index, docID string) error {
		return s.index.DeleteDocument(ctx, index, docID)
	})
}

func (s *Syncer) run(ctx context.Context, entity models.EntityType, id int64, op Operation, fn func(ctx context.Context, index, docID string) error) {
	// The caller's request may be cancelled the moment the response is
	// written; the sync still has to go out.
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	index := s.names.For(entity)
	if err := fn(ctx, index, DocumentID(id)); err != nil {
		syncTotal.WithLabelValues(string(entity), string(op), "failure").Inc()
		s.log.Error().
			Err(err).
			Str("entity", string(entity)).
			Int64("entity_id", id).
			Str("operation", string(op)).
			Str("index", index).
			Msg("Index sync failed after commit")
		return
	}
	syncTotal.WithLabelValues(string(entity), string(op), "success").Inc()
}
