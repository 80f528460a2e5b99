package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/search"
	"github.com/company-wiki-api/internal/validation"
)

// taxonomyService is the surface shared by the category and tag services
type taxonomyService[T any] interface {
	Create(ctx context.Context, actor models.Actor, in *models.TaxonomyInput) (T, error)
	GetByID(ctx context.Context, id int64) (T, error)
	Update(ctx context.Context, actor models.Actor, id int64, patch map[string]json.RawMessage) (T, error)
	SoftDelete(ctx context.Context, actor models.Actor, id int64, force bool) (T, error)
	Restore(ctx context.Context, actor models.Actor, id int64) (T, error)
	HardDelete(ctx context.Context, actor models.Actor, id int64, force bool) error
	History(ctx context.Context, actor models.Actor, id int64) ([]*models.AuditEntry, error)
}

type taxonomyLister func(ctx context.Context, params models.TaxonomySearchParams) (*models.Page[search.TaxonomyDocument], error)

// taxonomyHandler handles category or tag endpoints
type taxonomyHandler[T any] struct {
	svc  taxonomyService[T]
	list taxonomyLister
	log  zerolog.Logger
}

func newTaxonomyHandler[T any](svc taxonomyService[T], list taxonomyLister, name string, log zerolog.Logger) *taxonomyHandler[T] {
	return &taxonomyHandler[T]{
		svc:  svc,
		list: list,
		log:  log.With().Str("handler", name).Logger(),
	}
}

// forceParam reads ?force=true
func forceParam(c *gin.Context) (bool, bool) {
	v := c.Query("force")
	if v == "" {
		return false, true
	}
	force, err := strconv.ParseBool(v)
	if err != nil {
		abortWith(c, http.StatusBadRequest, codeBadRequest, "force must be a boolean", nil)
		return false, false
	}
	return force, true
}

func (h *taxonomyHandler[T]) Create(c *gin.Context) {
	var in models.TaxonomyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidBody(c, []validation.ValidationError{{Field: "name", Message: "name must be a string"}})
		return
	}
	out, err := h.svc.Create(c.Request.Context(), actorFrom(c), &in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *taxonomyHandler[T]) List(c *gin.Context) {
	var params models.TaxonomySearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		abortWith(c, http.StatusBadRequest, codeBadRequest, "invalid query parameters", nil)
		return
	}
	page, err := h.list(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondPage(c, page)
}

func (h *taxonomyHandler[T]) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	out, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *taxonomyHandler[T]) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	raw, ok := bindObject(c)
	if !ok {
		return
	}
	out, err := h.svc.Update(c.Request.Context(), actorFrom(c), id, raw)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *taxonomyHandler[T]) SoftDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	force, ok := forceParam(c)
	if !ok {
		return
	}
	out, err := h.svc.SoftDelete(c.Request.Context(), actorFrom(c), id, force)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *taxonomyHandler[T]) Restore(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	out, err := h.svc.Restore(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *taxonomyHandler[T]) Purge(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	force, ok := forceParam(c)
	if !ok {
		return
	}
	if err := h.svc.HardDelete(c.Request.Context(), actorFrom(c), id, force); err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (h *taxonomyHandler[T]) History(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entries, err := h.svc.History(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, entries)
}
