package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/service"
	"github.com/company-wiki-api/internal/validation"
)

// ArticleHandler handles article endpoints
type ArticleHandler struct {
	articles service.ArticleService
	search   service.SearchService
	log      zerolog.Logger
}

// NewArticleHandler creates a new ArticleHandler
func NewArticleHandler(services *service.Services, log zerolog.Logger) *ArticleHandler {
	return &ArticleHandler{
		articles: services.Articles,
		search:   services.Search,
		log:      log.With().Str("handler", "article").Logger(),
	}
}

// bindObject reads a JSON object body keeping raw field values
func bindObject(c *gin.Context) (map[string]json.RawMessage, bool) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil || raw == nil {
		invalidBody(c, []validation.ValidationError{{Field: "body", Message: "body must be a JSON object"}})
		return nil, false
	}
	return raw, true
}

// Create handles POST /v1/articles
func (h *ArticleHandler) Create(c *gin.Context) {
	raw, ok := bindObject(c)
	if !ok {
		return
	}
	in, errs := validation.DecodeArticleInput(raw)
	if len(errs) > 0 {
		invalidBody(c, errs)
		return
	}

	article, err := h.articles.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, article)
}

// List handles GET /v1/articles and GET /v1/search
func (h *ArticleHandler) List(c *gin.Context) {
	var params models.SearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		abortWith(c, http.StatusBadRequest, codeBadRequest, "invalid query parameters", nil)
		return
	}

	page, err := h.search.SearchArticles(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondPage(c, page)
}

// Get handles GET /v1/articles/:id
func (h *ArticleHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	article, err := h.articles.GetByID(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, article)
}

// Update handles PATCH /v1/articles/:id
func (h *ArticleHandler) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	raw, ok := bindObject(c)
	if !ok {
		return
	}
	article, err := h.articles.Update(c.Request.Context(), actorFrom(c), id, raw)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, article)
}

// SoftDelete handles DELETE /v1/articles/:id
func (h *ArticleHandler) SoftDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	article, err := h.articles.SoftDelete(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, article)
}

// Restore handles POST /v1/articles/:id/restore
func (h *ArticleHandler) Restore(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	article, err := h.articles.Restore(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, article)
}

// Purge handles DELETE /v1/articles/:id/purge
func (h *ArticleHandler) Purge(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.articles.HardDelete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// History handles GET /v1/articles/:id/history
func (h *ArticleHandler) History(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entries, err := h.articles.History(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, entries)
}
