package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/service"
)

// AdminHandler handles reindex job endpoints
type AdminHandler struct {
	jobs service.JobService
	log  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(services *service.Services, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		jobs: services.Job,
		log:  log.With().Str("handler", "admin").Logger(),
	}
}

// CreateReindex handles POST /v1/admin/reindex
// The resource comes from the JSON body or the query string; empty means all.
func (h *AdminHandler) CreateReindex(c *gin.Context) {
	var req struct {
		Resource string `json:"resource"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWith(c, http.StatusBadRequest, codeBadRequest, "body must be a JSON object", nil)
			return
		}
	}
	if req.Resource == "" {
		req.Resource = c.Query("resource")
	}

	job, created, err := h.jobs.CreateReindexJob(c.Request.Context(), actorFrom(c), req.Resource, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if !created {
		h.log.Info().Str("job_id", job.ID).Msg("Returning existing job for idempotency key")
		respond(c, http.StatusOK, job)
		return
	}
	respond(c, http.StatusAccepted, job)
}

// GetReindex handles GET /v1/admin/reindex/:job_id
func (h *AdminHandler) GetReindex(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondError(c, h.log, service.ErrJobNotFound)
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, job)
}
