package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/service"
)

// Dependency is an external service checked by /health
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, log zerolog.Logger, deps ...Dependency) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(recoveryMiddleware(log))
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	articles := NewArticleHandler(services, log)
	categories := newTaxonomyHandler[*models.Category](services.Categories, services.Search.SearchCategories, "category", log)
	tags := newTaxonomyHandler[*models.Tag](services.Tags, services.Search.SearchTags, "tag", log)
	admin := NewAdminHandler(services, log)

	router.GET("/health", healthCheck(deps, log))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1", actorMiddleware())
	{
		v1.GET("/search", articles.List)

		a := v1.Group("/articles")
		{
			a.POST("", articles.Create)
			a.GET("", articles.List)
			a.GET("/:id", articles.Get)
			a.PATCH("/:id", articles.Update)
			a.DELETE("/:id", articles.SoftDelete)
			a.POST("/:id/restore", articles.Restore)
			a.DELETE("/:id/purge", articles.Purge)
			a.GET("/:id/history", articles.History)
		}

		taxonomyRoutes(v1.Group("/categories"), categories)
		taxonomyRoutes(v1.Group("/tags"), tags)

		reindex := v1.Group("/admin/reindex")
		{
			reindex.POST("", admin.CreateReindex)
			reindex.GET("/:job_id", admin.GetReindex)
		}
	}

	return router
}

func taxonomyRoutes[T any](g *gin.RouterGroup, h *taxonomyHandler[T]) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.SoftDelete)
	g.POST("/:id/restore", h.Restore)
	g.DELETE("/:id/purge", h.Purge)
	g.GET("/:id/history", h.History)
}

// healthCheck reports healthy only when every dependency answers
func healthCheck(deps []Dependency, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		checks := gin.H{}
		for _, p := range deps {
			if err := p.Check(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", p.Name).Msg("Health check failed")
				checks[p.Name] = "unavailable"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			checks[p.Name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "company-wiki-api",
		})
	}
}
