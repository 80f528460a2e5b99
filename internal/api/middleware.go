package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
)

const (
	requestIDKey    = "request_id"
	actorKey        = "actor"
	requestIDHeader = "X-Request-ID"
)

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("request_id", c.GetString(requestIDKey)).
					Msg("Panic recovered")
				abortWith(c, http.StatusInternalServerError, codeInternal, "internal server error", nil)
			}
		}()
		c.Next()
	}
}

// requestIDMiddleware propagates the caller's request id or assigns one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		if actor, ok := c.Get(actorKey); ok {
			event = event.Int64("actor_id", actor.(models.Actor).ID)
		}
		event.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Idempotency-Key, X-Request-ID, X-User-ID, X-User-Name, X-User-Role")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// actorMiddleware reads the caller identity forwarded by the authenticating
// gateway. The values are trusted as-is.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || id <= 0 {
			abortWith(c, http.StatusUnauthorized, codeUnauthorized, "missing or invalid X-User-ID header", nil)
			return
		}
		role := models.Role(strings.ToLower(strings.TrimSpace(c.GetHeader("X-User-Role"))))
		if !models.ValidRoles[role] {
			abortWith(c, http.StatusUnauthorized, codeUnauthorized, "missing or invalid X-User-Role header", nil)
			return
		}

		c.Set(actorKey, models.Actor{
			ID:       id,
			Username: c.GetHeader("X-User-Name"),
			Role:     role,
		})
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	return c.MustGet(actorKey).(models.Actor)
}
