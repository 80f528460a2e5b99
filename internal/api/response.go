package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/service"
	"github.com/company-wiki-api/internal/validation"
)

// envelope is the body of every /v1 response
type envelope struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Meta    *models.PageMeta `json:"meta,omitempty"`
	Error   *errorBody       `json:"error,omitempty"`
}

type errorBody struct {
	Code    string                       `json:"code"`
	Message string                       `json:"message"`
	Fields  []validation.ValidationError `json:"fields,omitempty"`
}

// Error codes outside the service taxonomy
const (
	codeUnauthorized = "unauthorized"
	codeBadRequest   = "bad_request"
	codeInternal     = "internal"
)

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondPage[T any](c *gin.Context, page *models.Page[T]) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: page.Data, Meta: &page.Meta})
}

func abortWith(c *gin.Context, status int, code, message string, fields []validation.ValidationError) {
	c.AbortWithStatusJSON(status, envelope{Error: &errorBody{Code: code, Message: message, Fields: fields}})
}

var kindStatus = map[service.Kind]int{
	service.KindNotFound:       http.StatusNotFound,
	service.KindAlreadyDeleted: http.StatusConflict,
	service.KindAlreadyActive:  http.StatusConflict,
	service.KindForbidden:      http.StatusForbidden,
	service.KindForbiddenView:  http.StatusForbidden,
	service.KindValidation:     http.StatusBadRequest,
	service.KindConflict:       http.StatusConflict,
}

// respondError maps a service failure to its status and code. Internal
// errors are logged and replaced by a generic message.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var serr *service.Error
	if errors.As(err, &serr) {
		if status, ok := kindStatus[serr.Kind]; ok {
			abortWith(c, status, string(serr.Kind), serr.Message, serr.Fields)
			return
		}
	}

	log.Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Str("request_id", c.GetString(requestIDKey)).
		Msg("Request failed")
	abortWith(c, http.StatusInternalServerError, codeInternal, "internal server error", nil)
}

func invalidBody(c *gin.Context, fields []validation.ValidationError) {
	abortWith(c, http.StatusBadRequest, string(service.KindValidation), service.ErrValidation.Message, fields)
}

// idParam parses the :id path segment
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWith(c, http.StatusBadRequest, codeBadRequest, "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}
