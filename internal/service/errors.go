package service

import (
	"errors"
	"fmt"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/validation"
)

// Kind is the stable category of a service failure
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindAlreadyDeleted Kind = "already_deleted"
	KindAlreadyActive  Kind = "already_active"
	KindForbidden      Kind = "forbidden"
	KindForbiddenView  Kind = "forbidden_view"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
)

// Error is a failure the caller is meant to see. Anything else returned by
// a service is internal and must not be shown verbatim.
type Error struct {
	Kind    Kind
	Entity  models.EntityType
	Message string
	Fields  []validation.ValidationError
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on kind, and on entity when the target names one
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Entity == "" || t.Entity == e.Entity)
}

var (
	ErrArticleNotFound  = &Error{Kind: KindNotFound, Entity: models.EntityArticle, Message: "article not found"}
	ErrCategoryNotFound = &Error{Kind: KindNotFound, Entity: models.EntityCategory, Message: "category not found"}
	ErrTagNotFound      = &Error{Kind: KindNotFound, Entity: models.EntityTag, Message: "tag not found"}
	ErrAlreadyDeleted   = &Error{Kind: KindAlreadyDeleted, Message: "already deleted"}
	ErrAlreadyActive    = &Error{Kind: KindAlreadyActive, Message: "already active"}
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrForbiddenView    = &Error{Kind: KindForbiddenView, Message: "not allowed to view this resource"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "conflict"}
	ErrJobNotFound      = &Error{Kind: KindNotFound, Message: "job not found"}
)

// KindOf returns the kind of a service error, or "" for internal errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(entity models.EntityType) *Error {
	switch entity {
	case models.EntityArticle:
		return ErrArticleNotFound
	case models.EntityCategory:
		return ErrCategoryNotFound
	}
	return ErrTagNotFound
}

func alreadyDeleted(entity models.EntityType) *Error {
	return &Error{Kind: KindAlreadyDeleted, Entity: entity, Message: fmt.Sprintf("%s is already deleted", entity)}
}

func alreadyActive(entity models.EntityType) *Error {
	return &Error{Kind: KindAlreadyActive, Entity: entity, Message: fmt.Sprintf("%s is already active", entity)}
}

func forbidden(entity models.EntityType, action string) *Error {
	return &Error{Kind: KindForbidden, Entity: entity, Message: fmt.Sprintf("not allowed to %s this %s", action, entity)}
}

func forbiddenView(entity models.EntityType) *Error {
	return &Error{Kind: KindForbiddenView, Entity: entity, Message: ErrForbiddenView.Message}
}

func conflict(entity models.EntityType, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func invalid(entity models.EntityType, fields []validation.ValidationError) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Message: ErrValidation.Message, Fields: fields}
}

// mapNotFound turns a repository miss into the entity's NotFound error
func mapNotFound(entity models.EntityType, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(entity)
	}
	return err
}
