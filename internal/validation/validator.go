// Package validation checks create and update payloads before they reach a
// transaction. Update payloads arrive as raw JSON objects so that omitted
// fields, explicit nulls and unknown fields can be told apart.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/company-wiki-api/internal/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidateArticleInput validates an article create payload
func ValidateArticleInput(in *models.ArticleInput) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(in.Title) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title is required"})
	}
	if strings.TrimSpace(in.Content) == "" {
		errors = append(errors, ValidationError{Field: "content", Message: "content is required"})
	}

	return errors
}

// ValidateTaxonomyInput validates a category or tag create payload
func ValidateTaxonomyInput(in *models.TaxonomyInput) []ValidationError {
	if strings.TrimSpace(in.Name) == "" {
		return []ValidationError{{Field: "name", Message: "name is required"}}
	}
	return nil
}

// DecodeArticleInput decodes and validates an article create payload.
// Unknown fields are ignored; a tags value that is not an array of strings
// is rejected.
func DecodeArticleInput(raw map[string]json.RawMessage) (*models.ArticleInput, []ValidationError) {
	in := &models.ArticleInput{}
	var errors []ValidationError

	if v, ok := raw["title"]; ok {
		if err := json.Unmarshal(v, &in.Title); err != nil {
			errors = append(errors, typeError("title", "a string"))
		}
	}
	if v, ok := raw["content"]; ok {
		if err := json.Unmarshal(v, &in.Content); err != nil {
			errors = append(errors, typeError("content", "a string"))
		}
	}
	if v, ok := raw["category_id"]; ok {
		if err := json.Unmarshal(v, &in.CategoryID); err != nil {
			errors = append(errors, typeError("category_id", "an integer or null"))
		}
	}
	if v, ok := raw["tags"]; ok {
		tags, err := decodeTags(v)
		if err != nil {
			errors = append(errors, *err)
		}
		in.Tags = tags
	}

	if len(errors) > 0 {
		return nil, errors
	}
	if errs := ValidateArticleInput(in); len(errs) > 0 {
		return nil, errs
	}
	return in, nil
}

// DecodeArticlePatch decodes an article update payload. Fields outside the
// whitelist fail the whole payload.
func DecodeArticlePatch(raw map[string]json.RawMessage) (*models.ArticlePatch, []ValidationError) {
	if errs := rejectUnknown(raw, models.ArticleUpdateFields); len(errs) > 0 {
		return nil, errs
	}

	patch := &models.ArticlePatch{}
	var errors []ValidationError

	if v, ok := raw["title"]; ok {
		s, err := requiredString("title", v)
		if err != nil {
			errors = append(errors, *err)
		}
		patch.Title = &s
	}
	if v, ok := raw["content"]; ok {
		s, err := requiredString("content", v)
		if err != nil {
			errors = append(errors, *err)
		}
		patch.Content = &s
	}
	if v, ok := raw["category_id"]; ok {
		patch.SetCategory = true
		if err := json.Unmarshal(v, &patch.CategoryID); err != nil {
			errors = append(errors, typeError("category_id", "an integer or null"))
		}
	}
	if v, ok := raw["tags"]; ok {
		tags, err := decodeTags(v)
		if err != nil {
			errors = append(errors, *err)
		}
		patch.Tags = &tags
	}
	if v, ok := raw["is_active"]; ok {
		b, err := decodeBool("is_active", v)
		if err != nil {
			errors = append(errors, *err)
		}
		patch.IsActive = &b
	}

	if len(errors) > 0 {
		return nil, errors
	}
	return patch, nil
}

// DecodeTaxonomyPatch decodes a category or tag update payload
func DecodeTaxonomyPatch(raw map[string]json.RawMessage) (*models.TaxonomyPatch, []ValidationError) {
	if errs := rejectUnknown(raw, models.TaxonomyUpdateFields); len(errs) > 0 {
		return nil, errs
	}

	patch := &models.TaxonomyPatch{}
	var errors []ValidationError

	if v, ok := raw["name"]; ok {
		s, err := requiredString("name", v)
		if err != nil {
			errors = append(errors, *err)
		}
		patch.Name = &s
	}
	if v, ok := raw["is_active"]; ok {
		b, err := decodeBool("is_active", v)
		if err != nil {
			errors = append(errors, *err)
		}
		patch.IsActive = &b
	}

	if len(errors) > 0 {
		return nil, errors
	}
	return patch, nil
}

// rejectUnknown reports every field not in the whitelist, in name order
func rejectUnknown(raw map[string]json.RawMessage, allowed map[string]bool) []ValidationError {
	var unknown []string
	for field := range raw {
		if !allowed[field] {
			unknown = append(unknown, field)
		}
	}
	sort.Strings(unknown)

	errors := make([]ValidationError, 0, len(unknown))
	for _, field := range unknown {
		errors = append(errors, ValidationError{Field: field, Message: "field cannot be updated"})
	}
	return errors
}

func requiredString(field string, v json.RawMessage) (string, *ValidationError) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		e := typeError(field, "a string")
		return "", &e
	}
	if strings.TrimSpace(s) == "" {
		return "", &ValidationError{Field: field, Message: field + " must not be empty"}
	}
	return s, nil
}

func decodeBool(field string, v json.RawMessage) (bool, *ValidationError) {
	var b *bool
	if err := json.Unmarshal(v, &b); err != nil || b == nil {
		e := typeError(field, "a boolean")
		return false, &e
	}
	return *b, nil
}

func decodeTags(v json.RawMessage) ([]string, *ValidationError) {
	var tags []string
	if err := json.Unmarshal(v, &tags); err != nil || tags == nil {
		return nil, &ValidationError{Field: "tags", Message: "tags must be an array of strings"}
	}
	return tags, nil
}

func typeError(field, want string) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf("%s must be %s", field, want)}
}
