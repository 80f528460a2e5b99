package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/company-wiki-api/internal/models"
)

func TestParseEntities(t *testing.T) {
	got, err := parseEntities(nil)
	require.NoError(t, err)
	assert.Equal(t, models.EntityTypes, got)

	got, err = parseEntities([]string{"tag", "article"})
	require.NoError(t, err)
	assert.Equal(t, []models.EntityType{models.EntityTag, models.EntityArticle}, got)

	got, err = parseEntities([]string{"tag", "all"})
	require.NoError(t, err)
	assert.Equal(t, models.EntityTypes, got)

	_, err = parseEntities([]string{"comments"})
	assert.Error(t, err)
}
