package search

import (
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

// Field is a field name with a relevance boost
type Field struct {
	Name  string
	Boost float64
}

func (f Field) String() string {
	if f.Boost == 0 || f.Boost == 1 {
		return f.Name
	}
	return fmt.Sprintf("%s^%g", f.Name, f.Boost)
}

// TextFields describes how free text is matched against one document type
type TextFields struct {
	// Match fields take part in the fuzzy multi-match, highest boost first.
	Match []Field
	// Wildcard fields are matched against *text* for partial-word queries the
	// fuzzy match misses.
	Wildcard []string
}

var (
	// ArticleText weights title over tags over content
	ArticleText = TextFields{
		Match:    []Field{{Name: "title", Boost: 3}, {Name: "tags", Boost: 2}, {Name: "content", Boost: 1}},
		Wildcard: []string{"title", "content"},
	}
	// TaxonomyText is used for categories and tags
	TaxonomyText = TextFields{
		Match:    []Field{{Name: "name", Boost: 3}, {Name: "slug", Boost: 1}},
		Wildcard: []string{"name"},
	}
)

// MatchAll matches every document
func MatchAll() types.Query {
	return types.Query{MatchAll: &types.MatchAllQuery{}}
}

// Term is an exact, non-analyzed match
func Term(field string, value types.FieldValue) types.Query {
	return types.Query{Term: map[string]types.TermQuery{field: {Value: value}}}
}

// Terms matches when the field equals any of the values
func Terms(field string, values ...string) types.Query {
	vals := make([]types.FieldValue, len(values))
	for i, v := range values {
		vals[i] = v
	}
	q := types.NewTermsQuery()
	q.TermsQuery[field] = vals
	return types.Query{Terms: q}
}

// Wildcard matches indexed terms of field against a * / ? pattern,
// ignoring case
func Wildcard(field, pattern string) types.Query {
	insensitive := true
	return types.Query{Wildcard: map[string]types.WildcardQuery{
		field: {Value: &pattern, CaseInsensitive: &insensitive},
	}}
}

// BuildQuery returns the boolean query for a free-text search with hard
// filters. Without text every document passing the filters matches; with
// text at least one should clause (fuzzy match or wildcard) must match.
func BuildQuery(text string, fields TextFields, filters ...types.Query) *types.Query {
	b := &types.BoolQuery{Filter: filters}

	text = strings.TrimSpace(text)
	if text == "" {
		b.Must = []types.Query{MatchAll()}
		return &types.Query{Bool: b}
	}

	names := make([]string, len(fields.Match))
	for i, f := range fields.Match {
		names[i] = f.String()
	}
	b.Should = append(b.Should, types.Query{MultiMatch: &types.MultiMatchQuery{
		Query:     text,
		Fields:    names,
		Fuzziness: "AUTO",
	}})
	pattern := "*" + escapeWildcard(strings.ToLower(text)) + "*"
	for _, f := range fields.Wildcard {
		b.Should = append(b.Should, Wildcard(f, pattern))
	}
	b.MinimumShouldMatch = 1
	return &types.Query{Bool: b}
}

// RelevanceSort orders by score, breaking ties (and ordering pure filter
// queries) by id descending so pagination stays deterministic.
var RelevanceSort = []SortField{{Field: "_score", Desc: true}, {Field: "id", Desc: true}}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
