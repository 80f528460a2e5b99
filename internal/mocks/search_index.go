package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"

	"github.com/company-wiki-api/internal/search"
)

// SearchIndex is an in-memory search.Index. It evaluates the query model
// with the same semantics the service relies on from Elasticsearch: fuzzy
// multi-match with AUTO edit distance, wildcard over analyzed terms, exact
// term filters, and score-then-id ordering.
type SearchIndex struct {
	mu       sync.Mutex
	indices  map[string]map[string]json.RawMessage
	aliases  map[string]string
	mappings map[string]map[string]any
	failures map[string]error
	calls    map[string]int
	// Requests records every search request in order.
	Requests []*search.Request
}

// MaxResultWindow is the index.max_result_window default of Elasticsearch
const MaxResultWindow = 10000

func NewSearchIndex() *SearchIndex {
	return &SearchIndex{
		indices:  make(map[string]map[string]json.RawMessage),
		aliases:  make(map[string]string),
		mappings: make(map[string]map[string]any),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes every call to the named method return err until cleared
// with a nil err.
func (m *SearchIndex) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns how many times the named method was invoked
func (m *SearchIndex) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Document returns a stored document decoded as a map
func (m *SearchIndex) Document(index, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.indices[m.resolve(index)][id]
	if !ok {
		return nil, false
	}
	var doc map[string]any
	_ = json.Unmarshal(raw, &doc)
	return doc, true
}

// Count returns the number of documents in the index or alias
func (m *SearchIndex) Count(index string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.indices[m.resolve(index)])
}

// HasIndex reports whether the concrete index exists
func (m *SearchIndex) HasIndex(index string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indices[index]
	return ok
}

// Indices lists the concrete indices, sorted
func (m *SearchIndex) Indices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.indices))
	for name := range m.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AliasTarget returns the concrete index behind alias, or "" when alias
// does not exist
func (m *SearchIndex) AliasTarget(alias string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aliases[alias]
}

// resolve maps an alias to its index; other names pass through
func (m *SearchIndex) resolve(name string) string {
	if target, ok := m.aliases[name]; ok {
		return target
	}
	return name
}

func (m *SearchIndex) enter(method string) error {
	m.calls[method]++
	return m.failures[method]
}

func (m *SearchIndex) docs(index string) map[string]json.RawMessage {
	index = m.resolve(index)
	docs, ok := m.indices[index]
	if !ok {
		docs = make(map[string]json.RawMessage)
		m.indices[index] = docs
	}
	return docs
}

func (m *SearchIndex) EnsureIndex(ctx context.Context, alias string, mapping map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("EnsureIndex"); err != nil {
		return err
	}
	if _, ok := m.aliases[alias]; ok {
		return nil
	}
	if _, ok := m.indices[alias]; ok {
		return nil
	}
	name := search.VersionedName(alias, 1)
	m.indices[name] = make(map[string]json.RawMessage)
	m.mappings[name] = mapping
	m.aliases[alias] = name
	return nil
}

func (m *SearchIndex) CreateIndex(ctx context.Context, name string, mapping map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateIndex"); err != nil {
		return err
	}
	_, isIndex := m.indices[name]
	_, isAlias := m.aliases[name]
	if isIndex || isAlias {
		return &search.ResponseError{
			Status: http.StatusBadRequest,
			Type:   "resource_already_exists_exception",
			Reason: fmt.Sprintf("index [%s] already exists", name),
		}
	}
	m.indices[name] = make(map[string]json.RawMessage)
	m.mappings[name] = mapping
	return nil
}

func (m *SearchIndex) SwapAlias(ctx context.Context, alias, index string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SwapAlias"); err != nil {
		return nil, err
	}
	if _, ok := m.indices[index]; !ok {
		return nil, &search.ResponseError{
			Status: http.StatusNotFound,
			Type:   "index_not_found_exception",
			Reason: fmt.Sprintf("no such index [%s]", index),
		}
	}

	var previous []string
	if old, ok := m.aliases[alias]; ok && old != index {
		previous = append(previous, old)
	}
	// a concrete index under the alias name is dropped, as remove_index does
	delete(m.indices, alias)
	delete(m.mappings, alias)
	m.aliases[alias] = index
	return previous, nil
}

func (m *SearchIndex) DeleteIndex(ctx context.Context, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteIndex"); err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := m.aliases[name]; ok {
			return &search.ResponseError{
				Status: http.StatusBadRequest,
				Type:   "illegal_argument_exception",
				Reason: fmt.Sprintf("The provided expression [%s] matches an alias, specify the corresponding concrete indices instead.", name),
			}
		}
	}
	for _, name := range names {
		delete(m.indices, name)
		delete(m.mappings, name)
		for alias, target := range m.aliases {
			if target == name {
				delete(m.aliases, alias)
			}
		}
	}
	return nil
}

func (m *SearchIndex) IndexDocument(ctx context.Context, index, id string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("IndexDocument"); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.docs(index)[id] = raw
	return nil
}

func (m *SearchIndex) UpdateDocument(ctx context.Context, index, id string, partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateDocument"); err != nil {
		return err
	}
	index = m.resolve(index)
	raw, ok := m.indices[index][id]
	if !ok {
		return search.ErrDocumentNotFound
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	patch, err := json.Marshal(partial)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(patch, &doc); err != nil {
		return err
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.indices[index][id] = merged
	return nil
}

func (m *SearchIndex) DeleteDocument(ctx context.Context, index, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteDocument"); err != nil {
		return err
	}
	delete(m.indices[m.resolve(index)], id)
	return nil
}

func (m *SearchIndex) BulkIndex(ctx context.Context, index string, docs []search.BulkDocument) (*search.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BulkIndex"); err != nil {
		return nil, err
	}
	result := &search.BulkResult{}
	for _, d := range docs {
		if err := m.failures["BulkIndex:"+d.ID]; err != nil {
			result.Failures = append(result.Failures, search.BulkFailure{ID: d.ID, Reason: err.Error()})
			continue
		}
		raw, err := json.Marshal(d.Body)
		if err != nil {
			result.Failures = append(result.Failures, search.BulkFailure{ID: d.ID, Reason: err.Error()})
			continue
		}
		m.docs(index)[d.ID] = raw
		result.Indexed++
	}
	return result, nil
}

type scoredHit struct {
	id    string
	score float64
	doc   map[string]any
	raw   json.RawMessage
}

func (m *SearchIndex) Search(ctx context.Context, index string, req *search.Request) (*search.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if err := m.enter("Search"); err != nil {
		return nil, err
	}
	if req.From < 0 || req.Size < 0 || req.From+req.Size > MaxResultWindow {
		return nil, &search.ResponseError{
			Status: http.StatusBadRequest,
			Type:   "illegal_argument_exception",
			Reason: fmt.Sprintf("Result window is too large, from + size must be less than or equal to: [%d] but was [%d]", MaxResultWindow, req.From+req.Size),
		}
	}

	var hits []scoredHit
	for id, raw := range m.indices[m.resolve(index)] {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		if ok, score := evaluate(req.Query, doc); ok {
			hits = append(hits, scoredHit{id: id, score: score, doc: doc, raw: raw})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		for _, s := range req.Sort {
			c := compareHits(hits[i], hits[j], s.Field)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return hits[i].id < hits[j].id
	})

	resp := &search.Response{Total: len(hits), Hits: []search.Hit{}}
	from := req.From
	if from > len(hits) {
		from = len(hits)
	}
	to := from + req.Size
	if to > len(hits) {
		to = len(hits)
	}
	for _, h := range hits[from:to] {
		resp.Hits = append(resp.Hits, search.Hit{ID: h.id, Score: h.score, Source: h.raw})
	}
	return resp, nil
}

func compareHits(a, b scoredHit, field string) int {
	if field == "_score" {
		return compareFloat(a.score, b.score)
	}
	av, bv := a.doc[field], b.doc[field]
	af, aok := av.(float64)
	bf, bok := bv.(float64)
	if aok && bok {
		return compareFloat(af, bf)
	}
	return strings.Compare(fmt.Sprint(av), fmt.Sprint(bv))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func evaluate(q *types.Query, doc map[string]any) (bool, float64) {
	switch {
	case q == nil:
		return true, 1
	case q.Bool != nil:
		return boolMatch(q.Bool, doc)
	case q.MatchAll != nil:
		return true, 1
	case q.MultiMatch != nil:
		return multiMatch(q.MultiMatch, doc)
	case len(q.Term) > 0:
		for field, t := range q.Term {
			if !containsValue(doc[field], t.Value) {
				return false, 0
			}
		}
		return true, 0
	case q.Terms != nil:
		for field, v := range q.Terms.TermsQuery {
			wants, ok := v.([]types.FieldValue)
			if !ok {
				panic(fmt.Sprintf("mocks: unsupported terms value %T", v))
			}
			found := false
			for _, want := range wants {
				if containsValue(doc[field], want) {
					found = true
					break
				}
			}
			if !found {
				return false, 0
			}
		}
		return true, 0
	case len(q.Wildcard) > 0:
		for field, w := range q.Wildcard {
			if w.Value == nil || !wildcardAny(doc[field], *w.Value, w.CaseInsensitive != nil && *w.CaseInsensitive) {
				return false, 0
			}
		}
		return true, 1
	}
	panic("mocks: unsupported query clause")
}

func containsValue(field any, want any) bool {
	for _, v := range values(field) {
		if canonical(v) == canonical(want) {
			return true
		}
	}
	return false
}

func wildcardAny(field any, pattern string, insensitive bool) bool {
	for _, term := range terms(field) {
		if insensitive {
			term = strings.ToLower(term)
		}
		if wildcardMatch(pattern, term) {
			return true
		}
	}
	return false
}

func boolMatch(q *types.BoolQuery, doc map[string]any) (bool, float64) {
	var score float64
	for i := range q.Must {
		ok, s := evaluate(&q.Must[i], doc)
		if !ok {
			return false, 0
		}
		score += s
	}
	for i := range q.Filter {
		if ok, _ := evaluate(&q.Filter[i], doc); !ok {
			return false, 0
		}
	}

	minShould := minimumShouldMatch(q.MinimumShouldMatch)
	if minShould == 0 && len(q.Should) > 0 && len(q.Must) == 0 && len(q.Filter) == 0 {
		minShould = 1
	}
	matched := 0
	for i := range q.Should {
		if ok, s := evaluate(&q.Should[i], doc); ok {
			matched++
			score += s
		}
	}
	if matched < minShould {
		return false, 0
	}
	return true, score
}

func minimumShouldMatch(v types.MinimumShouldMatch) int {
	switch v := v.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Sprintf("mocks: unsupported minimum_should_match %q", v))
		}
		return n
	}
	return 0
}

// multiMatch scores best_fields style: the best field's boosted count of
// matching query terms.
func multiMatch(q *types.MultiMatchQuery, doc map[string]any) (bool, float64) {
	queryTerms := tokenize(q.Query)
	fuzziness := fmt.Sprint(q.Fuzziness)
	var best float64
	for _, spec := range q.Fields {
		name, boost := splitBoost(spec)
		fieldTerms := terms(doc[name])
		matched := 0
		for _, qt := range queryTerms {
			for _, ft := range fieldTerms {
				if fuzzyEqual(qt, strings.ToLower(ft), fuzziness) {
					matched++
					break
				}
			}
		}
		if s := float64(matched) * boost; s > best {
			best = s
		}
	}
	return best > 0, best
}

// splitBoost parses "title^3" into ("title", 3)
func splitBoost(spec string) (string, float64) {
	name, raw, ok := strings.Cut(spec, "^")
	if !ok {
		return spec, 1
	}
	boost, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		panic(fmt.Sprintf("mocks: bad field boost %q", spec))
	}
	return name, boost
}

func fuzzyEqual(a, b, fuzziness string) bool {
	if a == b {
		return true
	}
	if fuzziness != "AUTO" {
		return false
	}
	allowed := 0
	switch n := len([]rune(a)); {
	case n > 5:
		allowed = 2
	case n >= 3:
		allowed = 1
	}
	return allowed > 0 && levenshtein(a, b) <= allowed
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// wildcardMatch matches a pattern where * is any run, ? is one rune and a
// backslash escapes the next rune.
func wildcardMatch(pattern, s string) bool {
	p, r := []rune(pattern), []rune(s)
	var match func(pi, si int) bool
	match = func(pi, si int) bool {
		for pi < len(p) {
			switch p[pi] {
			case '*':
				for k := si; k <= len(r); k++ {
					if match(pi+1, k) {
						return true
					}
				}
				return false
			case '?':
				if si >= len(r) {
					return false
				}
			case '\\':
				pi++
				if pi >= len(p) || si >= len(r) || p[pi] != r[si] {
					return false
				}
			default:
				if si >= len(r) || p[pi] != r[si] {
					return false
				}
			}
			pi++
			si++
		}
		return si == len(r)
	}
	return match(0, 0)
}

// terms splits text values into lowercase words; keyword arrays keep each
// element whole.
func terms(v any) []string {
	switch v := v.(type) {
	case string:
		return tokenize(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func values(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}

// canonical normalizes JSON-decoded and Go-typed values for equality
func canonical(v any) string {
	switch v := v.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case *int64:
		if v == nil {
			return "null"
		}
		return strconv.FormatInt(*v, 10)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}
