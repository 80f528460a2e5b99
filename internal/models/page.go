package models

// PageMeta is the pagination metadata returned with list and search results
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	Limit      int `json:"limit"`
}

// Page is a page of results. Data is never nil.
type Page[T any] struct {
	Meta PageMeta `json:"meta"`
	Data []T      `json:"data"`
}

// NewPageMeta derives total pages from the reported hit count
func NewPageMeta(total, page, limit int) PageMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return PageMeta{Total: total, Page: page, TotalPages: totalPages, Limit: limit}
}

// SearchParams selects articles from the search index. Zero values mean
// "no filter"; Page is one-based.
type SearchParams struct {
	Query      string   `form:"q"`
	CategoryID *int64   `form:"category_id"`
	Tags       []string `form:"tags"`
	AuthorID   *int64   `form:"author_id"`
	Page       int      `form:"page"`
	PageSize   int      `form:"limit"`
}

// TaxonomySearchParams selects categories or tags from the search index
type TaxonomySearchParams struct {
	Query     string `form:"q"`
	CreatedBy *int64 `form:"created_by"`
	Page      int    `form:"page"`
	PageSize  int    `form:"limit"`
}
