package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
}

// PageRequest is a normalised page/per-page pair.
type PageRequest struct {
	Page    int
	PerPage int
}

// Offset returns the row offset of the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// NormalizePage clamps page and per-page into sane bounds.
func NormalizePage(page, perPage, fallback, max int) PageRequest {
	if fallback <= 0 {
		fallback = 50
	}
	if perPage <= 0 {
		perPage = fallback
	}
	if max > 0 && perPage > max {
		perPage = max
	}
	if page <= 0 {
		page = 1
	}
	// keep (page-1)*perPage representable; such pages are simply empty
	if maxPage := math.MaxInt/perPage + 1; page > maxPage {
		page = maxPage
	}
	return PageRequest{Page: page, PerPage: perPage}
}

// NewPagination computes pagination metadata. last_page is at least 1.
func NewPagination(req PageRequest, total int) Pagination {
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	return Pagination{CurrentPage: page, LastPage: lastPage, Total: total, PerPage: perPage}
}

// Page pairs pagination metadata with its rows in the wire shape
// {current_page,last_page,total,per_page,data}.
type Page[T any] struct {
	Pagination
	Data []T `json:"data"`
}
