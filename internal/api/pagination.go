package api

import (
	"net/http"
	"strconv"
)

// PageParams are the clamped page and limit query values.
type PageParams struct {
	Page  int
	Limit int
}

// PageMeta describes where a page sits in the full result set.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// Page is the envelope for paged list endpoints.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

// ParsePagination reads page and limit. Missing or non-positive values fall
// back to page 1 and defaultLimit; limit never exceeds maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PageParams {
	q := r.URL.Query()
	p := PageParams{Page: positiveInt(q.Get("page"), 1), Limit: positiveInt(q.Get("limit"), defaultLimit)}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// NewPage wraps one page of rows. An empty page still reports one total page.
func NewPage[T any](rows []T, p PageParams, total int64) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	pages := 1
	if total > 0 && p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Page[T]{
		Data: rows,
		Pagination: PageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Page < pages,
		},
	}
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
