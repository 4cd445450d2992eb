package common

import (
	"net/http"
	"strconv"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination extracts page and per-page parameters from query values.
// maxPerPage caps the requested limit when positive.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		perPage = l
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return
}

// Window returns the [start,end) slice bounds for the page over total items.
func Window(page, perPage, total int) (start, end int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return 0, 0
	}
	start = (page - 1) * perPage
	if start > total {
		start = total
	}
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end
}

// Paginate slices items for the requested page and returns the metadata.
func Paginate[T any](items []T, page, perPage int) ([]T, Pagination) {
	start, end := Window(page, perPage, len(items))
	return items[start:end], Pagination{Page: page, PerPage: perPage, TotalItems: len(items)}
}
