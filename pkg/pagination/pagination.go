package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is offset pagination read from ?page=&per_page=.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns page 1 with the default page size.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// FromRequest parses page and per_page, ignoring invalid or out-of-range values.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 && v <= MaxPerPage {
		p.PerPage = v
	}
	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Result is a page of items with totals.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult builds a Result, substituting an empty slice for nil data.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := (totalCount + params.PerPage - 1) / params.PerPage
	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}

// Cursor is keyset pagination over an increasing int64 key, read from
// ?after=&limit=. After is exclusive; zero means from the start.
type Cursor struct {
	After int64
	Limit int
}

// CursorFromRequest parses after and limit with the same bounds as FromRequest.
func CursorFromRequest(r *http.Request) Cursor {
	c := Cursor{Limit: DefaultPerPage}
	q := r.URL.Query()
	if v, err := strconv.ParseInt(q.Get("after"), 10, 64); err == nil && v > 0 {
		c.After = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= MaxPerPage {
		c.Limit = v
	}
	return c
}

// Page is a keyset page. NextAfter is set only when more items may follow.
type Page[T any] struct {
	Data      []T    `json:"data"`
	NextAfter *int64 `json:"next_after,omitempty"`
}

// NewPage builds a Page from up to limit items; key extracts each item's cursor.
// A full page advertises the last key as NextAfter.
func NewPage[T any](data []T, limit int, key func(T) int64) Page[T] {
	if data == nil {
		data = []T{}
	}
	p := Page[T]{Data: data}
	if len(data) > 0 && len(data) == limit {
		next := key(data[len(data)-1])
		p.NextAfter = &next
	}
	return p
}
