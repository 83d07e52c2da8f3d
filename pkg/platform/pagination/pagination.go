// Package pagination carries page requests and the page envelope returned by
// list endpoints.
package pagination

import (
	"net/url"
	"strconv"

	dErrors "crm/pkg/domain-errors"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Request selects a zero-based page.
type Request struct {
	Number int
	Size   int
}

// Normalize clamps the request into the accepted range.
func (r Request) Normalize() Request {
	if r.Number < 0 {
		r.Number = 0
	}
	if r.Size <= 0 {
		r.Size = DefaultSize
	}
	if r.Size > MaxSize {
		r.Size = MaxSize
	}
	return r
}

// Offset is the number of rows skipped before this page.
func (r Request) Offset() int {
	return r.Number * r.Size
}

// FromQuery reads `page` and `size` query parameters.
func FromQuery(q url.Values) (Request, error) {
	var r Request
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Request{}, dErrors.New(dErrors.CodeBadRequest, "page must be a non-negative integer")
		}
		r.Number = n
	}
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Request{}, dErrors.New(dErrors.CodeBadRequest, "size must be a positive integer")
		}
		r.Size = n
	}
	return r.Normalize(), nil
}

// Page is the list envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

// NewPage builds a page from one slice of results and the overall total.
func NewPage[T any](content []T, total int64, req Request) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		TotalElements: total,
		TotalPages:    pages,
		Size:          req.Size,
		Number:        req.Number,
	}
}

// Map converts page content while keeping the envelope.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.Content))
	for _, v := range p.Content {
		out = append(out, fn(v))
	}
	return Page[U]{
		Content:       out,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		Size:          p.Size,
		Number:        p.Number,
	}
}

// Slice returns the window of items selected by req.
func Slice[T any](items []T, req Request) []T {
	start := req.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+req.Size, len(items))
	return items[start:end]
}
