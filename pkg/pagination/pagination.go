package pagination

import (
	"fmt"
	"net/http"
	"strconv"
)

// Window is an optional skip/limit pair. A nil Skip means offset 0 and a nil
// Limit means no upper bound.
type Window struct {
	Skip  *int `json:"skip,omitempty"`
	Limit *int `json:"limit,omitempty"`
}

// Offset returns the effective offset.
func (w Window) Offset() int {
	if w.Skip == nil {
		return 0
	}
	return *w.Skip
}

// FromRequest reads the skip and limit query parameters. Absent values stay nil.
// Negative or non-numeric values are rejected, as is a limit above maxLimit
// when maxLimit is positive.
func FromRequest(r *http.Request, maxLimit int) (Window, error) {
	var w Window
	q := r.URL.Query()

	skip, err := parseNonNegative(q.Get("skip"), "skip")
	if err != nil {
		return w, err
	}
	limit, err := parseNonNegative(q.Get("limit"), "limit")
	if err != nil {
		return w, err
	}
	if limit != nil && maxLimit > 0 && *limit > maxLimit {
		return w, fmt.Errorf("limit must be at most %d", maxLimit)
	}

	w.Skip, w.Limit = skip, limit
	return w, nil
}

func parseNonNegative(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return &v, nil
}

// Result is the list envelope returned by listing endpoints.
type Result[T any] struct {
	TotalCount int64 `json:"total_count"`
	List       []T   `json:"list"`
}

// NewResult builds a Result, normalising a nil slice to an empty list.
func NewResult[T any](list []T, total int64) Result[T] {
	if list == nil {
		list = []T{}
	}
	return Result[T]{TotalCount: total, List: list}
}
