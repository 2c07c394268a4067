package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// PageMeta describes one page of a listing.
type PageMeta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// pageParams reads the "limit" and "offset" query parameters. Missing,
// non-numeric or non-positive values fall back to the defaults; limit is
// capped at maxPageLimit.
func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit = positiveInt(q.Get("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, positiveInt(q.Get("offset"), 0)
}

func positiveInt(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

// pageBounds returns the [start, end) window of a collection of total
// items. An offset past the end yields an empty window.
func pageBounds(total, limit, offset int) (start, end int, meta PageMeta) {
	start = min(offset, total)
	end = min(start+limit, total)
	return start, end, PageMeta{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
	}
}
