package shared

import (
	"net/http"
)

// Page sizes for benefit record and audit listings. A month of records for a
// mid-sized tenant fits in a few default pages.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type Pagination struct {
	Limit  int
	Offset int
}

// Pagination reads limit and offset from the query. Malformed or negative
// values are reported as issues; a limit above MaxPageSize is capped.
func (v *Validator) Pagination(r *http.Request) Pagination {
	q := r.URL.Query()
	page := Pagination{
		Limit:  v.Int("limit", q.Get("limit"), DefaultPageSize),
		Offset: v.Int("offset", q.Get("offset"), 0),
	}
	if page.Limit < 1 {
		v.Add("limit", "must be a positive integer")
		page.Limit = DefaultPageSize
	}
	if page.Offset < 0 {
		v.Add("offset", "must not be negative")
		page.Offset = 0
	}
	if page.Limit > MaxPageSize {
		page.Limit = MaxPageSize
	}
	return page
}
