// Package submission implements evaluation, submission and draft handling
// for loaded forms: HTTP handlers, the service that runs the form state
// engine and the repository storing submissions and drafts as JSONB.
package submission

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

// QueryParams holds parsed and validated query parameters for list endpoints.
type QueryParams struct {
	Page    int
	PerPage int
	Sort    string
	Order   string            // "asc" or "desc"
	Filters map[string]string // field key -> value
	Search  string            // full-text search query
}

// systemSortColumns are columns of the submissions table that are valid
// sort targets in addition to top-level field keys.
var systemSortColumns = map[string]bool{
	"id":         true,
	"created_at": true,
}

// ParseQueryParams extracts and validates query parameters from the request
// URL against the given form.
func ParseQueryParams(r *http.Request, f *schema.Form) (QueryParams, error) {
	q := QueryParams{
		Page:    1,
		PerPage: 20,
		Sort:    "created_at",
		Order:   "desc",
		Filters: make(map[string]string),
	}

	query := r.URL.Query()

	if v := query.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return q, fmt.Errorf("page must be a positive integer")
		}
		q.Page = page
	}

	if v := query.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 {
			return q, fmt.Errorf("per_page must be a positive integer")
		}
		q.PerPage = min(perPage, 100)
	}

	// Only leaf fields that reach storage can be sorted or filtered on.
	fieldKeys := make(map[string]bool, len(f.Fields))
	for _, fd := range f.Fields {
		if !fd.IsContainer() && !f.Schema().Excludes(fd.Key) {
			fieldKeys[fd.Key] = true
		}
	}

	if v := query.Get("sort"); v != "" {
		if !fieldKeys[v] && !systemSortColumns[v] {
			return q, fmt.Errorf("invalid sort field: %s", v)
		}
		q.Sort = v
	}

	if v := query.Get("order"); v != "" {
		lower := strings.ToLower(v)
		if lower != "asc" && lower != "desc" {
			return q, fmt.Errorf("order must be 'asc' or 'desc'")
		}
		q.Order = lower
	}

	// filter[key]=value
	for key, values := range query {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		name := key[len("filter[") : len(key)-1]
		if !fieldKeys[name] {
			return q, fmt.Errorf("invalid filter field: %s", name)
		}
		if len(values) > 0 {
			q.Filters[name] = values[0]
		}
	}

	q.Search = strings.TrimSpace(query.Get("q"))

	return q, nil
}

// sortExpr returns the ORDER BY expression for a validated sort key.
func sortExpr(key string) string {
	if systemSortColumns[key] {
		return key
	}
	return schema.DataExpr(key)
}
