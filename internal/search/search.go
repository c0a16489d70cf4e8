// Package search builds PostgreSQL full-text search fragments over the
// searchable fields of stored submissions.
package search

import (
	"fmt"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

// Config is the text search configuration. Submissions are free text in any
// language, so no stemming is applied.
const Config = "simple"

// HeadlineColumn is the result column holding the highlighted snippet.
const HeadlineColumn = "_search_headline"

// Vector returns the tsvector expression over the given top-level field keys.
func Vector(fields []string) string {
	exprs := make([]string, len(fields))
	for i, key := range fields {
		exprs[i] = schema.DataExpr(key)
	}
	return fmt.Sprintf("to_tsvector('%s', concat_ws(' ', %s))", Config, strings.Join(exprs, ", "))
}

// BuildSearchClause generates PostgreSQL full-text search SQL fragments.
// It takes the search query string, the searchable field keys and the
// parameter index for the query placeholder.
//
// Returns:
//   - whereClause: to_tsvector('simple', concat_ws(' ', data->>'a', ...)) @@ plainto_tsquery('simple', $3)
//   - orderClause: ts_rank(<vector>, plainto_tsquery('simple', $3)) DESC
//   - headlineExpr: ts_headline over the first field, aliased "_search_headline"
//   - args: the query string to bind
//
// If no searchable fields exist, all return values are zero/nil.
func BuildSearchClause(query string, fields []string, paramIdx int) (whereClause, orderClause, headlineExpr string, args []any) {
	if len(fields) == 0 {
		return "", "", "", nil
	}

	tsquery := fmt.Sprintf("plainto_tsquery('%s', $%d)", Config, paramIdx)
	vector := Vector(fields)

	whereClause = fmt.Sprintf("%s @@ %s", vector, tsquery)
	orderClause = fmt.Sprintf("ts_rank(%s, %s) DESC", vector, tsquery)
	headlineExpr = fmt.Sprintf("ts_headline('%s', coalesce(%s, ''), %s) AS %q",
		Config, schema.DataExpr(fields[0]), tsquery, HeadlineColumn)

	args = []any{query}
	return whereClause, orderClause, headlineExpr, args
}
