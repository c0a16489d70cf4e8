package schema

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
)

// SubmissionsTable is the table holding finalized submissions.
const SubmissionsTable = "submissions"

// quoteIdent quotes a SQL identifier using double quotes, escaping any embedded
// double quotes by doubling them.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a SQL string literal, doubling embedded single quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DataExpr returns the SQL expression reading the text value stored under a
// field key in the data column: data->>'key' for plain keys and
// data #>> ARRAY['a','b'] for dotted keys.
func DataExpr(key string) string {
	segs := datapath.Split(key)
	if len(segs) <= 1 {
		return "data->>" + quoteLiteral(key)
	}
	quoted := make([]string, len(segs))
	for i, s := range segs {
		quoted[i] = quoteLiteral(s)
	}
	return "data #>> ARRAY[" + strings.Join(quoted, ",") + "]"
}

// IndexName returns the name of the expression index for a field. Keys are
// hashed so arbitrary field keys stay within the 63 byte identifier limit.
func IndexName(formName, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("idx_sub_%s_%x", formName, sum[:4])
}

// GenerateFieldIndex returns a CREATE INDEX statement for a partial
// expression index over one field of one form's submissions.
func GenerateFieldIndex(formName, key string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((%s)) WHERE form = %s;",
		quoteIdent(IndexName(formName, key)),
		quoteIdent(SubmissionsTable),
		DataExpr(key),
		quoteLiteral(formName),
	)
}

// GenerateDropIndex returns the DROP INDEX statement matching
// GenerateFieldIndex.
func GenerateDropIndex(formName, key string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s;", quoteIdent(IndexName(formName, key)))
}
