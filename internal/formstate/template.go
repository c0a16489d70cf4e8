package formstate

import (
	"regexp"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
)

var templateToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// renderTemplate replaces every {{path}} token with the string form of the
// value at path in data. Missing values render as the empty string.
func renderTemplate(tmpl string, data map[string]any) string {
	return templateToken.ReplaceAllStringFunc(tmpl, func(tok string) string {
		m := templateToken.FindStringSubmatch(tok)
		v, ok := datapath.Get(data, m[1])
		if !ok {
			return ""
		}
		return jsonvalue.String(v)
	})
}
