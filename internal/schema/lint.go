package schema

import (
	"fmt"

	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/logic"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

// Warning is a non-fatal finding about a form definition.
type Warning struct {
	Form    string `json:"form"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("form %q: field %q: %s", w.Form, w.Field, w.Message)
}

// Lint reports definitions that are valid but probably not what the author
// meant: "not" groups with extra children (only the first is evaluated),
// unknown group operators (which pass), and restricted fields that would be
// written to autosave drafts.
func Lint(forms []Form) []Warning {
	var out []Warning
	for _, f := range forms {
		lintLevel(f.Name, f.Schema(), "", &out)
	}
	return out
}

func lintLevel(formName string, s *form.Schema, prefix string, out *[]Warning) {
	for _, fd := range s.Fields {
		path := prefix + fd.Key
		warn := func(format string, args ...any) {
			*out = append(*out, Warning{Form: formName, Field: path, Message: fmt.Sprintf(format, args...)})
		}

		for i, r := range fd.Rules {
			logic.Walk(r.Condition, func(n logic.Node) {
				g, ok := n.(logic.Group)
				if p, isPtr := n.(*logic.Group); isPtr && p != nil {
					g, ok = *p, true
				}
				if !ok {
					return
				}
				switch {
				case !g.Operator.Known():
					warn("rules[%d]: unknown group operator %q always passes", i, g.Operator)
				case g.Operator == logic.Not && len(g.Conditions) > 1:
					warn("rules[%d]: \"not\" evaluates only the first of %d conditions", i, len(g.Conditions))
				}
			})
		}

		validation.Walk(fd.Validation, func(n validation.Node) {
			g, ok := n.(validation.Group)
			if p, isPtr := n.(*validation.Group); isPtr && p != nil {
				g, ok = *p, true
			}
			if !ok {
				return
			}
			switch {
			case !g.Operator.Known():
				warn("validation: unknown group operator %q always passes", g.Operator)
			case g.Operator == validation.Not && len(g.Rules) > 1:
				warn("validation: \"not\" checks only the first of %d rules", len(g.Rules))
			}
		})

		if fd.AutoSave && fd.Sensitivity == form.SensitivityRestricted {
			warn("restricted field is autosaved into drafts")
		}

		if fd.ItemSchema != nil {
			lintLevel(formName, fd.ItemSchema, path+".", out)
		}
	}
}
