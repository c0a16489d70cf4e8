package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
	"github.com/GyroZepelix/mithril-forms/internal/logic"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

// namePattern matches valid form names: lowercase letter followed by
// lowercase letters, digits, or underscores.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// maxFormNameLength keeps generated index names within the PostgreSQL
// identifier limit of 63 bytes.
const maxFormNameLength = 40

// knownDataTypes are the dataType names the finalizer casts to.
var knownDataTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"float":   true,
	"boolean": true,
	"date":    true,
}

// ValidateSchemas validates all forms together. It returns a multi-error
// listing ALL validation problems found, or nil if all forms are valid.
func ValidateSchemas(forms []Form) error {
	var allErrors []string

	nameCount := make(map[string]int, len(forms))
	for _, f := range forms {
		nameCount[f.Name]++
	}
	for _, f := range forms {
		if n := nameCount[f.Name]; n > 1 && f.Name != "" {
			allErrors = append(allErrors, fmt.Sprintf("form name %q is defined %d times", f.Name, n))
			nameCount[f.Name] = 0
		}
	}

	for _, f := range forms {
		for _, msg := range validateForm(f) {
			allErrors = append(allErrors, fmt.Sprintf("form %q: %s", f.Name, msg))
		}
	}

	if len(allErrors) == 0 {
		return nil
	}
	return &ValidationError{Problems: allErrors}
}

// ValidationError holds a list of all validation problems found across forms.
type ValidationError struct {
	Problems []string
}

// Error returns a human-readable summary of all validation problems.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed with %d problem(s):\n- %s",
		len(e.Problems), strings.Join(e.Problems, "\n- "))
}

func validateForm(f Form) []string {
	var problems []string

	if f.Name == "" {
		problems = append(problems, "name is required")
	} else {
		if !namePattern.MatchString(f.Name) {
			problems = append(problems, "name must match ^[a-z][a-z0-9_]*$")
		}
		if len(f.Name) > maxFormNameLength {
			problems = append(problems, fmt.Sprintf("name must be at most %d characters (got %d)", maxFormNameLength, len(f.Name)))
		}
	}

	if len(f.Fields) == 0 {
		return append(problems, "at least one field is required")
	}

	problems = append(problems, validateLevel(f.Schema(), "")...)

	for _, fd := range f.Fields {
		if fd.IsContainer() && (fd.Searchable || fd.Indexed) {
			problems = append(problems, fmt.Sprintf("field %q: searchable and indexed are not valid on container fields", fd.Key))
		}
	}
	return problems
}

// validateLevel checks one schema level and recurses into item schemas.
func validateLevel(s *form.Schema, prefix string) []string {
	var problems []string

	for _, key := range s.Exclude {
		if _, ok := s.Fields.Get(key); !ok {
			problems = append(problems, fmt.Sprintf("exclude entry %q names no field", prefix+key))
		}
	}

	for _, fd := range s.Fields {
		path := prefix + fd.Key
		p := func(format string, args ...any) {
			problems = append(problems, fmt.Sprintf("field %q: ", path)+fmt.Sprintf(format, args...))
		}

		if !validPath(fd.Key) {
			p("key is not a valid path")
		}
		if fd.BindPath != "" && !validPath(fd.BindPath) {
			p("bindPath %q is not a valid path", fd.BindPath)
		}
		if fd.Widget != "" && !fd.Widget.Known() {
			p("unknown widget %q", fd.Widget)
		}
		for _, t := range fd.DataType {
			if !knownDataTypes[t] {
				p("unknown dataType %q", t)
			}
		}
		if !fd.Sensitivity.Known() {
			p("unknown sensitivity %q", fd.Sensitivity)
		}
		if prefix != "" && (fd.Searchable || fd.Indexed) {
			p("searchable and indexed are only valid on top-level fields")
		}
		if fd.Widget.IsRepeater() || fd.Widget.IsObject() {
			if fd.ItemSchema == nil {
				p("widget %q requires an itemSchema", fd.Widget)
			}
		}

		for i, r := range fd.Rules {
			if !r.Effect.Known() {
				p("rules[%d]: unknown effect %q", i, r.Effect)
			}
			if r.Condition == nil {
				p("rules[%d]: condition is required", i)
				continue
			}
			for _, msg := range checkCondition(r.Condition, s.Fields) {
				p("rules[%d]: %s", i, msg)
			}
		}

		for _, msg := range checkValidation(fd.Validation) {
			p("validation: %s", msg)
		}

		if fd.ItemSchema != nil {
			problems = append(problems, validateLevel(fd.ItemSchema, path+".")...)
		}
	}
	return problems
}

// validPath reports whether p splits into non-empty segments.
func validPath(p string) bool {
	segs := datapath.Split(p)
	if len(segs) == 0 {
		return false
	}
	for _, s := range segs {
		if s == "" || strings.TrimSpace(s) != s {
			return false
		}
	}
	return true
}

// checkCondition reports unknown leaf operators and conditions that
// reference no sibling field. Unknown group operators are left to Lint.
func checkCondition(node logic.Node, siblings form.Fields) []string {
	var problems []string
	logic.Walk(node, func(n logic.Node) {
		var c logic.Condition
		switch t := n.(type) {
		case logic.Condition:
			c = t
		case *logic.Condition:
			if t == nil {
				return
			}
			c = *t
		default:
			return
		}
		if !c.Operator.Known() {
			problems = append(problems, fmt.Sprintf("unknown operator %q", c.Operator))
		}
		if c.Operator == logic.OpIn && !jsonvalue.IsArray(c.Value) {
			problems = append(problems, fmt.Sprintf("operator \"in\" on %q needs a list value", c.Field))
		}
		if !referencesField(c.Field, siblings) {
			problems = append(problems, fmt.Sprintf("condition references unknown field %q", c.Field))
		}
	})
	return problems
}

// referencesField reports whether path names a sibling field, either by
// its full key or by the key of a container it descends into.
func referencesField(path string, siblings form.Fields) bool {
	if _, ok := siblings.Get(path); ok {
		return true
	}
	segs := datapath.Split(path)
	if len(segs) == 0 {
		return false
	}
	for _, fd := range siblings {
		keySegs := datapath.Split(fd.Key)
		if len(keySegs) <= len(segs) && strings.Join(segs[:len(keySegs)], ".") == strings.Join(keySegs, ".") {
			return true
		}
	}
	return false
}

// checkValidation reports unknown rule types and rule values that can never
// be checked.
func checkValidation(node validation.Node) []string {
	var problems []string
	validation.Walk(node, func(n validation.Node) {
		var r validation.Rule
		switch t := n.(type) {
		case validation.Rule:
			r = t
		case *validation.Rule:
			if t == nil {
				return
			}
			r = *t
		default:
			return
		}
		switch r.Type {
		case validation.TypeRegex:
			pattern, ok := r.Value.(string)
			if !ok {
				problems = append(problems, "regex rule needs a string pattern")
			} else if _, err := regexp.Compile(pattern); err != nil {
				problems = append(problems, fmt.Sprintf("invalid regex %q: %v", pattern, err))
			}
		case validation.TypeMin, validation.TypeMax:
			if _, ok := jsonvalue.Number(r.Value); !ok {
				problems = append(problems, fmt.Sprintf("%s rule needs a numeric value", r.Type))
			}
		case validation.TypeIn:
			if !jsonvalue.IsArray(r.Value) {
				problems = append(problems, "in rule needs a list value")
			}
		case validation.TypeStartsWith, validation.TypeEndsWith:
			if _, ok := r.Value.(string); !ok {
				problems = append(problems, fmt.Sprintf("%s rule needs a string value", r.Type))
			}
		default:
			if !r.Type.Known() {
				problems = append(problems, fmt.Sprintf("unknown rule type %q", r.Type))
			}
		}
	})
	return problems
}
