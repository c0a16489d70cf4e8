package formstate

import (
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
)

// AutoSaveResult is the outcome of ExtractAutoSave.
type AutoSaveResult struct {
	ShouldSave bool           `json:"shouldSave"`
	Payload    map[string]any `json:"payload"`
}

// ExtractAutoSave builds the partial payload of fields marked autoSave that
// are visible, enabled, error free and, when required, filled in. Containers
// contribute only their eligible children. Excluded keys are never saved.
func ExtractAutoSave(s *form.Schema, raw map[string]any, opts Options) AutoSaveResult {
	st := Compute(s, raw, nil, opts)
	payload, n := autoSaveLevel(s, st.Fields)
	if opts.Debug {
		opts.logger().Debug("autosave extracted", "fields", n)
	}
	return AutoSaveResult{ShouldSave: n > 0, Payload: payload}
}

// autoSaveLevel returns the payload of one level and the number of fields
// included at that level.
func autoSaveLevel(s *form.Schema, states States) (map[string]any, int) {
	out := map[string]any{}
	if s == nil {
		return out, 0
	}
	n := 0
	for _, f := range s.Fields {
		st := states[f.Key]
		if st == nil || !eligible(f, st) || s.Excludes(f.Key) {
			continue
		}

		v := st.Value
		if st.Children != nil {
			if st.Children.List {
				items := make([]any, len(st.Children.Items))
				for i, item := range st.Children.Items {
					items[i], _ = autoSaveLevel(f.ItemSchema, item)
				}
				v = items
			} else {
				v, _ = autoSaveLevel(f.ItemSchema, st.Children.Object)
			}
		}
		out = put(out, f.Key, v)
		n++
	}
	return out, n
}

func eligible(f *form.Field, st *FieldState) bool {
	if !f.AutoSave || !st.IsVisible || st.IsDisabled || st.Error != nil {
		return false
	}
	return !st.IsRequired || !jsonvalue.IsEmpty(st.Value)
}
