package formstate

import (
	"math"
	"strconv"

	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
)

// SubmissionResult is the outcome of Finalize. Data is set only on success;
// Errors only on failure, keyed by dotted field path.
type SubmissionResult struct {
	Success bool              `json:"success"`
	Data    map[string]any    `json:"data"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Finalize recomputes the form state and, when the form is valid, builds the
// payload to persist. Fields that are hidden or listed in exclude are left
// out at every depth and leaf values are cast to their data type.
//
// Finalize is the only place that decides what reaches storage.
func Finalize(s *form.Schema, raw, config map[string]any, opts Options) SubmissionResult {
	st := Compute(s, raw, config, opts)
	if !st.IsValid {
		errs := map[string]string{}
		collectErrors(s, st.Fields, "", errs)
		if opts.Debug {
			opts.logger().Debug("submission rejected", "errors", len(errs))
		}
		return SubmissionResult{Success: false, Errors: errs}
	}
	return SubmissionResult{Success: true, Data: finalizeLevel(s, st.Fields)}
}

// collectErrors gathers errors of visible fields. Children of hidden or
// disabled containers are skipped.
func collectErrors(s *form.Schema, states States, prefix string, errs map[string]string) {
	if s == nil {
		return
	}
	for _, f := range s.Fields {
		st := states[f.Key]
		if st == nil || !st.IsVisible {
			continue
		}
		path := prefix + f.Key
		if st.Error != nil {
			errs[path] = *st.Error
		}
		if st.IsDisabled || st.Children == nil {
			continue
		}
		if st.Children.List {
			for i, item := range st.Children.Items {
				collectErrors(f.ItemSchema, item, path+"."+strconv.Itoa(i)+".", errs)
			}
		} else {
			collectErrors(f.ItemSchema, st.Children.Object, path+".", errs)
		}
	}
}

func finalizeLevel(s *form.Schema, states States) map[string]any {
	out := map[string]any{}
	if s == nil {
		return out
	}
	for _, f := range s.Fields {
		st := states[f.Key]
		if st == nil || !st.IsVisible || s.Excludes(f.Key) {
			continue
		}

		var v any
		switch {
		case st.Children != nil && st.Children.List:
			items := make([]any, len(st.Children.Items))
			for i, item := range st.Children.Items {
				items[i] = finalizeLevel(f.ItemSchema, item)
			}
			v = items
		case st.Children != nil:
			v = finalizeLevel(f.ItemSchema, st.Children.Object)
		default:
			v = cast(f, st.Value)
		}
		out = put(out, f.Key, v)
	}
	return out
}

// cast converts a leaf value to the field's data type: the first declared
// dataType, or one derived from the widget. Arrays, objects and unknown
// types pass through.
func cast(f *form.Field, v any) any {
	if jsonvalue.IsArray(v) || jsonvalue.IsObject(v) {
		return v
	}
	switch f.ValueType() {
	case "number", "float":
		return finite(jsonvalue.ToNumber(v))
	case "integer":
		return math.Trunc(finite(jsonvalue.ToNumber(v)))
	case "boolean":
		return jsonvalue.Truthy(v)
	case "string", "date":
		return jsonvalue.String(v)
	}
	return v
}
