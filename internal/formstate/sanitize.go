package formstate

import (
	"math"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
)

// Sanitize returns a fresh record holding only the keys declared at the top
// level of s, each coerced by its widget. Boolean widgets keep only a real
// true; numeric widgets parse the leading number of a string and turn
// anything unparseable into 0. Keys missing from raw are left out. Nested
// item schemas are not visited.
func Sanitize(s *form.Schema, raw map[string]any) map[string]any {
	out := map[string]any{}
	if s == nil {
		return out
	}
	for _, f := range s.Fields {
		v, ok := datapath.Get(raw, f.Key)
		if !ok {
			continue
		}
		switch {
		case f.Widget.IsBoolean():
			b, _ := v.(bool)
			v = b
		case f.Widget.IsNumeric():
			v = parseNumber(v)
		}
		out = put(out, f.Key, v)
	}
	return out
}

func parseNumber(v any) float64 {
	if n, ok := jsonvalue.Number(v); ok {
		return finite(n)
	}
	if s, ok := v.(string); ok {
		return finite(jsonvalue.ParseFloat(s))
	}
	return 0
}

// finite maps NaN and infinities to 0 so values stay JSON encodable.
func finite(n float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// put writes v under key. Dotted or bracketed keys are written as nested
// paths.
func put(m map[string]any, key string, v any) map[string]any {
	if !strings.ContainsAny(key, ".[") {
		m[key] = v
		return m
	}
	if out, ok := datapath.Set(m, key, v).(map[string]any); ok {
		return out
	}
	return m
}

// asObject returns v when it is an object and an empty object otherwise.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// clone deep-copies arrays and objects so schema-owned defaults never leak
// into caller-owned results.
func clone(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = clone(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = clone(el)
		}
		return out
	}
	return v
}
