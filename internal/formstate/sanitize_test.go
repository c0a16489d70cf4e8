package formstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitize(t *testing.T) {
	s := mustSchema(t, `
fields:
  agree: {widget: checkbox}
  notify: {widget: switch}
  truthy: {widget: checkbox}
  age: {widget: number}
  weight: {widget: number-input}
  level: {widget: slider}
  junkNumber: {widget: number}
  infinite: {widget: number}
  name: {widget: text}
  tags: {widget: tags}
  profile.city: {widget: text}
  absent: {widget: text}
`)
	raw := map[string]any{
		"agree":      true,
		"notify":     "true",
		"truthy":     1.0,
		"age":        "42 years",
		"weight":     72.5,
		"level":      7,
		"junkNumber": "abc",
		"infinite":   "Infinity",
		"name":       "  Ada ",
		"tags":       []any{"x"},
		"profile":    map[string]any{"city": "Rome", "street": "dropped"},
		"undeclared": "dropped",
	}
	want := map[string]any{
		"agree":      true,
		"notify":     false,
		"truthy":     false,
		"age":        42.0,
		"weight":     72.5,
		"level":      7.0,
		"junkNumber": 0.0,
		"infinite":   0.0,
		"name":       "  Ada ",
		"tags":       []any{"x"},
		"profile":    map[string]any{"city": "Rome"},
	}
	if diff := cmp.Diff(want, Sanitize(s, raw)); diff != "" {
		t.Errorf("Sanitize mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitize_NilInputs(t *testing.T) {
	if got := Sanitize(nil, map[string]any{"a": 1}); len(got) != 0 {
		t.Errorf("nil schema should yield an empty record, got %v", got)
	}
	s := mustSchema(t, "fields:\n  a: {widget: number}\n")
	if got := Sanitize(s, nil); len(got) != 0 {
		t.Errorf("nil data should yield an empty record, got %v", got)
	}
}

func TestRenderTemplate(t *testing.T) {
	data := map[string]any{
		"name":  "Ada",
		"n":     3.0,
		"ok":    true,
		"items": []any{map[string]any{"sku": "A1"}},
		"nil":   nil,
	}
	tests := []struct {
		tmpl, want string
	}{
		{"Hello {{name}}", "Hello Ada"},
		{"{{ n }}x{{ok}}", "3xtrue"},
		{"{{items[0].sku}}", "A1"},
		{"[{{missing}}][{{nil}}]", "[][]"},
		{"no tokens", "no tokens"},
		{"{{}}", "{{}}"},
	}
	for _, tt := range tests {
		if got := renderTemplate(tt.tmpl, data); got != tt.want {
			t.Errorf("renderTemplate(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}
