package formstate

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

func mustSchema(t *testing.T, src string) *form.Schema {
	t.Helper()
	s, err := form.Decode([]byte(src))
	if err != nil {
		t.Fatalf("decoding schema: %v", err)
	}
	return s
}

const secretSchema = `
fields:
  firstName:
    widget: text
    validation: {type: required}
  showSecret: {widget: checkbox}
  secretCode:
    widget: text
    rules: {effect: SHOW, condition: {field: showSecret, operator: "===", value: true}}
`

func TestCompute_SecretScenario(t *testing.T) {
	s := mustSchema(t, secretSchema)

	t.Run("empty name hides secret and is invalid", func(t *testing.T) {
		st := Compute(s, map[string]any{"firstName": "", "showSecret": false}, nil, Options{})
		if st.IsValid {
			t.Error("expected invalid form")
		}
		if st.Fields["secretCode"].IsVisible {
			t.Error("secretCode should be hidden")
		}
		if e := st.Fields["firstName"].Error; e == nil || *e != validation.MsgRequired {
			t.Errorf("firstName error = %v", e)
		}
		if !st.Fields["firstName"].IsRequired {
			t.Error("firstName should be required")
		}
	})

	t.Run("filled name shows secret and is valid", func(t *testing.T) {
		st := Compute(s, map[string]any{"firstName": "Gemini", "showSecret": true}, nil, Options{})
		if !st.IsValid {
			t.Error("expected valid form")
		}
		if !st.Fields["secretCode"].IsVisible {
			t.Error("secretCode should be visible")
		}
	})
}

func TestCompute_ValuePrecedence(t *testing.T) {
	s := mustSchema(t, `
fields:
  a: {widget: text, default: d}
  b: {widget: text, bindPath: profile.b, default: d}
  c: {widget: number}
  d: {widget: checkbox}
  e: {widget: tags}
  f: {widget: group}
  g: {widget: text, default: [x]}
  h: {widget: date}
`)
	config := map[string]any{
		"a":       "cfg",
		"b":       "ignored, bindPath wins",
		"profile": map[string]any{"b": "bound"},
	}

	tests := []struct {
		name    string
		working map[string]any
		config  map[string]any
		want    map[string]any
	}{
		{
			name:    "working data wins",
			working: map[string]any{"a": "w", "b": "w"},
			config:  config,
			want:    map[string]any{"a": "w", "b": "w"},
		},
		{
			name:    "nil working value falls back to config",
			working: map[string]any{"a": nil},
			config:  config,
			want:    map[string]any{"a": "cfg", "b": "bound"},
		},
		{
			name:    "defaults then widget fallbacks",
			working: map[string]any{},
			want: map[string]any{
				"a": "d", "b": "d", "c": 0.0, "d": false, "e": []any{},
				"f": map[string]any{}, "g": []any{"x"}, "h": "",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Compute(s, tt.working, tt.config, Options{})
			for key, want := range tt.want {
				if diff := cmp.Diff(want, st.Fields[key].Value); diff != "" {
					t.Errorf("%s value mismatch (-want +got):\n%s", key, diff)
				}
			}
		})
	}
}

func TestCompute_DefaultIsNotShared(t *testing.T) {
	s := mustSchema(t, "fields:\n  g: {widget: tags, default: [x]}\n")
	st := Compute(s, nil, nil, Options{})
	st.Fields["g"].Value.([]any)[0] = "changed"

	g, _ := s.Fields.Get("g")
	if g.Default.([]any)[0] != "x" {
		t.Error("schema default was mutated through a computed value")
	}
}

func TestCompute_Effects(t *testing.T) {
	s := mustSchema(t, `
fields:
  mode: {widget: select}
  note:
    widget: text
    validation: {type: required}
    rules:
      - {effect: HIDE, condition: {field: mode, operator: "===", value: hidden}}
      - {effect: DISABLE, condition: {field: mode, operator: "===", value: locked}}
      - {effect: ENABLE, condition: {field: mode, operator: "===", value: locked}}
      - {effect: OPTIONAL, condition: {field: mode, operator: "===", value: optional}}
  extra:
    widget: text
    rules: {effect: REQUIRE, condition: {field: mode, operator: "===", value: strict}}
`)

	tests := []struct {
		mode          string
		noteVisible   bool
		noteDisabled  bool
		noteRequired  bool
		extraRequired bool
		valid         bool
	}{
		{"hidden", false, false, true, false, true},
		{"locked", true, true, true, false, true},
		{"optional", true, false, false, false, true},
		{"strict", true, false, true, true, false},
		{"other", true, false, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			st := Compute(s, map[string]any{"mode": tt.mode}, nil, Options{})
			note, extra := st.Fields["note"], st.Fields["extra"]
			if note.IsVisible != tt.noteVisible || note.IsDisabled != tt.noteDisabled || note.IsRequired != tt.noteRequired {
				t.Errorf("note = visible %v disabled %v required %v", note.IsVisible, note.IsDisabled, note.IsRequired)
			}
			if extra.IsRequired != tt.extraRequired {
				t.Errorf("extra required = %v, want %v", extra.IsRequired, tt.extraRequired)
			}
			if st.IsValid != tt.valid {
				t.Errorf("valid = %v, want %v", st.IsValid, tt.valid)
			}
			if !note.IsVisible && note.Error != nil {
				t.Errorf("hidden field carries error %q", *note.Error)
			}
		})
	}
}

func TestCompute_ShowWinsOverHide(t *testing.T) {
	s := mustSchema(t, `
fields:
  flag: {widget: checkbox}
  x:
    widget: text
    rules:
      - {effect: HIDE, condition: {field: flag, operator: "===", value: true}}
      - {effect: SHOW, condition: {field: flag, operator: "===", value: true}}
`)
	if !Compute(s, map[string]any{"flag": true}, nil, Options{}).Fields["x"].IsVisible {
		t.Error("active SHOW should make the field visible")
	}
	if Compute(s, map[string]any{"flag": false}, nil, Options{}).Fields["x"].IsVisible {
		t.Error("a field with a SHOW rule is hidden until SHOW is active")
	}
}

func TestCompute_Template(t *testing.T) {
	s := mustSchema(t, `
fields:
  first: {widget: text}
  last: {widget: text}
  age: {widget: number}
  summary: {widget: text, template: "{{ first }} {{last}} ({{age}}){{missing}}"}
`)
	st := Compute(s, map[string]any{"first": "Ada", "last": "Lovelace", "age": "36", "summary": "typed"}, nil, Options{})
	if got := st.Fields["summary"].Value; got != "Ada Lovelace (36)" {
		t.Errorf("summary = %q", got)
	}
}

const containerSchema = `
fields:
  items:
    widget: repeater
    itemSchema:
      fields:
        name: {widget: text, validation: {type: required}}
        qty: {widget: number}
  address:
    widget: group
    itemSchema:
      fields:
        city: {widget: text}
`

func TestCompute_Containers(t *testing.T) {
	s := mustSchema(t, containerSchema)
	st := Compute(s, map[string]any{
		"items":   []any{map[string]any{"name": "A", "qty": "3"}, "junk", map[string]any{"name": ""}},
		"address": "nope",
	}, nil, Options{})

	items := st.Fields["items"].Children
	if items == nil || !items.List || len(items.Items) != 3 {
		t.Fatalf("unexpected item children %+v", items)
	}
	if got := items.Items[0]["qty"].Value; got != 3.0 {
		t.Errorf("items[0].qty = %#v, want 3", got)
	}
	if items.Items[1]["name"].Error == nil {
		t.Error("non-object element should be treated as an empty object")
	}
	if st.IsValid {
		t.Error("errors in visible children must invalidate the form")
	}

	addr := st.Fields["address"].Children
	if addr == nil || addr.List {
		t.Fatalf("unexpected address children %+v", addr)
	}
	if got := addr.Object["city"].Value; got != "" {
		t.Errorf("address.city = %#v", got)
	}
}

func TestCompute_HiddenContainerChildrenDoNotBlock(t *testing.T) {
	s := mustSchema(t, `
fields:
  show: {widget: checkbox}
  items:
    widget: repeater
    rules: {effect: SHOW, condition: {field: show, operator: "===", value: true}}
    itemSchema:
      fields:
        name: {widget: text, validation: {type: required}}
`)
	data := map[string]any{"show": false, "items": []any{map[string]any{"name": ""}}}
	if !Compute(s, data, nil, Options{}).IsValid {
		t.Error("children of a hidden container must not block validity")
	}
	data["show"] = true
	if Compute(s, data, nil, Options{}).IsValid {
		t.Error("children of a visible container must count")
	}
}

func TestCompute_ContainerStateReachesDescendants(t *testing.T) {
	s := mustSchema(t, `
fields:
  lock: {widget: checkbox}
  show: {widget: checkbox}
  addr:
    widget: group
    rules:
      - {effect: DISABLE, condition: {field: lock, operator: "===", value: true}}
      - {effect: SHOW, condition: {field: show, operator: "===", value: true}}
    itemSchema:
      fields:
        zip: {widget: text, validation: {type: required}}
`)
	tests := []struct {
		name         string
		lock, show   bool
		wantValid    bool
		wantVisible  bool
		wantDisabled bool
		wantError    bool
	}{
		{"enabled and visible", false, true, false, true, false, true},
		{"disabled", true, true, true, true, true, false},
		{"hidden", false, false, true, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := map[string]any{"lock": tt.lock, "show": tt.show, "addr": map[string]any{"zip": ""}}
			st := Compute(s, data, nil, Options{})
			if st.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", st.IsValid, tt.wantValid)
			}
			zip := st.Fields["addr"].Children.Object["zip"]
			if zip.IsVisible != tt.wantVisible || zip.IsDisabled != tt.wantDisabled {
				t.Errorf("zip visible %v disabled %v, want %v %v", zip.IsVisible, zip.IsDisabled, tt.wantVisible, tt.wantDisabled)
			}
			if (zip.Error != nil) != tt.wantError {
				t.Errorf("zip error = %v, want error %v", zip.Error, tt.wantError)
			}
		})
	}
}

func TestCompute_DebugDoesNotChangeResult(t *testing.T) {
	s := mustSchema(t, containerSchema)
	data := map[string]any{"items": []any{map[string]any{"name": "A"}}}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	quiet := Compute(s, data, nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	loud := Compute(s, data, nil, Options{Debug: true, Logger: logger})

	if diff := cmp.Diff(quiet, loud); diff != "" {
		t.Errorf("debug changed the result (-quiet +debug):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "path=items.0.name") {
		t.Errorf("expected per-field debug output, got %q", buf.String())
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	s := mustSchema(t, containerSchema)
	data := map[string]any{
		"items":   []any{map[string]any{"name": "A", "qty": "3"}},
		"address": map[string]any{"city": "Oslo"},
	}
	before := map[string]any{
		"items":   []any{map[string]any{"name": "A", "qty": "3"}},
		"address": map[string]any{"city": "Oslo"},
	}
	Compute(s, data, nil, Options{})
	Finalize(s, data, nil, Options{})
	ExtractAutoSave(s, data, Options{})
	if diff := cmp.Diff(before, data); diff != "" {
		t.Errorf("input mutated (-before +after):\n%s", diff)
	}
}

func TestFieldState_JSON(t *testing.T) {
	s := mustSchema(t, containerSchema)
	st := Compute(s, map[string]any{"items": []any{map[string]any{"name": "A"}}}, nil, Options{})

	b, err := json.Marshal(st.Fields["items"])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"children":[{`) {
		t.Errorf("list children should encode as an array: %s", b)
	}

	b, err = json.Marshal(st.Fields["address"])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"children":{"city":`) {
		t.Errorf("object children should encode as an object: %s", b)
	}
	if !strings.Contains(string(b), `"error":null`) {
		t.Errorf("error should always be present: %s", b)
	}
}
