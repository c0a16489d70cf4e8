package formstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GyroZepelix/mithril-forms/internal/validation"
)

func TestFinalize_Casts(t *testing.T) {
	s := mustSchema(t, `
exclude: [internal]
fields:
  count: {widget: text, dataType: integer}
  price: {widget: number}
  agree: {widget: checkbox}
  flag: {widget: text, dataType: boolean}
  code: {widget: number, dataType: string}
  when: {widget: date}
  tags: {widget: tags}
  ratio: {widget: text, dataType: [float, string]}
  custom: {widget: text, dataType: money}
  internal: {widget: text}
  address.city: {widget: text}
`)
	raw := map[string]any{
		"count":    "12.7",
		"price":    "9.5 EUR",
		"agree":    true,
		"flag":     "yes",
		"code":     42,
		"when":     "2024-01-02",
		"tags":     []any{"a"},
		"ratio":    "abc",
		"custom":   "10 EUR",
		"internal": "secret",
		"address":  map[string]any{"city": "Paris", "zip": "75001"},
		"junk":     "dropped",
	}

	res := Finalize(s, raw, nil, Options{})
	if !res.Success {
		t.Fatalf("expected success, got errors %v", res.Errors)
	}
	want := map[string]any{
		"count":   12.0,
		"price":   9.5,
		"agree":   true,
		"flag":    true,
		"code":    "42",
		"when":    "2024-01-02",
		"tags":    []any{"a"},
		"ratio":   0.0,
		"custom":  "10 EUR",
		"address": map[string]any{"city": "Paris"},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if res.Errors != nil {
		t.Errorf("successful result carries errors %v", res.Errors)
	}
}

func TestFinalize_HiddenContainerNeverPersisted(t *testing.T) {
	s := mustSchema(t, `
fields:
  show: {widget: checkbox}
  billing:
    widget: group
    rules: {effect: SHOW, condition: {field: show, operator: "===", value: true}}
    itemSchema:
      fields:
        iban: {widget: text}
`)
	raw := map[string]any{
		"show":    false,
		"billing": map[string]any{"iban": "DE00 1234"},
	}
	res := Finalize(s, raw, nil, Options{})
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Errors)
	}
	if _, ok := res.Data["billing"]; ok {
		t.Errorf("hidden container leaked into payload: %v", res.Data)
	}
}

func TestFinalize_NestedFiltering(t *testing.T) {
	s := mustSchema(t, `
fields:
  items:
    widget: repeater
    itemSchema:
      exclude: [token]
      fields:
        name: {widget: text}
        kind: {widget: select}
        token: {widget: hidden}
        vat:
          widget: text
          rules: {effect: HIDE, condition: {field: kind, operator: "!==", value: business}}
        qty: {widget: number}
`)
	raw := map[string]any{
		"items": []any{
			map[string]any{"name": "A", "kind": "private", "token": "t1", "vat": "DE1", "qty": "2"},
			map[string]any{"name": "B", "kind": "business", "token": "t2", "vat": "DE2"},
		},
	}
	res := Finalize(s, raw, nil, Options{})
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Errors)
	}
	want := map[string]any{
		"items": []any{
			map[string]any{"name": "A", "kind": "private", "qty": 2.0},
			map[string]any{"name": "B", "kind": "business", "vat": "DE2", "qty": 0.0},
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFinalize_Errors(t *testing.T) {
	s := mustSchema(t, `
fields:
  email:
    widget: email
    validation:
      operator: and
      rules:
        - {type: required}
        - {type: contains, value: "@", errorMessage: Enter a valid email}
  locked:
    widget: group
    rules: {effect: DISABLE, condition: {field: email, operator: empty}}
    itemSchema:
      fields:
        code: {widget: text, validation: {type: required}}
  items:
    widget: repeater
    itemSchema:
      fields:
        name: {widget: text, validation: {type: required}}
  secret:
    widget: text
    validation: {type: required}
    rules: {effect: HIDE, condition: {field: email, operator: empty}}
`)

	res := Finalize(s, map[string]any{
		"email": "",
		"items": []any{map[string]any{"name": "ok"}, map[string]any{}},
	}, nil, Options{})

	if res.Success || res.Data != nil {
		t.Fatalf("expected failure without data, got %+v", res)
	}
	want := map[string]string{
		"email":        validation.MsgRequired,
		"items.1.name": validation.MsgRequired,
	}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}

	res = Finalize(s, map[string]any{"email": "nope", "items": []any{}, "secret": "s", "locked": map[string]any{"code": "c"}}, nil, Options{})
	if diff := cmp.Diff(map[string]string{"email": "Enter a valid email"}, res.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestFinalize_SecretScenario(t *testing.T) {
	s := mustSchema(t, secretSchema)
	res := Finalize(s, map[string]any{"firstName": "Gemini", "showSecret": false, "secretCode": "1234"}, nil, Options{})
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Errors)
	}
	want := map[string]any{"firstName": "Gemini", "showSecret": false}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}
