package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeYAML is a test helper that writes a YAML file into the given directory.
func writeYAML(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("writing test YAML file %s: %v", filename, err)
	}
}

// ----- LoadSchemas tests -----

func TestLoadSchemas_ProjectForms(t *testing.T) {
	// Use the real schema directory from the project root.
	forms, err := LoadSchemas("../../schema")
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	if len(forms) < 2 {
		t.Fatalf("expected at least 2 forms, got %d", len(forms))
	}

	for i := 1; i < len(forms); i++ {
		if forms[i].Name < forms[i-1].Name {
			t.Errorf("forms not sorted: %q comes after %q", forms[i].Name, forms[i-1].Name)
		}
	}

	if err := ValidateSchemas(forms); err != nil {
		t.Fatalf("project forms do not validate: %v", err)
	}

	var contact *Form
	for i := range forms {
		if forms[i].Name == "contact_request" {
			contact = &forms[i]
		}
	}
	if contact == nil {
		t.Fatal("expected to find contact_request")
	}
	if !contact.Public {
		t.Error("contact_request should be public")
	}
	if len(contact.Hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(contact.Hash))
	}
	first, ok := contact.Fields.Get("firstName")
	if !ok || first.Label != "First Name" {
		t.Errorf("firstName label = %q, want derived %q", first.Label, "First Name")
	}
	sub, _ := contact.Fields.Get("subscribe")
	if sub.Label != "Keep me posted" {
		t.Errorf("explicit label overwritten: %q", sub.Label)
	}
	if first.Validation == nil {
		t.Error("firstName validation was not decoded")
	}
	order, _ := contact.Fields.Get("orderNumber")
	if len(order.Rules) != 2 || order.Rules[0].Condition == nil || order.Rules[1].Condition == nil {
		t.Errorf("orderNumber rules = %+v, want two rules with conditions", order.Rules)
	}
}

func TestLoadSchemas_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "b.yaml", "name: b_form\nfields:\n  x: {widget: text}\n")
	writeYAML(t, dir, "a.yml", "name: a_form\nfields:\n  x: {widget: text}\n")
	writeYAML(t, dir, "notes.txt", "not a form")
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	forms, err := LoadSchemas(dir)
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	if len(forms) != 2 || forms[0].Name != "a_form" || forms[1].Name != "b_form" {
		t.Errorf("unexpected forms %+v", forms)
	}
	if forms[0].Label != "A Form" {
		t.Errorf("derived form label = %q", forms[0].Label)
	}
}

func TestLoadSchemas_EmptyAndMissing(t *testing.T) {
	forms, err := LoadSchemas(t.TempDir())
	if err != nil || len(forms) != 0 {
		t.Errorf("empty dir: forms=%v err=%v", forms, err)
	}

	_, err = LoadSchemas(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestParse_UnknownKeys(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"top level", "name: x\ntitle: X\nfields:\n  a: {}\n", "title"},
		{"field", "name: x\nfields:\n  a: {widget: text, requred: true}\n", "requred"},
		{"nested", "name: x\nfields:\n  a:\n    itemSchema:\n      fields:\n        b: {colour: red}\n", "colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_HashTracksBytes(t *testing.T) {
	a, err := Parse([]byte("name: x\nfields:\n  a: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte("name: x\nfields:\n  a: {}  # comment\n"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash == b.Hash {
		t.Error("different bytes must hash differently")
	}
	if string(a.Source) != "name: x\nfields:\n  a: {}\n" {
		t.Errorf("source not kept: %q", a.Source)
	}
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"firstName", "First Name"},
		{"first_name", "First Name"},
		{"address.zipCode", "Zip Code"},
		{"line2Total", "Line2 Total"},
		{"email", "Email"},
		{"vat-id", "Vat Id"},
	}
	for _, tt := range tests {
		if got := Humanize(tt.in); got != tt.want {
			t.Errorf("Humanize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
