package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func registered(t *testing.T, src string) registeredForm {
	t.Helper()
	f := mustParse(t, src)
	return registeredForm{Name: f.Name, Hash: f.Hash, Source: f.Source}
}

func TestPlanChanges(t *testing.T) {
	unchangedSrc := "name: stable\nfields:\n  a: {}\n"
	existing := map[string]registeredForm{
		"stable":  registered(t, unchangedSrc),
		"evolved": registered(t, "name: evolved\nfields:\n  a: {}\n  b: {}\n"),
	}
	forms := []Form{
		mustParse(t, unchangedSrc),
		mustParse(t, "name: evolved\nfields:\n  a: {}\n  c: {}\n"),
		mustParse(t, "name: fresh\nfields:\n  x: {indexed: true}\n"),
	}

	result, changed := planChanges(forms, existing)

	if diff := cmp.Diff([]string{"fresh"}, result.NewForms); diff != "" {
		t.Errorf("NewForms mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"evolved"}, result.UpdatedForms); diff != "" {
		t.Errorf("UpdatedForms mismatch (-want +got):\n%s", diff)
	}

	var names []string
	for _, f := range changed {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"evolved", "fresh"}, names); diff != "" {
		t.Errorf("changed forms mismatch (-want +got):\n%s", diff)
	}

	gotApplied := summarize(result.Applied)
	wantApplied := []changeSummary{
		{Type: ChangeAddField, Field: "c", Safe: true},
		{Type: ChangeRemoveField, Field: "b", Safe: false},
		{Type: ChangeCreateForm, Safe: true},
		{Type: ChangeAddIndex, Field: "x", Safe: true},
	}
	if diff := cmp.Diff(wantApplied, gotApplied); diff != "" {
		t.Errorf("Applied mismatch (-want +got):\n%s", diff)
	}

	if len(result.Breaking) != 1 || result.Breaking[0].Field != "b" {
		t.Errorf("expected removal of b as the only breaking change, got %v", result.Breaking)
	}
}

func TestPlanChanges_UnparseableSource(t *testing.T) {
	existing := map[string]registeredForm{
		"f": {Name: "f", Hash: "old", Source: []byte("::: not yaml")},
	}
	forms := []Form{mustParse(t, "name: f\nfields:\n  a: {}\n")}

	result, changed := planChanges(forms, existing)
	if len(changed) != 1 {
		t.Fatalf("expected the form to be re-registered, got %d", len(changed))
	}
	want := []changeSummary{{Type: ChangeAddField, Field: "a", Safe: true}}
	if diff := cmp.Diff(want, summarize(result.Applied)); diff != "" {
		t.Errorf("Applied mismatch (-want +got):\n%s", diff)
	}
}

func TestBreakingChangesError(t *testing.T) {
	var err error = &BreakingChangesError{Changes: []Change{
		{Detail: "remove field f.a"},
		{Detail: "change stored type of f.b"},
	}}

	var bce *BreakingChangesError
	if !errors.As(err, &bce) {
		t.Fatal("errors.As failed")
	}
	msg := err.Error()
	for _, want := range []string{"2 breaking change(s)", "remove field f.a", "change stored type of f.b"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not contain %q", msg, want)
		}
	}
}
