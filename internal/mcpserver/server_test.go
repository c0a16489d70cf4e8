package mcpserver

import (
	"context"
	"slices"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

const signupForm = `
name: signup
label: Sign up
public: true
fields:
  email:
    widget: email
    validation: {type: required}
    autoSave: true
  newsletter: {widget: checkbox, autoSave: true}
  topic:
    widget: select
    autoSave: true
    rules: {effect: SHOW, condition: {field: newsletter, operator: "===", value: true}}
  password:
    widget: password
    sensitivity: restricted
    autoSave: true
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	f, err := schema.Parse([]byte(signupForm))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return New([]schema.Form{f}, nil)
}

func TestListForms(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleListForms(context.Background(), &mcp.CallToolRequest{}, listFormsInput{})
	if err != nil {
		t.Fatal(err)
	}
	want := []formSummary{{
		Name:   "signup",
		Label:  "Sign up",
		Public: true,
		Fields: []string{"email", "newsletter", "topic", "password"},
	}}
	if diff := cmp.Diff(want, out.Forms); diff != "" {
		t.Errorf("forms mismatch (-want +got):\n%s", diff)
	}
}

func TestFinalize(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("hidden field dropped", func(t *testing.T) {
		res, out, err := s.handleFinalize(ctx, &mcp.CallToolRequest{}, dataInput{
			Form: "signup",
			Data: map[string]any{"email": "a@b.co", "newsletter": false, "topic": "go"},
		})
		if err != nil || res != nil {
			t.Fatalf("unexpected error result %v, %v", res, err)
		}
		if !out.Success {
			t.Fatalf("expected success, got %v", out.Errors)
		}
		if _, ok := out.Data["topic"]; ok {
			t.Errorf("hidden field persisted: %v", out.Data)
		}
	})

	t.Run("required field missing", func(t *testing.T) {
		_, out, err := s.handleFinalize(ctx, &mcp.CallToolRequest{}, dataInput{Form: "signup"})
		if err != nil {
			t.Fatal(err)
		}
		if out.Success {
			t.Fatal("expected failure")
		}
		if diff := cmp.Diff(map[string]string{"email": "This field is required"}, out.Errors); diff != "" {
			t.Errorf("errors mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAutoSave(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleAutoSave(context.Background(), &mcp.CallToolRequest{}, dataInput{
		Form: "signup",
		Data: map[string]any{"email": "a@b.co", "password": "hunter2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out.ShouldSave {
		t.Fatal("expected ShouldSave")
	}
	// Sensitivity does not gate autosave; lint_forms flags the password field.
	want := map[string]any{"email": "a@b.co", "newsletter": false, "password": "hunter2"}
	if diff := cmp.Diff(want, out.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	_, lint, err := s.handleLint(context.Background(), &mcp.CallToolRequest{}, lintInput{})
	if err != nil {
		t.Fatal(err)
	}
	flagged := false
	for _, w := range lint.Warnings {
		if w.Field == "password" {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("restricted autosave field not reported: %+v", lint.Warnings)
	}
}

func TestEvaluate(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleEvaluate(context.Background(), &mcp.CallToolRequest{}, dataInput{
		Form: "signup",
		Data: map[string]any{"newsletter": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.IsValid {
		t.Error("form without email reported valid")
	}
	topic, ok := out.Fields["topic"].(map[string]any)
	if !ok {
		t.Fatalf("topic state missing: %v", out.Fields)
	}
	if topic["isVisible"] != true {
		t.Errorf("topic isVisible = %v, want true", topic["isVisible"])
	}
}

func TestResolveErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input dataInput
	}{
		{"no form", dataInput{}},
		{"unknown form", dataInput{Form: "nope"}},
		{"unparsable definition", dataInput{Definition: "fields: ["}},
		{"invalid definition", dataInput{Definition: "name: Bad Name\nfields:\n  a: {widget: text}\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := s.handleFinalize(ctx, &mcp.CallToolRequest{}, tt.input)
			if err != nil {
				t.Fatalf("protocol error %v, want a tool error", err)
			}
			if res == nil || !res.IsError {
				t.Errorf("expected an error result, got %v", res)
			}
		})
	}
}

func TestInlineDefinition(t *testing.T) {
	s := New(nil, nil)

	_, out, err := s.handleFinalize(context.Background(), &mcp.CallToolRequest{}, dataInput{
		Definition: "name: quick\nfields:\n  n: {widget: number}\n",
		Data:       map[string]any{"n": "7"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"n": 7.0}, out.Data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestLint(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleLint(ctx, &mcp.CallToolRequest{}, lintInput{})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Valid {
		t.Errorf("loaded forms reported invalid: %v", out.Problems)
	}
	want := []schema.Warning{{Form: "signup", Field: "password", Message: "restricted field is autosaved into drafts"}}
	if diff := cmp.Diff(want, out.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}

	_, out, err = s.handleLint(ctx, &mcp.CallToolRequest{}, lintInput{Definition: "name: x\nfields:\n  a: {widget: spinner}\n"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Valid || len(out.Problems) != 1 {
		t.Errorf("got valid=%v problems=%v, want one problem", out.Valid, out.Problems)
	}
}

func startTestSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- newTestServer(t).mcpServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-done
	})
	return session
}

func TestIntegration(t *testing.T) {
	session := startTestSession(t)
	ctx := context.Background()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"autosave_form", "evaluate_form", "finalize_form", "lint_forms", "list_forms"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "finalize_form",
		Arguments: map[string]any{"form": "signup", "data": map[string]any{"email": "a@b.co"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("finalize_form failed: %v", result.Content)
	}
	b, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	var out finalizeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.Data["email"] != "a@b.co" {
		t.Errorf("output = %+v", out)
	}
}
