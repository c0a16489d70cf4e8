package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int{"n": 1})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got, want := strings.TrimSpace(rec.Body.String()), `{"data":{"n":1}}`; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid submission",
		[]FieldError{{Field: "email", Message: "Invalid format"}})

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"error": map[string]any{
			"code":    "VALIDATION_ERROR",
			"message": "invalid submission",
			"details": []any{map[string]any{"field": "email", "message": "Invalid format"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("error body mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginated(t *testing.T) {
	rec := httptest.NewRecorder()
	Paginated(rec, []int{1, 2}, NewPaginationMeta(2, 2, 5))

	want := `{"data":[1,2],"meta":{"page":2,"per_page":2,"total":5,"total_pages":3}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantCode int
	}{
		{"valid", `{"data":{"a":1}}`, true, 0},
		{"empty", ``, false, http.StatusBadRequest},
		{"malformed", `{"data":`, false, http.StatusBadRequest},
		{"too large", `{"data":"` + strings.Repeat("x", MaxBodySize) + `"}`, false, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var v struct {
				Data map[string]any `json:"data"`
			}
			ok := DecodeJSON(rec, req, &v)
			if ok != tt.wantOK {
				t.Fatalf("DecodeJSON() = %v, want %v (body %s)", ok, tt.wantOK, rec.Body.String())
			}
			if !ok && rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if ok && v.Data["a"] != float64(1) {
				t.Errorf("decoded %v", v.Data)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name        string
		queryString string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "", 1, 20},
		{"custom page", "page=3", 3, 20},
		{"custom per_page", "per_page=50", 1, 50},
		{"invalid page", "page=-1", 1, 20},
		{"invalid per_page", "per_page=abc", 1, 20},
		{"per_page capped", "per_page=200", 1, 100},
		{"zero per_page", "per_page=0", 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.queryString, nil)
			page, perPage := ParsePagination(r)
			if page != tt.wantPage || perPage != tt.wantPerPage {
				t.Errorf("ParsePagination() = (%d, %d), want (%d, %d)", page, perPage, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}

func TestRequireJSON(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := requireJSON(ok)

	tests := []struct {
		name   string
		method string
		ct     string
		body   string
		want   int
	}{
		{"get passes", http.MethodGet, "", "", http.StatusNoContent},
		{"json post", http.MethodPost, "application/json; charset=utf-8", "{}", http.StatusNoContent},
		{"multipart post", http.MethodPost, "multipart/form-data; boundary=x", "--x--", http.StatusNoContent},
		{"empty post", http.MethodPost, "", "", http.StatusNoContent},
		{"text put", http.MethodPut, "text/plain", "hi", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ----- router wiring -----

type recorder struct{ hit string }

func (rc *recorder) handler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc.hit = name
		w.WriteHeader(http.StatusNoContent)
	}
}

type stubAuth struct{ *recorder }

func (s stubAuth) Login(w http.ResponseWriter, r *http.Request)   { s.handler("login")(w, r) }
func (s stubAuth) Refresh(w http.ResponseWriter, r *http.Request) { s.handler("refresh")(w, r) }
func (s stubAuth) Logout(w http.ResponseWriter, r *http.Request)  { s.handler("logout")(w, r) }
func (s stubAuth) Me(w http.ResponseWriter, r *http.Request)      { s.handler("me")(w, r) }

type stubForms struct{ *recorder }

func (s stubForms) ListPublic(w http.ResponseWriter, r *http.Request) { s.handler("forms.list")(w, r) }
func (s stubForms) GetPublic(w http.ResponseWriter, r *http.Request)  { s.handler("forms.get")(w, r) }
func (s stubForms) OpenAPI(w http.ResponseWriter, r *http.Request)    { s.handler("forms.openapi")(w, r) }
func (s stubForms) ListAdmin(w http.ResponseWriter, r *http.Request)  { s.handler("admin.forms.list")(w, r) }
func (s stubForms) GetAdmin(w http.ResponseWriter, r *http.Request)   { s.handler("admin.forms.get")(w, r) }

type stubSubmissions struct{ *recorder }

func (s stubSubmissions) Evaluate(w http.ResponseWriter, r *http.Request) { s.handler("evaluate")(w, r) }
func (s stubSubmissions) Submit(w http.ResponseWriter, r *http.Request)   { s.handler("submit")(w, r) }
func (s stubSubmissions) GetDraft(w http.ResponseWriter, r *http.Request) { s.handler("draft.get")(w, r) }
func (s stubSubmissions) SaveDraft(w http.ResponseWriter, r *http.Request) {
	s.handler("draft.save")(w, r)
}
func (s stubSubmissions) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	s.handler("draft.delete")(w, r)
}
func (s stubSubmissions) List(w http.ResponseWriter, r *http.Request)   { s.handler("sub.list")(w, r) }
func (s stubSubmissions) Get(w http.ResponseWriter, r *http.Request)    { s.handler("sub.get")(w, r) }
func (s stubSubmissions) Delete(w http.ResponseWriter, r *http.Request) { s.handler("sub.delete")(w, r) }

type stubAttachments struct{ *recorder }

func (s stubAttachments) Upload(w http.ResponseWriter, r *http.Request) { s.handler("att.upload")(w, r) }
func (s stubAttachments) Serve(w http.ResponseWriter, r *http.Request)  { s.handler("att.serve")(w, r) }
func (s stubAttachments) Delete(w http.ResponseWriter, r *http.Request) { s.handler("att.delete")(w, r) }

type stubDB struct{ err error }

func (s stubDB) Health(context.Context) error { return s.err }

func newTestRouter(rc *recorder, dbErr error) http.Handler {
	denyAll := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	onlyPublic := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "/secret") {
				Error(w, http.StatusNotFound, "NOT_FOUND", "form not found", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return NewRouter(Dependencies{
		DB:             stubDB{err: dbErr},
		CORSOrigins:    []string{"*"},
		Auth:           stubAuth{rc},
		Forms:          stubForms{rc},
		Submissions:    stubSubmissions{rc},
		Attachments:    stubAttachments{rc},
		AuditList:      rc.handler("audit"),
		SchemaRefresh:  rc.handler("refresh.schema"),
		SchemaLint:     rc.handler("lint.schema"),
		AuthMiddleware: denyAll,
		PublicForm:     onlyPublic,
	})
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		method, path string
		auth         bool
		want         string
	}{
		{http.MethodGet, "/api/forms", false, "forms.list"},
		{http.MethodGet, "/api/forms/contact", false, "forms.get"},
		{http.MethodGet, "/api/forms/contact/openapi", false, "forms.openapi"},
		{http.MethodPost, "/api/forms/contact/evaluate", false, "evaluate"},
		{http.MethodPost, "/api/forms/contact/submissions", false, "submit"},
		{http.MethodGet, "/api/forms/contact/drafts/d1", false, "draft.get"},
		{http.MethodPut, "/api/forms/contact/drafts/d1", false, "draft.save"},
		{http.MethodDelete, "/api/forms/contact/drafts/d1", false, "draft.delete"},
		{http.MethodPost, "/api/forms/contact/attachments", false, "att.upload"},
		{http.MethodGet, "/attachments/abc.png", false, "att.serve"},
		{http.MethodPost, "/admin/api/auth/login", false, "login"},
		{http.MethodGet, "/admin/api/auth/me", true, "me"},
		{http.MethodGet, "/admin/api/forms", true, "admin.forms.list"},
		{http.MethodGet, "/admin/api/forms/secret", true, "admin.forms.get"},
		{http.MethodGet, "/admin/api/forms/contact/submissions", true, "sub.list"},
		{http.MethodGet, "/admin/api/forms/contact/submissions/7", true, "sub.get"},
		{http.MethodDelete, "/admin/api/forms/contact/submissions/7", true, "sub.delete"},
		{http.MethodDelete, "/admin/api/attachments/9", true, "att.delete"},
		{http.MethodGet, "/admin/api/audit-log", true, "audit"},
		{http.MethodPost, "/admin/api/schema/refresh", true, "refresh.schema"},
		{http.MethodGet, "/admin/api/schema/lint", true, "lint.schema"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rc := &recorder{}
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer x")
			}
			rec := httptest.NewRecorder()
			newTestRouter(rc, nil).ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if rc.hit != tt.want {
				t.Errorf("routed to %q, want %q", rc.hit, tt.want)
			}
		})
	}
}

func TestRouter_Guards(t *testing.T) {
	tests := []struct {
		name, method, path string
		want               int
	}{
		{"admin without token", http.MethodGet, "/admin/api/forms", http.StatusUnauthorized},
		{"private form on public api", http.MethodPost, "/api/forms/secret/evaluate", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &recorder{}
			rec := httptest.NewRecorder()
			newTestRouter(rc, nil).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rc.hit != "" {
				t.Errorf("handler %q should not run", rc.hit)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"healthy", nil, http.StatusOK},
		{"db down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(&recorder{}, tt.err).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
