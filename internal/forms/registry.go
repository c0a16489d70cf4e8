// Package forms holds the in-memory set of loaded form definitions and
// serves form introspection: the public form list, the reviewer list with
// submission and draft counts, and each form's OpenAPI document.
package forms

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

// ErrFormNotFound is returned when no loaded form has the requested name.
var ErrFormNotFound = errors.New("form not found")

// Registry is the set of forms currently served. It is replaced as a whole
// after a schema refresh.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]*schema.Form
}

// NewRegistry creates a registry holding forms.
func NewRegistry(forms []schema.Form) *Registry {
	r := &Registry{}
	r.Replace(forms)
	return r
}

// Replace swaps the served forms for forms.
func (r *Registry) Replace(forms []schema.Form) {
	m := make(map[string]*schema.Form, len(forms))
	for i := range forms {
		f := forms[i]
		m[f.Name] = &f
	}
	r.mu.Lock()
	r.forms = m
	r.mu.Unlock()
}

// Get returns the form called name.
func (r *Registry) Get(name string) (*schema.Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[name]
	if !ok {
		return nil, ErrFormNotFound
	}
	return f, nil
}

// List returns all forms sorted by name.
func (r *Registry) List() []*schema.Form {
	r.mu.RLock()
	out := make([]*schema.Form, 0, len(r.forms))
	for _, f := range r.forms {
		out = append(out, f)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Public returns the public forms sorted by name.
func (r *Registry) Public() []*schema.Form {
	var out []*schema.Form
	for _, f := range r.List() {
		if f.Public {
			out = append(out, f)
		}
	}
	return out
}

// RequirePublic answers 404 for requests whose {form} URL parameter does
// not name a loaded public form.
func (r *Registry) RequirePublic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "form")
		f, err := r.Get(name)
		if err != nil || !f.Public {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("form '%s' not found", name), nil)
			return
		}
		next.ServeHTTP(w, req)
	})
}
