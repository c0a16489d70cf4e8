package audit

import (
	"net/http"

	"github.com/GyroZepelix/mithril-forms/internal/server"
)

// Handler serves the audit log API.
type Handler struct {
	service *Service
}

// NewHandler creates a new audit Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /admin/api/audit-log with optional action, resource and
// actor filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := Filters{
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
		ActorID:  q.Get("actor"),
	}
	page, perPage := server.ParsePagination(r)

	entries, total, err := h.service.List(r.Context(), filters, page, perPage)
	if err != nil {
		server.InternalError(w, "audit log list failed", err)
		return
	}
	server.Paginated(w, entries, server.NewPaginationMeta(page, perPage, total))
}
