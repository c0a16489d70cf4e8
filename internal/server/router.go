package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AuthHandler serves reviewer authentication.
type AuthHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
}

// FormsHandler serves form introspection.
type FormsHandler interface {
	ListPublic(w http.ResponseWriter, r *http.Request)
	GetPublic(w http.ResponseWriter, r *http.Request)
	OpenAPI(w http.ResponseWriter, r *http.Request)
	ListAdmin(w http.ResponseWriter, r *http.Request)
	GetAdmin(w http.ResponseWriter, r *http.Request)
}

// SubmissionHandler serves evaluation, submissions and drafts.
type SubmissionHandler interface {
	Evaluate(w http.ResponseWriter, r *http.Request)
	Submit(w http.ResponseWriter, r *http.Request)
	GetDraft(w http.ResponseWriter, r *http.Request)
	SaveDraft(w http.ResponseWriter, r *http.Request)
	DeleteDraft(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// AttachmentHandler serves uploads for file and image widgets.
type AttachmentHandler interface {
	Upload(w http.ResponseWriter, r *http.Request)
	Serve(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// Pinger reports database health.
type Pinger interface {
	Health(ctx context.Context) error
}

// Dependencies holds all injectable dependencies used by route handlers.
type Dependencies struct {
	DB          Pinger
	CORSOrigins []string

	Auth        AuthHandler
	Forms       FormsHandler
	Submissions SubmissionHandler
	Attachments AttachmentHandler

	AuditList     http.HandlerFunc
	SchemaRefresh http.HandlerFunc
	SchemaLint    http.HandlerFunc

	// AuthMiddleware guards /admin/api routes other than login, refresh and
	// logout.
	AuthMiddleware func(http.Handler) http.Handler

	// PublicForm rejects {form} URL params naming forms that are not public.
	PublicForm func(http.Handler) http.Handler
}

// NewRouter builds the chi router with the full route tree and middleware
// stack.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// --- Global middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(deps.CORSOrigins))

	r.Get("/health", healthHandler(deps))

	// --- Public API ---
	r.Route("/api/forms", func(r chi.Router) {
		r.Use(requireJSON)
		r.Get("/", deps.Forms.ListPublic)

		r.Route("/{form}", func(r chi.Router) {
			r.Use(deps.PublicForm)
			r.Get("/", deps.Forms.GetPublic)
			r.Get("/openapi", deps.Forms.OpenAPI)
			r.Post("/evaluate", deps.Submissions.Evaluate)
			r.Post("/submissions", deps.Submissions.Submit)
			r.Get("/drafts/{draftID}", deps.Submissions.GetDraft)
			r.Put("/drafts/{draftID}", deps.Submissions.SaveDraft)
			r.Delete("/drafts/{draftID}", deps.Submissions.DeleteDraft)
			r.Post("/attachments", deps.Attachments.Upload)
		})
	})

	r.Get("/attachments/{filename}", deps.Attachments.Serve)

	// --- Reviewer API ---
	r.Route("/admin/api", func(r chi.Router) {
		r.Use(requireJSON)

		r.Post("/auth/login", deps.Auth.Login)
		r.Post("/auth/refresh", deps.Auth.Refresh)
		r.Post("/auth/logout", deps.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware)

			r.Get("/auth/me", deps.Auth.Me)

			r.Get("/forms", deps.Forms.ListAdmin)
			r.Route("/forms/{form}", func(r chi.Router) {
				r.Get("/", deps.Forms.GetAdmin)
				r.Get("/submissions", deps.Submissions.List)
				r.Get("/submissions/{id}", deps.Submissions.Get)
				r.Delete("/submissions/{id}", deps.Submissions.Delete)
			})

			r.Delete("/attachments/{id}", deps.Attachments.Delete)
			r.Get("/audit-log", deps.AuditList)
			r.Post("/schema/refresh", deps.SchemaRefresh)
			r.Get("/schema/lint", deps.SchemaLint)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}

// corsMiddleware allows the configured origins. Credentials are only
// allowed when the list does not contain the wildcard.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}

// healthHandler reports the health status of the service, including a
// database connectivity check.
func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			Error(w, http.StatusServiceUnavailable, "DB_UNHEALTHY", "database health check failed", nil)
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
