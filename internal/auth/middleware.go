package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/server"
)

type contextKey int

const (
	reviewerIDKey contextKey = iota
	emailKey
)

// Middleware validates the Bearer access token and stores the reviewer's ID
// and email in the request context. Failures answer 401.
func Middleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header", nil)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format", nil)
				return
			}

			claims, err := ValidateAccessToken(token, jwtSecret)
			if err != nil {
				server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithReviewer(r.Context(), claims.ReviewerID(), claims.Email)))
		})
	}
}

// WithReviewer returns a context carrying the reviewer identity.
func WithReviewer(ctx context.Context, id, email string) context.Context {
	ctx = context.WithValue(ctx, reviewerIDKey, id)
	return context.WithValue(ctx, emailKey, email)
}

// ReviewerIDFromContext returns the authenticated reviewer's UUID, or "" for
// anonymous requests.
func ReviewerIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(reviewerIDKey).(string)
	return v
}

// EmailFromContext returns the authenticated reviewer's email, or "".
func EmailFromContext(ctx context.Context) string {
	v, _ := ctx.Value(emailKey).(string)
	return v
}
