package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GyroZepelix/mithril-forms/internal/audit"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/admin/api/auth"
)

// authenticator is the part of *Service the handler uses.
type authenticator interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, oldToken string) (*Session, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Handler serves the reviewer authentication endpoints.
type Handler struct {
	service authenticator
	audit   *audit.Service
	devMode bool
}

// NewHandler creates an auth Handler. In dev mode the refresh cookie is
// sent without the Secure flag so plain-HTTP localhost works. auditService
// may be nil.
func NewHandler(service *Service, auditService *audit.Service, devMode bool) *Handler {
	return &Handler{service: service, audit: auditService, devMode: devMode}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login handles POST /admin/api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		server.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", nil)
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		h.audit.Log(r.Context(), audit.Event{
			Action:  audit.ActionLoginFailure,
			Payload: map[string]any{"email": req.Email},
		})
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password", nil)
		return
	}
	if err != nil {
		server.InternalError(w, "login failed", err)
		return
	}

	h.audit.Log(r.Context(), audit.Event{Action: audit.ActionLoginSuccess, ActorID: sess.ReviewerID})
	h.setRefreshCookie(w, sess.RefreshToken)
	server.JSON(w, http.StatusOK, tokenResponse{
		AccessToken: sess.AccessToken,
		ExpiresIn:   int(accessTokenExpiry.Seconds()),
	})
}

// Refresh handles POST /admin/api/auth/refresh using the refresh cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token cookie", nil)
		return
	}

	sess, err := h.service.Refresh(r.Context(), cookie.Value)
	if errors.Is(err, ErrInvalidToken) {
		h.clearRefreshCookie(w)
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired refresh token", nil)
		return
	}
	if err != nil {
		server.InternalError(w, "token refresh failed", err)
		return
	}

	h.setRefreshCookie(w, sess.RefreshToken)
	server.JSON(w, http.StatusOK, tokenResponse{
		AccessToken: sess.AccessToken,
		ExpiresIn:   int(accessTokenExpiry.Seconds()),
	})
}

// Logout handles POST /admin/api/auth/logout. The cookie is cleared even
// when the token cannot be deleted.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("logout failed to delete refresh token", "error", err)
		}
	}
	h.clearRefreshCookie(w)
	server.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /admin/api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := ReviewerIDFromContext(r.Context())
	if id == "" {
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated", nil)
		return
	}
	server.JSON(w, http.StatusOK, map[string]string{
		"id":    id,
		"email": EmailFromContext(r.Context()),
	})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(refreshTokenExpiry.Seconds()),
		HttpOnly: true,
		Secure:   !h.devMode,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   !h.devMode,
		SameSite: http.SameSiteStrictMode,
	})
}
