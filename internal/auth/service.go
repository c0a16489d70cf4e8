package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
)

const (
	refreshTokenExpiry = 7 * 24 * time.Hour
	refreshTokenBytes  = 32
	minPasswordLength  = 8
	maxPasswordLength  = 64
)

// Sentinel errors for authentication failures.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrPasswordTooLong    = fmt.Errorf("password must be at most %d characters", maxPasswordLength)
)

// store is the persistence the service needs. *Repository implements it.
type store interface {
	GetReviewerByEmail(ctx context.Context, email string) (*Reviewer, error)
	GetReviewerByID(ctx context.Context, id string) (*Reviewer, error)
	CreateReviewer(ctx context.Context, email, passwordHash string) (*Reviewer, error)
	CreateRefreshToken(ctx context.Context, reviewerID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash, newHash, reviewerID string, expiresAt time.Time) error
	RevokeReviewerTokens(ctx context.Context, reviewerID string) error
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// Session is the result of a successful login or refresh.
type Session struct {
	ReviewerID   string
	AccessToken  string
	RefreshToken string
}

// Service implements reviewer login, token refresh and logout.
type Service struct {
	repo      store
	jwtSecret string
	now       func() time.Time
}

// NewService creates a new auth Service.
func NewService(repo *Repository, jwtSecret string) *Service {
	return newService(repo, jwtSecret)
}

func newService(repo store, jwtSecret string) *Service {
	return &Service{repo: repo, jwtSecret: jwtSecret, now: time.Now}
}

// EnsureReviewer creates the bootstrap reviewer unless one with the same
// email exists.
func (s *Service) EnsureReviewer(ctx context.Context, email, password string) error {
	if err := validatePassword(password); err != nil {
		return fmt.Errorf("initial reviewer password: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	rv, err := s.repo.CreateReviewer(ctx, email, hash)
	if err != nil {
		return fmt.Errorf("creating initial reviewer: %w", err)
	}
	slog.Info("initial reviewer ensured", "email", rv.Email, "id", rv.ID)
	return nil
}

// HashPassword hashes a password with Argon2id default parameters.
func HashPassword(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches the Argon2id hash.
func VerifyPassword(hash, password string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("verifying password: %w", err)
	}
	return match, nil
}

// Login checks the credentials and opens a session. Unknown emails and
// wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	rv, err := s.repo.GetReviewerByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up reviewer: %w", err)
	}

	match, err := VerifyPassword(rv.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	access, err := CreateAccessToken(rv.ID, rv.Email, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	refresh, hash, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateRefreshToken(ctx, rv.ID, hash, s.now().Add(refreshTokenExpiry)); err != nil {
		return nil, err
	}
	return &Session{ReviewerID: rv.ID, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh token. Reusing a consumed token revokes all of
// the reviewer's sessions.
func (s *Service) Refresh(ctx context.Context, oldToken string) (*Session, error) {
	oldHash := hashToken(oldToken)

	stored, err := s.repo.GetRefreshToken(ctx, oldHash)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}
	if stored.UsedAt != nil {
		if err := s.repo.RevokeReviewerTokens(ctx, stored.ReviewerID); err != nil {
			return nil, fmt.Errorf("revoking sessions after replay: %w", err)
		}
		slog.Warn("refresh token replay detected, all sessions revoked", "reviewer_id", stored.ReviewerID)
		return nil, ErrInvalidToken
	}
	if s.now().After(stored.ExpiresAt) {
		_ = s.repo.DeleteRefreshToken(ctx, oldHash)
		return nil, ErrInvalidToken
	}

	refresh, newHash, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	err = s.repo.RotateRefreshToken(ctx, oldHash, newHash, stored.ReviewerID, s.now().Add(refreshTokenExpiry))
	if errors.Is(err, ErrTokenAlreadyUsed) {
		slog.Warn("refresh token replay detected, all sessions revoked", "reviewer_id", stored.ReviewerID)
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	rv, err := s.repo.GetReviewerByID(ctx, stored.ReviewerID)
	if err != nil {
		return nil, fmt.Errorf("looking up reviewer for refresh: %w", err)
	}
	access, err := CreateAccessToken(rv.ID, rv.Email, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &Session{ReviewerID: rv.ID, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout deletes the refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repo.DeleteRefreshToken(ctx, hashToken(refreshToken)); err != nil {
		return fmt.Errorf("deleting refresh token on logout: %w", err)
	}
	return nil
}

// PruneTokens deletes expired refresh tokens every interval until ctx is
// cancelled.
func (s *Service) PruneTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.DeleteExpiredTokens(ctx)
			if err != nil {
				slog.Error("pruning refresh tokens failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired refresh tokens pruned", "count", n)
			}
		}
	}
}

// newRefreshToken returns a random hex token and its hash.
func newRefreshToken() (token, hash string, err error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}
	token = hex.EncodeToString(raw)
	return token, hashToken(token), nil
}

// hashToken returns the hex SHA-256 of a raw token. Only hashes are stored.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// validatePassword enforces the length policy in runes.
func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return ErrPasswordTooShort
	}
	if n > maxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}
