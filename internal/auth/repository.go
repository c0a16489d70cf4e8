// Package auth authenticates form reviewers: Argon2id passwords, short-lived
// JWT access tokens and rotating refresh tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/mithril-forms/internal/database"
)

var (
	// ErrNotFound is returned when a reviewer or refresh token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTokenAlreadyUsed is returned by RotateRefreshToken when the old token
	// was already consumed. All of the reviewer's tokens are revoked by then.
	ErrTokenAlreadyUsed = errors.New("refresh token already used")
)

// Reviewer is a row of the reviewers table.
type Reviewer struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken is a row of the refresh_tokens table.
type RefreshToken struct {
	ID         string
	ReviewerID string
	TokenHash  string
	ExpiresAt  time.Time
	// UsedAt is set once the token has been rotated. Presenting it again is
	// a replay.
	UsedAt *time.Time
}

// Repository provides database access for reviewers and refresh tokens.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new auth Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

func scanReviewer(row pgx.Row) (*Reviewer, error) {
	var rv Reviewer
	if err := row.Scan(&rv.ID, &rv.Email, &rv.PasswordHash, &rv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rv, nil
}

// GetReviewerByEmail returns the reviewer with the given email (case
// insensitive) or ErrNotFound.
func (r *Repository) GetReviewerByEmail(ctx context.Context, email string) (*Reviewer, error) {
	rv, err := scanReviewer(r.db.Pool().QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM reviewers WHERE lower(email) = lower($1)`,
		email,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("querying reviewer by email: %w", err)
	}
	return rv, err
}

// GetReviewerByID returns the reviewer with the given UUID or ErrNotFound.
func (r *Repository) GetReviewerByID(ctx context.Context, id string) (*Reviewer, error) {
	rv, err := scanReviewer(r.db.Pool().QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM reviewers WHERE id = $1`,
		id,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("querying reviewer by id: %w", err)
	}
	return rv, err
}

// CreateReviewer inserts a reviewer. An existing reviewer with the same
// email is returned unchanged.
func (r *Repository) CreateReviewer(ctx context.Context, email, passwordHash string) (*Reviewer, error) {
	rv, err := scanReviewer(r.db.Pool().QueryRow(ctx,
		`INSERT INTO reviewers (email, password_hash) VALUES ($1, $2)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id, email, password_hash, created_at`,
		email, passwordHash,
	))
	switch {
	case errors.Is(err, ErrNotFound):
		// Conflict: the reviewer already exists.
		return r.GetReviewerByEmail(ctx, email)
	case err != nil:
		return nil, fmt.Errorf("creating reviewer: %w", err)
	}
	return rv, nil
}

// CreateRefreshToken stores the hash of a new refresh token.
func (r *Repository) CreateRefreshToken(ctx context.Context, reviewerID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO refresh_tokens (reviewer_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		reviewerID, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken looks a token up by hash or returns ErrNotFound.
func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var t RefreshToken
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, reviewer_id, token_hash, expires_at, used_at FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash,
	).Scan(&t.ID, &t.ReviewerID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}
	return &t, nil
}

// RotateRefreshToken marks oldHash as used and stores newHash in one
// transaction. Used tokens are kept until they expire so that a later replay
// can be recognised. When oldHash was already used (two concurrent refreshes
// racing), every token of the reviewer is revoked and ErrTokenAlreadyUsed is
// returned.
func (r *Repository) RotateRefreshToken(ctx context.Context, oldHash, newHash, reviewerID string, expiresAt time.Time) error {
	replayed := false
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET used_at = now()
			 WHERE token_hash = $1 AND reviewer_id = $2 AND used_at IS NULL`,
			oldHash, reviewerID,
		)
		if err != nil {
			return fmt.Errorf("marking refresh token used: %w", err)
		}

		if tag.RowsAffected() == 0 {
			replayed = true
			if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE reviewer_id = $1`, reviewerID); err != nil {
				return fmt.Errorf("revoking tokens after replay: %w", err)
			}
			return nil
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO refresh_tokens (reviewer_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
			reviewerID, newHash, expiresAt,
		); err != nil {
			return fmt.Errorf("inserting new refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	if replayed {
		return ErrTokenAlreadyUsed
	}
	return nil
}

// RevokeReviewerTokens deletes every refresh token of a reviewer, ending all
// of their sessions.
func (r *Repository) RevokeReviewerTokens(ctx context.Context, reviewerID string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM refresh_tokens WHERE reviewer_id = $1`, reviewerID); err != nil {
		return fmt.Errorf("revoking reviewer tokens: %w", err)
	}
	return nil
}

// DeleteRefreshToken removes a token by hash. Missing tokens are not an error.
func (r *Repository) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// DeleteExpiredTokens removes expired refresh tokens and reports how many
// were deleted.
func (r *Repository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
