package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestCreateAndValidateAccessToken(t *testing.T) {
	reviewerID := "550e8400-e29b-41d4-a716-446655440000"
	email := "reviewer@example.com"

	token, err := CreateAccessToken(reviewerID, email, testSecret)
	if err != nil {
		t.Fatalf("CreateAccessToken: unexpected error: %v", err)
	}

	claims, err := ValidateAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken: unexpected error: %v", err)
	}
	if claims.ReviewerID() != reviewerID {
		t.Errorf("ReviewerID() = %q, want %q", claims.ReviewerID(), reviewerID)
	}
	if claims.Email != email {
		t.Errorf("Email = %q, want %q", claims.Email, email)
	}
	if claims.Issuer != "mithril-forms" {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, "mithril-forms")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != accessTokenExpiry {
		t.Errorf("token lifetime = %v, want %v", got, accessTokenExpiry)
	}
}

// sign is a test helper that signs arbitrary claims.
func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	now := time.Now()
	valid := func() Claims {
		return Claims{
			Email: "r@example.com",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "id",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
				Issuer:    tokenIssuer,
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	foreign := valid()
	foreign.Issuer = "some-other-service"

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	noSubject := valid()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"malformed", "not-a-jwt"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), valid())},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"foreign issuer", sign(t, jwt.SigningMethodHS256, []byte(testSecret), foreign)},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry)},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject)},
		{"none algorithm", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateAccessToken(tt.token, testSecret); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
