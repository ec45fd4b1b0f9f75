// Package auth verifies caller identity for the authenticated read-side
// endpoints. Token issuance belongs to the session collaborator; this engine
// only trusts a verified subject claim.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates HS256 bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier with the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// UserID extracts and verifies the caller's user id from the request's
// Authorization header. Any failure is an AuthError.
func (v *Verifier) UserID(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", &domain.AuthError{Msg: "missing Authorization header"}
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", &domain.AuthError{Msg: "Authorization header must use the Bearer scheme"}
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", &domain.AuthError{Msg: "invalid token: " + err.Error()}
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", &domain.AuthError{Msg: "token has no subject"}
	}
	return subject, nil
}

// IssueToken mints a token for userID. Production tokens come from the
// session collaborator; this exists for the seed tool and tests.
func (v *Verifier) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
