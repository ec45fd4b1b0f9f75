package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestUserIDRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/v1/feed/following", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	userID, err := v.UserID(r)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestUserIDRejections(t *testing.T) {
	v := NewVerifier("test-secret")

	expired, err := v.IssueToken("user-1", -time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewVerifier("other-secret").IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noSubjectToken, err := noSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"not a token":    "Bearer garbage",
		"expired":        "Bearer " + expired,
		"wrong secret":   "Bearer " + otherSecret,
		"no subject":     "Bearer " + noSubjectToken,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/feed/following", nil)
			if header != "" {
				r.Header.Set("Authorization", header)
			}
			_, err := v.UserID(r)
			require.Error(t, err)
			require.True(t, domain.IsAuth(err), "expected AuthError, got %v", err)
		})
	}
}

func TestUserIDRejectsUnsignedAlgorithm(t *testing.T) {
	v := NewVerifier("test-secret")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/v1/feed/following", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err = v.UserID(r)
	require.True(t, domain.IsAuth(err))
}
